// Package api is the credit pipeline's core HTTP surface (spec §6):
// uploads presign/status/list and the credits checkout/purchase/balance
// routes, all chi.Router-mounted AppHandlers in the teacher's style
// (services/skus/controllers.go).
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/google/uuid"

	"github.com/putto11262002/sabaipics-core/internal/httpmw"
	"github.com/putto11262002/sabaipics-core/internal/httpx"
	"github.com/putto11262002/sabaipics-core/internal/intent"
	"github.com/putto11262002/sabaipics-core/internal/model"
)

// UploadsRouter mounts the upload-intent routes (spec §6).
func UploadsRouter(m *intent.Machine) chi.Router {
	r := chi.NewRouter()
	r.Method(http.MethodPost, "/presign", httpx.AppHandler(createPresign(m)))
	r.Method(http.MethodPost, "/{id}/presign", httpx.AppHandler(represign(m)))
	r.Method(http.MethodGet, "/status", httpx.AppHandler(status(m)))
	r.Method(http.MethodGet, "/events/{eventId}", httpx.AppHandler(listByEvent(m)))
	return r
}

type createPresignRequest struct {
	EventID       string `json:"eventId"`
	ContentType   string `json:"contentType"`
	ContentLength int64  `json:"contentLength"`
	Source        string `json:"source,omitempty"`
}

type presignResponse struct {
	UploadID        uuid.UUID         `json:"uploadId"`
	PutURL          string            `json:"putUrl"`
	ObjectKey       string            `json:"objectKey"`
	ExpiresAt       time.Time         `json:"expiresAt"`
	RequiredHeaders map[string]string `json:"requiredHeaders"`
}

func createPresign(m *intent.Machine) httpx.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *httpx.AppError {
		photographerID, ok := httpmw.PhotographerID(r)
		if !ok {
			return httpx.NewError(httpx.CodeUnauthorized, "missing authenticated photographer")
		}

		var req createPresignRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return httpx.Wrap(err, httpx.CodeBadRequest, "invalid request body")
		}
		eventID, err := uuid.Parse(req.EventID)
		if err != nil {
			return httpx.ValidationError("invalid request", map[string]interface{}{"eventId": "must be a uuid"})
		}

		source := model.SourceUpload
		if req.Source != "" {
			source = model.LedgerEntrySource(req.Source)
		}

		created, target, err := m.CreatePresign(r.Context(), intent.CreatePresignRequest{
			PhotographerID: photographerID,
			EventID:        eventID,
			ContentType:    req.ContentType,
			ContentLength:  req.ContentLength,
			Source:         source,
		})
		if err != nil {
			return appErrorFromDomain(err)
		}

		return httpx.RenderJSON(w, http.StatusCreated, presignResponse{
			UploadID:        created.ID,
			PutURL:          target.PutURL,
			ObjectKey:       target.ObjectKey,
			ExpiresAt:       target.ExpiresAt,
			RequiredHeaders: target.RequiredHeaders,
		})
	}
}

func represign(m *intent.Machine) httpx.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *httpx.AppError {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			return httpx.ValidationError("invalid request", map[string]interface{}{"id": "must be a uuid"})
		}

		updated, target, err := m.Represign(r.Context(), id)
		if err != nil {
			return appErrorFromDomain(err)
		}

		return httpx.RenderJSON(w, http.StatusOK, presignResponse{
			UploadID:        updated.ID,
			PutURL:          target.PutURL,
			ObjectKey:       target.ObjectKey,
			ExpiresAt:       target.ExpiresAt,
			RequiredHeaders: target.RequiredHeaders,
		})
	}
}

func status(m *intent.Machine) httpx.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *httpx.AppError {
		raw := r.URL.Query().Get("ids")
		if raw == "" {
			return httpx.ValidationError("invalid request", map[string]interface{}{"ids": "required"})
		}
		parts := strings.Split(raw, ",")
		ids := make([]uuid.UUID, 0, len(parts))
		for _, p := range parts {
			id, err := uuid.Parse(strings.TrimSpace(p))
			if err != nil {
				return httpx.ValidationError("invalid request", map[string]interface{}{"ids": "must all be uuids"})
			}
			ids = append(ids, id)
		}

		intents, err := m.Status(r.Context(), ids)
		if err != nil {
			return appErrorFromDomain(err)
		}
		return httpx.RenderJSON(w, http.StatusOK, intents)
	}
}

func listByEvent(m *intent.Machine) httpx.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *httpx.AppError {
		photographerID, ok := httpmw.PhotographerID(r)
		if !ok {
			return httpx.NewError(httpx.CodeUnauthorized, "missing authenticated photographer")
		}
		eventID, err := uuid.Parse(chi.URLParam(r, "eventId"))
		if err != nil {
			return httpx.ValidationError("invalid request", map[string]interface{}{"eventId": "must be a uuid"})
		}

		var statusFilter *model.UploadIntentStatus
		if raw := r.URL.Query().Get("status"); raw != "" {
			s := model.UploadIntentStatus(raw)
			statusFilter = &s
		}

		intents, err := m.ListIntents(r.Context(), photographerID, &eventID, statusFilter)
		if err != nil {
			return appErrorFromDomain(err)
		}
		return httpx.RenderJSON(w, http.StatusOK, intents)
	}
}
