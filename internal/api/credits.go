package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/putto11262002/sabaipics-core/internal/checkout"
	"github.com/putto11262002/sabaipics-core/internal/httpmw"
	"github.com/putto11262002/sabaipics-core/internal/httpx"
	"github.com/putto11262002/sabaipics-core/internal/ledger"
)

// CreditsRouter mounts the credit purchase/balance routes (spec §6).
func CreditsRouter(checkoutSvc *checkout.Service, ledgerSvc *ledger.Service) chi.Router {
	r := chi.NewRouter()
	r.Method(http.MethodPost, "/checkout", httpx.AppHandler(createCheckout(checkoutSvc)))
	r.Method(http.MethodGet, "/purchase/{sessionId}", httpx.AppHandler(purchaseStatus(ledgerSvc)))
	r.Method(http.MethodGet, "/balance", httpx.AppHandler(balance(ledgerSvc)))
	return r
}

type checkoutRequest struct {
	Email        string `json:"email"`
	CreditAmount int64  `json:"creditAmount"`
	PromoCode    string `json:"promoCode,omitempty"`
	SuccessURL   string `json:"successUrl"`
	CancelURL    string `json:"cancelUrl"`
}

func createCheckout(svc *checkout.Service) httpx.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *httpx.AppError {
		photographerID, ok := httpmw.PhotographerID(r)
		if !ok {
			return httpx.NewError(httpx.CodeUnauthorized, "missing authenticated photographer")
		}

		var req checkoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return httpx.Wrap(err, httpx.CodeBadRequest, "invalid request body")
		}
		if req.CreditAmount <= 0 {
			return httpx.ValidationError("invalid request", map[string]interface{}{"creditAmount": "must be positive"})
		}
		if req.SuccessURL == "" || req.CancelURL == "" {
			return httpx.ValidationError("invalid request", map[string]interface{}{"successUrl/cancelUrl": "required"})
		}

		resp, err := svc.Create(r.Context(), checkout.Request{
			PhotographerID: photographerID.String(),
			Email:          req.Email,
			CreditAmount:   req.CreditAmount,
			PromoCode:      req.PromoCode,
			SuccessURL:     req.SuccessURL,
			CancelURL:      req.CancelURL,
		})
		if err != nil {
			return appErrorFromDomain(err)
		}

		return httpx.RenderJSON(w, http.StatusCreated, resp)
	}
}

func purchaseStatus(ledgerSvc *ledger.Service) httpx.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *httpx.AppError {
		sessionID := chi.URLParam(r, "sessionId")
		if sessionID == "" {
			return httpx.ValidationError("invalid request", map[string]interface{}{"sessionId": "required"})
		}

		status, err := checkout.Status(r.Context(), ledgerSvc, sessionID)
		if err != nil {
			return appErrorFromDomain(err)
		}
		return httpx.RenderJSON(w, http.StatusOK, status)
	}
}

type balanceResponse struct {
	Balance       int64   `json:"balance"`
	NearestExpiry *string `json:"nearestExpiry,omitempty"`
}

func balance(ledgerSvc *ledger.Service) httpx.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *httpx.AppError {
		photographerID, ok := httpmw.PhotographerID(r)
		if !ok {
			return httpx.NewError(httpx.CodeUnauthorized, "missing authenticated photographer")
		}

		b, err := ledgerSvc.Balance(r.Context(), photographerID)
		if err != nil {
			return appErrorFromDomain(err)
		}

		nextExpiry, err := ledgerSvc.NextExpiry(r.Context(), photographerID)
		if err != nil {
			return appErrorFromDomain(err)
		}

		resp := balanceResponse{Balance: b}
		if nextExpiry != nil {
			s := nextExpiry.Format("2006-01-02T15:04:05Z07:00")
			resp.NearestExpiry = &s
		}
		return httpx.RenderJSON(w, http.StatusOK, resp)
	}
}
