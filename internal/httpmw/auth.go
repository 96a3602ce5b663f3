package httpmw

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/putto11262002/sabaipics-core/internal/appctx"
	"github.com/putto11262002/sabaipics-core/internal/httpx"
	"github.com/putto11262002/sabaipics-core/internal/model"
	"github.com/putto11262002/sabaipics-core/internal/storage"
)

// PhotographerAuth resolves the bearer token's subject to a photographer
// record via the external auth id and attaches the photographer's uuid to
// the request context (spec §8: "ambient per-request state... is injected
// via request-scoped configuration built by middleware"). The upstream
// identity provider itself is out of scope for the credit pipeline; this
// middleware only trusts whatever external auth id the token encodes.
func PhotographerAuth(store storage.Datastore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearer := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToUpper(bearer), "BEARER ") {
				httpx.NewError(httpx.CodeUnauthorized, "missing bearer token").ServeHTTP(w, r)
				return
			}
			externalAuthID := strings.TrimSpace(bearer[7:])
			if externalAuthID == "" {
				httpx.NewError(httpx.CodeUnauthorized, "missing bearer token").ServeHTTP(w, r)
				return
			}

			photographer, err := store.GetPhotographerByExternalAuthID(r.Context(), externalAuthID)
			if errors.Is(err, model.ErrPhotographerNotFound) {
				httpx.NewError(httpx.CodeUnauthorized, "unknown credentials").ServeHTTP(w, r)
				return
			}
			if err != nil {
				httpx.Wrap(err, httpx.CodeInternalError, "failed to resolve credentials").ServeHTTP(w, r)
				return
			}
			if photographer.DeletedAt != nil {
				httpx.NewError(httpx.CodeUnauthorized, "account deleted").ServeHTTP(w, r)
				return
			}
			if photographer.BannedAt != nil {
				httpx.NewError(httpx.CodeForbidden, "account banned").ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), appctx.PhotographerIDCTXKey, photographer.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PhotographerID reads the uuid attached by PhotographerAuth. Returns
// uuid.Nil, false if none is present (e.g. in tests that bypass the
// middleware).
func PhotographerID(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(appctx.PhotographerIDCTXKey).(uuid.UUID)
	return id, ok
}
