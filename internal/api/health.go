package api

import (
	"net/http"

	"github.com/putto11262002/sabaipics-core/internal/storage"
)

// HealthCheck reports database connectivity (supplemented GET /health-check,
// not part of spec.md's own HTTP surface but carried the way the teacher
// carries one in every service's router).
func HealthCheck(store storage.Datastore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.RawDB().PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.Header().Set("content-type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
