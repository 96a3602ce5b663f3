// Package httpmw holds the HTTP-layer middleware shared by cmd/serve's
// router: request logging with panic recovery, photographer
// authentication, and Prometheus instrumentation. Modeled on the teacher's
// middleware package (RequestLogger/BearerToken/Metrics), adapted to the
// internal/httpx and internal/appctx envelopes this module uses instead of
// utils/handlers and raven.
package httpmw

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	sentry "github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"

	"github.com/putto11262002/sabaipics-core/internal/appctx"
)

// RequestLogger logs at the start and end of every request and recovers
// panics, reporting them to Sentry instead of crashing the process.
func RequestLogger(logger *zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.EscapedPath() == "/metrics" || r.URL.EscapedPath() == "/health-check" {
				next.ServeHTTP(w, r)
				return
			}

			reqLogger := logger.With().Str("path", r.URL.Path).Str("method", r.Method).Logger()
			ctx := appctx.WithLogger(r.Context(), &reqLogger)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			start := time.Now()
			defer func() {
				if rec := recover(); rec != nil {
					reqLogger.Error().Interface("panic", rec).Msg("recovered panic")
					sentry.CurrentHub().Recover(rec)
					w.WriteHeader(http.StatusInternalServerError)
					return
				}
				reqLogger.Debug().
					Int("status", ww.Status()).
					Int("size", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("request complete")
			}()

			next.ServeHTTP(ww, r.WithContext(ctx))
		})
	}
}
