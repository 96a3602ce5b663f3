// HTTP wiring for the Webhook Gatekeeper: raw-body capture before any
// parsing, per-source signature header extraction, and translating a
// Result into the response envelope (spec §4.2 step 3/4, §6). Modeled on
// services/skus/controllers.go's WebhookRouter + requestutils.Read discipline.
package webhook

import (
	"io"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/putto11262002/sabaipics-core/internal/appctx"
	"github.com/putto11262002/sabaipics-core/internal/httpx"
)

// payloadLimit bounds how much of a webhook body is read before giving up,
// guarding against a slow or malicious sender holding a connection open.
const payloadLimit = 10 << 20 // 10MiB

// Router mounts the four webhook ingestion routes under the returned
// chi.Router (spec §6: POST /webhooks/{payment|store|auth|storage}).
func Router(g *Gatekeeper) chi.Router {
	r := chi.NewRouter()
	r.Post("/payment", handlePayment(g))
	r.Post("/store", handleStore(g))
	r.Post("/auth", handleAuth(g))
	r.Post("/storage", handleStorage(g))
	return r
}

func handlePayment(g *Gatekeeper) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sig := r.Header.Get("X-Webhook-Signature")
		if sig == "" {
			renderResult(w, r, ResultSignatureInvalid)
			return
		}
		body, err := readBody(r)
		if err != nil {
			httpx.Wrap(err, httpx.CodeBadRequest, "failed to read payload").ServeHTTP(w, r)
			return
		}
		renderResult(w, r, g.HandlePayment(r.Context(), body, sig))
	}
}

func handleStore(g *Gatekeeper) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(r)
		if err != nil {
			httpx.Wrap(err, httpx.CodeBadRequest, "failed to read payload").ServeHTTP(w, r)
			return
		}
		// mobile store notifications are self-describing signed JWS compact
		// tokens, not an HMAC'd JSON body — the whole body is the token.
		renderResult(w, r, g.HandleStore(r.Context(), string(body)))
	}
}

func handleAuth(g *Gatekeeper) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sig := r.Header.Get("X-Webhook-Signature")
		if sig == "" {
			renderResult(w, r, ResultSignatureInvalid)
			return
		}
		body, err := readBody(r)
		if err != nil {
			httpx.Wrap(err, httpx.CodeBadRequest, "failed to read payload").ServeHTTP(w, r)
			return
		}
		renderResult(w, r, g.HandleAuth(r.Context(), body, sig))
	}
}

func handleStorage(g *Gatekeeper) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sig := r.Header.Get("X-Webhook-Signature")
		if sig == "" {
			renderResult(w, r, ResultSignatureInvalid)
			return
		}
		body, err := readBody(r)
		if err != nil {
			httpx.Wrap(err, httpx.CodeBadRequest, "failed to read payload").ServeHTTP(w, r)
			return
		}
		renderResult(w, r, g.HandleStorage(r.Context(), body, sig))
	}
}

// renderResult maps a Result to the HTTP status the sender sees. Signature
// failures are rejected with 401 so the sender does not believe anything was
// accepted; malformed-but-verified payloads are acked 2xx to suppress
// pointless retries; transient failures are 5xx so the gateway redelivers
// (spec §4.2 step 4).
func renderResult(w http.ResponseWriter, r *http.Request, res Result) {
	log := appctx.GetLogger(r.Context())
	switch res {
	case ResultAccepted:
		_ = httpx.RenderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case ResultMalformed:
		_ = httpx.RenderJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
	case ResultSignatureInvalid:
		httpx.NewError(httpx.CodeUnauthorized, "signature verification failed").ServeHTTP(w, r)
	case ResultTransient:
		log.Error().Msg("webhook: transient failure, requesting redelivery")
		httpx.NewError(httpx.CodeServiceUnavailable, "temporarily unable to process event").ServeHTTP(w, r)
	default:
		httpx.NewError(httpx.CodeInternalError, "unknown result").ServeHTTP(w, r)
	}
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, payloadLimit))
}
