package api

import (
	"github.com/go-chi/chi"
	chimw "github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/putto11262002/sabaipics-core/internal/checkout"
	"github.com/putto11262002/sabaipics-core/internal/httpmw"
	"github.com/putto11262002/sabaipics-core/internal/intent"
	"github.com/putto11262002/sabaipics-core/internal/ledger"
	"github.com/putto11262002/sabaipics-core/internal/storage"
	"github.com/putto11262002/sabaipics-core/internal/webhook"
)

// Deps collects everything the root router needs to mount every route in
// spec.md §6 plus the supplemented health/metrics surface.
type Deps struct {
	Store          storage.Datastore
	Logger         *zerolog.Logger
	Machine        *intent.Machine
	Ledger         *ledger.Service
	Checkout       *checkout.Service
	Gatekeeper     *webhook.Gatekeeper
	AllowedOrigins []string
}

// NewRouter builds the credit pipeline's complete HTTP surface, mirroring
// the teacher's cmd/serve.go SetupRouter: a root chi.Mux with global
// middleware, then sub-routers mounted per concern.
func NewRouter(d Deps) chi.Router {
	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Webhook-Signature"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(httpmw.RequestLogger(d.Logger))

	r.Get("/health-check", HealthCheck(d.Store))
	r.Handle("/metrics", httpmw.Metrics())

	r.Route("/webhooks", func(r chi.Router) {
		r.Mount("/", webhook.Router(d.Gatekeeper))
	})

	r.Group(func(r chi.Router) {
		r.Use(httpmw.PhotographerAuth(d.Store))

		r.Route("/uploads", func(r chi.Router) {
			r.Mount("/", httpmw.InstrumentHandler("uploads", UploadsRouter(d.Machine)))
		})
		r.Route("/credits", func(r chi.Router) {
			r.Mount("/", httpmw.InstrumentHandler("credits", CreditsRouter(d.Checkout, d.Ledger)))
		})
	})

	return r
}
