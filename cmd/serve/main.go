// Command serve runs the credit & upload pipeline's HTTP API (spec.md §6),
// modeled on the teacher's cmd.ServeCmd/SetupRouter: viper-sourced
// configuration, a context carrying build metadata and the logger, and a
// chi router mounted behind net/http's own server with a shutdown timeout.
package main

import (
	"context"
	"encoding/base64"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	sentry "github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stripe/stripe-go/v72"

	"github.com/putto11262002/sabaipics-core/internal/api"
	"github.com/putto11262002/sabaipics-core/internal/appctx"
	"github.com/putto11262002/sabaipics-core/internal/catalog"
	"github.com/putto11262002/sabaipics-core/internal/checkout"
	"github.com/putto11262002/sabaipics-core/internal/consumption"
	"github.com/putto11262002/sabaipics-core/internal/intent"
	"github.com/putto11262002/sabaipics-core/internal/ledger"
	"github.com/putto11262002/sabaipics-core/internal/logging"
	"github.com/putto11262002/sabaipics-core/internal/objectstore"
	"github.com/putto11262002/sabaipics-core/internal/promo"
	"github.com/putto11262002/sabaipics-core/internal/storage"
	"github.com/putto11262002/sabaipics-core/internal/webhook"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func init() {
	viper.SetDefault("address", ":8080")
	viper.SetDefault("environment", "local")

	binds := map[string]string{
		"address":                    "ADDR",
		"environment":                "ENV",
		"sentry-dsn":                 "SENTRY_DSN",
		"database-url":               "DATABASE_URL",
		"migrations-url":             "MIGRATIONS_URL",
		"objectstore-account-id":     "OBJECTSTORE_ACCOUNT_ID",
		"objectstore-access-key":     "OBJECTSTORE_ACCESS_KEY",
		"objectstore-secret":         "OBJECTSTORE_SECRET",
		"objectstore-bucket":         "OBJECTSTORE_BUCKET",
		"objectstore-zone":           "OBJECTSTORE_ZONE",
		"objectstore-endpoint":       "OBJECTSTORE_ENDPOINT",
		"objectstore-webhook-secret": "OBJECTSTORE_WEBHOOK_SECRET",
		"stripe-secret-key":          "STRIPE_SECRET_KEY",
		"stripe-webhook-secret":      "STRIPE_WEBHOOK_SECRET",
		"auth-webhook-secret":        "AUTH_WEBHOOK_SECRET",
		"appstore-root-cert":         "APPSTORE_ROOT_CERT",
		"allowed-origins":            "ALLOWED_ORIGINS",
	}
	for key, env := range binds {
		if err := viper.BindEnv(key, env); err != nil {
			panic(err)
		}
	}
}

func main() {
	ctx := context.Background()
	ctx = context.WithValue(ctx, appctx.EnvironmentCTXKey, viper.GetString("environment"))
	ctx = context.WithValue(ctx, appctx.VersionCTXKey, version)
	ctx = context.WithValue(ctx, appctx.CommitCTXKey, commit)
	ctx = context.WithValue(ctx, appctx.BuildTimeCTXKey, buildTime)

	ctx, logger := logging.Setup(ctx)
	logger.Info().Str("version", version).Str("commit", commit).Msg("credit-pipeline serve starting")

	if dsn := viper.GetString("sentry-dsn"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: dsn, Environment: viper.GetString("environment")}); err != nil {
			logger.Error().Err(err).Msg("sentry init failed")
		}
		defer sentry.Flush(2 * time.Second)
	}

	store, err := storage.NewPostgres(viper.GetString("database-url"), viper.GetString("migrations-url"))
	must(logger, err, "connecting to postgres")
	must(logger, store.Migrate(), "running migrations")

	objects, err := objectstore.New(ctx, objectstore.Config{
		AccountID: viper.GetString("objectstore-account-id"),
		AccessKey: viper.GetString("objectstore-access-key"),
		Secret:    viper.GetString("objectstore-secret"),
		Bucket:    viper.GetString("objectstore-bucket"),
		Zone:      viper.GetString("objectstore-zone"),
		Endpoint:  viper.GetString("objectstore-endpoint"),
	})
	must(logger, err, "building object store client")

	stripe.Key = viper.GetString("stripe-secret-key")

	ledgerSvc := ledger.New(store)
	promoResolver := promo.New(store)
	consumptionSvc := consumption.New(store)
	events := catalog.NewEventStore(store.RawDB())
	photos := catalog.NewPhotoStore(store.RawDB())
	machine := intent.New(store, ledgerSvc, objects, events, photos)
	checkoutSvc := checkout.New(promoResolver)

	var certs *webhook.CertChainValidator
	if raw := viper.GetString("appstore-root-cert"); raw != "" {
		der, decodeErr := base64.StdEncoding.DecodeString(raw)
		must(logger, decodeErr, "decoding appstore root certificate")
		certs, err = webhook.NewCertChainValidator(der)
		must(logger, err, "parsing appstore root certificate")
	}

	gatekeeper := webhook.New(
		webhook.Config{
			PaymentWebhookSecret: viper.GetString("stripe-webhook-secret"),
			AuthWebhookSecret:    viper.GetString("auth-webhook-secret"),
			StorageWebhookSecret: viper.GetString("objectstore-webhook-secret"),
		},
		ledgerSvc, machine, consumptionSvc, certs, promo.NewUsage,
	)

	var allowedOrigins []string
	if raw := viper.GetString("allowed-origins"); raw != "" {
		allowedOrigins = strings.Split(raw, ",")
	}

	router := api.NewRouter(api.Deps{
		Store:          store,
		Logger:         logger,
		Machine:        machine,
		Ledger:         ledgerSvc,
		Checkout:       checkoutSvc,
		Gatekeeper:     gatekeeper,
		AllowedOrigins: allowedOrigins,
	})

	srv := &http.Server{
		Addr:              viper.GetString("address"),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server stopped unexpectedly")
		}
	}()
	logger.Info().Str("address", srv.Addr).Msg("server listening")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func must(logger *zerolog.Logger, err error, msg string) {
	if err != nil {
		logger.Fatal().Err(err).Msg(msg)
	}
}
