// Command scheduler runs the retention/cleanup producers described in
// spec.md §4.6, as a standalone process separate from the API server --
// "schedulers must remain producers only" (spec §9), so it carries no HTTP
// surface beyond a bare health port for the orchestrator's liveness probe.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/spf13/viper"

	"github.com/putto11262002/sabaipics-core/internal/appctx"
	"github.com/putto11262002/sabaipics-core/internal/ledger"
	"github.com/putto11262002/sabaipics-core/internal/logging"
	"github.com/putto11262002/sabaipics-core/internal/retention"
	"github.com/putto11262002/sabaipics-core/internal/storage"
)

func init() {
	viper.SetDefault("environment", "local")
	viper.SetDefault("health-address", ":8081")
	binds := map[string]string{
		"environment":    "ENV",
		"database-url":   "DATABASE_URL",
		"migrations-url": "MIGRATIONS_URL",
		"kafka-brokers":  "KAFKA_BROKERS",
		"health-address": "HEALTH_ADDR",
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
	ctx, logger := logging.Setup(ctx)
	logger.Info().Msg("credit-pipeline scheduler starting")

	store, err := storage.NewPostgres(viper.GetString("database-url"), viper.GetString("migrations-url"))
	if err != nil {
		logger.Fatal().Err(err).Msg("connecting to postgres")
	}

	ledgerSvc := ledger.New(store)

	var writer *kafka.Writer
	if brokers := viper.GetString("kafka-brokers"); brokers != "" {
		writer = retention.NewKafkaWriter(strings.Split(brokers, ","))
		defer writer.Close()
	}

	sched := retention.New(retention.DefaultConfig(), store, ledgerSvc, writer)

	runCtx, cancel := context.WithCancel(ctx)
	go sched.Run(runCtx)

	healthSrv := &http.Server{
		Addr: viper.GetString("health-address"),
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	}
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("health server stopped unexpectedly")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 5*time.Second)
	defer shutdownCancel()
	_ = healthSrv.Shutdown(shutdownCtx)
	logger.Info().Msg("credit-pipeline scheduler stopped")
}
