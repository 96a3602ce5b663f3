// Package logging sets up zerolog loggers attached to context.Context, the
// way libs/logging does it in the teacher codebase: one console writer
// locally, a dropped-log counter in production so that a slow sink can never
// back-pressure a request handler.
package logging

import (
	"context"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"

	"github.com/putto11262002/sabaipics-core/internal/appctx"
)

var droppedLogTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "sabaipics_dropped_log_events_total",
	Help: "Number of log events dropped because the sink could not keep up.",
})

func init() {
	prometheus.MustRegister(droppedLogTotal)
}

// Setup builds a logger for ctx's environment and level, attaches it to ctx,
// and returns both. Call once per process (or per job, for batch jobs).
func Setup(ctx context.Context) (context.Context, *zerolog.Logger) {
	env, err := appctx.GetString(ctx, appctx.EnvironmentCTXKey)
	if err != nil {
		env = "local"
	}

	level := zerolog.InfoLevel
	if lvl, ok := ctx.Value(appctx.LogLevelCTXKey).(zerolog.Level); ok {
		level = lvl
	}

	var writer = zerolog.ConsoleWriter{Out: os.Stdout}
	var l zerolog.Logger
	if env == "local" {
		l = zerolog.New(writer).With().Timestamp().Logger()
	} else {
		dw := diode.NewWriter(os.Stdout, 1000, 20*time.Millisecond, func(missed int) {
			droppedLogTotal.Add(float64(missed))
		})
		l = zerolog.New(dw).With().Timestamp().Logger()
	}

	l = l.Level(level)
	if appctx.GetBool(ctx, appctx.DebugLoggingCTXKey) {
		l = l.Level(zerolog.DebugLevel)
	}

	ctx = appctx.WithLogger(ctx, &l)
	return ctx, &l
}

// ForSubsystem returns a child logger tagged with the subsystem name,
// mirroring libs/logging.Logger(ctx, prefix).
func ForSubsystem(ctx context.Context, name string) *zerolog.Logger {
	l := appctx.GetLogger(ctx).With().Str("subsystem", name).Logger()
	return &l
}
