// Package retention implements the cleanup scheduler described in
// spec.md §4.6: a thin producer that finds rows past their retention
// window, mutates them, and publishes a completion event for whatever
// heavy-lifting consumer is downstream (object purge, notification,
// audit export). "Schedulers must remain producers only" (spec §9) --
// no consumer logic lives in this package.
//
// Modeled on bin/grant-server/main.go's jobWorker: a poll loop around a
// job function that reports whether it found work, so the ticker only
// idles when a pass comes back empty.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/putto11262002/sabaipics-core/internal/appctx"
	"github.com/putto11262002/sabaipics-core/internal/ledger"
	"github.com/putto11262002/sabaipics-core/internal/storage"
)

// Config carries the scheduler's batch sizes and retention windows
// (spec §4.6, §6 "configuration").
type Config struct {
	// EventRetentionWindow is how long an event stays soft-deleted before
	// its row is permanently removed.
	EventRetentionWindow time.Duration
	// ExpireIntentGrace is how far past a presign's expiry a pending
	// intent is left alone before being flipped to `expired`.
	ExpireIntentGrace time.Duration
	BatchSize         int
	PollInterval      time.Duration
}

// DefaultConfig matches the values spec.md's examples assume.
func DefaultConfig() Config {
	return Config{
		EventRetentionWindow: 90 * 24 * time.Hour,
		ExpireIntentGrace:    time.Hour,
		BatchSize:            500,
		PollInterval:         time.Minute,
	}
}

const (
	topicSoftDelete   = "credit-pipeline.retention.event-soft-delete"
	topicHardDelete   = "credit-pipeline.retention.event-hard-delete"
	topicIntentExpiry = "credit-pipeline.retention.intent-expired"
)

// Scheduler drives the three retention producers: event soft-delete,
// event hard-delete, and stale-intent expiry, plus the ledger's expiry
// sweep (spec §4.6/§9).
type Scheduler struct {
	cfg    Config
	store  storage.Datastore
	ledger *ledger.Service
	writer *kafka.Writer
}

// New builds a Scheduler. writer may be nil, in which case completion
// events are logged but not published (useful for a local/dev run with no
// broker configured).
func New(cfg Config, store storage.Datastore, ledgerSvc *ledger.Service, writer *kafka.Writer) *Scheduler {
	return &Scheduler{cfg: cfg, store: store, ledger: ledgerSvc, writer: writer}
}

// NewKafkaWriter builds the shared writer the scheduler's producers publish
// through, one topic per job selected at WriteMessages time. Modeled on
// libs/kafka.InitKafkaWriter, trimmed of the MSK SASL/TLS dialer setup this
// deployment doesn't need.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
}

// Run blocks, driving every producer on its own ticker until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	go s.loop(ctx, "soft_delete", s.runSoftDelete)
	go s.loop(ctx, "hard_delete", s.runHardDelete)
	go s.loop(ctx, "expire_intents", s.runExpireIntents)
	go s.loop(ctx, "expiry_sweep", s.runExpirySweep)
	<-ctx.Done()
}

func (s *Scheduler) loop(ctx context.Context, name string, job func(context.Context) (bool, error)) {
	log := appctx.GetLogger(ctx).With().Str("job", name).Logger()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		attempted, err := job(ctx)
		if err != nil {
			log.Error().Err(err).Msg("retention job failed")
		}
		if !attempted || err != nil {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// runSoftDelete implements spec §4.6's soft-delete producer: "select up to
// N events whose expires_at < now" and mark them deleted, no grace period.
func (s *Scheduler) runSoftDelete(ctx context.Context) (bool, error) {
	ids, err := s.store.SoftDeleteExpiredEvents(ctx, time.Now().UTC(), s.cfg.BatchSize)
	if err != nil {
		return false, fmt.Errorf("retention: soft delete: %w", err)
	}
	if len(ids) == 0 {
		return false, nil
	}
	appctx.GetLogger(ctx).Info().Int("count", len(ids)).Msg("retention: soft-deleted events")
	for _, id := range ids {
		s.publish(ctx, topicSoftDelete, []byte(id.String()))
	}
	return true, nil
}

// runHardDelete implements spec §4.6's hard-delete producer: "soft-deleted
// events older than the retention window" are permanently removed.
func (s *Scheduler) runHardDelete(ctx context.Context) (bool, error) {
	before := time.Now().UTC().Add(-s.cfg.EventRetentionWindow)
	n, err := s.store.HardDeleteSoftDeletedEvents(ctx, before, s.cfg.BatchSize)
	if err != nil {
		return false, fmt.Errorf("retention: hard delete: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	appctx.GetLogger(ctx).Info().Int64("count", n).Msg("retention: hard-deleted events")
	s.publish(ctx, topicHardDelete, []byte(fmt.Sprintf("%d", n)))
	return true, nil
}

func (s *Scheduler) runExpireIntents(ctx context.Context) (bool, error) {
	before := time.Now().UTC().Add(-s.cfg.ExpireIntentGrace)
	n, err := s.store.ExpireStaleIntents(ctx, before, s.cfg.BatchSize)
	if err != nil {
		return false, fmt.Errorf("retention: expire intents: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	appctx.GetLogger(ctx).Info().Int64("count", n).Msg("retention: expired stale upload intents")
	s.publish(ctx, topicIntentExpiry, []byte(fmt.Sprintf("%d", n)))
	return true, nil
}

func (s *Scheduler) runExpirySweep(ctx context.Context) (bool, error) {
	n, err := s.ledger.ExpirySweep(ctx, time.Now().UTC(), s.cfg.BatchSize)
	if err != nil {
		return false, fmt.Errorf("retention: expiry sweep: %w", err)
	}
	return n > 0, nil
}

func (s *Scheduler) publish(ctx context.Context, topic string, value []byte) {
	if s.writer == nil {
		return
	}
	err := s.writer.WriteMessages(ctx, kafka.Message{Topic: topic, Value: value})
	if err != nil {
		appctx.GetLogger(ctx).Error().Err(err).Str("topic", topic).Msg("retention: failed to publish completion event")
	}
}
