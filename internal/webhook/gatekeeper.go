package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/putto11262002/sabaipics-core/internal/appctx"
	"github.com/putto11262002/sabaipics-core/internal/consumption"
	"github.com/putto11262002/sabaipics-core/internal/intent"
	"github.com/putto11262002/sabaipics-core/internal/ledger"
	"github.com/putto11262002/sabaipics-core/internal/model"
)

// Result classifies how a handler wants its HTTP response rendered, letting
// the common envelope (§4.2 step 3/4) decide the status code without each
// per-source handler duplicating that policy.
type Result int

const (
	// ResultAccepted means the event was processed (or intentionally
	// ignored) and should be acknowledged with a 2xx.
	ResultAccepted Result = iota
	// ResultSignatureInvalid means verification failed; respond with an
	// authentication-failure status and do not mutate state.
	ResultSignatureInvalid
	// ResultMalformed means verification succeeded but the payload could
	// not be handled; respond 2xx anyway to suppress retries.
	ResultMalformed
	// ResultTransient means a downstream dependency failed transiently;
	// respond 5xx so the payment gateway redelivers (spec §4.2 step 4).
	ResultTransient
)

// Gatekeeper is the signature-verified ingestion point for all external
// event sources (spec §4.2).
type Gatekeeper struct {
	cfg         Config
	ledger      *ledger.Service
	intents     *intent.Machine
	promoUsage  PromoUsageFactory
	consumption *consumption.Reporter
	certs       *CertChainValidator
}

// PromoUsageFactory builds a model.PromoUsage for a resolved checkout
// redemption, narrowing the webhook package's dependency on internal/promo
// to the one function it needs.
type PromoUsageFactory func(code string, photographerID uuid.UUID, correlation string) *model.PromoUsage

// Config carries the per-source webhook secrets (spec §6 "configuration").
type Config struct {
	PaymentWebhookSecret string
	AuthWebhookSecret    string
	StorageWebhookSecret string
}

// New builds a Gatekeeper.
func New(cfg Config, ledgerSvc *ledger.Service, intents *intent.Machine, consumptionSvc *consumption.Reporter, certs *CertChainValidator, promoUsage PromoUsageFactory) *Gatekeeper {
	return &Gatekeeper{
		cfg:         cfg,
		ledger:      ledgerSvc,
		intents:     intents,
		promoUsage:  promoUsage,
		consumption: consumptionSvc,
		certs:       certs,
	}
}

// PaymentEvent is the generic shape of a payment-gateway webhook event
// (spec §4.2 dispatch table: checkout.completed/expired, payment.succeeded/
// failed, customer.*).
type PaymentEvent struct {
	Type string `json:"type"`
	Data struct {
		SessionID      string `json:"sessionId"`
		PhotographerID string `json:"photographerId"`
		Credits        int64  `json:"credits"`
		PromoCode      string `json:"promoCode,omitempty"`
	} `json:"data"`
}

// HandlePayment verifies and dispatches a payment-gateway webhook.
func (g *Gatekeeper) HandlePayment(ctx context.Context, body []byte, signature string) Result {
	log := appctx.GetLogger(ctx).With().Str("source", "payment").Logger()

	if err := VerifyHMAC(body, signature, g.cfg.PaymentWebhookSecret); err != nil {
		log.Warn().Err(err).Msg("payment webhook signature invalid")
		return ResultSignatureInvalid
	}

	var event PaymentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Error().Err(err).Msg("payment webhook payload malformed")
		return ResultMalformed
	}

	switch event.Type {
	case "checkout.completed":
		return g.handleCheckoutCompleted(ctx, event)
	case "checkout.expired", "payment.succeeded", "payment.failed":
		log.Info().Str("event_type", event.Type).Msg("payment event logged, no ledger effect")
		return ResultAccepted
	default:
		if strings.HasPrefix(event.Type, "customer.") {
			log.Info().Str("event_type", event.Type).Msg("customer event logged, no ledger effect")
			return ResultAccepted
		}
		log.Warn().Str("event_type", event.Type).Msg("unrecognized payment event type")
		return ResultMalformed
	}
}

func (g *Gatekeeper) handleCheckoutCompleted(ctx context.Context, event PaymentEvent) Result {
	log := appctx.GetLogger(ctx)

	photographerID, err := parseUUID(event.Data.PhotographerID)
	if err != nil {
		log.Error().Err(err).Msg("checkout.completed: invalid photographer id")
		return ResultMalformed
	}
	if event.Data.Credits <= 0 {
		log.Error().Msg("checkout.completed: non-positive credits")
		return ResultMalformed
	}

	var usage *model.PromoUsage
	if event.Data.PromoCode != "" && g.promoUsage != nil {
		usage = g.promoUsage(event.Data.PromoCode, photographerID, event.Data.SessionID)
	}

	_, err = g.ledger.GrantWithPromoUsage(ctx, ledger.GrantRequest{
		PhotographerID:  photographerID,
		Amount:          event.Data.Credits,
		Source:          model.SourcePurchase,
		StripeSessionID: event.Data.SessionID,
	}, usage)
	if errors.Is(err, model.ErrAlreadyGranted) {
		log.Info().Str("session_id", event.Data.SessionID).Msg("checkout.completed: replayed, no new row")
		return ResultAccepted
	}
	if errors.Is(err, model.ErrStorageUnavailable) {
		log.Error().Err(err).Msg("checkout.completed: transient storage failure")
		return ResultTransient
	}
	if err != nil {
		log.Error().Err(err).Msg("checkout.completed: grant failed")
		return ResultMalformed
	}
	return ResultAccepted
}

// StoreNotification is the decoded payload of a mobile-store server
// notification, after JWS verification (spec §4.2 dispatch table).
type StoreNotification struct {
	NotificationType      string `json:"notificationType"`
	TransactionID         string `json:"transactionId"`
	OriginalTransactionID string `json:"originalTransactionId"`
	PhotographerID        string `json:"photographerId"`
	Amount                int64  `json:"amount"`
}

// HandleStore verifies and dispatches a mobile-store webhook.
func (g *Gatekeeper) HandleStore(ctx context.Context, signedPayload string) Result {
	log := appctx.GetLogger(ctx).With().Str("source", "store").Logger()

	raw, err := g.certs.VerifyJWS(signedPayload)
	if err != nil {
		log.Warn().Err(err).Msg("store webhook signature invalid")
		return ResultSignatureInvalid
	}

	var note StoreNotification
	if err := json.Unmarshal(raw, &note); err != nil {
		log.Error().Err(err).Msg("store webhook payload malformed")
		return ResultMalformed
	}

	photographerID, err := parseUUID(note.PhotographerID)
	if err != nil {
		log.Error().Err(err).Msg("store webhook: invalid photographer id")
		return ResultMalformed
	}

	switch note.NotificationType {
	case "initial_buy":
		expiresAt := time.Now().UTC().AddDate(0, 6, 0)
		_, err := g.ledger.Grant(ctx, ledger.GrantRequest{
			PhotographerID:     photographerID,
			Amount:             note.Amount,
			Source:             model.SourceApplePurchase,
			ExpiresAt:          &expiresAt,
			AppleTransactionID: note.TransactionID,
		})
		return g.ledgerResultToWebhookResult(ctx, err, "initial_buy")

	case "refund", "revoke":
		grant, lookupErr := g.ledger.LookupByCorrelation(ctx, "apple_transaction_id", note.OriginalTransactionID)
		if lookupErr != nil {
			// 5xx-for-redelivery is reserved for the payment gateway (spec
			// §4.2 step 4); a transient failure here gets logged for
			// operator alerting instead of triggering a store-side retry
			// storm.
			log.Error().Err(lookupErr).Msg("refund: lookup failed")
			return ResultMalformed
		}
		if grant == nil {
			// spec S3: refund-before-purchase is correct behavior — ack and drop.
			log.Info().Str("original_transaction_id", note.OriginalTransactionID).
				Msg("refund: no matching grant, acking (refund arrived before purchase)")
			return ResultAccepted
		}
		_, err := g.ledger.Grant(ctx, ledger.GrantRequest{
			PhotographerID:     photographerID,
			Amount:             -grant.Amount,
			Source:             model.SourceRefund,
			AppleTransactionID: note.TransactionID,
		})
		return g.ledgerResultToWebhookResult(ctx, err, note.NotificationType)

	case "consumption_request":
		report, err := g.consumption.Report(ctx, "apple_transaction_id", note.OriginalTransactionID)
		if errors.Is(err, model.ErrEventNotFound) {
			log.Info().Str("original_transaction_id", note.OriginalTransactionID).Msg("consumption_request: no matching grant")
			return ResultMalformed
		}
		if err != nil {
			log.Error().Err(err).Msg("consumption_request: report failed")
			return ResultMalformed
		}
		log.Info().Interface("report", report).Msg("consumption_request: computed")
		return ResultAccepted

	default:
		log.Info().Str("notification_type", note.NotificationType).Msg("store event logged, no ledger effect")
		return ResultAccepted
	}
}

// ledgerResultToWebhookResult is only ever called from HandleStore (spec
// §4.2 step 4 reserves 5xx-for-redelivery for the payment gateway alone), so
// a transient storage failure here is logged for operator alerting rather
// than answered with a 5xx that would make the store replay the
// notification.
func (g *Gatekeeper) ledgerResultToWebhookResult(ctx context.Context, err error, eventType string) Result {
	log := appctx.GetLogger(ctx)
	switch {
	case err == nil:
		return ResultAccepted
	case errors.Is(err, model.ErrAlreadyGranted):
		log.Info().Str("event_type", eventType).Msg("replayed, no new row")
		return ResultAccepted
	case errors.Is(err, model.ErrStorageUnavailable):
		log.Error().Err(err).Str("event_type", eventType).Msg("transient storage failure")
		return ResultMalformed
	default:
		log.Error().Err(err).Str("event_type", eventType).Msg("grant failed")
		return ResultMalformed
	}
}

// StorageEvent is the object-storage completion event shape (spec §4.2
// dispatch table: object_created(key)).
type StorageEvent struct {
	EventType string `json:"eventType"`
	ObjectKey string `json:"objectKey"`
}

// HandleStorage verifies and dispatches an object-storage completion event.
func (g *Gatekeeper) HandleStorage(ctx context.Context, body []byte, signature string) Result {
	log := appctx.GetLogger(ctx).With().Str("source", "storage").Logger()

	if err := VerifyHMAC(body, signature, g.cfg.StorageWebhookSecret); err != nil {
		log.Warn().Err(err).Msg("storage webhook signature invalid")
		return ResultSignatureInvalid
	}

	var event StorageEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Error().Err(err).Msg("storage webhook payload malformed")
		return ResultMalformed
	}

	if event.EventType != "object_created" {
		log.Info().Str("event_type", event.EventType).Msg("storage event ignored")
		return ResultAccepted
	}

	if err := g.intents.SettleUpload(ctx, event.ObjectKey); err != nil {
		if errors.Is(err, model.ErrStorageUnavailable) {
			// Reserve 5xx-for-redelivery for the payment gateway alone (spec
			// §4.2 step 4); the object-storage sender isn't the payment
			// gateway, so a transient failure here is logged instead of
			// triggering a redelivery storm.
			log.Error().Err(err).Msg("settle_upload: transient failure")
			return ResultMalformed
		}
		log.Error().Err(err).Msg("settle_upload: failed")
		return ResultMalformed
	}
	return ResultAccepted
}

// HandleAuth verifies an auth-provider webhook (HMAC-SHA256, spec §4.2) and
// forwards it to the operator log; the core pipeline has no ledger effect
// tied to auth-provider events.
func (g *Gatekeeper) HandleAuth(ctx context.Context, body []byte, signature string) Result {
	log := appctx.GetLogger(ctx).With().Str("source", "auth").Logger()

	if err := VerifyHMAC(body, signature, g.cfg.AuthWebhookSecret); err != nil {
		log.Warn().Err(err).Msg("auth webhook signature invalid")
		return ResultSignatureInvalid
	}

	var event struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		log.Error().Err(err).Msg("auth webhook payload malformed")
		return ResultMalformed
	}

	log.Info().Str("event_type", event.Type).Msg("auth event received")
	return ResultAccepted
}

func parseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}
