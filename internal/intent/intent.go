// Package intent implements the Upload Intent Machine (spec.md §4.3): the
// state machine controlling a presigned-URL upload's lifecycle from
// pending through completed/failed/expired/cancelled, settled
// transactionally against the ledger. Modeled on services/skus's
// order-settlement style of "one transaction covers the status transition
// and the monetary effect."
package intent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/putto11262002/sabaipics-core/internal/appctx"
	"github.com/putto11262002/sabaipics-core/internal/ledger"
	"github.com/putto11262002/sabaipics-core/internal/model"
	"github.com/putto11262002/sabaipics-core/internal/objectstore"
	"github.com/putto11262002/sabaipics-core/internal/storage"
)

// DefaultPresignTTL is how long a minted presigned URL remains valid.
const DefaultPresignTTL = 15 * time.Minute

// SizeTolerance is the allowed slack between the recorded content_length and
// the object-storage HEAD result during settlement validation (spec §4.3).
const SizeTolerance = 0

// AllowedContentTypes is the global allow-list for create_presign (spec §4.3).
var AllowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/heic": true,
	"image/tiff": true,
	"image/raw":  true,
}

// MaxContentLength is the global max content_length for create_presign.
const MaxContentLength = 100 << 20 // 100MiB

// PhotoCreator materialises the downstream photo row on settlement; kept as
// a narrow interface because the Photo domain sits outside the credit
// pipeline's scope (spec §1 non-goals exclude image processing, but
// settlement still needs to hand off a record for it to own). CreatePhoto
// takes the caller's tx so the insert commits or rolls back atomically with
// the debit and the completed transition (spec §4.3).
type PhotoCreator interface {
	CreatePhoto(ctx context.Context, tx *sqlx.Tx, photographerID, eventID, intentID uuid.UUID, objectKey string) (uuid.UUID, error)
}

// EventLookup validates that an event belongs to a photographer and is not
// expired, the create_presign precondition (spec §4.3).
type EventLookup interface {
	EventBelongsTo(ctx context.Context, eventID, photographerID uuid.UUID) (bool, error)
	EventExpired(ctx context.Context, eventID uuid.UUID) (bool, error)
}

// Machine is the Upload Intent Machine's application-layer entry point.
type Machine struct {
	store   storage.Datastore
	ledger  *ledger.Service
	objects *objectstore.Client
	events  EventLookup
	photos  PhotoCreator
}

// New builds a Machine.
func New(store storage.Datastore, ledgerSvc *ledger.Service, objects *objectstore.Client, events EventLookup, photos PhotoCreator) *Machine {
	return &Machine{store: store, ledger: ledgerSvc, objects: objects, events: events, photos: photos}
}

// CreatePresignRequest is the input to CreatePresign (spec §4.3, §6).
type CreatePresignRequest struct {
	PhotographerID uuid.UUID
	EventID        uuid.UUID
	ContentType    string
	ContentLength  int64
	Source         model.LedgerEntrySource
}

// CreatePresign validates preconditions and mints a presigned upload target,
// inserting the Intent row in `pending` (spec §4.3). The balance check here
// is advisory only — settlement performs the authoritative debit.
func (m *Machine) CreatePresign(ctx context.Context, req CreatePresignRequest) (*model.UploadIntent, *objectstore.PresignedTarget, error) {
	belongs, err := m.events.EventBelongsTo(ctx, req.EventID, req.PhotographerID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	if !belongs {
		return nil, nil, model.ErrEventOwnerMismatch
	}
	expired, err := m.events.EventExpired(ctx, req.EventID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	if expired {
		return nil, nil, model.ErrEventExpired
	}

	if !AllowedContentTypes[req.ContentType] {
		return nil, nil, model.ErrContentTypeNotAllowed
	}
	if req.ContentLength > MaxContentLength {
		return nil, nil, model.ErrContentTooLarge
	}

	balance, err := m.ledger.Balance(ctx, req.PhotographerID)
	if err != nil {
		return nil, nil, err
	}
	if balance < 1 {
		return nil, nil, model.ErrInsufficientFunds
	}

	objectKey := newObjectKey(req.PhotographerID, req.EventID)
	target, err := m.objects.PresignPut(ctx, objectKey, req.ContentType, req.ContentLength, DefaultPresignTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("intent: minting presign: %w", err)
	}

	intent := &model.UploadIntent{
		PhotographerID:   req.PhotographerID,
		EventID:          req.EventID,
		ObjectKey:        objectKey,
		ContentType:      req.ContentType,
		ContentLength:    req.ContentLength,
		Status:           model.IntentStatusPending,
		PresignExpiresAt: target.ExpiresAt,
	}
	created, err := m.store.CreateUploadIntent(ctx, intent)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}

	return created, target, nil
}

// Represign rotates intentID to a new object key and expiry, only permitted
// from {pending, expired, failed} (spec §4.3).
func (m *Machine) Represign(ctx context.Context, intentID uuid.UUID) (*model.UploadIntent, *objectstore.PresignedTarget, error) {
	existing, err := m.store.GetUploadIntent(ctx, intentID)
	if err != nil {
		return nil, nil, err
	}
	if !existing.CanRepresign() {
		return nil, nil, model.ErrIntentStateForbids
	}

	objectKey := newObjectKey(existing.PhotographerID, existing.EventID)
	target, err := m.objects.PresignPut(ctx, objectKey, existing.ContentType, existing.ContentLength, DefaultPresignTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("intent: minting presign: %w", err)
	}

	updated, err := m.store.RepresignUploadIntent(ctx, intentID, objectKey, target.ExpiresAt)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	return updated, target, nil
}

// SettleUpload is triggered by an object-storage completion event (spec
// §4.3, §4.2 dispatch table). Finds the intent by object key; strays and
// replays are acked without error.
func (m *Machine) SettleUpload(ctx context.Context, objectKey string) error {
	intent, err := m.store.GetUploadIntentByObjectKey(ctx, objectKey)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	if intent == nil {
		appctx.GetLogger(ctx).Info().Str("object_key", objectKey).Msg("settle_upload: stray object, acking")
		return nil
	}
	if intent.Status != model.IntentStatusPending {
		appctx.GetLogger(ctx).Info().Str("intent_id", intent.ID.String()).Str("status", string(intent.Status)).
			Msg("settle_upload: non-pending intent, idempotent replay")
		return nil
	}

	head, err := m.objects.Head(ctx, objectKey)
	if err != nil {
		return fmt.Errorf("intent: head validation: %w", err)
	}
	if !sizeWithinTolerance(head.ContentLength, intent.ContentLength) || head.ContentType != intent.ContentType {
		return m.failIntent(ctx, intent.ID, "validation_mismatch", "object size or type does not match the recorded intent")
	}

	tx, err := m.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	defer m.store.RollbackTx(tx)

	if _, err := m.store.UpdateUploadIntentStatus(ctx, tx, intent.ID, model.IntentStatusUploaded, "", ""); err != nil {
		return fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}

	_, err = m.ledger.ConsumeTx(ctx, tx, ledger.ConsumeRequest{
		PhotographerID: intent.PhotographerID,
		Amount:         1,
		Source:         model.SourceUpload,
		UploadIntentID: intent.ID.String(),
	})
	if errors.Is(err, model.ErrInsufficientFunds) {
		m.store.RollbackTx(tx)
		return m.failIntentAndDeleteObject(ctx, intent.ID, objectKey, "insufficient_credits", "balance could not cover the upload debit")
	}
	if errors.Is(err, model.ErrAlreadyConsumed) {
		appctx.GetLogger(ctx).Info().Str("intent_id", intent.ID.String()).Msg("settle_upload: debit already recorded, acking")
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := m.photos.CreatePhoto(ctx, tx, intent.PhotographerID, intent.EventID, intent.ID, objectKey); err != nil {
		return fmt.Errorf("intent: creating photo record: %w", err)
	}

	if _, err := m.store.UpdateUploadIntentStatus(ctx, tx, intent.ID, model.IntentStatusCompleted, "", ""); err != nil {
		return fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	return nil
}

func (m *Machine) failIntent(ctx context.Context, intentID uuid.UUID, code, msg string) error {
	tx, err := m.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	defer m.store.RollbackTx(tx)

	if _, err := m.store.UpdateUploadIntentStatus(ctx, tx, intentID, model.IntentStatusFailed, code, msg); err != nil {
		return fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	return tx.Commit()
}

func (m *Machine) failIntentAndDeleteObject(ctx context.Context, intentID uuid.UUID, objectKey, code, msg string) error {
	if err := m.failIntent(ctx, intentID, code, msg); err != nil {
		return err
	}
	if err := m.objects.Delete(ctx, objectKey); err != nil {
		appctx.GetLogger(ctx).Error().Err(err).Str("object_key", objectKey).Msg("failed to delete orphaned object after settlement failure")
	}
	return nil
}

// ListIntents returns a photographer's intents, optionally scoped to a
// single event and status (spec §4.3 list_intents/§6).
func (m *Machine) ListIntents(ctx context.Context, photographerID uuid.UUID, eventID *uuid.UUID, status *model.UploadIntentStatus) ([]model.UploadIntent, error) {
	intents, err := m.store.ListUploadIntents(ctx, photographerID, eventID, status)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	return intents, nil
}

// Status is the batch polling endpoint (spec §4.3, §6).
func (m *Machine) Status(ctx context.Context, ids []uuid.UUID) ([]model.UploadIntent, error) {
	out := make([]model.UploadIntent, 0, len(ids))
	for _, id := range ids {
		intent, err := m.store.GetUploadIntent(ctx, id)
		if errors.Is(err, model.ErrIntentNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
		}
		out = append(out, *intent)
	}
	return out, nil
}

func sizeWithinTolerance(got, want int64) bool {
	diff := got - want
	if diff < 0 {
		diff = -diff
	}
	return diff <= SizeTolerance
}

func newObjectKey(photographerID, eventID uuid.UUID) string {
	return fmt.Sprintf("uploads/%s/%s/%s", photographerID, eventID, uuid.NewString())
}
