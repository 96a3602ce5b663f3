// Package consumption answers the mobile store's "how much has been
// consumed?" query (spec.md §4.5) with a read-only computation over the
// ledger: it never mutates state, mirroring services/skus's pattern of
// separating pure reporting queries from the transactional write paths.
package consumption

import (
	"context"
	"fmt"

	"github.com/putto11262002/sabaipics-core/internal/model"
	"github.com/putto11262002/sabaipics-core/internal/storage"
)

// Reporter computes consumption status for a grant correlation.
type Reporter struct {
	store storage.Datastore
}

// New builds a Reporter over store.
func New(store storage.Datastore) *Reporter {
	return &Reporter{store: store}
}

// Report answers how much of the grant identified by correlation has been
// consumed. correlationField must be one of the LedgerEntry correlation
// columns (typically apple_transaction_id for mobile-store queries).
func (r *Reporter) Report(ctx context.Context, correlationField, correlation string) (*model.ConsumptionReport, error) {
	grant, err := r.store.LedgerEntryByCorrelation(ctx, correlationField, correlation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	if grant == nil {
		return nil, model.ErrEventNotFound
	}

	consumed, err := r.store.ConsumptionSince(ctx, grant.PhotographerID, grant.IssuedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}

	report := &model.ConsumptionReport{
		Granted:       grant.Amount,
		ConsumedSince: consumed,
	}
	switch {
	case consumed <= 0:
		report.Status = model.ConsumptionNotConsumed
	case consumed >= grant.Amount:
		report.Status = model.ConsumptionFullyConsumed
	default:
		report.Status = model.ConsumptionPartiallyConsumed
	}
	return report, nil
}
