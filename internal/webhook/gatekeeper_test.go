package webhook

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/putto11262002/sabaipics-core/internal/model"
)

// ledgerResultToWebhookResult backs HandleStore's initial_buy/refund/revoke
// cases only — never the payment source — so spec §4.2 step 4's "5xx is for
// the payment gateway alone" rule means a transient storage error here must
// not produce ResultTransient.
func TestLedgerResultToWebhookResultMapsTransientToMalformed(t *testing.T) {
	g := &Gatekeeper{}

	res := g.ledgerResultToWebhookResult(context.Background(), fmt.Errorf("wrap: %w", model.ErrStorageUnavailable), "initial_buy")
	assert.Equal(t, ResultMalformed, res, "non-payment transient failures must not trigger a 5xx retry storm")
}

func TestLedgerResultToWebhookResultAcceptsReplay(t *testing.T) {
	g := &Gatekeeper{}

	res := g.ledgerResultToWebhookResult(context.Background(), model.ErrAlreadyGranted, "initial_buy")
	assert.Equal(t, ResultAccepted, res)
}

func TestLedgerResultToWebhookResultAcceptsNilErr(t *testing.T) {
	g := &Gatekeeper{}
	assert.Equal(t, ResultAccepted, g.ledgerResultToWebhookResult(context.Background(), nil, "initial_buy"))
}
