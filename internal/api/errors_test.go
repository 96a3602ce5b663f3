package api

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/putto11262002/sabaipics-core/internal/httpx"
	"github.com/putto11262002/sabaipics-core/internal/model"
)

func TestAppErrorFromDomain(t *testing.T) {
	cases := []struct {
		err  error
		code httpx.Code
	}{
		{model.ErrPhotographerNotFound, httpx.CodeNotFound},
		{model.ErrEventNotFound, httpx.CodeNotFound},
		{model.ErrIntentNotFound, httpx.CodeNotFound},
		{model.ErrPromoNotFound, httpx.CodeNotFound},
		{model.ErrEventExpired, httpx.CodeGone},
		{model.ErrEventOwnerMismatch, httpx.CodeForbidden},
		{model.ErrIntentStateForbids, httpx.CodeConflict},
		{model.ErrContentTypeNotAllowed, httpx.CodeUnprocessable},
		{model.ErrContentTooLarge, httpx.CodeUnprocessable},
		{model.ErrInsufficientFunds, httpx.CodePaymentRequired},
		{model.ErrAlreadyGranted, httpx.CodeConflict},
		{model.ErrAlreadyConsumed, httpx.CodeConflict},
		{model.ErrPromoInactive, httpx.CodeUnprocessable},
		{model.ErrPromoAlreadyUsed, httpx.CodeConflict},
		{model.ErrPromoExhausted, httpx.CodeGone},
		{model.ErrPromoNotEligible, httpx.CodeForbidden},
		{model.ErrStorageUnavailable, httpx.CodeServiceUnavailable},
		{errors.New("anything else"), httpx.CodeInternalError},
	}

	for _, c := range cases {
		appErr := appErrorFromDomain(c.err)
		assert.Equal(t, c.code, appErr.Code, "error %v", c.err)
	}
}

func TestAppErrorFromDomainWrapped(t *testing.T) {
	wrapped := fmt.Errorf("lookup: %w", model.ErrIntentNotFound)
	appErr := appErrorFromDomain(wrapped)
	assert.Equal(t, httpx.CodeNotFound, appErr.Code, "errors.Is unwraps fmt-wrapped sentinels")
}
