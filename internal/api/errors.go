package api

import (
	"errors"

	"github.com/putto11262002/sabaipics-core/internal/httpx"
	"github.com/putto11262002/sabaipics-core/internal/model"
)

// appErrorFromDomain maps a domain/model sentinel error to the HTTP error
// taxonomy (spec.md §7). Anything unrecognized is treated as internal.
func appErrorFromDomain(err error) *httpx.AppError {
	switch {
	case errors.Is(err, model.ErrPhotographerNotFound), errors.Is(err, model.ErrEventNotFound),
		errors.Is(err, model.ErrIntentNotFound), errors.Is(err, model.ErrPromoNotFound):
		return httpx.Wrap(err, httpx.CodeNotFound, "not found")
	case errors.Is(err, model.ErrEventExpired):
		return httpx.Wrap(err, httpx.CodeGone, "event has expired")
	case errors.Is(err, model.ErrEventOwnerMismatch):
		return httpx.Wrap(err, httpx.CodeForbidden, "event does not belong to this photographer")
	case errors.Is(err, model.ErrIntentStateForbids):
		return httpx.Wrap(err, httpx.CodeConflict, "upload intent status forbids this operation")
	case errors.Is(err, model.ErrContentTypeNotAllowed):
		return httpx.Wrap(err, httpx.CodeUnprocessable, "content type not allowed")
	case errors.Is(err, model.ErrContentTooLarge):
		return httpx.Wrap(err, httpx.CodeUnprocessable, "content length exceeds maximum")
	case errors.Is(err, model.ErrInsufficientFunds):
		return httpx.Wrap(err, httpx.CodePaymentRequired, "insufficient credit balance")
	case errors.Is(err, model.ErrAlreadyGranted), errors.Is(err, model.ErrAlreadyConsumed):
		return httpx.Wrap(err, httpx.CodeConflict, "already recorded")
	case errors.Is(err, model.ErrPromoInactive):
		return httpx.Wrap(err, httpx.CodeUnprocessable, "promo code inactive or expired")
	case errors.Is(err, model.ErrPromoAlreadyUsed):
		return httpx.Wrap(err, httpx.CodeConflict, "promo code already used")
	case errors.Is(err, model.ErrPromoExhausted):
		return httpx.Wrap(err, httpx.CodeGone, "promo code redemption cap reached")
	case errors.Is(err, model.ErrPromoNotEligible):
		return httpx.Wrap(err, httpx.CodeForbidden, "not eligible for this promo code")
	case errors.Is(err, model.ErrStorageUnavailable):
		return httpx.Wrap(err, httpx.CodeServiceUnavailable, "storage temporarily unavailable")
	default:
		return httpx.Wrap(err, httpx.CodeInternalError, "internal error")
	}
}
