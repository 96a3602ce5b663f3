// Package checkout implements the credit-purchase preview and Stripe
// checkout session creation behind POST /credits/checkout (spec §6),
// modeled on services/skus/model.Order.CreateStripeCheckoutSession's split
// between computing the checkout shape and calling out to the gateway.
package checkout

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/checkout/session"

	"github.com/putto11262002/sabaipics-core/internal/ledger"
	"github.com/putto11262002/sabaipics-core/internal/model"
	"github.com/putto11262002/sabaipics-core/internal/promo"
)

func parseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

// CreditUnitPriceMinorUnits is the price of a single credit, in the
// gateway's minor currency unit (e.g. USD cents). A real deployment would
// source this from configuration/a pricing table; the pipeline's hard
// problem is the ledger/webhook convergence, not pricing, so this stays a
// constant.
const CreditUnitPriceMinorUnits = 25

// Preview is the `preview` object in the checkout response (spec §6).
type Preview struct {
	OriginalAmount  int64 `json:"originalAmount"`
	FinalAmount     int64 `json:"finalAmount"`
	DiscountPercent int   `json:"discountPercent,omitempty"`
	BonusCredits    int64 `json:"bonusCredits,omitempty"`
	CreditAmount    int64 `json:"creditAmount"`
	EffectiveRate   string `json:"effectiveRate"`
}

// ComputePreview applies resolved (if any) to a requested credit amount,
// separable from any gateway call so it can be unit tested without a
// network dependency.
func ComputePreview(creditAmount int64, resolved *model.ResolvedPromo) Preview {
	original := decimal.NewFromInt(creditAmount * CreditUnitPriceMinorUnits)
	final := original
	preview := Preview{
		OriginalAmount: original.IntPart(),
		CreditAmount:   creditAmount,
	}

	if resolved != nil {
		switch resolved.Kind {
		case model.PromoKindDiscount:
			final = resolved.ApplyToAmount(original)
			if resolved.PercentOff != nil {
				preview.DiscountPercent = *resolved.PercentOff
			}
		case model.PromoKindGift:
			preview.BonusCredits = resolved.GrantAmount
		}
	}

	preview.FinalAmount = final.IntPart()
	totalCredits := creditAmount + preview.BonusCredits
	if totalCredits > 0 {
		preview.EffectiveRate = final.Div(decimal.NewFromInt(totalCredits)).StringFixed(4)
	} else {
		preview.EffectiveRate = "0"
	}
	return preview
}

// Request is the input to Create (spec §6 `POST /credits/checkout` body).
type Request struct {
	PhotographerID  string
	Email           string
	CreditAmount    int64
	PromoCode       string
	SuccessURL      string
	CancelURL       string
}

// Response is the shape returned to the client.
type Response struct {
	CheckoutURL string  `json:"checkoutUrl"`
	SessionID   string  `json:"sessionId"`
	Preview     Preview `json:"preview"`
}

// Service mints payment-gateway checkout sessions for credit purchases,
// reserving an optional promo code's usage slot inside Create's own
// transaction (spec §4.4: "the Resolver is always invoked inside the
// checkout-session-creation transaction so that the usage slot is reserved
// atomically with the gateway-side coupon attachment") -- the session then
// carries the resolved promo's code in its metadata so the webhook handler
// can attach the grant to the same usage row at settlement time, since
// Stripe itself has no transaction to join.
type Service struct {
	resolver *promo.Resolver
}

// New builds a Service.
func New(resolver *promo.Resolver) *Service {
	return &Service{resolver: resolver}
}

// Create resolves req's promo code (if any), computes the preview, and
// mints a checkout session via the configured payment gateway.
func (s *Service) Create(ctx context.Context, req Request) (*Response, error) {
	photographerID, err := parseUUID(req.PhotographerID)
	if err != nil {
		return nil, fmt.Errorf("checkout: invalid photographer id: %w", err)
	}
	if req.CreditAmount <= 0 {
		return nil, fmt.Errorf("checkout: credit amount must be positive")
	}

	// Reserved here, not at webhook time: a placeholder correlation is good
	// enough, since what actually closes the race is the (code,
	// photographer) unique index RecordUsage inserts against -- a second
	// concurrent Create for the same single-use code fails here, before a
	// checkout URL is ever returned to the client.
	var resolved *model.ResolvedPromo
	if req.PromoCode != "" {
		resolved, err = s.resolver.ResolveAndReserve(ctx, req.PromoCode, photographerID, model.NewCorrelationKey())
		if err != nil {
			return nil, err
		}
	}

	preview := ComputePreview(req.CreditAmount, resolved)

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
		ClientReferenceID:  stripe.String(req.PhotographerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(string(stripe.CurrencyUSD)),
					UnitAmount: stripe.Int64(preview.FinalAmount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("%d credits", preview.CreditAmount+preview.BonusCredits)),
					},
				},
			},
		},
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	params.AddMetadata("photographerId", req.PhotographerID)
	params.AddMetadata("credits", fmt.Sprintf("%d", preview.CreditAmount+preview.BonusCredits))
	if req.PromoCode != "" {
		params.AddMetadata("promoCode", req.PromoCode)
	}

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("checkout: creating stripe session: %w", err)
	}

	return &Response{
		CheckoutURL: sess.URL,
		SessionID:   sess.ID,
		Preview:     preview,
	}, nil
}

// PurchaseStatus is the response shape for GET /credits/purchase/{sessionId}.
type PurchaseStatus struct {
	Fulfilled bool       `json:"fulfilled"`
	Credits   int64      `json:"credits,omitempty"`
	ExpiresAt *string    `json:"expiresAt,omitempty"`
}

// Status reports whether sessionID's grant has landed yet, by checking the
// ledger for an entry correlated to it -- the webhook gatekeeper is the
// only writer of that entry, so this is a pure read against the ledger's
// idempotency key, never the gateway directly.
func Status(ctx context.Context, ledgerSvc *ledger.Service, sessionID string) (*PurchaseStatus, error) {
	entry, err := ledgerSvc.LookupByCorrelation(ctx, "stripe_session_id", sessionID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return &PurchaseStatus{Fulfilled: false}, nil
	}
	status := &PurchaseStatus{Fulfilled: true, Credits: entry.Amount}
	if entry.ExpiresAt != nil {
		s := entry.ExpiresAt.Format("2006-01-02T15:04:05Z07:00")
		status.ExpiresAt = &s
	}
	return status, nil
}
