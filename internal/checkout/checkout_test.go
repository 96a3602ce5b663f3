package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/putto11262002/sabaipics-core/internal/model"
)

func TestComputePreviewNoPromo(t *testing.T) {
	preview := ComputePreview(10, nil)
	assert.Equal(t, int64(10*CreditUnitPriceMinorUnits), preview.OriginalAmount)
	assert.Equal(t, preview.OriginalAmount, preview.FinalAmount)
	assert.Equal(t, int64(10), preview.CreditAmount)
	assert.Zero(t, preview.BonusCredits)
	assert.Zero(t, preview.DiscountPercent)
}

func TestComputePreviewPercentDiscount(t *testing.T) {
	percentOff := 20
	resolved := &model.ResolvedPromo{Kind: model.PromoKindDiscount, PercentOff: &percentOff}

	preview := ComputePreview(10, resolved)
	original := int64(10 * CreditUnitPriceMinorUnits)
	assert.Equal(t, original, preview.OriginalAmount)
	assert.Equal(t, original*80/100, preview.FinalAmount)
	assert.Equal(t, 20, preview.DiscountPercent)
	assert.Zero(t, preview.BonusCredits)
}

func TestComputePreviewAmountOffDiscount(t *testing.T) {
	amountOff := int64(50)
	resolved := &model.ResolvedPromo{Kind: model.PromoKindDiscount, AmountOffMinorUnits: &amountOff}

	preview := ComputePreview(10, resolved)
	original := int64(10 * CreditUnitPriceMinorUnits)
	assert.Equal(t, original, preview.OriginalAmount)
	assert.Equal(t, original-amountOff, preview.FinalAmount)
	assert.Zero(t, preview.DiscountPercent, "flat amount-off doesn't set a discount percent")
}

func TestComputePreviewGift(t *testing.T) {
	resolved := &model.ResolvedPromo{Kind: model.PromoKindGift, GrantAmount: 5}

	preview := ComputePreview(10, resolved)
	original := int64(10 * CreditUnitPriceMinorUnits)
	assert.Equal(t, original, preview.FinalAmount, "gift codes don't change the payable amount")
	assert.Equal(t, int64(5), preview.BonusCredits)
	assert.NotEqual(t, "0", preview.EffectiveRate)
}

func TestComputePreviewZeroCreditsEffectiveRate(t *testing.T) {
	preview := ComputePreview(0, nil)
	assert.Equal(t, "0", preview.EffectiveRate, "avoids dividing by zero total credits")
}
