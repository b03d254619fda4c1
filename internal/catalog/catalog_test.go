package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathlight-ai/pathlight/internal/config"
	subscriptiondomain "github.com/pathlight-ai/pathlight/internal/subscription/domain"
)

func testCatalog() *Catalog {
	cfg := config.Config{
		Stripe: config.StripeConfig{
			PriceProMonthly:     "price_pro_m",
			PriceProYearly:      "price_pro_y",
			PricePremiumMonthly: "price_prem_m",
			PricePackSmall:      "price_pack_s",
			PricePackLarge:      "price_pack_l",
		},
	}
	return New(cfg, config.NewStaticPricingHolder(config.DefaultPricingConfig()))
}

func TestPlanByPriceID(t *testing.T) {
	c := testCatalog()

	plan, err := c.PlanByPriceID("price_pro_m")
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.TierPro, plan.Tier)
	assert.Equal(t, IntervalMonthly, plan.Interval)

	plan, err = c.PlanByPriceID("price_prem_m")
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.TierPremium, plan.Tier)

	_, err = c.PlanByPriceID("price_unknown")
	assert.ErrorIs(t, err, ErrUnknownPrice)

	_, err = c.PlanByPriceID("price_pack_s")
	assert.ErrorIs(t, err, ErrUnknownPrice)
}

func TestPackByPriceID(t *testing.T) {
	c := testCatalog()

	pack, err := c.PackByPriceID("price_pack_s")
	require.NoError(t, err)
	assert.Equal(t, 100, pack.Credits)

	pack, err = c.PackByPriceID("price_pack_l")
	require.NoError(t, err)
	assert.Equal(t, 1500, pack.Credits)

	_, err = c.PackByPriceID("price_pro_m")
	assert.ErrorIs(t, err, ErrUnknownPrice)
}

func TestUnconfiguredPricesAreSkipped(t *testing.T) {
	c := testCatalog()

	assert.False(t, c.IsPlan("price_prem_y"))
	assert.False(t, c.IsPack("price_pack_m"))
	assert.Len(t, c.PlanPriceIDs(), 3)
	assert.Len(t, c.PackPriceIDs(), 2)
}

func TestEmptyCatalog(t *testing.T) {
	c := New(config.Config{}, config.NewStaticPricingHolder(config.DefaultPricingConfig()))
	assert.True(t, c.Empty())
}

func TestAllotment(t *testing.T) {
	c := testCatalog()

	assert.Equal(t, 500, c.Allotment(subscriptiondomain.TierPro))
	assert.Equal(t, 1500, c.Allotment(subscriptiondomain.TierPremium))
	assert.Equal(t, 25, c.Allotment(subscriptiondomain.TierFree))
}
