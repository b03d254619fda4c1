// Package catalog resolves provider price ids to the plans and credit packs
// they represent. The mapping is fixed at startup from configuration.
package catalog

import (
	"errors"
	"strings"

	"github.com/pathlight-ai/pathlight/internal/config"
	subscriptiondomain "github.com/pathlight-ai/pathlight/internal/subscription/domain"
)

var ErrUnknownPrice = errors.New("unknown_price")

// Interval distinguishes monthly from yearly plan prices.
type Interval string

const (
	IntervalMonthly Interval = "monthly"
	IntervalYearly  Interval = "yearly"
)

// Plan describes a recurring subscription price.
type Plan struct {
	PriceID  string
	Tier     subscriptiondomain.Tier
	Interval Interval
}

// Pack describes a one-time credit pack price.
type Pack struct {
	PriceID string
	Key     string
	Credits int
}

// Catalog is the immutable price book. Lookups are safe for concurrent use.
type Catalog struct {
	plans   map[string]Plan
	packs   map[string]Pack
	pricing *config.PricingHolder
}

func New(cfg config.Config, pricing *config.PricingHolder) *Catalog {
	c := &Catalog{
		plans:   map[string]Plan{},
		packs:   map[string]Pack{},
		pricing: pricing,
	}

	c.addPlan(cfg.Stripe.PriceProMonthly, subscriptiondomain.TierPro, IntervalMonthly)
	c.addPlan(cfg.Stripe.PriceProYearly, subscriptiondomain.TierPro, IntervalYearly)
	c.addPlan(cfg.Stripe.PricePremiumMonthly, subscriptiondomain.TierPremium, IntervalMonthly)
	c.addPlan(cfg.Stripe.PricePremiumYearly, subscriptiondomain.TierPremium, IntervalYearly)

	c.addPack(cfg.Stripe.PricePackSmall, "pack_small")
	c.addPack(cfg.Stripe.PricePackMedium, "pack_medium")
	c.addPack(cfg.Stripe.PricePackLarge, "pack_large")

	return c
}

func (c *Catalog) addPlan(priceID string, tier subscriptiondomain.Tier, interval Interval) {
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return
	}
	c.plans[priceID] = Plan{PriceID: priceID, Tier: tier, Interval: interval}
}

func (c *Catalog) addPack(priceID, key string) {
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return
	}
	c.packs[priceID] = Pack{PriceID: priceID, Key: key}
}

// Empty reports whether no price ids were configured at all.
func (c *Catalog) Empty() bool {
	return len(c.plans) == 0 && len(c.packs) == 0
}

// PlanByPriceID resolves a recurring price id.
func (c *Catalog) PlanByPriceID(priceID string) (Plan, error) {
	plan, ok := c.plans[strings.TrimSpace(priceID)]
	if !ok {
		return Plan{}, ErrUnknownPrice
	}
	return plan, nil
}

// PackByPriceID resolves a one-time credit pack price id. Credits come from
// the live pricing config so pack sizes can change without a restart.
func (c *Catalog) PackByPriceID(priceID string) (Pack, error) {
	pack, ok := c.packs[strings.TrimSpace(priceID)]
	if !ok {
		return Pack{}, ErrUnknownPrice
	}
	pack.Credits = c.pricing.Get().PackCredits[pack.Key]
	return pack, nil
}

// IsPlan reports whether the price id is a known recurring plan.
func (c *Catalog) IsPlan(priceID string) bool {
	_, ok := c.plans[strings.TrimSpace(priceID)]
	return ok
}

// IsPack reports whether the price id is a known credit pack.
func (c *Catalog) IsPack(priceID string) bool {
	_, ok := c.packs[strings.TrimSpace(priceID)]
	return ok
}

// Allotment returns the per-period credit allotment for a tier.
func (c *Catalog) Allotment(tier subscriptiondomain.Tier) int {
	return c.pricing.Get().TierAllotments[string(tier)]
}

// PlanPriceIDs lists every configured recurring price id.
func (c *Catalog) PlanPriceIDs() []string {
	ids := make([]string, 0, len(c.plans))
	for id := range c.plans {
		ids = append(ids, id)
	}
	return ids
}

// PackPriceIDs lists every configured pack price id.
func (c *Catalog) PackPriceIDs() []string {
	ids := make([]string, 0, len(c.packs))
	for id := range c.packs {
		ids = append(ids, id)
	}
	return ids
}
