package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pathlight-ai/pathlight/internal/clock"
	"github.com/pathlight-ai/pathlight/internal/config"
	ledgerdomain "github.com/pathlight-ai/pathlight/internal/ledger/domain"
	ledgerservice "github.com/pathlight-ai/pathlight/internal/ledger/service"
	subscriptiondomain "github.com/pathlight-ai/pathlight/internal/subscription/domain"
	subscriptionrepository "github.com/pathlight-ai/pathlight/internal/subscription/repository"
	subscriptionservice "github.com/pathlight-ai/pathlight/internal/subscription/service"
)

type fixture struct {
	sched  *Scheduler
	db     *gorm.DB
	clock  *clock.Fake
	ledger ledgerdomain.Service
	subs   subscriptiondomain.Service
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&ledgerdomain.CreditBalance{},
		&ledgerdomain.LedgerEntry{},
		&subscriptiondomain.Subscription{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()

	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{DB: db, Log: log, GenID: node})
	subSvc := subscriptionservice.NewService(subscriptionservice.Params{
		DB:      db,
		Log:     log,
		GenID:   node,
		Repo:    subscriptionrepository.Provide(),
		Pricing: config.NewStaticPricingHolder(config.DefaultPricingConfig()),
	})

	fake := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	sched, err := New(Params{
		DB:              db,
		Log:             log,
		Clock:           fake,
		LedgerSvc:       ledgerSvc,
		SubscriptionSvc: subSvc,
	})
	require.NoError(t, err)

	return &fixture{sched: sched, db: db, clock: fake, ledger: ledgerSvc, subs: subSvc}
}

func TestNewValidatesDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLedgerAuditCleanProjection(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.ledger.AddCredits(ctx, "user-1", 100, ledgerdomain.ReasonSignupGrant, "signup:user-1", nil)
	require.NoError(t, err)

	assert.NoError(t, f.sched.ledgerAudit(ctx))
}

func TestLedgerAuditReportsDrift(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.ledger.AddCredits(ctx, "user-1", 100, ledgerdomain.ReasonSignupGrant, "signup:user-1", nil)
	require.NoError(t, err)
	require.NoError(t, f.db.Exec(`UPDATE credit_balances SET balance = 42`).Error)

	err = f.sched.ledgerAudit(ctx)
	assert.Error(t, err)
}

func TestPeriodEndSweepDowngradesStale(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// Period ended two days before the fake clock's now.
	end := f.clock.Now().Add(-48 * time.Hour)
	start := end.AddDate(0, -1, 0)
	_, err := f.subs.ApplyProviderState(ctx, subscriptiondomain.ProviderState{
		UserID:             "user-1",
		CustomerID:         "cus_1",
		SubscriptionID:     "sub_1",
		PriceID:            "price_pro_m",
		Tier:               subscriptiondomain.TierPro,
		Status:             subscriptiondomain.StatusActive,
		CancelAtPeriodEnd:  true,
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   &end,
	})
	require.NoError(t, err)

	require.NoError(t, f.sched.periodEndSweep(ctx))

	subscription, err := f.subs.GetForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.TierFree, subscription.Tier)
	assert.Equal(t, subscriptiondomain.StatusCanceled, subscription.Status)
}

func TestPeriodEndSweepLeavesCurrentAlone(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	end := f.clock.Now().Add(12 * time.Hour)
	start := end.AddDate(0, -1, 0)
	_, err := f.subs.ApplyProviderState(ctx, subscriptiondomain.ProviderState{
		UserID:             "user-1",
		SubscriptionID:     "sub_1",
		PriceID:            "price_pro_m",
		Tier:               subscriptiondomain.TierPro,
		Status:             subscriptiondomain.StatusActive,
		CancelAtPeriodEnd:  true,
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   &end,
	})
	require.NoError(t, err)

	require.NoError(t, f.sched.periodEndSweep(ctx))

	subscription, err := f.subs.GetForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.TierPro, subscription.Tier)

	// Advancing past the grace window makes the sweep pick it up.
	f.clock.Advance(96 * time.Hour)
	require.NoError(t, f.sched.periodEndSweep(ctx))

	subscription, err = f.subs.GetForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.TierFree, subscription.Tier)
}

func TestRunOnceRecoversFromJobErrors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.ledger.AddCredits(ctx, "user-1", 100, ledgerdomain.ReasonSignupGrant, "signup:user-1", nil)
	require.NoError(t, err)
	require.NoError(t, f.db.Exec(`UPDATE credit_balances SET balance = 42`).Error)

	// Drift fails the audit job but RunOnce still completes the pass.
	f.sched.RunOnce(ctx)
}
