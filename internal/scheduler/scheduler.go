// Package scheduler runs the periodic background jobs that keep the credit
// ledger and subscription mirror healthy.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/pathlight-ai/pathlight/internal/audit/domain"
	"github.com/pathlight-ai/pathlight/internal/clock"
	ledgerdomain "github.com/pathlight-ai/pathlight/internal/ledger/domain"
	obsmetrics "github.com/pathlight-ai/pathlight/internal/observability/metrics"
	subscriptiondomain "github.com/pathlight-ai/pathlight/internal/subscription/domain"
)

var ErrInvalidConfig = errors.New("scheduler requires db, logger, clock and services")

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	Clock           clock.Clock
	LedgerSvc       ledgerdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	AuditSvc        auditdomain.Service `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics `optional:"true"`
	Config          Config              `optional:"true"`
}

type Scheduler struct {
	db              *gorm.DB
	log             *zap.Logger
	cfg             Config
	clock           clock.Clock
	ledgerSvc       ledgerdomain.Service
	subscriptionSvc subscriptiondomain.Service
	auditSvc        auditdomain.Service
	obsMetrics      *obsmetrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.LedgerSvc == nil || p.SubscriptionSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:              p.DB,
		log:             p.Log.Named("scheduler"),
		cfg:             p.Config.withDefaults(),
		clock:           p.Clock,
		ledgerSvc:       p.LedgerSvc,
		subscriptionSvc: p.SubscriptionSvc,
		auditSvc:        p.AuditSvc,
		obsMetrics:      p.ObsMetrics,
	}, nil
}

// RunForever ticks until the context is canceled. One pass runs immediately
// on startup.
func (s *Scheduler) RunForever(ctx context.Context) {
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes every job a single time.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.runJob(ctx, "ledger_audit", s.ledgerAudit)
	s.runJob(ctx, "period_end_sweep", s.periodEndSweep)
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	log := s.log.With(zap.String("job", name))
	start := s.clock.Now()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job panic: %v", r)
			}
		}()
		return fn(ctx)
	}()

	if err != nil {
		log.Error("job failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return
	}
	log.Debug("job finished", zap.Duration("elapsed", time.Since(start)))
}

// ledgerAudit cross-checks every balance row against the ledger sum.
func (s *Scheduler) ledgerAudit(ctx context.Context) error {
	drifts, err := s.ledgerSvc.VerifyProjection(ctx)
	if err != nil {
		return err
	}
	if len(drifts) == 0 {
		return nil
	}

	for _, drift := range drifts {
		s.log.Error("ledger drift detected",
			zap.String("user_id", drift.UserID),
			zap.Int64("balance", drift.Balance),
			zap.Int64("ledger_sum", drift.LedgerSum),
		)
		if s.obsMetrics != nil {
			s.obsMetrics.RecordLedgerDrift(ctx)
		}
		if s.auditSvc != nil {
			_ = s.auditSvc.AuditLog(ctx, "scheduler", "ledger.drift_detected", "credit_ledger", drift.UserID, map[string]any{
				"balance":    drift.Balance,
				"ledger_sum": drift.LedgerSum,
			})
		}
	}
	return fmt.Errorf("ledger drift on %d users", len(drifts))
}

// periodEndSweep downgrades subscriptions whose paid period ended long ago
// without a terminal webhook. It backstops missed deliveries.
func (s *Scheduler) periodEndSweep(ctx context.Context) error {
	cutoff := s.clock.Now().UTC().Add(-s.cfg.SweepGrace)

	var stale []subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).
		Where("cancel_at_period_end = ?", true).
		Where("status IN ?", []subscriptiondomain.Status{
			subscriptiondomain.StatusActive,
			subscriptiondomain.StatusPastDue,
			subscriptiondomain.StatusPaused,
		}).
		Where("current_period_end IS NOT NULL AND current_period_end < ?", cutoff).
		Find(&stale).Error
	if err != nil {
		return err
	}

	for _, subscription := range stale {
		s.log.Warn("sweeping expired subscription",
			zap.String("user_id", subscription.UserID),
			zap.String("provider_subscription_id", subscription.ProviderSubscriptionID),
			zap.Timep("current_period_end", subscription.CurrentPeriodEnd),
		)
		if err := s.subscriptionSvc.Downgrade(ctx, subscription.ProviderSubscriptionID); err != nil {
			return err
		}
		if s.auditSvc != nil {
			_ = s.auditSvc.AuditLog(ctx, "scheduler", "subscription.swept", "subscription", subscription.UserID, map[string]any{
				"provider_subscription_id": subscription.ProviderSubscriptionID,
			})
		}
	}
	return nil
}
