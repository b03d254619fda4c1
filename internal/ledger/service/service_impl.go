package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	auditdomain "github.com/pathlight-ai/pathlight/internal/audit/domain"
	ledgerdomain "github.com/pathlight-ai/pathlight/internal/ledger/domain"
	obsmetrics "github.com/pathlight-ai/pathlight/internal/observability/metrics"
	pkgdb "github.com/pathlight-ai/pathlight/pkg/db"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	AuditSvc   auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) AddCredits(
	ctx context.Context,
	userID string,
	amount int64,
	reason ledgerdomain.EntryReason,
	idempotencyKey string,
	metadata map[string]any,
) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, ledgerdomain.ErrInvalidUser
	}
	if amount <= 0 {
		return 0, ledgerdomain.ErrInvalidAmount
	}
	if strings.TrimSpace(string(reason)) == "" {
		return 0, ledgerdomain.ErrInvalidReason
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	var (
		newBalance int64
		replayed   bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		result := tx.Exec(
			`INSERT INTO credit_ledger_entries (
				id, user_id, delta, reason, operation, idempotency_key, metadata, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, idempotency_key) DO NOTHING`,
			s.genID.Generate(),
			userID,
			amount,
			string(reason),
			"",
			nullableKey(idempotencyKey),
			datatypes.JSONMap(metadata),
			now,
		)
		if result.Error != nil {
			// Some dialects report the conflict instead of swallowing it.
			if pkgdb.IsDuplicateKeyErr(result.Error) {
				replayed = true
				return nil
			}
			return result.Error
		}
		if result.RowsAffected == 0 {
			replayed = true
			return nil
		}

		if err := tx.Exec(
			`INSERT INTO credit_balances (user_id, balance, created_at, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (user_id) DO UPDATE
			SET balance = credit_balances.balance + excluded.balance,
			    updated_at = excluded.updated_at`,
			userID, amount, now, now,
		).Error; err != nil {
			return err
		}

		return tx.Raw(
			`SELECT balance FROM credit_balances WHERE user_id = ?`, userID,
		).Scan(&newBalance).Error
	})
	if err != nil {
		return 0, err
	}

	if replayed {
		s.log.Info("duplicate credit grant ignored",
			zap.String("user_id", userID),
			zap.String("idempotency_key", idempotencyKey),
		)
		return s.GetBalance(ctx, userID)
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordCreditGrant(ctx, string(reason))
	}
	s.audit(ctx, userID, "ledger.credits_granted", map[string]any{
		"amount":  amount,
		"reason":  string(reason),
		"balance": newBalance,
	})

	return newBalance, nil
}

func (s *Service) DeductCredits(
	ctx context.Context,
	userID string,
	amount int64,
	operation string,
	idempotencyKey string,
	metadata map[string]any,
) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, ledgerdomain.ErrInvalidUser
	}
	if amount <= 0 {
		return 0, ledgerdomain.ErrInvalidAmount
	}
	operation = strings.TrimSpace(operation)
	if metadata == nil {
		metadata = map[string]any{}
	}

	var (
		newBalance int64
		replayed   bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()

		result := tx.Exec(
			`INSERT INTO credit_ledger_entries (
				id, user_id, delta, reason, operation, idempotency_key, metadata, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, idempotency_key) DO NOTHING`,
			s.genID.Generate(),
			userID,
			-amount,
			string(ledgerdomain.ReasonOperation),
			operation,
			nullableKey(idempotencyKey),
			datatypes.JSONMap(metadata),
			now,
		)
		if result.Error != nil {
			// Some dialects report the conflict instead of swallowing it.
			if pkgdb.IsDuplicateKeyErr(result.Error) {
				replayed = true
				return nil
			}
			return result.Error
		}
		if result.RowsAffected == 0 {
			replayed = true
			return nil
		}

		// The guard keeps the balance non-negative under concurrent spends.
		update := tx.Exec(
			`UPDATE credit_balances
			SET balance = balance - ?, updated_at = ?
			WHERE user_id = ? AND balance >= ?`,
			amount, now, userID, amount,
		)
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return ledgerdomain.ErrInsufficientCredits
		}

		return tx.Raw(
			`SELECT balance FROM credit_balances WHERE user_id = ?`, userID,
		).Scan(&newBalance).Error
	})
	if err != nil {
		if err == ledgerdomain.ErrInsufficientCredits && s.obsMetrics != nil {
			s.obsMetrics.RecordInsufficientCredits(ctx, operation)
		}
		return 0, err
	}

	if replayed {
		s.log.Info("duplicate credit deduction ignored",
			zap.String("user_id", userID),
			zap.String("idempotency_key", idempotencyKey),
		)
		return s.GetBalance(ctx, userID)
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordCreditDeduction(ctx, operation)
	}
	s.audit(ctx, userID, "ledger.credits_deducted", map[string]any{
		"amount":    amount,
		"operation": operation,
		"balance":   newBalance,
	})

	return newBalance, nil
}

func (s *Service) GetBalance(ctx context.Context, userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, ledgerdomain.ErrInvalidUser
	}

	var balance int64
	err := s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(
			(SELECT balance FROM credit_balances WHERE user_id = ?), 0
		)`, userID,
	).Scan(&balance).Error
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *Service) HasEnoughCredits(ctx context.Context, userID string, amount int64) (bool, error) {
	if amount <= 0 {
		return true, nil
	}
	balance, err := s.GetBalance(ctx, userID)
	if err != nil {
		return false, err
	}
	return balance >= amount, nil
}

func (s *Service) ListEntries(ctx context.Context, userID string, limit, offset int) ([]ledgerdomain.LedgerEntry, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ledgerdomain.ErrInvalidUser
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var entries []ledgerdomain.LedgerEntry
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Service) VerifyProjection(ctx context.Context) ([]ledgerdomain.Drift, error) {
	var drifts []ledgerdomain.Drift
	err := s.db.WithContext(ctx).Raw(
		`SELECT b.user_id AS user_id,
		        b.balance AS balance,
		        COALESCE(SUM(e.delta), 0) AS ledger_sum
		FROM credit_balances b
		LEFT JOIN credit_ledger_entries e ON e.user_id = b.user_id
		GROUP BY b.user_id, b.balance
		HAVING b.balance <> COALESCE(SUM(e.delta), 0)`,
	).Scan(&drifts).Error
	if err != nil {
		return nil, err
	}
	return drifts, nil
}

func (s *Service) audit(ctx context.Context, userID, action string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, userID, action, "credit_ledger", userID, metadata); err != nil {
		s.log.Warn("failed to write ledger audit log", zap.Error(err))
	}
}

func nullableKey(key string) *string {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	return &key
}
