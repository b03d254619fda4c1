package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	subscriptiondomain "github.com/pathlight-ai/pathlight/internal/subscription/domain"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*subscriptiondomain.Subscription, error) {
	return r.findOne(ctx, db, "user_id = ?", userID)
}

func (r *repo) FindByProviderCustomerID(ctx context.Context, db *gorm.DB, customerID string) (*subscriptiondomain.Subscription, error) {
	return r.findOne(ctx, db, "provider_customer_id = ?", customerID)
}

func (r *repo) FindByProviderSubscriptionID(ctx context.Context, db *gorm.DB, subscriptionID string) (*subscriptiondomain.Subscription, error) {
	return r.findOne(ctx, db, "provider_subscription_id = ?", subscriptionID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, arg string) (*subscriptiondomain.Subscription, error) {
	if arg == "" {
		return nil, subscriptiondomain.ErrNotFound
	}

	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Where(query, arg).First(&subscription).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, subscriptiondomain.ErrNotFound
		}
		return nil, err
	}
	return &subscription, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, user_id, provider_customer_id, provider_subscription_id, price_id,
			tier, status, cancel_at_period_end, current_period_start, current_period_end,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			provider_customer_id = excluded.provider_customer_id,
			provider_subscription_id = excluded.provider_subscription_id,
			price_id = excluded.price_id,
			tier = excluded.tier,
			status = excluded.status,
			cancel_at_period_end = excluded.cancel_at_period_end,
			current_period_start = excluded.current_period_start,
			current_period_end = excluded.current_period_end,
			updated_at = excluded.updated_at`,
		subscription.ID,
		subscription.UserID,
		subscription.ProviderCustomerID,
		subscription.ProviderSubscriptionID,
		subscription.PriceID,
		subscription.Tier,
		subscription.Status,
		subscription.CancelAtPeriodEnd,
		subscription.CurrentPeriodStart,
		subscription.CurrentPeriodEnd,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Error
}

func (r *repo) SetStatusByProviderSubscriptionID(ctx context.Context, db *gorm.DB, subscriptionID string, status subscriptiondomain.Status) (int64, error) {
	if subscriptionID == "" {
		return 0, nil
	}

	result := db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET status = ?, updated_at = ? WHERE provider_subscription_id = ?`,
		status, time.Now().UTC(), subscriptionID,
	)
	return result.RowsAffected, result.Error
}
