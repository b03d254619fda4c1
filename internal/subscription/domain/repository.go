package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*Subscription, error)
	FindByProviderCustomerID(ctx context.Context, db *gorm.DB, customerID string) (*Subscription, error)
	FindByProviderSubscriptionID(ctx context.Context, db *gorm.DB, subscriptionID string) (*Subscription, error)
	Upsert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	SetStatusByProviderSubscriptionID(ctx context.Context, db *gorm.DB, subscriptionID string, status Status) (int64, error)
}
