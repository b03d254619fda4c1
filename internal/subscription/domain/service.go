package domain

import (
	"context"

	"github.com/pathlight-ai/pathlight/internal/config"
)

// Service manages the local mirror of provider subscriptions and the
// entitlements derived from it.
type Service interface {
	// GetForUser returns the user's subscription, or an implicit free-tier
	// record when none exists.
	GetForUser(ctx context.Context, userID string) (*Subscription, error)

	// SetCustomer records the provider customer id for a user, creating the
	// free-tier row when needed.
	SetCustomer(ctx context.Context, userID, customerID string) error

	// ApplyProviderState reconciles a provider subscription snapshot into the
	// local mirror. It returns the previous state so callers can react to
	// tier transitions.
	ApplyProviderState(ctx context.Context, state ProviderState) (previous *Subscription, err error)

	// MarkStatus updates only the lifecycle status for a provider
	// subscription id. Unknown ids are ignored.
	MarkStatus(ctx context.Context, providerSubscriptionID string, status Status) error

	// Downgrade resets the subscription identified by the provider id to the
	// free tier. Repeated calls are no-ops.
	Downgrade(ctx context.Context, providerSubscriptionID string) error

	// FindByCustomer maps a provider customer id back to the local record.
	FindByCustomer(ctx context.Context, customerID string) (*Subscription, error)

	// Entitled reports whether the user's tier may run the given operation.
	Entitled(ctx context.Context, userID, operation string) error

	// Limits returns the tier limits for the user's effective tier.
	Limits(ctx context.Context, userID string) (config.TierLimits, error)
}
