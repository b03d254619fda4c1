// Package domain defines the provider-neutral surface of the payment
// integration. The stripe package implements it against the live API.
package domain

import (
	"context"
	"time"
)

// CheckoutMode selects between recurring and one-time checkout flows.
type CheckoutMode string

const (
	CheckoutModeSubscription CheckoutMode = "subscription"
	CheckoutModePayment      CheckoutMode = "payment"
)

// CheckoutParams describes a checkout session to create.
type CheckoutParams struct {
	CustomerID string
	PriceID    string
	UserID     string
	Mode       CheckoutMode
	SuccessURL string
	CancelURL  string
	Locale     string
}

// CheckoutSession is the provider's hosted payment page.
type CheckoutSession struct {
	ID  string
	URL string
}

// ProviderSubscription is the provider-side view of a subscription.
type ProviderSubscription struct {
	ID                 string
	CustomerID         string
	PriceID            string
	ItemID             string
	Status             string
	CancelAtPeriodEnd  bool
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	Metadata           map[string]string
}

// Price is a catalog price as the provider knows it.
type Price struct {
	ID         string
	Currency   string
	UnitAmount int64
	Interval   string
	Active     bool
}

// Client is the outbound payment provider API.
type Client interface {
	CreateCustomer(ctx context.Context, email, userID string) (string, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL, locale string) (string, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
	UpdateSubscriptionPrice(ctx context.Context, subscriptionID, priceID string) error
	ListPrices(ctx context.Context, priceIDs []string) ([]Price, error)

	// VerifyWebhook checks the signature and normalizes the payload into an
	// Event. Payloads with event types this service does not handle come
	// back with type EventUnknown and a nil body.
	VerifyWebhook(payload []byte, signature string) (*Event, error)
}
