package domain

import "time"

// EventType enumerates the webhook events the reconciler reacts to.
type EventType string

const (
	EventCheckoutCompleted    EventType = "checkout.session.completed"
	EventSubscriptionCreated  EventType = "customer.subscription.created"
	EventSubscriptionUpdated  EventType = "customer.subscription.updated"
	EventSubscriptionDeleted  EventType = "customer.subscription.deleted"
	EventSubscriptionPaused   EventType = "customer.subscription.paused"
	EventSubscriptionResumed  EventType = "customer.subscription.resumed"
	EventInvoicePaid          EventType = "invoice.paid"
	EventInvoicePaymentFailed EventType = "invoice.payment_failed"
	EventUnknown              EventType = "unknown"
)

// Event is a verified, normalized webhook delivery. Exactly one of the data
// fields is set, matching the event type.
type Event struct {
	ID      string
	Type    EventType
	RawType string

	Checkout     *CheckoutData
	Subscription *SubscriptionData
	Invoice      *InvoiceData
}

// CheckoutData carries the fields of a completed checkout session.
type CheckoutData struct {
	SessionID  string
	CustomerID string
	Mode       CheckoutMode
	Metadata   map[string]string
}

// SubscriptionData carries the fields of a subscription lifecycle event.
type SubscriptionData struct {
	SubscriptionID     string
	CustomerID         string
	PriceID            string
	Status             string
	CancelAtPeriodEnd  bool
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	Metadata           map[string]string
}

// InvoiceData carries the fields of an invoice event.
type InvoiceData struct {
	InvoiceID      string
	CustomerID     string
	SubscriptionID string
	BillingReason  string
}
