// Package webhook reconciles the provider's event stream into local
// subscription state and credit grants. Deliveries are at-least-once, so
// every handler is idempotent.
package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/pathlight-ai/pathlight/internal/catalog"
	ledgerdomain "github.com/pathlight-ai/pathlight/internal/ledger/domain"
	obsmetrics "github.com/pathlight-ai/pathlight/internal/observability/metrics"
	paymentdomain "github.com/pathlight-ai/pathlight/internal/payment/domain"
	subscriptiondomain "github.com/pathlight-ai/pathlight/internal/subscription/domain"
)

const (
	OutcomeProcessed = "processed"
	OutcomeSkipped   = "skipped"
	OutcomeIgnored   = "ignored"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Client        paymentdomain.Client
	Catalog       *catalog.Catalog
	Ledger        ledgerdomain.Service
	Subscriptions subscriptiondomain.Service
	ObsMetrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	client        paymentdomain.Client
	catalog       *catalog.Catalog
	ledger        ledgerdomain.Service
	subscriptions subscriptiondomain.Service
	obsMetrics    *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("payment.webhook"),
		genID:         p.GenID,
		client:        p.Client,
		catalog:       p.Catalog,
		ledger:        p.Ledger,
		subscriptions: p.Subscriptions,
		obsMetrics:    p.ObsMetrics,
	}
}

// HandleWebhook verifies and processes one raw delivery. Signature failures
// surface as paymentdomain errors for the transport layer to map.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.client.VerifyWebhook(payload, signature)
	if err != nil {
		return err
	}
	return s.Process(ctx, event)
}

// Process runs the reconciliation for an already verified event.
func (s *Service) Process(ctx context.Context, event *paymentdomain.Event) error {
	var (
		outcome string
		err     error
	)

	switch event.Type {
	case paymentdomain.EventCheckoutCompleted:
		outcome, err = s.handleCheckoutCompleted(ctx, event.Checkout)
	case paymentdomain.EventSubscriptionCreated:
		outcome, err = s.handleSubscriptionCreated(ctx, event.Subscription)
	case paymentdomain.EventSubscriptionUpdated:
		outcome, err = s.handleSubscriptionUpdated(ctx, event.Subscription)
	case paymentdomain.EventSubscriptionDeleted:
		outcome, err = s.handleSubscriptionDeleted(ctx, event.Subscription)
	case paymentdomain.EventSubscriptionPaused:
		err = s.subscriptions.MarkStatus(ctx, event.Subscription.SubscriptionID, subscriptiondomain.StatusPaused)
		outcome = OutcomeProcessed
	case paymentdomain.EventSubscriptionResumed:
		err = s.subscriptions.MarkStatus(ctx, event.Subscription.SubscriptionID, subscriptiondomain.StatusActive)
		outcome = OutcomeProcessed
	case paymentdomain.EventInvoicePaid:
		outcome, err = s.handleInvoicePaid(ctx, event.Invoice)
	case paymentdomain.EventInvoicePaymentFailed:
		err = s.subscriptions.MarkStatus(ctx, event.Invoice.SubscriptionID, subscriptiondomain.StatusPastDue)
		outcome = OutcomeProcessed
	default:
		s.log.Info("ignoring webhook event", zap.String("event_type", event.RawType))
		outcome = OutcomeIgnored
	}

	if err != nil {
		s.log.Error("webhook processing failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.RawType),
			zap.Error(err),
		)
		return err
	}

	s.recordEvent(ctx, event, outcome)
	if s.obsMetrics != nil {
		s.obsMetrics.RecordWebhookEvent(ctx, event.RawType, outcome)
	}
	return nil
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, data *paymentdomain.CheckoutData) (string, error) {
	userID := data.Metadata["user_id"]
	if userID == "" {
		s.log.Warn("checkout session missing user metadata", zap.String("session_id", data.SessionID))
		return OutcomeSkipped, nil
	}

	if data.CustomerID != "" {
		if err := s.subscriptions.SetCustomer(ctx, userID, data.CustomerID); err != nil {
			return "", err
		}
	}

	// Subscription checkouts grant credits on customer.subscription.created.
	if data.Mode != paymentdomain.CheckoutModePayment {
		return OutcomeProcessed, nil
	}

	pack, err := s.catalog.PackByPriceID(data.Metadata["price_id"])
	if err != nil {
		s.log.Warn("checkout for unknown pack price",
			zap.String("session_id", data.SessionID),
			zap.String("price_id", data.Metadata["price_id"]),
		)
		return OutcomeSkipped, nil
	}

	_, err = s.ledger.AddCredits(ctx, userID, int64(pack.Credits), ledgerdomain.ReasonPackPurchase, data.SessionID, map[string]any{
		"session_id": data.SessionID,
		"price_id":   pack.PriceID,
		"pack":       pack.Key,
	})
	if err != nil {
		return "", err
	}
	return OutcomeProcessed, nil
}

func (s *Service) handleSubscriptionCreated(ctx context.Context, data *paymentdomain.SubscriptionData) (string, error) {
	userID, err := s.resolveUser(ctx, data)
	if err != nil {
		return OutcomeSkipped, nil
	}

	plan, err := s.catalog.PlanByPriceID(data.PriceID)
	if err != nil {
		s.log.Warn("subscription for unknown price",
			zap.String("subscription_id", data.SubscriptionID),
			zap.String("price_id", data.PriceID),
		)
		return OutcomeSkipped, nil
	}

	if _, err := s.subscriptions.ApplyProviderState(ctx, providerState(userID, plan.Tier, data)); err != nil {
		return "", err
	}

	allotment := s.catalog.Allotment(plan.Tier)
	_, err = s.ledger.AddCredits(ctx, userID, int64(allotment), ledgerdomain.ReasonSubscriptionGrant, data.SubscriptionID+":created", map[string]any{
		"subscription_id": data.SubscriptionID,
		"tier":            string(plan.Tier),
	})
	if err != nil {
		return "", err
	}
	return OutcomeProcessed, nil
}

func (s *Service) handleSubscriptionUpdated(ctx context.Context, data *paymentdomain.SubscriptionData) (string, error) {
	userID, err := s.resolveUser(ctx, data)
	if err != nil {
		return OutcomeSkipped, nil
	}

	plan, err := s.catalog.PlanByPriceID(data.PriceID)
	if err != nil {
		s.log.Warn("subscription update for unknown price",
			zap.String("subscription_id", data.SubscriptionID),
			zap.String("price_id", data.PriceID),
		)
		return OutcomeSkipped, nil
	}

	previous, err := s.subscriptions.ApplyProviderState(ctx, providerState(userID, plan.Tier, data))
	if err != nil {
		return "", err
	}

	// When the update arrives before customer.subscription.created, this is
	// the first time we see the subscription. Grant the full allotment under
	// the created key so the late created event replays as a no-op.
	if previous == nil || previous.ProviderSubscriptionID == "" {
		allotment := s.catalog.Allotment(plan.Tier)
		_, err = s.ledger.AddCredits(ctx, userID, int64(allotment), ledgerdomain.ReasonSubscriptionGrant, data.SubscriptionID+":created", map[string]any{
			"subscription_id": data.SubscriptionID,
			"tier":            string(plan.Tier),
		})
		if err != nil {
			return "", err
		}
		return OutcomeProcessed, nil
	}

	// On a tier upgrade the user immediately receives the difference between
	// the two allotments. Downgrades keep already-granted credits.
	previousTier := previous.Tier
	if plan.Tier.Rank() > previousTier.Rank() {
		diff := s.catalog.Allotment(plan.Tier) - s.catalog.Allotment(previousTier)
		if diff > 0 {
			key := fmt.Sprintf("%s:upgrade:%d", data.SubscriptionID, data.CurrentPeriodEnd.Unix())
			_, err = s.ledger.AddCredits(ctx, userID, int64(diff), ledgerdomain.ReasonUpgradeGrant, key, map[string]any{
				"subscription_id": data.SubscriptionID,
				"from_tier":       string(previousTier),
				"to_tier":         string(plan.Tier),
			})
			if err != nil {
				return "", err
			}
		}
	}
	return OutcomeProcessed, nil
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, data *paymentdomain.SubscriptionData) (string, error) {
	if err := s.subscriptions.Downgrade(ctx, data.SubscriptionID); err != nil {
		return "", err
	}
	return OutcomeProcessed, nil
}

func (s *Service) handleInvoicePaid(ctx context.Context, data *paymentdomain.InvoiceData) (string, error) {
	// The initial invoice accompanies customer.subscription.created, which
	// already granted the allotment.
	if data.BillingReason == "subscription_create" {
		return OutcomeSkipped, nil
	}
	if data.SubscriptionID == "" {
		return OutcomeSkipped, nil
	}

	subscription, err := s.subscriptions.FindByCustomer(ctx, data.CustomerID)
	if err == subscriptiondomain.ErrNotFound {
		s.log.Warn("invoice for unknown customer", zap.String("customer_id", data.CustomerID))
		return OutcomeSkipped, nil
	}
	if err != nil {
		return "", err
	}

	// A paid invoice clears any past-due flag.
	if err := s.subscriptions.MarkStatus(ctx, data.SubscriptionID, subscriptiondomain.StatusActive); err != nil {
		return "", err
	}

	allotment := s.catalog.Allotment(subscription.Tier)
	if allotment <= 0 {
		return OutcomeSkipped, nil
	}

	_, err = s.ledger.AddCredits(ctx, subscription.UserID, int64(allotment), ledgerdomain.ReasonRenewalGrant, data.InvoiceID, map[string]any{
		"invoice_id":      data.InvoiceID,
		"subscription_id": data.SubscriptionID,
		"billing_reason":  data.BillingReason,
		"tier":            string(subscription.Tier),
	})
	if err != nil {
		return "", err
	}
	return OutcomeProcessed, nil
}

func (s *Service) resolveUser(ctx context.Context, data *paymentdomain.SubscriptionData) (string, error) {
	if userID := data.Metadata["user_id"]; userID != "" {
		return userID, nil
	}

	subscription, err := s.subscriptions.FindByCustomer(ctx, data.CustomerID)
	if err != nil {
		s.log.Warn("cannot map subscription event to a user",
			zap.String("subscription_id", data.SubscriptionID),
			zap.String("customer_id", data.CustomerID),
		)
		return "", err
	}
	return subscription.UserID, nil
}

func (s *Service) recordEvent(ctx context.Context, event *paymentdomain.Event, outcome string) {
	err := s.db.WithContext(ctx).Exec(
		`INSERT INTO webhook_events (id, provider, event_id, event_type, outcome, payload, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, event_id) DO NOTHING`,
		s.genID.Generate(),
		"stripe",
		event.ID,
		event.RawType,
		outcome,
		datatypes.JSONMap{"event_id": event.ID, "event_type": event.RawType},
		time.Now().UTC(),
	).Error
	if err != nil {
		s.log.Warn("failed to record webhook event", zap.String("event_id", event.ID), zap.Error(err))
	}
}

func providerState(userID string, tier subscriptiondomain.Tier, data *paymentdomain.SubscriptionData) subscriptiondomain.ProviderState {
	state := subscriptiondomain.ProviderState{
		UserID:            userID,
		CustomerID:        data.CustomerID,
		SubscriptionID:    data.SubscriptionID,
		PriceID:           data.PriceID,
		Tier:              tier,
		Status:            mapStatus(data.Status),
		CancelAtPeriodEnd: data.CancelAtPeriodEnd,
	}
	if !data.CurrentPeriodStart.IsZero() {
		start := data.CurrentPeriodStart
		state.CurrentPeriodStart = &start
	}
	if !data.CurrentPeriodEnd.IsZero() {
		end := data.CurrentPeriodEnd
		state.CurrentPeriodEnd = &end
	}
	return state
}

func mapStatus(status string) subscriptiondomain.Status {
	switch status {
	case "active", "trialing":
		return subscriptiondomain.StatusActive
	case "past_due", "unpaid":
		return subscriptiondomain.StatusPastDue
	case "canceled", "incomplete_expired":
		return subscriptiondomain.StatusCanceled
	case "paused":
		return subscriptiondomain.StatusPaused
	default:
		return subscriptiondomain.StatusActive
	}
}
