// Package checkout orchestrates purchase flows against the payment provider.
package checkout

import (
	"context"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	auditdomain "github.com/pathlight-ai/pathlight/internal/audit/domain"
	"github.com/pathlight-ai/pathlight/internal/catalog"
	"github.com/pathlight-ai/pathlight/internal/config"
	paymentdomain "github.com/pathlight-ai/pathlight/internal/payment/domain"
	subscriptiondomain "github.com/pathlight-ai/pathlight/internal/subscription/domain"
)

// Result describes the outcome of a checkout request. Either URL points at a
// hosted payment page, or Upgraded marks an in-place plan change that needs
// no new checkout.
type Result struct {
	URL      string
	Upgraded bool
}

type Params struct {
	fx.In

	Config        config.Config
	Log           *zap.Logger
	Client        paymentdomain.Client
	Catalog       *catalog.Catalog
	Subscriptions subscriptiondomain.Service
	AuditSvc      auditdomain.Service `optional:"true"`
}

type Service struct {
	cfg           config.Config
	log           *zap.Logger
	client        paymentdomain.Client
	catalog       *catalog.Catalog
	subscriptions subscriptiondomain.Service
	auditSvc      auditdomain.Service
}

func NewService(p Params) *Service {
	return &Service{
		cfg:           p.Config,
		log:           p.Log.Named("payment.checkout"),
		client:        p.Client,
		catalog:       p.Catalog,
		subscriptions: p.Subscriptions,
		auditSvc:      p.AuditSvc,
	}
}

// Start begins a purchase for the given price. Plan prices on an already
// subscribed user become an in-place price change with proration instead of
// a second subscription.
func (s *Service) Start(ctx context.Context, userID, email, priceID, locale string) (*Result, error) {
	priceID = strings.TrimSpace(priceID)

	switch {
	case s.catalog.IsPlan(priceID):
		return s.startPlan(ctx, userID, email, priceID, locale)
	case s.catalog.IsPack(priceID):
		return s.startPack(ctx, userID, email, priceID, locale)
	default:
		return nil, paymentdomain.ErrUnknownPrice
	}
}

func (s *Service) startPlan(ctx context.Context, userID, email, priceID, locale string) (*Result, error) {
	subscription, err := s.subscriptions.GetForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if subscription.Status.Usable() && subscription.ProviderSubscriptionID != "" {
		if subscription.PriceID == priceID {
			return nil, paymentdomain.ErrAlreadySubscribed
		}

		// Existing subscribers change plans in place. The webhook stream
		// applies the resulting state and any upgrade grant.
		if err := s.client.UpdateSubscriptionPrice(ctx, subscription.ProviderSubscriptionID, priceID); err != nil {
			return nil, err
		}
		s.audit(ctx, userID, "checkout.plan_changed", map[string]any{
			"subscription_id": subscription.ProviderSubscriptionID,
			"price_id":        priceID,
		})
		return &Result{Upgraded: true}, nil
	}

	return s.newSession(ctx, userID, email, priceID, locale, paymentdomain.CheckoutModeSubscription)
}

func (s *Service) startPack(ctx context.Context, userID, email, priceID, locale string) (*Result, error) {
	return s.newSession(ctx, userID, email, priceID, locale, paymentdomain.CheckoutModePayment)
}

func (s *Service) newSession(ctx context.Context, userID, email, priceID, locale string, mode paymentdomain.CheckoutMode) (*Result, error) {
	customerID, err := s.ensureCustomer(ctx, userID, email)
	if err != nil {
		return nil, err
	}

	session, err := s.client.CreateCheckoutSession(ctx, paymentdomain.CheckoutParams{
		CustomerID: customerID,
		PriceID:    priceID,
		UserID:     userID,
		Mode:       mode,
		SuccessURL: s.cfg.Stripe.CheckoutSuccessURL,
		CancelURL:  s.cfg.Stripe.CheckoutCancelURL,
		Locale:     locale,
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, userID, "checkout.session_created", map[string]any{
		"session_id": session.ID,
		"price_id":   priceID,
		"mode":       string(mode),
	})
	return &Result{URL: session.URL}, nil
}

// PortalURL opens the provider's self-service billing portal. Users without
// a provider customer have nothing to manage there.
func (s *Service) PortalURL(ctx context.Context, userID, locale string) (string, error) {
	subscription, err := s.subscriptions.GetForUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if subscription.ProviderCustomerID == "" {
		return "", paymentdomain.ErrNoCustomer
	}
	return s.client.CreatePortalSession(ctx, subscription.ProviderCustomerID, s.cfg.Stripe.PortalReturnURL, locale)
}

// ensureCustomer reuses the stored provider customer or creates one.
func (s *Service) ensureCustomer(ctx context.Context, userID, email string) (string, error) {
	subscription, err := s.subscriptions.GetForUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if subscription.ProviderCustomerID != "" {
		return subscription.ProviderCustomerID, nil
	}

	customerID, err := s.client.CreateCustomer(ctx, email, userID)
	if err != nil {
		return "", err
	}
	if err := s.subscriptions.SetCustomer(ctx, userID, customerID); err != nil {
		return "", err
	}
	return customerID, nil
}

func (s *Service) audit(ctx context.Context, userID, action string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, userID, action, "checkout", userID, metadata); err != nil {
		s.log.Warn("failed to write checkout audit log", zap.Error(err))
	}
}
