package service

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pathlight-ai/pathlight/internal/config"
	subscriptiondomain "github.com/pathlight-ai/pathlight/internal/subscription/domain"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    subscriptiondomain.Repository
	Pricing *config.PricingHolder
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    subscriptiondomain.Repository
	pricing *config.PricingHolder
}

func NewService(p Params) subscriptiondomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("subscription.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		pricing: p.Pricing,
	}
}

func (s *Service) GetForUser(ctx context.Context, userID string) (*subscriptiondomain.Subscription, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, subscriptiondomain.ErrInvalidUser
	}

	subscription, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err == subscriptiondomain.ErrNotFound {
		return &subscriptiondomain.Subscription{
			UserID: userID,
			Tier:   subscriptiondomain.TierFree,
			Status: subscriptiondomain.StatusNone,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return subscription, nil
}

func (s *Service) SetCustomer(ctx context.Context, userID, customerID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return subscriptiondomain.ErrInvalidUser
	}
	customerID = strings.TrimSpace(customerID)

	existing, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil && err != subscriptiondomain.ErrNotFound {
		return err
	}

	now := time.Now().UTC()
	record := subscriptiondomain.Subscription{
		ID:                 s.genID.Generate(),
		UserID:             userID,
		ProviderCustomerID: customerID,
		Tier:               subscriptiondomain.TierFree,
		Status:             subscriptiondomain.StatusNone,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if existing != nil {
		record = *existing
		record.ProviderCustomerID = customerID
		record.UpdatedAt = now
	}

	return s.repo.Upsert(ctx, s.db, &record)
}

func (s *Service) ApplyProviderState(ctx context.Context, state subscriptiondomain.ProviderState) (*subscriptiondomain.Subscription, error) {
	userID := strings.TrimSpace(state.UserID)
	if userID == "" {
		return nil, subscriptiondomain.ErrInvalidUser
	}

	previous, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil && err != subscriptiondomain.ErrNotFound {
		return nil, err
	}

	now := time.Now().UTC()
	record := subscriptiondomain.Subscription{
		ID:        s.genID.Generate(),
		UserID:    userID,
		CreatedAt: now,
	}
	if previous != nil {
		record.ID = previous.ID
		record.CreatedAt = previous.CreatedAt
	}

	record.ProviderCustomerID = strings.TrimSpace(state.CustomerID)
	if record.ProviderCustomerID == "" && previous != nil {
		record.ProviderCustomerID = previous.ProviderCustomerID
	}
	record.ProviderSubscriptionID = strings.TrimSpace(state.SubscriptionID)
	record.PriceID = strings.TrimSpace(state.PriceID)
	record.Tier = state.Tier
	record.Status = state.Status
	record.CancelAtPeriodEnd = state.CancelAtPeriodEnd
	record.CurrentPeriodStart = state.CurrentPeriodStart
	record.CurrentPeriodEnd = state.CurrentPeriodEnd
	record.UpdatedAt = now

	if err := s.repo.Upsert(ctx, s.db, &record); err != nil {
		return nil, err
	}

	s.log.Info("subscription state applied",
		zap.String("user_id", userID),
		zap.String("tier", string(record.Tier)),
		zap.String("status", string(record.Status)),
	)
	return previous, nil
}

func (s *Service) MarkStatus(ctx context.Context, providerSubscriptionID string, status subscriptiondomain.Status) error {
	affected, err := s.repo.SetStatusByProviderSubscriptionID(ctx, s.db, providerSubscriptionID, status)
	if err != nil {
		return err
	}
	if affected == 0 {
		s.log.Warn("status update for unknown subscription ignored",
			zap.String("provider_subscription_id", providerSubscriptionID),
			zap.String("status", string(status)),
		)
	}
	return nil
}

func (s *Service) Downgrade(ctx context.Context, providerSubscriptionID string) error {
	providerSubscriptionID = strings.TrimSpace(providerSubscriptionID)
	if providerSubscriptionID == "" {
		return nil
	}

	subscription, err := s.repo.FindByProviderSubscriptionID(ctx, s.db, providerSubscriptionID)
	if err == subscriptiondomain.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}

	subscription.ProviderSubscriptionID = ""
	subscription.PriceID = ""
	subscription.Tier = subscriptiondomain.TierFree
	subscription.Status = subscriptiondomain.StatusCanceled
	subscription.CancelAtPeriodEnd = false
	subscription.CurrentPeriodStart = nil
	subscription.CurrentPeriodEnd = nil
	subscription.UpdatedAt = time.Now().UTC()

	return s.repo.Upsert(ctx, s.db, subscription)
}

func (s *Service) FindByCustomer(ctx context.Context, customerID string) (*subscriptiondomain.Subscription, error) {
	return s.repo.FindByProviderCustomerID(ctx, s.db, customerID)
}

func (s *Service) Entitled(ctx context.Context, userID, operation string) error {
	pricing := s.pricing.Get()
	if !slices.Contains(pricing.PremiumOperations, operation) {
		return nil
	}

	subscription, err := s.GetForUser(ctx, userID)
	if err != nil {
		return err
	}
	if !subscription.EffectiveTier().Paid() {
		return subscriptiondomain.ErrUpgradeRequired
	}
	// Tier limits stay lenient for past-due accounts, but premium operations
	// are held back until the open invoice settles.
	if subscription.Status == subscriptiondomain.StatusPastDue {
		return subscriptiondomain.ErrUpgradeRequired
	}
	return nil
}

func (s *Service) Limits(ctx context.Context, userID string) (config.TierLimits, error) {
	subscription, err := s.GetForUser(ctx, userID)
	if err != nil {
		return config.TierLimits{}, err
	}

	pricing := s.pricing.Get()
	limits, ok := pricing.TierLimits[string(subscription.EffectiveTier())]
	if !ok {
		limits = pricing.TierLimits[string(subscriptiondomain.TierFree)]
	}
	return limits, nil
}
