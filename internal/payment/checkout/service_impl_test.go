package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pathlight-ai/pathlight/internal/catalog"
	"github.com/pathlight-ai/pathlight/internal/config"
	paymentdomain "github.com/pathlight-ai/pathlight/internal/payment/domain"
	subscriptiondomain "github.com/pathlight-ai/pathlight/internal/subscription/domain"
	subscriptionrepository "github.com/pathlight-ai/pathlight/internal/subscription/repository"
	subscriptionservice "github.com/pathlight-ai/pathlight/internal/subscription/service"
)

type fakeClient struct {
	customers       int
	sessions        []paymentdomain.CheckoutParams
	priceUpdates    []string
	portalRequested bool
	portalLocale    string
}

func (f *fakeClient) CreateCustomer(ctx context.Context, email, userID string) (string, error) {
	f.customers++
	return "cus_new", nil
}
func (f *fakeClient) CreateCheckoutSession(ctx context.Context, p paymentdomain.CheckoutParams) (*paymentdomain.CheckoutSession, error) {
	f.sessions = append(f.sessions, p)
	return &paymentdomain.CheckoutSession{ID: "cs_1", URL: "https://pay.example/cs_1"}, nil
}
func (f *fakeClient) CreatePortalSession(ctx context.Context, customerID, returnURL, locale string) (string, error) {
	f.portalRequested = true
	f.portalLocale = locale
	return "https://pay.example/portal", nil
}
func (f *fakeClient) GetSubscription(ctx context.Context, subscriptionID string) (*paymentdomain.ProviderSubscription, error) {
	return nil, nil
}
func (f *fakeClient) UpdateSubscriptionPrice(ctx context.Context, subscriptionID, priceID string) error {
	f.priceUpdates = append(f.priceUpdates, subscriptionID+":"+priceID)
	return nil
}
func (f *fakeClient) ListPrices(ctx context.Context, priceIDs []string) ([]paymentdomain.Price, error) {
	return nil, nil
}
func (f *fakeClient) VerifyWebhook(payload []byte, signature string) (*paymentdomain.Event, error) {
	return nil, nil
}

func setupService(t *testing.T) (*Service, *fakeClient, subscriptiondomain.Service) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&subscriptiondomain.Subscription{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	pricing := config.NewStaticPricingHolder(config.DefaultPricingConfig())

	cfg := config.Config{
		Stripe: config.StripeConfig{
			PriceProMonthly:     "price_pro_m",
			PricePremiumMonthly: "price_prem_m",
			PricePackSmall:      "price_pack_s",
			CheckoutSuccessURL:  "https://app.example/billing/success",
			CheckoutCancelURL:   "https://app.example/billing/cancel",
			PortalReturnURL:     "https://app.example/settings",
		},
	}

	subSvc := subscriptionservice.NewService(subscriptionservice.Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Repo:    subscriptionrepository.Provide(),
		Pricing: pricing,
	})

	client := &fakeClient{}
	svc := NewService(Params{
		Config:        cfg,
		Log:           zap.NewNop(),
		Client:        client,
		Catalog:       catalog.New(cfg, pricing),
		Subscriptions: subSvc,
	})
	return svc, client, subSvc
}

func subscribePro(t *testing.T, subs subscriptiondomain.Service, userID string) {
	t.Helper()
	start := time.Now().UTC()
	end := start.AddDate(0, 1, 0)
	_, err := subs.ApplyProviderState(context.Background(), subscriptiondomain.ProviderState{
		UserID:             userID,
		CustomerID:         "cus_1",
		SubscriptionID:     "sub_1",
		PriceID:            "price_pro_m",
		Tier:               subscriptiondomain.TierPro,
		Status:             subscriptiondomain.StatusActive,
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   &end,
	})
	require.NoError(t, err)
}

func TestStartPlanNewSubscriber(t *testing.T) {
	svc, client, _ := setupService(t)

	result, err := svc.Start(context.Background(), "user-1", "u1@example.com", "price_pro_m", "")
	require.NoError(t, err)
	assert.False(t, result.Upgraded)
	assert.Equal(t, "https://pay.example/cs_1", result.URL)

	require.Len(t, client.sessions, 1)
	session := client.sessions[0]
	assert.Equal(t, paymentdomain.CheckoutModeSubscription, session.Mode)
	assert.Equal(t, "user-1", session.UserID)
	assert.Equal(t, "cus_new", session.CustomerID)
	assert.Equal(t, 1, client.customers)
}

func TestStartPlanReusesCustomer(t *testing.T) {
	svc, client, subs := setupService(t)
	require.NoError(t, subs.SetCustomer(context.Background(), "user-1", "cus_existing"))

	_, err := svc.Start(context.Background(), "user-1", "u1@example.com", "price_pro_m", "")
	require.NoError(t, err)

	assert.Equal(t, 0, client.customers)
	require.Len(t, client.sessions, 1)
	assert.Equal(t, "cus_existing", client.sessions[0].CustomerID)
}

func TestStartSamePlanRejected(t *testing.T) {
	svc, client, subs := setupService(t)
	subscribePro(t, subs, "user-1")

	_, err := svc.Start(context.Background(), "user-1", "u1@example.com", "price_pro_m", "")
	assert.ErrorIs(t, err, paymentdomain.ErrAlreadySubscribed)
	assert.Empty(t, client.sessions)
}

func TestStartDifferentPlanUpdatesInPlace(t *testing.T) {
	svc, client, subs := setupService(t)
	subscribePro(t, subs, "user-1")

	result, err := svc.Start(context.Background(), "user-1", "u1@example.com", "price_prem_m", "")
	require.NoError(t, err)
	assert.True(t, result.Upgraded)
	assert.Empty(t, result.URL)

	assert.Empty(t, client.sessions)
	require.Len(t, client.priceUpdates, 1)
	assert.Equal(t, "sub_1:price_prem_m", client.priceUpdates[0])
}

func TestStartPackWhileSubscribed(t *testing.T) {
	svc, client, subs := setupService(t)
	subscribePro(t, subs, "user-1")

	result, err := svc.Start(context.Background(), "user-1", "u1@example.com", "price_pack_s", "")
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/cs_1", result.URL)

	require.Len(t, client.sessions, 1)
	assert.Equal(t, paymentdomain.CheckoutModePayment, client.sessions[0].Mode)
}

func TestStartUnknownPrice(t *testing.T) {
	svc, _, _ := setupService(t)

	_, err := svc.Start(context.Background(), "user-1", "u1@example.com", "price_bogus", "")
	assert.ErrorIs(t, err, paymentdomain.ErrUnknownPrice)
}

func TestLocaleReachesProvider(t *testing.T) {
	svc, client, subs := setupService(t)

	_, err := svc.Start(context.Background(), "user-1", "u1@example.com", "price_pro_m", "de")
	require.NoError(t, err)
	require.Len(t, client.sessions, 1)
	assert.Equal(t, "de", client.sessions[0].Locale)

	require.NoError(t, subs.SetCustomer(context.Background(), "user-2", "cus_2"))
	_, err = svc.PortalURL(context.Background(), "user-2", "fr")
	require.NoError(t, err)
	assert.Equal(t, "fr", client.portalLocale)
}

func TestPortalURLRequiresCustomer(t *testing.T) {
	svc, client, subs := setupService(t)

	_, err := svc.PortalURL(context.Background(), "user-1", "")
	assert.ErrorIs(t, err, paymentdomain.ErrNoCustomer)
	assert.False(t, client.portalRequested)

	require.NoError(t, subs.SetCustomer(context.Background(), "user-1", "cus_1"))
	url, err := svc.PortalURL(context.Background(), "user-1", "")
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/portal", url)
}
