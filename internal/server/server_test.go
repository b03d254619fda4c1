package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pathlight-ai/pathlight/internal/auth"
	"github.com/pathlight-ai/pathlight/internal/catalog"
	"github.com/pathlight-ai/pathlight/internal/config"
	ledgerdomain "github.com/pathlight-ai/pathlight/internal/ledger/domain"
	ledgerservice "github.com/pathlight-ai/pathlight/internal/ledger/service"
	"github.com/pathlight-ai/pathlight/internal/observability"
	obsmetrics "github.com/pathlight-ai/pathlight/internal/observability/metrics"
	"github.com/pathlight-ai/pathlight/internal/payment/checkout"
	paymentdomain "github.com/pathlight-ai/pathlight/internal/payment/domain"
	"github.com/pathlight-ai/pathlight/internal/payment/webhook"
	"github.com/pathlight-ai/pathlight/internal/providers/ai"
	"github.com/pathlight-ai/pathlight/internal/ratelimit"
	subscriptiondomain "github.com/pathlight-ai/pathlight/internal/subscription/domain"
	subscriptionrepository "github.com/pathlight-ai/pathlight/internal/subscription/repository"
	subscriptionservice "github.com/pathlight-ai/pathlight/internal/subscription/service"
)

type fakePaymentClient struct {
	prices    []paymentdomain.Price
	pricesErr error
	verifyErr error
	event     *paymentdomain.Event
	sessions  []paymentdomain.CheckoutParams
}

func (f *fakePaymentClient) CreateCustomer(ctx context.Context, email, userID string) (string, error) {
	return "cus_test", nil
}

func (f *fakePaymentClient) CreateCheckoutSession(ctx context.Context, p paymentdomain.CheckoutParams) (*paymentdomain.CheckoutSession, error) {
	f.sessions = append(f.sessions, p)
	return &paymentdomain.CheckoutSession{ID: "cs_test", URL: "https://pay.example/cs_test"}, nil
}

func (f *fakePaymentClient) CreatePortalSession(ctx context.Context, customerID, returnURL, locale string) (string, error) {
	return "https://pay.example/portal", nil
}

func (f *fakePaymentClient) GetSubscription(ctx context.Context, subscriptionID string) (*paymentdomain.ProviderSubscription, error) {
	return nil, errors.New("not implemented")
}

func (f *fakePaymentClient) UpdateSubscriptionPrice(ctx context.Context, subscriptionID, priceID string) error {
	return nil
}

func (f *fakePaymentClient) ListPrices(ctx context.Context, priceIDs []string) ([]paymentdomain.Price, error) {
	if f.pricesErr != nil {
		return nil, f.pricesErr
	}
	return f.prices, nil
}

func (f *fakePaymentClient) VerifyWebhook(payload []byte, signature string) (*paymentdomain.Event, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return f.event, nil
}

type fakeAIProvider struct {
	resp *ai.Response
	err  error
}

func (f *fakeAIProvider) Invoke(ctx context.Context, req ai.Request) (*ai.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.resp != nil {
		return f.resp, nil
	}
	return &ai.Response{Output: "ok:" + req.Operation, Model: "test-model"}, nil
}

type serverFixture struct {
	srv      *Server
	engine   *gin.Engine
	client   *fakePaymentClient
	provider *fakeAIProvider
	verifier *auth.Verifier
	ledger   ledgerdomain.Service
	subs     subscriptiondomain.Service
}

func setupServer(t *testing.T) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&ledgerdomain.CreditBalance{},
		&ledgerdomain.LedgerEntry{},
		&subscriptiondomain.Subscription{},
		&paymentdomain.WebhookEvent{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()
	pricing := config.NewStaticPricingHolder(config.DefaultPricingConfig())

	cfg := config.Config{
		HTTPAddr: ":0",
		Stripe: config.StripeConfig{
			PriceProMonthly:     "price_pro_m",
			PricePremiumMonthly: "price_prem_m",
			PricePackSmall:      "price_pack_s",
			CheckoutSuccessURL:  "https://app.example/success",
			CheckoutCancelURL:   "https://app.example/cancel",
			PortalReturnURL:     "https://app.example/account",
		},
	}
	cat := catalog.New(cfg, pricing)

	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{DB: db, Log: log, GenID: node})
	subSvc := subscriptionservice.NewService(subscriptionservice.Params{
		DB:      db,
		Log:     log,
		GenID:   node,
		Repo:    subscriptionrepository.Provide(),
		Pricing: pricing,
	})

	client := &fakePaymentClient{}
	webhookSvc := webhook.NewService(webhook.Params{
		DB:            db,
		Log:           log,
		GenID:         node,
		Client:        client,
		Catalog:       cat,
		Ledger:        ledgerSvc,
		Subscriptions: subSvc,
	})
	checkoutSvc := checkout.NewService(checkout.Params{
		Config:        cfg,
		Log:           log,
		Client:        client,
		Catalog:       cat,
		Subscriptions: subSvc,
	})

	verifier := auth.NewVerifier("test-secret")
	limiter := ratelimit.NewLimiter(ratelimit.Params{Config: cfg, Logger: log})
	provider := &fakeAIProvider{}

	httpMetrics := obsmetrics.NewHTTPMetrics(prometheus.NewRegistry())

	engine := NewEngine(observability.Config{ServiceName: "pathlight-test"}, httpMetrics)
	srv := NewServer(ServerParams{
		Gin:             engine,
		Cfg:             cfg,
		Log:             log,
		DB:              db,
		GenID:           node,
		Verifier:        verifier,
		Limiter:         limiter,
		Pricing:         pricing,
		LedgerSvc:       ledgerSvc,
		SubscriptionSvc: subSvc,
		Catalog:         cat,
		PaymentClient:   client,
		CheckoutSvc:     checkoutSvc,
		WebhookSvc:      webhookSvc,
		AIProvider:      provider,
	})

	return &serverFixture{
		srv:      srv,
		engine:   engine,
		client:   client,
		provider: provider,
		verifier: verifier,
		ledger:   ledgerSvc,
		subs:     subSvc,
	}
}

func (f *serverFixture) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := f.verifier.Issue(userID, userID+"@example.com", time.Hour)
	require.NoError(t, err)
	return token
}

func (f *serverFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestMeteredEndpointDeductsCredits(t *testing.T) {
	f := setupServer(t)
	ctx := context.Background()

	_, err := f.ledger.AddCredits(ctx, "u1", 100, ledgerdomain.ReasonSignupGrant, "signup:u1", nil)
	require.NoError(t, err)

	w := f.do(t, http.MethodPost, "/api/ai/chat", f.token(t, "u1"), map[string]any{"prompt": "hello"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decodeBody(t, w)
	result := body["result"].(map[string]any)
	assert.Equal(t, "ok:ai_chat", result["output"])
	credits := body["credits"].(map[string]any)
	assert.Equal(t, float64(99), credits["balance"])

	balance, err := f.ledger.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(99), balance)
}

func TestMeteredEndpointInsufficientCredits(t *testing.T) {
	f := setupServer(t)
	ctx := context.Background()

	_, err := f.ledger.AddCredits(ctx, "u1", 3, ledgerdomain.ReasonSignupGrant, "signup:u1", nil)
	require.NoError(t, err)

	// ai_generate costs 10
	w := f.do(t, http.MethodPost, "/api/ai/generate", f.token(t, "u1"), map[string]any{"prompt": "x"})
	require.Equal(t, http.StatusPaymentRequired, w.Code, w.Body.String())

	body := decodeBody(t, w)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "insufficient_credits", errObj["type"])
	credits := body["credits"].(map[string]any)
	assert.Equal(t, float64(3), credits["balance"])
	assert.Equal(t, float64(10), credits["required"])

	// nothing was spent
	balance, err := f.ledger.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), balance)
}

func TestMeteredEndpointPremiumGate(t *testing.T) {
	f := setupServer(t)
	ctx := context.Background()

	_, err := f.ledger.AddCredits(ctx, "u1", 100, ledgerdomain.ReasonSignupGrant, "signup:u1", nil)
	require.NoError(t, err)

	w := f.do(t, http.MethodPost, "/api/ai/merge", f.token(t, "u1"), map[string]any{"prompt": "x"})
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())

	body := decodeBody(t, w)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "upgrade_required", errObj["type"])
}

func TestMeteredEndpointProviderFailureSpendsNothing(t *testing.T) {
	f := setupServer(t)
	ctx := context.Background()

	_, err := f.ledger.AddCredits(ctx, "u1", 100, ledgerdomain.ReasonSignupGrant, "signup:u1", nil)
	require.NoError(t, err)
	f.provider.err = ai.ErrUnavailable

	w := f.do(t, http.MethodPost, "/api/ai/chat", f.token(t, "u1"), map[string]any{"prompt": "x"})
	require.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())

	balance, err := f.ledger.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestMeteredEndpointRequiresAuth(t *testing.T) {
	f := setupServer(t)

	w := f.do(t, http.MethodPost, "/api/ai/chat", "", map[string]any{"prompt": "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/api/ai/chat", "garbage-token", map[string]any{"prompt": "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookInvalidSignature(t *testing.T) {
	f := setupServer(t)
	f.client.verifyErr = paymentdomain.ErrInvalidSignature

	w := f.do(t, http.MethodPost, "/api/billing/webhook", "", map[string]any{"id": "evt_1"})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	body := decodeBody(t, w)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "invalid_signature", errObj["type"])
}

func TestWebhookAcknowledged(t *testing.T) {
	f := setupServer(t)
	f.client.event = &paymentdomain.Event{
		ID:      "evt_1",
		Type:    paymentdomain.EventUnknown,
		RawType: "customer.created",
	}

	w := f.do(t, http.MethodPost, "/api/billing/webhook", "", map[string]any{"id": "evt_1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decodeBody(t, w)
	assert.Equal(t, true, body["received"])
}

func TestStartCheckoutValidation(t *testing.T) {
	f := setupServer(t)

	w := f.do(t, http.MethodPost, "/api/billing/checkout", f.token(t, "u1"), map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/billing/checkout", f.token(t, "u1"), map[string]any{"price_id": "price_bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartCheckoutReturnsSessionURL(t *testing.T) {
	f := setupServer(t)

	w := f.do(t, http.MethodPost, "/api/billing/checkout", f.token(t, "u1"), map[string]any{"price_id": "price_pro_m"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decodeBody(t, w)
	assert.Equal(t, "https://pay.example/cs_test", body["url"])
	require.Len(t, f.client.sessions, 1)
	assert.Equal(t, paymentdomain.CheckoutModeSubscription, f.client.sessions[0].Mode)
	assert.Equal(t, "u1", f.client.sessions[0].UserID)
}

func TestPortalRequiresBillingAccount(t *testing.T) {
	f := setupServer(t)

	w := f.do(t, http.MethodPost, "/api/billing/portal", f.token(t, "u1"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetCredits(t *testing.T) {
	f := setupServer(t)
	ctx := context.Background()

	_, err := f.ledger.AddCredits(ctx, "u1", 50, ledgerdomain.ReasonSignupGrant, "signup:u1", nil)
	require.NoError(t, err)
	_, err = f.ledger.DeductCredits(ctx, "u1", 1, "ai_chat", "", nil)
	require.NoError(t, err)

	w := f.do(t, http.MethodGet, "/api/billing/credits", f.token(t, "u1"), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decodeBody(t, w)
	assert.Equal(t, float64(49), body["balance"])
	history := body["history"].([]any)
	require.Len(t, history, 2)
	costs := body["credit_costs"].(map[string]any)
	assert.Equal(t, float64(1), costs["ai_chat"])
}

func TestGetCatalog(t *testing.T) {
	f := setupServer(t)
	f.client.prices = []paymentdomain.Price{
		{ID: "price_pro_m", Currency: "usd", UnitAmount: 900, Interval: "month", Active: true},
		{ID: "price_pack_s", Currency: "usd", UnitAmount: 500, Active: true},
		{ID: "price_prem_m", Currency: "usd", UnitAmount: 1900, Interval: "month", Active: false},
	}

	w := f.do(t, http.MethodGet, "/api/billing/catalog", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decodeBody(t, w)
	subs := body["subscriptions"].([]any)
	require.Len(t, subs, 1)
	plan := subs[0].(map[string]any)
	assert.Equal(t, "price_pro_m", plan["price_id"])
	assert.Equal(t, "pro", plan["tier"])

	packs := body["credit_packs"].([]any)
	require.Len(t, packs, 1)
	pack := packs[0].(map[string]any)
	assert.Equal(t, "price_pack_s", pack["price_id"])
}

func TestGetCatalogProviderFailure(t *testing.T) {
	f := setupServer(t)
	f.client.pricesErr = paymentdomain.ErrProvider

	w := f.do(t, http.MethodGet, "/api/billing/catalog", "", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code, w.Body.String())

	body := decodeBody(t, w)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "provider_error", errObj["type"])
}

func TestStartCheckoutForwardsLocale(t *testing.T) {
	f := setupServer(t)

	w := f.do(t, http.MethodPost, "/api/billing/checkout", f.token(t, "u1"), map[string]any{
		"price_id": "price_pro_m",
		"locale":   " de ",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Len(t, f.client.sessions, 1)
	assert.Equal(t, "de", f.client.sessions[0].Locale)
}

func TestGetCatalogUnconfigured(t *testing.T) {
	f := setupServer(t)
	f.srv.catalog = catalog.New(config.Config{}, config.NewStaticPricingHolder(config.DefaultPricingConfig()))

	w := f.do(t, http.MethodGet, "/api/billing/catalog", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetSubscriptionImplicitFree(t *testing.T) {
	f := setupServer(t)

	w := f.do(t, http.MethodGet, "/api/account/subscription", f.token(t, "u1"), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decodeBody(t, w)
	sub := body["subscription"].(map[string]any)
	assert.Equal(t, "free", sub["tier"])
	limits := body["limits"].(map[string]any)
	assert.Equal(t, float64(3), limits["max_saved_maps"])
}

func TestHealthEndpoint(t *testing.T) {
	f := setupServer(t)

	w := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
