// Package stripe implements the payment client against the Stripe API.
package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/price"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"

	"github.com/pathlight-ai/pathlight/internal/config"
	paymentdomain "github.com/pathlight-ai/pathlight/internal/payment/domain"
)

type Client struct {
	webhookSecret string
	log           *zap.Logger
}

func NewClient(cfg config.Config, log *zap.Logger) paymentdomain.Client {
	stripe.Key = cfg.Stripe.SecretKey
	return &Client{
		webhookSecret: cfg.Stripe.WebhookSecret,
		log:           log.Named("payment.stripe"),
	}
}

func (c *Client) CreateCustomer(ctx context.Context, email, userID string) (string, error) {
	params := &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
		Email:  stripe.String(email),
	}
	params.AddMetadata("user_id", userID)

	cust, err := customer.New(params)
	if err != nil {
		return "", providerErr("create customer", err)
	}
	return cust.ID, nil
}

func (c *Client) CreateCheckoutSession(ctx context.Context, p paymentdomain.CheckoutParams) (*paymentdomain.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Params:   stripe.Params{Context: ctx},
		Customer: stripe.String(p.CustomerID),
		Mode:     stripe.String(string(p.Mode)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(p.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		AllowPromotionCodes: stripe.Bool(true),
		SuccessURL:          stripe.String(p.SuccessURL),
		CancelURL:           stripe.String(p.CancelURL),
	}
	params.AddMetadata("user_id", p.UserID)
	params.AddMetadata("price_id", p.PriceID)

	if p.Locale != "" {
		params.Locale = stripe.String(p.Locale)
	}

	if p.Mode == paymentdomain.CheckoutModeSubscription {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				"user_id": p.UserID,
			},
		}
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		return nil, providerErr("create checkout session", err)
	}
	return &paymentdomain.CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (c *Client) CreatePortalSession(ctx context.Context, customerID, returnURL, locale string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Params:    stripe.Params{Context: ctx},
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	if locale != "" {
		params.Locale = stripe.String(locale)
	}
	sess, err := portalsession.New(params)
	if err != nil {
		return "", providerErr("create portal session", err)
	}
	return sess.URL, nil
}

func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*paymentdomain.ProviderSubscription, error) {
	sub, err := subscription.Get(subscriptionID, &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, providerErr("get subscription", err)
	}
	return normalizeSubscription(sub), nil
}

func (c *Client) UpdateSubscriptionPrice(ctx context.Context, subscriptionID, priceID string) error {
	sub, err := subscription.Get(subscriptionID, &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return providerErr("get subscription", err)
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return providerErr("update subscription", fmt.Errorf("subscription %s has no items", subscriptionID))
	}

	_, err = subscription.Update(subscriptionID, &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(sub.Items.Data[0].ID),
				Price: stripe.String(priceID),
			},
		},
		ProrationBehavior: stripe.String("create_prorations"),
	})
	if err != nil {
		return providerErr("update subscription", err)
	}
	return nil
}

func (c *Client) ListPrices(ctx context.Context, priceIDs []string) ([]paymentdomain.Price, error) {
	prices := make([]paymentdomain.Price, 0, len(priceIDs))
	for _, id := range priceIDs {
		p, err := price.Get(id, &stripe.PriceParams{
			Params: stripe.Params{Context: ctx},
		})
		if err != nil {
			return nil, providerErr("get price", err)
		}

		normalized := paymentdomain.Price{
			ID:         p.ID,
			Currency:   string(p.Currency),
			UnitAmount: p.UnitAmount,
			Active:     p.Active,
		}
		if p.Recurring != nil {
			normalized.Interval = string(p.Recurring.Interval)
		}
		prices = append(prices, normalized)
	}
	return prices, nil
}

func (c *Client) VerifyWebhook(payload []byte, signature string) (*paymentdomain.Event, error) {
	if strings.TrimSpace(c.webhookSecret) == "" {
		return nil, paymentdomain.ErrMissingWebhookSecret
	}

	event, err := webhook.ConstructEvent(payload, signature, c.webhookSecret)
	if err != nil {
		return nil, paymentdomain.ErrInvalidSignature
	}

	return c.normalizeEvent(event)
}

func (c *Client) normalizeEvent(event stripe.Event) (*paymentdomain.Event, error) {
	normalized := &paymentdomain.Event{
		ID:      event.ID,
		RawType: string(event.Type),
	}

	switch paymentdomain.EventType(event.Type) {
	case paymentdomain.EventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("unmarshal checkout session: %w", err)
		}
		normalized.Type = paymentdomain.EventCheckoutCompleted
		normalized.Checkout = &paymentdomain.CheckoutData{
			SessionID: sess.ID,
			Mode:      paymentdomain.CheckoutMode(sess.Mode),
			Metadata:  sess.Metadata,
		}
		if sess.Customer != nil {
			normalized.Checkout.CustomerID = sess.Customer.ID
		}

	case paymentdomain.EventSubscriptionCreated,
		paymentdomain.EventSubscriptionUpdated,
		paymentdomain.EventSubscriptionDeleted,
		paymentdomain.EventSubscriptionPaused,
		paymentdomain.EventSubscriptionResumed:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("unmarshal subscription: %w", err)
		}
		normalized.Type = paymentdomain.EventType(event.Type)
		normalized.Subscription = subscriptionData(&sub)

	case paymentdomain.EventInvoicePaid, paymentdomain.EventInvoicePaymentFailed:
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return nil, fmt.Errorf("unmarshal invoice: %w", err)
		}
		normalized.Type = paymentdomain.EventType(event.Type)
		normalized.Invoice = &paymentdomain.InvoiceData{
			InvoiceID:      invoice.ID,
			SubscriptionID: subscriptionIDFromInvoice(&invoice),
			BillingReason:  string(invoice.BillingReason),
		}
		if invoice.Customer != nil {
			normalized.Invoice.CustomerID = invoice.Customer.ID
		}

	default:
		normalized.Type = paymentdomain.EventUnknown
	}

	return normalized, nil
}

func normalizeSubscription(sub *stripe.Subscription) *paymentdomain.ProviderSubscription {
	data := subscriptionData(sub)
	normalized := &paymentdomain.ProviderSubscription{
		ID:                 data.SubscriptionID,
		CustomerID:         data.CustomerID,
		PriceID:            data.PriceID,
		Status:             data.Status,
		CancelAtPeriodEnd:  data.CancelAtPeriodEnd,
		CurrentPeriodStart: data.CurrentPeriodStart,
		CurrentPeriodEnd:   data.CurrentPeriodEnd,
		Metadata:           data.Metadata,
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		normalized.ItemID = sub.Items.Data[0].ID
	}
	return normalized
}

func subscriptionData(sub *stripe.Subscription) *paymentdomain.SubscriptionData {
	data := &paymentdomain.SubscriptionData{
		SubscriptionID:    sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		data.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			data.PriceID = item.Price.ID
		}
		data.CurrentPeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
		data.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
	}
	return data
}

func subscriptionIDFromInvoice(invoice *stripe.Invoice) string {
	if invoice.Parent != nil &&
		invoice.Parent.SubscriptionDetails != nil &&
		invoice.Parent.SubscriptionDetails.Subscription != nil {
		return invoice.Parent.SubscriptionDetails.Subscription.ID
	}
	return ""
}

func providerErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", paymentdomain.ErrProvider, op, err)
}
