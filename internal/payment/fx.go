package payment

import (
	"go.uber.org/fx"

	"github.com/pathlight-ai/pathlight/internal/payment/checkout"
	"github.com/pathlight-ai/pathlight/internal/payment/stripe"
	"github.com/pathlight-ai/pathlight/internal/payment/webhook"
)

var Module = fx.Module("payment",
	fx.Provide(stripe.NewClient),
	fx.Provide(webhook.NewService),
	fx.Provide(checkout.NewService),
)
