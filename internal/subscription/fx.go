package subscription

import (
	"go.uber.org/fx"

	"github.com/pathlight-ai/pathlight/internal/subscription/repository"
	"github.com/pathlight-ai/pathlight/internal/subscription/service"
)

var Module = fx.Module("subscription",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
