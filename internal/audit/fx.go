package audit

import (
	"go.uber.org/fx"

	"github.com/pathlight-ai/pathlight/internal/audit/repository"
	"github.com/pathlight-ai/pathlight/internal/audit/service"
)

var Module = fx.Module("audit",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
