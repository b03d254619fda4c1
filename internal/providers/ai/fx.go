package ai

import (
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/pathlight-ai/pathlight/internal/config"
)

var Module = fx.Module("providers.ai",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	if cfg.AIProvider.BaseURL == "" {
		log.Warn("ai provider base url not configured, using noop provider")
		return &NoOpProvider{}
	}
	return NewHTTP(Config{
		BaseURL:   cfg.AIProvider.BaseURL,
		AuthToken: cfg.AIProvider.AuthToken,
		Timeout:   time.Duration(cfg.AIProvider.TimeoutMS) * time.Millisecond,
	}, log)
}
