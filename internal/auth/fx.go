package auth

import (
	"go.uber.org/fx"

	"github.com/pathlight-ai/pathlight/internal/config"
)

var Module = fx.Module("auth",
	fx.Provide(func(cfg config.Config) *Verifier {
		return NewVerifier(cfg.AuthJWTSecret)
	}),
)
