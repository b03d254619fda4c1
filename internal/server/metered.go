package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pathlight-ai/pathlight/internal/providers/ai"
)

type meteredRequest struct {
	Prompt         string            `json:"prompt"`
	Options        map[string]string `json:"options"`
	IdempotencyKey string            `json:"idempotency_key"`
}

// Metered wraps a paid operation: entitlement gate, balance check, provider
// call, then the deduction. A provider failure before the deduction costs
// nothing; a deducted operation is never refunded automatically.
func (s *Server) Metered(operation string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("operation", operation)

		var req meteredRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				AbortWithError(c, invalidRequestError())
				return
			}
		}

		userID := c.GetString(ctxKeyUserID)
		ctx := c.Request.Context()

		cost, ok := s.pricing.Get().CreditCosts[operation]
		if !ok {
			s.log.Error("operation has no credit cost", zap.String("operation", operation))
			AbortWithError(c, ErrInternal)
			return
		}

		if err := s.subscriptionSvc.Entitled(ctx, userID, operation); err != nil {
			AbortWithError(c, err)
			return
		}

		enough, err := s.ledgerSvc.HasEnoughCredits(ctx, userID, int64(cost))
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !enough {
			s.obsMetrics.RecordInsufficientCredits(ctx, operation)
			balance, _ := s.ledgerSvc.GetBalance(ctx, userID)
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
				"error": errorPayload{
					Type:    "insufficient_credits",
					Message: "insufficient credits",
				},
				"credits": gin.H{
					"balance":  balance,
					"required": cost,
				},
			})
			return
		}

		resp, err := s.aiProvider.Invoke(ctx, ai.Request{
			Operation: operation,
			Prompt:    req.Prompt,
			UserID:    userID,
			Options:   req.Options,
		})
		if err != nil {
			AbortWithError(c, err)
			return
		}

		metadata := map[string]any{}
		if resp.Model != "" {
			metadata["model"] = resp.Model
		}
		balance, err := s.ledgerSvc.DeductCredits(ctx, userID, int64(cost), operation, req.IdempotencyKey, metadata)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"result": gin.H{
				"output": resp.Output,
				"model":  resp.Model,
			},
			"credits": gin.H{
				"balance": balance,
			},
		})
	}
}
