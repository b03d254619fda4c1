package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetSubscription(c *gin.Context) {
	userID := c.GetString(ctxKeyUserID)
	ctx := c.Request.Context()

	sub, err := s.subscriptionSvc.GetForUser(ctx, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	limits, err := s.subscriptionSvc.Limits(ctx, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	payload := gin.H{
		"tier":                 sub.EffectiveTier(),
		"status":               sub.Status,
		"cancel_at_period_end": sub.CancelAtPeriodEnd,
	}
	if sub.CurrentPeriodEnd != nil {
		payload["current_period_end"] = sub.CurrentPeriodEnd
	}

	c.JSON(http.StatusOK, gin.H{
		"subscription": payload,
		"limits":       limits,
	})
}
