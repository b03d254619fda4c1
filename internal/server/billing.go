package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	ledgerdomain "github.com/pathlight-ai/pathlight/internal/ledger/domain"
)

// HandleBillingWebhook ingests the payment provider's event stream. A 2xx
// acknowledges the event; anything else makes the provider retry, so only
// signature failures and malformed payloads short-circuit.
func (s *Server) HandleBillingWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if err := s.webhookSvc.HandleWebhook(c.Request.Context(), payload, signature); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (s *Server) StartCheckout(c *gin.Context) {
	var req struct {
		PriceID string `json:"price_id"`
		Locale  string `json:"locale"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.PriceID = strings.TrimSpace(req.PriceID)
	if req.PriceID == "" {
		AbortWithError(c, newValidationError("price_id", "required", "price_id is required"))
		return
	}

	userID := c.GetString(ctxKeyUserID)
	email := c.GetString(ctxKeyEmail)

	result, err := s.checkoutSvc.Start(c.Request.Context(), userID, email, req.PriceID, strings.TrimSpace(req.Locale))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if result.Upgraded {
		c.JSON(http.StatusOK, gin.H{"upgraded": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": result.URL})
}

func (s *Server) CreatePortalSession(c *gin.Context) {
	var req struct {
		Locale string `json:"locale"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	userID := c.GetString(ctxKeyUserID)

	url, err := s.checkoutSvc.PortalURL(c.Request.Context(), userID, strings.TrimSpace(req.Locale))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (s *Server) GetCredits(c *gin.Context) {
	userID := c.GetString(ctxKeyUserID)
	ctx := c.Request.Context()

	limit := 50
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
			return
		}
		limit = parsed
	}

	balance, err := s.ledgerSvc.GetBalance(ctx, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	entries, err := s.ledgerSvc.ListEntries(ctx, userID, limit, 0)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"balance":      balance,
		"history":      renderLedgerEntries(entries),
		"credit_costs": s.pricing.Get().CreditCosts,
	})
}

// GetCatalog resolves the configured price ids against the provider so
// amounts and currency are never hardcoded.
func (s *Server) GetCatalog(c *gin.Context) {
	if s.catalog.Empty() {
		s.log.Error("catalog requested but no price ids are configured")
		AbortWithError(c, ErrInternal)
		return
	}

	priceIDs := append(s.catalog.PlanPriceIDs(), s.catalog.PackPriceIDs()...)
	prices, err := s.paymentClient.ListPrices(c.Request.Context(), priceIDs)
	if err != nil {
		s.log.Error("catalog price lookup failed", zap.Error(err))
		AbortWithError(c, err)
		return
	}

	subscriptions := make([]gin.H, 0, len(prices))
	creditPacks := make([]gin.H, 0, len(prices))
	for _, price := range prices {
		if !price.Active {
			continue
		}
		if plan, err := s.catalog.PlanByPriceID(price.ID); err == nil {
			subscriptions = append(subscriptions, gin.H{
				"price_id":    price.ID,
				"tier":        plan.Tier,
				"interval":    plan.Interval,
				"unit_amount": price.UnitAmount,
				"currency":    price.Currency,
				"credits":     s.catalog.Allotment(plan.Tier),
			})
			continue
		}
		if pack, err := s.catalog.PackByPriceID(price.ID); err == nil {
			creditPacks = append(creditPacks, gin.H{
				"price_id":    price.ID,
				"key":         pack.Key,
				"credits":     pack.Credits,
				"unit_amount": price.UnitAmount,
				"currency":    price.Currency,
			})
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"subscriptions": subscriptions,
		"credit_packs":  creditPacks,
	})
}

func renderLedgerEntries(entries []ledgerdomain.LedgerEntry) []gin.H {
	out := make([]gin.H, 0, len(entries))
	for _, entry := range entries {
		item := gin.H{
			"id":         entry.ID.String(),
			"delta":      entry.Delta,
			"reason":     entry.Reason,
			"created_at": entry.CreatedAt,
		}
		if entry.Operation != "" {
			item["operation"] = entry.Operation
		}
		out = append(out, item)
	}
	return out
}
