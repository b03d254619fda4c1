package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pathlight-ai/pathlight/internal/observability/obscontext"
)

const (
	ctxKeyUserID = "user_id"
	ctxKeyEmail  = "email"
)

// AuthRequired authenticates the request from a bearer token and records the
// caller identity for handlers, audit and request logs.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		claims, err := s.verifier.Parse(token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(ctxKeyUserID, claims.UserID)
		c.Set(ctxKeyEmail, claims.Email)

		ctx := obscontext.WithUserID(c.Request.Context(), claims.UserID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// MeteredRateLimit throttles paid operations per user. The limiter fails
// open, so an unreachable redis never blocks traffic.
func (s *Server) MeteredRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(ctxKeyUserID)
		if userID == "" {
			c.Next()
			return
		}

		endpoint := c.FullPath()
		res := s.limiter.Allow(c.Request.Context(), userID)
		if res.Allowed {
			s.obsMetrics.RecordRateLimitAllowed(c.Request.Context(), endpoint)
			c.Next()
			return
		}

		s.obsMetrics.RecordRateLimitDenied(c.Request.Context(), endpoint, "token_bucket")
		if res.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())+1))
		}
		c.AbortWithStatusJSON(429, errorResponse{Error: errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}})
	}
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
