package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Config holds the HTTP backend settings.
type Config struct {
	BaseURL   string
	AuthToken string
	Timeout   time.Duration
}

// HTTPProvider calls a JSON inference endpoint.
type HTTPProvider struct {
	cfg    Config
	client *http.Client
	log    *zap.Logger
}

func NewHTTP(cfg Config, log *zap.Logger) *HTTPProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		log:    log.Named("providers.ai"),
	}
}

func (p *HTTPProvider) Invoke(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/v1/invoke", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.AuthToken)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.log.Warn("ai backend unreachable", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		p.log.Warn("ai backend error",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", payload),
		)
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode ai response: %w", err)
	}
	return &out, nil
}
