// Package ai abstracts the model backend used by metered operations.
package ai

import (
	"context"
	"errors"
)

// Request is a single model invocation.
type Request struct {
	Operation string            `json:"operation"`
	Prompt    string            `json:"prompt"`
	UserID    string            `json:"user_id"`
	Options   map[string]string `json:"options,omitempty"`
}

// Response carries the model output.
type Response struct {
	Output string `json:"output"`
	Model  string `json:"model,omitempty"`
}

type Provider interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}

var ErrUnavailable = errors.New("ai_provider_unavailable")

// NoOpProvider echoes a canned response. It backs environments without a
// configured model backend.
type NoOpProvider struct{}

func (p *NoOpProvider) Invoke(ctx context.Context, req Request) (*Response, error) {
	return &Response{Output: "", Model: "noop"}, nil
}
