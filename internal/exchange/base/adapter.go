// Package base provides scaffolding shared by every exchange adapter: an
// HTTP client, a pluggable signing hook, and a pluggable error parser,
// ported from the teacher's internal/exchange/base/adapter.go. The HMAC
// signing scheme itself (§6) is implemented per-adapter since it is
// venue-specific; base only supplies the hook points.
package base

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"bitget-marketmaker/internal/config"
	"bitget-marketmaker/internal/core"
)

// SignRequestFunc signs an outgoing request in place.
type SignRequestFunc func(req *http.Request, body []byte) error

// ParseErrorFunc classifies a non-2xx response body into a typed error.
type ParseErrorFunc func(body []byte) error

// Adapter provides common functionality for all exchange adapters.
type Adapter struct {
	Name       string
	Config     config.ExchangeConfig
	Logger     core.ILogger
	HTTPClient *http.Client

	SignRequest SignRequestFunc
	ParseError  ParseErrorFunc
}

// NewAdapter builds an Adapter with the teacher's HTTP client defaults: a
// 10s timeout (§5 "Per-request timeout") and a reused keep-alive pool.
func NewAdapter(name string, cfg config.ExchangeConfig, logger core.ILogger) *Adapter {
	return &Adapter{
		Name:   name,
		Config: cfg,
		Logger: logger.WithField("exchange", name),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// ExecuteRequest issues an HTTP request with the configured sign/parse
// hooks applied.
func (a *Adapter) ExecuteRequest(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if a.SignRequest != nil {
		if err := a.SignRequest(req, body); err != nil {
			return nil, fmt.Errorf("failed to sign request: %w", err)
		}
	}

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if a.ParseError != nil {
			if parseErr := a.ParseError(respBody); parseErr != nil {
				return nil, parseErr
			}
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// BaseURL returns the configured base URL or the given default.
func (a *Adapter) BaseURL(def string) string {
	if a.Config.BaseURL != "" {
		return a.Config.BaseURL
	}
	return def
}
