// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package aps is a typed client for the slice of the Autodesk Platform
// Services admin surface the bulk operations drive.
//
// Features:
//   - Two-legged OAuth token injection on every request
//   - Client-side request pacing with a token-bucket rate limiter
//   - Status-code classification into retryable and terminal errors
//   - Automatic pagination of account-level listings
//   - OpenTelemetry tracing and metrics integration
package aps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("gantry.admin.aps")

// DefaultBaseURL is the production vendor API root.
const DefaultBaseURL = "https://developer.api.autodesk.com"

// -----------------------------------------------------------------------------
// Metrics
// -----------------------------------------------------------------------------

var (
	apsMetricsOnce  sync.Once
	requestCount    metric.Int64Counter
	requestDuration metric.Float64Histogram
)

func initAPSMetrics() {
	apsMetricsOnce.Do(func() {
		meter := otel.Meter("gantry.admin.aps")
		var err error
		requestCount, err = meter.Int64Counter(
			"gantry.aps.requests",
			metric.WithDescription("Vendor API requests, by operation and outcome"),
		)
		if err != nil {
			slog.Warn("failed to create aps request counter", "error", err)
		}
		requestDuration, err = meter.Float64Histogram(
			"gantry.aps.request_duration_seconds",
			metric.WithDescription("Wall-clock duration of vendor API round trips"),
			metric.WithUnit("s"),
		)
		if err != nil {
			slog.Warn("failed to create aps request_duration histogram", "error", err)
		}
	})
}

func recordRequest(ctx context.Context, op, outcome string, elapsed time.Duration) {
	initAPSMetrics()
	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	)
	if requestCount != nil {
		requestCount.Add(ctx, 1, attrs)
	}
	if requestDuration != nil {
		requestDuration.Record(ctx, elapsed.Seconds(), attrs)
	}
}

// -----------------------------------------------------------------------------
// Client Configuration
// -----------------------------------------------------------------------------

// ClientConfig configures the vendor API client.
type ClientConfig struct {
	// BaseURL is the vendor API root.
	// Default: DefaultBaseURL
	BaseURL string

	// AccountID identifies the account all admin calls operate on.
	// Accepted with or without the legacy "b." prefix. Required.
	AccountID string

	// TokenSource supplies bearer tokens. Required.
	TokenSource TokenSource

	// RequestsPerSecond paces outgoing requests below the vendor's
	// rate ceiling. Pacing happens before each request, independent of
	// the per-item retry loop above the client.
	// Default: 10
	RequestsPerSecond float64

	// Burst is the short-run burst the pacer tolerates.
	// Default: 5
	Burst int

	// Timeout bounds a single HTTP round trip.
	// Default: 30s
	Timeout time.Duration

	// HTTPClient overrides the transport. Timeout is ignored when set.
	// Default: a dedicated *http.Client
	HTTPClient *http.Client

	// Logger for request-level diagnostics.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults for production use.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:           DefaultBaseURL,
		RequestsPerSecond: 10,
		Burst:             5,
		Timeout:           30 * time.Second,
		Logger:            slog.Default(),
	}
}

// Validate checks if the configuration is valid.
func (c *ClientConfig) Validate() error {
	if c.AccountID == "" {
		return fmt.Errorf("%w: account id must not be empty", ErrInvalidConfig)
	}
	if c.TokenSource == nil {
		return fmt.Errorf("%w: token source must not be nil", ErrInvalidConfig)
	}
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("%w: requests per second must be positive, got %v", ErrInvalidConfig, c.RequestsPerSecond)
	}
	if c.Burst < 1 {
		return fmt.Errorf("%w: burst must be at least 1, got %d", ErrInvalidConfig, c.Burst)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %v", ErrInvalidConfig, c.Timeout)
	}
	return nil
}

// applyDefaults fills in zero values with defaults.
func (c *ClientConfig) applyDefaults() {
	defaults := DefaultClientConfig()
	if c.BaseURL == "" {
		c.BaseURL = defaults.BaseURL
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if c.Burst == 0 {
		c.Burst = defaults.Burst
	}
	if c.Timeout == 0 {
		c.Timeout = defaults.Timeout
	}
	if c.Logger == nil {
		c.Logger = defaults.Logger
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
}

// -----------------------------------------------------------------------------
// Client
// -----------------------------------------------------------------------------

// Client calls the vendor admin endpoints with token injection,
// request pacing, and uniform error classification.
//
// Thread Safety: Safe for concurrent use from multiple goroutines; the
// bulk executor shares one Client across all workers.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewClient creates a vendor API client.
//
// Inputs:
//
//	cfg - Client configuration. AccountID and TokenSource are required.
//
// Outputs:
//
//	*Client - Ready-to-use client.
//	error - ErrInvalidConfig (wrapped) when cfg fails validation.
func NewClient(cfg ClientConfig) (*Client, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		log:     cfg.Logger.With(slog.String("component", "aps_client")),
	}, nil
}

// BaseURL returns the configured vendor API root.
func (c *Client) BaseURL() string { return c.cfg.BaseURL }

// AccountID returns the configured account id as given.
func (c *Client) AccountID() string { return c.cfg.AccountID }

// -----------------------------------------------------------------------------
// URL Construction
// -----------------------------------------------------------------------------

// The account admin endpoints reject "b."-prefixed ids while the Data
// Management endpoints require the prefix, so every URL builder
// normalizes its ids one way or the other.

func (c *Client) accountAdminURL() string {
	return fmt.Sprintf("%s/construction/admin/v1/accounts/%s", c.cfg.BaseURL, trimBIMPrefix(c.cfg.AccountID))
}

func (c *Client) projectAdminURL(projectID string) string {
	return fmt.Sprintf("%s/construction/admin/v1/projects/%s", c.cfg.BaseURL, trimBIMPrefix(projectID))
}

func (c *Client) dataProjectURL(projectID string) string {
	return fmt.Sprintf("%s/data/v1/projects/%s", c.cfg.BaseURL, addBIMPrefix(projectID))
}

// trimBIMPrefix strips the legacy "b." resource prefix.
func trimBIMPrefix(id string) string {
	return strings.TrimPrefix(id, "b.")
}

// addBIMPrefix ensures the legacy "b." resource prefix.
func addBIMPrefix(id string) string {
	if strings.HasPrefix(id, "b.") {
		return id
	}
	return "b." + id
}

// -----------------------------------------------------------------------------
// Request Execution
// -----------------------------------------------------------------------------

// maxErrorBody bounds how much of an error response body is kept for
// the error message.
const maxErrorBody = 2048

// doJSON performs one paced, authenticated round trip.
//
// Description:
//
//	Waits for rate-limiter clearance, injects a bearer token, sends
//	body (when non-nil) as JSON, and decodes a 2xx response into out
//	(when non-nil). Non-2xx responses become classified errors: 429
//	maps to RateLimitError with the parsed Retry-After, every other
//	failure status to APIError. Network failures map to a retryable
//	transport error unless the context was cancelled, in which case
//	the context error is returned as-is.
//
// Inputs:
//
//	ctx - Context for cancellation; bounds pacing wait and round trip.
//	op - Short operation label for spans and metrics.
//	method - HTTP method.
//	url - Fully composed request URL.
//	body - Request payload marshaled to JSON, or nil.
//	out - Response target decoded from JSON, or nil to discard.
func (c *Client) doJSON(ctx context.Context, op, method, url string, body, out any) error {
	ctx, span := tracer.Start(ctx, "aps."+op,
		trace.WithAttributes(attribute.String("http.method", method)))
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	token, err := c.cfg.TokenSource.Token(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "authentication")
		return err
	}

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		recordRequest(ctx, op, "transport_error", time.Since(start))
		return &transportError{err: err}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	recordRequest(ctx, op, statusClass(resp.StatusCode), time.Since(start))

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		_, _ = io.Copy(io.Discard, resp.Body)
		span.SetStatus(codes.Error, "rate limited")
		c.log.Debug("vendor rate limit hit", "operation", op, "retry_after", retryAfter)
		return &RateLimitError{RetryAfter: retryAfter}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := readErrorBody(resp.Body)
		span.SetStatus(codes.Error, "api error")
		c.log.Debug("vendor request failed", "operation", op, "status", resp.StatusCode)
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readErrorBody(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

// parseRetryAfter handles both header forms: delta-seconds and an
// HTTP date.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code <= 299:
		return "2xx"
	case code == http.StatusTooManyRequests:
		return "429"
	case code >= 400 && code <= 499:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "other"
	}
}
