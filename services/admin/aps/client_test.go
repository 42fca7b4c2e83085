// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package aps

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/gantry/services/admin/bulk"
)

// newTestClient builds a client against the given handler with pacing
// effectively disabled.
func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(ClientConfig{
		BaseURL:           srv.URL,
		AccountID:         "b.acc-1234",
		TokenSource:       StaticTokenSource("test-token"),
		RequestsPerSecond: 1000,
		Burst:             100,
		Timeout:           5 * time.Second,
	})
	require.NoError(t, err)
	return client
}

func requireBearer(t *testing.T, r *http.Request) {
	t.Helper()
	require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
}

func TestNewClient_Validation(t *testing.T) {
	t.Run("missing account id", func(t *testing.T) {
		_, err := NewClient(ClientConfig{TokenSource: StaticTokenSource("x")})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("missing token source", func(t *testing.T) {
		_, err := NewClient(ClientConfig{AccountID: "acc-1"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("negative pacing", func(t *testing.T) {
		_, err := NewClient(ClientConfig{
			AccountID:         "acc-1",
			TokenSource:       StaticTokenSource("x"),
			RequestsPerSecond: -1,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("defaults applied", func(t *testing.T) {
		client, err := NewClient(ClientConfig{
			AccountID:   "acc-1",
			TokenSource: StaticTokenSource("x"),
		})
		require.NoError(t, err)
		assert.Equal(t, DefaultBaseURL, client.BaseURL())
		assert.Equal(t, "acc-1", client.AccountID())
	})

	t.Run("trailing slash trimmed", func(t *testing.T) {
		client, err := NewClient(ClientConfig{
			BaseURL:     "https://example.com/",
			AccountID:   "acc-1",
			TokenSource: StaticTokenSource("x"),
		})
		require.NoError(t, err)
		assert.Equal(t, "https://example.com", client.BaseURL())
	})
}

func TestDefaultClientConfig(t *testing.T) {
	cfg := DefaultClientConfig()
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, float64(10), cfg.RequestsPerSecond)
	assert.Equal(t, 5, cfg.Burst)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.NotNil(t, cfg.Logger)
}

func TestDoJSON_RateLimited(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	err := client.doJSON(context.Background(), "test", http.MethodGet, client.BaseURL()+"/x", nil, nil)
	require.Error(t, err)

	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, 7*time.Second, rle.RetryAfter)
	assert.True(t, rle.Retryable())

	hint, ok := rle.RetryAfterHint()
	assert.True(t, ok)
	assert.Equal(t, 7*time.Second, hint)

	// The bulk retry loop must see this as transient.
	assert.True(t, bulk.IsRetryableError(err))
}

func TestDoJSON_APIError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
	}{
		{name: "service unavailable", status: http.StatusServiceUnavailable, body: "upstream down", retryable: true},
		{name: "internal error", status: http.StatusInternalServerError, body: "", retryable: true},
		{name: "forbidden", status: http.StatusForbidden, body: "missing scope", retryable: false},
		{name: "conflict", status: http.StatusConflict, body: "already exists", retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))

			err := client.doJSON(context.Background(), "test", http.MethodGet, client.BaseURL()+"/x", nil, nil)
			require.Error(t, err)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.body, apiErr.Message)
			assert.Equal(t, tt.retryable, apiErr.Retryable())
			assert.Equal(t, tt.retryable, bulk.IsRetryableError(err))
		})
	}
}

func TestDoJSON_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client, err := NewClient(ClientConfig{
		BaseURL:           url,
		AccountID:         "acc-1",
		TokenSource:       StaticTokenSource("test-token"),
		RequestsPerSecond: 1000,
		Burst:             100,
	})
	require.NoError(t, err)

	reqErr := client.doJSON(context.Background(), "test", http.MethodGet, url+"/x", nil, nil)
	require.Error(t, reqErr)
	assert.True(t, bulk.IsRetryableError(reqErr), "network failures are transient")
}

func TestDoJSON_ContextCancelled(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := client.doJSON(ctx, "test", http.MethodGet, client.BaseURL()+"/x", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, bulk.IsRetryableError(err), "a cancelled call must not be retried")
}

func TestDoJSON_TokenFailure(t *testing.T) {
	var served atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served.Add(1)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(ClientConfig{
		BaseURL:           srv.URL,
		AccountID:         "acc-1",
		TokenSource:       StaticTokenSource(""),
		RequestsPerSecond: 1000,
		Burst:             100,
	})
	require.NoError(t, err)

	reqErr := client.doJSON(context.Background(), "test", http.MethodGet, srv.URL+"/x", nil, nil)
	require.Error(t, reqErr)
	assert.ErrorIs(t, reqErr, ErrAuthentication)
	assert.Equal(t, int64(0), served.Load(), "no request without a token")
}

func TestClient_Pacing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	t.Cleanup(srv.Close)

	client, err := NewClient(ClientConfig{
		BaseURL:           srv.URL,
		AccountID:         "acc-1",
		TokenSource:       StaticTokenSource("test-token"),
		RequestsPerSecond: 50,
		Burst:             1,
	})
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, client.doJSON(context.Background(), "test", http.MethodGet, srv.URL+"/x", nil, nil))
	}

	// Burst 1 at 50 rps spaces the 2nd and 3rd request 20ms apart.
	// Only the lower bound is asserted; scheduling jitter can stretch
	// the upper side.
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "empty", value: "", want: 0},
		{name: "seconds", value: "7", want: 7 * time.Second},
		{name: "zero seconds", value: "0", want: 0},
		{name: "negative clamped", value: "-3", want: 0},
		{name: "garbage", value: "soon", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseRetryAfter(tt.value); got != tt.want {
				t.Fatalf("parseRetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}

	t.Run("http date", func(t *testing.T) {
		v := time.Now().Add(90 * time.Second).UTC().Format(http.TimeFormat)
		got := parseRetryAfter(v)
		assert.Greater(t, got, 80*time.Second)
		assert.LessOrEqual(t, got, 90*time.Second)
	})

	t.Run("past http date", func(t *testing.T) {
		v := time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat)
		assert.Equal(t, time.Duration(0), parseRetryAfter(v))
	})
}

func TestBIMPrefixHelpers(t *testing.T) {
	assert.Equal(t, "123-456", trimBIMPrefix("b.123-456"))
	assert.Equal(t, "123-456", trimBIMPrefix("123-456"))
	assert.Equal(t, "b.123-456", addBIMPrefix("123-456"))
	assert.Equal(t, "b.123-456", addBIMPrefix("b.123-456"))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(&APIError{Status: 404}))
	assert.False(t, IsNotFound(&APIError{Status: 500}))
	assert.False(t, IsNotFound(errors.New("plain")))
	assert.False(t, IsNotFound(nil))
}
