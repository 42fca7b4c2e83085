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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticTokenSource(t *testing.T) {
	src := StaticTokenSource("fixed-token")
	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fixed-token", tok)

	empty := StaticTokenSource("")
	_, err = empty.Token(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestClientCredentialsTokenSource(t *testing.T) {
	var tokenRequests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenRequests.Add(1)
		require.Equal(t, "/authentication/v2/token", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		user, pass, ok := r.BasicAuth()
		require.True(t, ok, "credentials travel in the basic auth header")
		require.Equal(t, "client-id", user)
		require.Equal(t, "client-secret", pass)

		require.NoError(t, r.ParseForm())
		require.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		require.Contains(t, r.PostForm.Get("scope"), "account:read")

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-1",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(srv.Close)

	src := NewClientCredentialsTokenSource("client-id", "client-secret", srv.URL, nil)

	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	// The second call must serve from cache, not the token endpoint.
	tok, err = src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, int64(1), tokenRequests.Load())
}

func TestClientCredentialsTokenSource_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
	}))
	t.Cleanup(srv.Close)

	src := NewClientCredentialsTokenSource("bad", "creds", srv.URL, nil)
	_, err := src.Token(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestDefaultScopes(t *testing.T) {
	assert.Contains(t, DefaultScopes, "account:read")
	assert.Contains(t, DefaultScopes, "account:write")
	assert.Contains(t, DefaultScopes, "data:read")
	assert.Contains(t, DefaultScopes, "data:write")
}
