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
	"fmt"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultScopes are the OAuth scopes the admin endpoints require.
var DefaultScopes = []string{"account:read", "account:write", "data:read", "data:write"}

// TokenSource supplies bearer tokens for vendor API requests.
//
// The client calls Token before every request, so implementations must
// be safe for concurrent use and should cache until expiry rather than
// round-trip to the authentication service each time.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource returns a TokenSource serving a fixed,
// pre-acquired token. The token is never refreshed.
func StaticTokenSource(token string) TokenSource {
	return staticTokenSource(token)
}

type staticTokenSource string

func (s staticTokenSource) Token(_ context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty static token", ErrAuthentication)
	}
	return string(s), nil
}

// ClientCredentialsTokenSource implements the two-legged OAuth flow
// against the vendor's authentication service.
//
// # Description
//
// Exchanges an app's client id and secret for a short-lived access
// token via the client_credentials grant, caching the token until it
// expires. This is the headless flow: no user interaction, suitable
// for CI and scripted bulk runs.
//
// # Thread Safety
//
// Safe for concurrent use. Concurrent callers that find the cache
// expired serialize on a single refresh rather than stampeding the
// token endpoint.
type ClientCredentialsTokenSource struct {
	cfg clientcredentials.Config

	mu     sync.Mutex
	cached *oauth2.Token
}

// NewClientCredentialsTokenSource builds a token source for the given
// app credentials.
//
// # Inputs
//
//   - clientID: The APS application's client id.
//   - clientSecret: The matching client secret.
//   - baseURL: Vendor API base; empty means DefaultBaseURL.
//   - scopes: OAuth scopes to request; empty means DefaultScopes.
func NewClientCredentialsTokenSource(clientID, clientSecret, baseURL string, scopes []string) *ClientCredentialsTokenSource {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	return &ClientCredentialsTokenSource{
		cfg: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     baseURL + "/authentication/v2/token",
			Scopes:       scopes,
			// The vendor's token endpoint wants the credentials in a
			// basic auth header, not the form body.
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// Token returns the cached access token while it remains valid,
// fetching a fresh one through the client-credentials grant otherwise.
func (s *ClientCredentialsTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached.Valid() {
		return s.cached.AccessToken, nil
	}

	tok, err := s.cfg.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	s.cached = tok
	return tok.AccessToken, nil
}
