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
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListProjects_SinglePage(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r)
		require.Equal(t, "/construction/admin/v1/accounts/acc-1234/projects", r.URL.Path)
		require.Equal(t, "200", r.URL.Query().Get("limit"))

		_ = json.NewEncoder(w).Encode(page[Project]{
			Results: []Project{
				{ID: "p-1", Name: "Harbor Tower", Status: "active", Platform: "acc"},
				{ID: "p-2", Name: "Depot Refit", Status: "archived", Platform: "bim360"},
			},
			Pagination: pageInfo{Limit: 200, Offset: 0, TotalResults: 2},
		})
	}))

	projects, err := client.ListProjects(context.Background())
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, "Harbor Tower", projects[0].Name)
	assert.Equal(t, "bim360", projects[1].Platform)
}

func TestListProjects_FollowsPagination(t *testing.T) {
	// The server serves 2-project pages regardless of the requested
	// limit; the client must follow the envelope, not its own request.
	all := []Project{
		{ID: "p-1", Name: "One"},
		{ID: "p-2", Name: "Two"},
		{ID: "p-3", Name: "Three"},
		{ID: "p-4", Name: "Four"},
		{ID: "p-5", Name: "Five"},
	}
	const serverPage = 2

	var requests atomic.Int64
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		end := offset + serverPage
		if end > len(all) {
			end = len(all)
		}
		_ = json.NewEncoder(w).Encode(page[Project]{
			Results:    all[offset:end],
			Pagination: pageInfo{Limit: serverPage, Offset: offset, TotalResults: len(all)},
		})
	}))

	projects, err := client.ListProjects(context.Background())
	require.NoError(t, err)
	require.Len(t, projects, 5)
	for i, p := range projects {
		assert.Equal(t, all[i].ID, p.ID, "order must be preserved across pages")
	}
	assert.Equal(t, int64(3), requests.Load())
}

func TestListProjects_Empty(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(page[Project]{
			Pagination: pageInfo{Limit: 200, Offset: 0, TotalResults: 0},
		})
	}))

	projects, err := client.ListProjects(context.Background())
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestListProjects_StalledPagination(t *testing.T) {
	// A server that claims more results but never advances the offset
	// must not hang the walk.
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(page[Project]{
			Results:    []Project{{ID: "p-1", Name: "One"}},
			Pagination: pageInfo{Limit: 0, Offset: 0, TotalResults: 10},
		})
	}))

	_, err := client.ListProjects(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pagination did not advance")
}

func TestListProjects_PageError(t *testing.T) {
	var requests atomic.Int64
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(page[Project]{
			Results:    []Project{{ID: "p-1", Name: "One"}},
			Pagination: pageInfo{Limit: 1, Offset: 0, TotalResults: 3},
		})
	}))

	_, err := client.ListProjects(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
}

func TestPageEnvelope(t *testing.T) {
	p := page[string]{
		Results:    []string{"a", "b"},
		Pagination: pageInfo{Limit: 2, Offset: 0, TotalResults: 10},
	}
	assert.True(t, p.hasMore())
	assert.Equal(t, 2, p.nextOffset())

	last := page[string]{
		Results:    []string{"i"},
		Pagination: pageInfo{Limit: 2, Offset: 8, TotalResults: 9},
	}
	assert.False(t, last.hasMore())
}
