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
	"net/http"
)

// ListProjects fetches every project in the account, following
// pagination automatically.
//
// Description:
//
//	Pages through the account projects listing at the maximum page
//	size until the reported total is reached. Accounts with thousands
//	of projects mean several round trips; the caller's context bounds
//	the whole walk.
//
// Outputs:
//
//	[]Project - All projects in the account, in API order.
//	error - The classified request error of the failing page, if any.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var all []Project
	offset := 0

	for {
		pg, err := c.listProjectsPage(ctx, maxPageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, pg.Results...)

		if !pg.hasMore() {
			return all, nil
		}
		next := pg.nextOffset()
		if next <= offset {
			// A stalling offset would loop forever on a misbehaving
			// server.
			return nil, fmt.Errorf("pagination did not advance past offset %d", offset)
		}
		offset = next
	}
}

func (c *Client) listProjectsPage(ctx context.Context, limit, offset int) (page[Project], error) {
	var pg page[Project]
	url := fmt.Sprintf("%s/projects?limit=%d&offset=%d", c.accountAdminURL(), limit, offset)
	if err := c.doJSON(ctx, "list_projects", http.MethodGet, url, nil, &pg); err != nil {
		return page[Project]{}, err
	}
	return pg, nil
}
