/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pagebuilder/internal/autosave"
	"pagebuilder/internal/domain"
)

// Client is a minimal HTTP client for the page API.
type Client struct {
	BaseURL string
	Token   string // bearer token
	client  *http.Client
}

// NewClient creates a new backend client. baseURL may include a trailing slash; it will be normalized.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return err
	}
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, u.Path, ErrNotFound)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%s %s: %w", method, u.Path, ErrConflict)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
		if e.Error != "" {
			return fmt.Errorf("server %s %s: %s: %s", method, u.Path, resp.Status, e.Error)
		}
		return fmt.Errorf("server %s %s: %s", method, u.Path, resp.Status)
	}
	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

// Ping checks the server liveness endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// IssueToken requests a bearer token for subject.
func (c *Client) IssueToken(ctx context.Context, subject string, ttl time.Duration) (string, time.Time, error) {
	var out struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expires_at"`
	}
	in := map[string]any{"subject": subject, "ttl_seconds": int64(ttl / time.Second)}
	if err := c.do(ctx, http.MethodPost, "/api/auth/token", in, &out); err != nil {
		return "", time.Time{}, err
	}
	exp, _ := time.Parse(time.RFC3339, out.ExpiresAt)
	return out.Token, exp, nil
}

// ListPages returns stored pages, optionally filtered by a name/id substring.
func (c *Client) ListPages(ctx context.Context, query string) ([]PageMeta, error) {
	p := "/api/pages"
	if query != "" {
		p += "?q=" + url.QueryEscape(query)
	}
	var list []PageMeta
	if err := c.do(ctx, http.MethodGet, p, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// GetPage fetches a page and decodes its content.
func (c *Client) GetPage(ctx context.Context, id string) (PageMeta, []*domain.Node, error) {
	var env pageEnvelope
	if err := c.do(ctx, http.MethodGet, "/api/pages/"+url.PathEscape(id), nil, &env); err != nil {
		return PageMeta{}, nil, err
	}
	roots, err := domain.UnmarshalRoots(env.Content)
	if err != nil {
		return env.PageMeta, nil, fmt.Errorf("decode page %s: %w", id, err)
	}
	return env.PageMeta, roots, nil
}

// SaveContent uploads roots. A non-zero baseVersion fails with ErrConflict when the server moved on.
func (c *Client) SaveContent(ctx context.Context, id string, roots []*domain.Node, baseVersion int64) (PageMeta, error) {
	content, err := domain.MarshalRoots(roots)
	if err != nil {
		return PageMeta{}, err
	}
	var meta PageMeta
	body := saveBody{BaseVersion: baseVersion, Content: content}
	if err := c.do(ctx, http.MethodPut, "/api/pages/"+url.PathEscape(id)+"/content", body, &meta); err != nil {
		return PageMeta{}, err
	}
	return meta, nil
}

// Saver adapts the client to the autosave contract for one page (last writer wins).
func (c *Client) Saver(pageID string) autosave.Saver {
	return autosave.SaveFunc(func(ctx context.Context, doc *domain.Document) error {
		_, err := c.SaveContent(ctx, pageID, doc.Roots, 0)
		return err
	})
}
