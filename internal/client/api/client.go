// Package api implements the HTTP transport against the electoral office
// server: the per-collection CRUD and delta-sync endpoints, Django-style
// CSRF handling through a cookie jar, and the reachability probe used by the
// connectivity watcher.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"github.com/electoral-office/fieldsync/internal/common"
	"github.com/electoral-office/fieldsync/internal/logging"
)

const (
	csrfCookieName = "csrftoken"
	csrfHeaderName = "X-CSRFToken"

	// LastSyncHeader carries the download watermark; the server may use it
	// to return only newer items, or ignore it and return the full set.
	LastSyncHeader = "X-Last-Sync"
)

type Client struct {
	baseURL     *url.URL
	http        *http.Client
	accessToken string
	log         logging.Logger
}

// New builds a client for the server at baseURL (e.g. "https://office.example").
// A cookie jar holds the Django session and csrftoken cookies across calls.
func New(baseURL string, log logging.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", baseURL, err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL: u,
		http:    &http.Client{Jar: jar},
		log:     log.With("component", "api"),
	}, nil
}

func (c *Client) endpoint(parts ...string) string {
	u := *c.baseURL
	u.Path, _ = url.JoinPath(u.Path, append([]string{"api"}, parts...)...)
	if u.Path[len(u.Path)-1] != '/' {
		u.Path += "/"
	}
	return u.String()
}

// Ping probes server reachability. Any HTTP response, success or not, means
// the server is reachable; only a transport failure reports offline.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrOffline, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// FetchSince retrieves the collection's delta endpoint. A non-empty since
// value is passed as the X-Last-Sync header.
func (c *Client) FetchSince(ctx context.Context, collection, since string) ([]map[string]any, error) {
	return c.fetchList(ctx, collection, c.endpoint(collection, "sync"), since)
}

// FetchAll retrieves the collection's plain list endpoint: the full server
// set, no watermark filtering.
func (c *Client) FetchAll(ctx context.Context, collection string) ([]map[string]any, error) {
	return c.fetchList(ctx, collection, c.endpoint(collection), "")
}

func (c *Client) fetchList(ctx context.Context, collection, endpoint, since string) ([]map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if since != "" {
		req.Header.Set(LastSyncHeader, since)
	}
	c.decorate(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: GET %s -> %s", common.ErrServer, req.URL.Path, resp.Status)
	}

	var items []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("%w: decoding %s response: %v", common.ErrTransport, collection, err)
	}
	return items, nil
}

// Create POSTs a new record to the collection endpoint.
func (c *Client) Create(ctx context.Context, collection string, data map[string]any) error {
	return c.mutate(ctx, http.MethodPost, c.endpoint(collection), data)
}

// Update PUTs the full record state to the record endpoint.
func (c *Client) Update(ctx context.Context, collection string, id int64, data map[string]any) error {
	return c.mutate(ctx, http.MethodPut, c.endpoint(collection, fmt.Sprint(id)), data)
}

// Delete removes the record on the server.
func (c *Client) Delete(ctx context.Context, collection string, id int64) error {
	return c.mutate(ctx, http.MethodDelete, c.endpoint(collection, fmt.Sprint(id)), nil)
}

// Login establishes a server session: a GET first so the server sets the
// csrftoken cookie, then the credential POST carrying it back.
func (c *Client) Login(ctx context.Context, username, password string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("auth", "login"), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	return c.mutate(ctx, http.MethodPost, c.endpoint("auth", "login"),
		map[string]any{"username": username, "password": password})
}

func (c *Client) mutate(ctx context.Context, method, endpoint string, body any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.csrfToken(); token != "" {
		req.Header.Set(csrfHeaderName, token)
	}
	c.decorate(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s %s -> %s", common.ErrServer, method, req.URL.Path, resp.Status)
	}
	return nil
}

func (c *Client) csrfToken() string {
	for _, cookie := range c.http.Jar.Cookies(c.baseURL) {
		if cookie.Name == csrfCookieName {
			return cookie.Value
		}
	}
	return ""
}

func (c *Client) decorate(req *http.Request) {
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
}
