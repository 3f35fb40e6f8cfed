// Package webapi talks to a remote entity store over its JSON web API and
// serves the same API over any store.Client. The wire lives under /data/v1.
package webapi

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

	"github.com/google/uuid"

	"github.com/edc/edc/internal/platform/auth"
	"github.com/edc/edc/internal/platform/store"
)

// TokenFunc supplies the bearer token for an outgoing call. An empty token
// sends no Authorization header.
type TokenFunc func(ctx context.Context) (string, error)

// StaticToken always returns tok.
func StaticToken(tok string) TokenFunc {
	return func(context.Context) (string, error) { return tok, nil }
}

// ForwardedToken reuses the caller's bearer token from the request context.
func ForwardedToken(ctx context.Context) (string, error) {
	return auth.BearerTokenFromContext(ctx), nil
}

// Client implements store.Client against a remote web API.
type Client struct {
	base  *url.URL
	http  *http.Client
	token TokenFunc
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sets the token source.
func WithToken(fn TokenFunc) Option {
	return func(c *Client) { c.token = fn }
}

// New builds a client for the store at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, store.ErrConfigurationMissing
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse store url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("store url must be http or https, got %q", u.Scheme)
	}
	c := &Client{
		base:  u,
		http:  &http.Client{Timeout: 30 * time.Second},
		token: ForwardedToken,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type queryRequest struct {
	Columns []string     `json:"columns,omitempty"`
	Filters []wireFilter `json:"filters,omitempty"`
}

type wireFilter struct {
	Column string `json:"column"`
	Value  any    `json:"value"`
}

type queryResponse struct {
	Records []map[string]any `json:"records"`
}

type writeRequest struct {
	Fields map[string]any `json:"fields"`
}

type createResponse struct {
	ID uuid.UUID `json:"id"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func (c *Client) Query(ctx context.Context, kind store.Kind, columns []string, filters ...store.Filter) ([]store.Record, error) {
	body := queryRequest{Columns: columns}
	for _, f := range filters {
		body.Filters = append(body.Filters, wireFilter{Column: f.Column, Value: store.EncodeValue(f.Value)})
	}
	var resp queryResponse
	if err := c.do(ctx, "query", kind, http.MethodPost, c.path(kind, "query"), nil, body, &resp); err != nil {
		return nil, err
	}
	out := make([]store.Record, 0, len(resp.Records))
	for _, raw := range resp.Records {
		rec, err := store.DecodeRecord(raw)
		if err != nil {
			return nil, store.Remote("query", kind, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (c *Client) Get(ctx context.Context, kind store.Kind, id uuid.UUID, columns []string) (store.Record, error) {
	q := url.Values{}
	if len(columns) > 0 {
		q.Set("columns", strings.Join(columns, ","))
	}
	var raw map[string]any
	if err := c.do(ctx, "get", kind, http.MethodGet, c.path(kind, id.String()), q, nil, &raw); err != nil {
		return nil, err
	}
	rec, err := store.DecodeRecord(raw)
	if err != nil {
		return nil, store.Remote("get", kind, err)
	}
	return rec, nil
}

func (c *Client) Create(ctx context.Context, kind store.Kind, fields store.Fields) (uuid.UUID, error) {
	var resp createResponse
	if err := c.do(ctx, "create", kind, http.MethodPost, c.path(kind), nil, writeRequest{Fields: store.EncodeFields(fields)}, &resp); err != nil {
		return uuid.Nil, err
	}
	if resp.ID == uuid.Nil {
		return uuid.Nil, store.Remote("create", kind, fmt.Errorf("store returned no identifier"))
	}
	return resp.ID, nil
}

func (c *Client) Update(ctx context.Context, kind store.Kind, id uuid.UUID, fields store.Fields) error {
	return c.do(ctx, "update", kind, http.MethodPatch, c.path(kind, id.String()), nil, writeRequest{Fields: store.EncodeFields(fields)}, nil)
}

func (c *Client) Delete(ctx context.Context, kind store.Kind, id uuid.UUID) error {
	return c.do(ctx, "delete", kind, http.MethodDelete, c.path(kind, id.String()), nil, nil, nil)
}

// Ping lists trial ids. The remote API has no row limit, so this reads one
// column of every trial.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Query(ctx, store.KindTrial, []string{store.KindTrial.IDColumn()})
	return err
}

func (c *Client) path(kind store.Kind, rest ...string) string {
	parts := append([]string{strings.TrimRight(c.base.Path, "/"), "data", "v1", url.PathEscape(string(kind))}, rest...)
	return strings.Join(parts, "/")
}

func (c *Client) do(ctx context.Context, op string, kind store.Kind, method, path string, query url.Values, in, out any) error {
	u := *c.base
	u.Path = path
	u.RawQuery = query.Encode()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return store.Remote(op, kind, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return store.Remote(op, kind, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		tok, err := c.token(ctx)
		if err != nil {
			return store.Remote(op, kind, fmt.Errorf("acquire token: %w", err))
		}
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return store.Remote(op, kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e errorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Message != "" {
			msg = e.Message
		}
		if resp.StatusCode == http.StatusNotFound && recordMissing(op, msg) {
			return fmt.Errorf("%s %s: %w", op, kind, store.ErrNotFound)
		}
		return &store.RemoteError{Op: op, Kind: kind, Status: resp.StatusCode, Err: fmt.Errorf("%s", msg)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return store.Remote(op, kind, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// recordMissing tells a missing record apart from a missing route or kind.
// The handler reports the former with the store's not-found text.
func recordMissing(op, msg string) bool {
	switch op {
	case "get", "update", "delete":
		return strings.Contains(msg, store.ErrNotFound.Error())
	}
	return false
}
