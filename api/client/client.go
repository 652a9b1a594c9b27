// Package client calls a running truthstore API server. The CLI commands use
// it; every request carries the owner scope header.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/papercomputeco/truthstore/api"
	"github.com/papercomputeco/truthstore/pkg/ledger"
	"github.com/papercomputeco/truthstore/pkg/merge"
	"github.com/papercomputeco/truthstore/pkg/reducer"
	"github.com/papercomputeco/truthstore/pkg/schema"
	"github.com/papercomputeco/truthstore/pkg/utils"
)

// Error is a non-2xx response from the API.
type Error struct {
	StatusCode int
	Message    string

	// MergedInto is set when the requested key was merged away.
	MergedInto string
}

func (e *Error) Error() string {
	if e.MergedInto != "" {
		return fmt.Sprintf("API request failed (HTTP %d): %s (merged into %s)", e.StatusCode, e.Message, e.MergedInto)
	}
	return fmt.Sprintf("API request failed (HTTP %d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to one API server on behalf of one owner scope.
type Client struct {
	base  *url.URL
	owner string
	http  *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// New creates a client for the server at target, a full URL such as
// "http://localhost:8081".
func New(target, owner string, opts ...Option) (*Client, error) {
	base, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid API target URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid API target URL %q: scheme and host are required", target)
	}

	c := &Client{
		base:  base,
		owner: owner,
		http:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) SubmitObservation(ctx context.Context, req *api.ObservationRequest) (*api.ObservationResponse, error) {
	out := &api.ObservationResponse{}
	if err := c.do(ctx, http.MethodPost, "/v1/observations", nil, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RequestCorrection(ctx context.Context, req *api.CorrectionRequest) (*api.ObservationResponse, error) {
	out := &api.ObservationResponse{}
	if err := c.do(ctx, http.MethodPost, "/v1/corrections", nil, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetSnapshot(ctx context.Context, key string, includeDeleted bool) (*reducer.Snapshot, error) {
	q := url.Values{}
	if includeDeleted {
		q.Set("include_deleted", "true")
	}

	out := &reducer.Snapshot{}
	if err := c.do(ctx, http.MethodGet, snapshotPath(key), q, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListSnapshots(ctx context.Context, entityType string, limit int) (*api.SnapshotListResponse, error) {
	q := url.Values{}
	if entityType != "" {
		q.Set("entity_type", entityType)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	out := &api.SnapshotListResponse{}
	if err := c.do(ctx, http.MethodGet, "/v1/snapshots", q, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetProvenance(ctx context.Context, key, field string) (*ledger.Provenance, error) {
	out := &ledger.Provenance{}
	if err := c.do(ctx, http.MethodGet, snapshotPath(key)+"/provenance/"+url.PathEscape(field), nil, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) History(ctx context.Context, key string) (*api.HistoryResponse, error) {
	out := &api.HistoryResponse{}
	if err := c.do(ctx, http.MethodGet, snapshotPath(key)+"/history", nil, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SoftDelete(ctx context.Context, key string) (*api.ObservationResponse, error) {
	out := &api.ObservationResponse{}
	if err := c.do(ctx, http.MethodDelete, snapshotPath(key), nil, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Restore(ctx context.Context, key string) (*api.ObservationResponse, error) {
	out := &api.ObservationResponse{}
	if err := c.do(ctx, http.MethodPost, snapshotPath(key)+"/restore", nil, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Merge(ctx context.Context, req *api.MergeRequest) (*merge.Record, error) {
	out := &merge.Record{}
	if err := c.do(ctx, http.MethodPost, "/v1/merges", nil, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RegisterSchema(ctx context.Context, req *api.SchemaRequest) (*schema.Definition, error) {
	out := &schema.Definition{}
	if err := c.do(ctx, http.MethodPost, "/v1/schemas", nil, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListSchemas(ctx context.Context, typ string) (*api.SchemaListResponse, error) {
	out := &api.SchemaListResponse{}
	if err := c.do(ctx, http.MethodGet, "/v1/schemas/"+url.PathEscape(typ), nil, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ActivateSchema(ctx context.Context, typ, version string) (*schema.Activation, error) {
	out := &schema.Activation{}
	path := "/v1/schemas/" + url.PathEscape(typ) + "/" + url.PathEscape(version) + "/activate"
	if err := c.do(ctx, http.MethodPost, path, nil, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeactivateSchema(ctx context.Context, typ, version string) error {
	path := "/v1/schemas/" + url.PathEscape(typ) + "/" + url.PathEscape(version) + "/deactivate"
	return c.do(ctx, http.MethodPost, path, nil, nil, nil)
}

// Version reports the build of the server.
func (c *Client) Version(ctx context.Context) (*utils.BuildInfo, error) {
	out := &utils.BuildInfo{}
	if err := c.do(ctx, http.MethodGet, "/version", nil, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

func snapshotPath(key string) string {
	return "/v1/snapshots/" + url.PathEscape(key)
}

// do sends body as JSON and decodes a successful response into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *c.base
	unescaped, err := url.PathUnescape(path)
	if err != nil {
		return fmt.Errorf("invalid request path %q: %w", path, err)
	}
	u.Path = unescaped
	u.RawPath = path
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.owner != "" {
		req.Header.Set(api.OwnerHeader, c.owner)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to truthstore API at %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(data))}
		var errResp api.ErrorResponse
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			apiErr.Message = errResp.Error
			apiErr.MergedInto = errResp.MergedInto
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
