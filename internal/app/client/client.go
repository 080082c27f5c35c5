// Package client is a Go client for the CollabHub admin API, used by
// collabctl. It authenticates with an admin API key and maps error
// responses back onto the apperr kinds, so callers can use errors.Is the
// same way the server does.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/collabhub/internal/app/system/apperr"
	"github.com/dalemusser/collabhub/internal/app/system/cascade"
	"github.com/dalemusser/collabhub/internal/app/system/lifecycle"
	"github.com/dalemusser/collabhub/internal/app/system/workers"
)

// Client talks to one CollabHub server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Config holds client configuration.
type Config struct {
	URL        string // server root, e.g. https://hub.example.com
	APIKey     string // "<adminID>.<secret>"
	HTTPClient *http.Client
}

// New creates a client. URL and APIKey are required.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("APIKey is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}, nil
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Unwrap maps the response code onto the matching apperr kind.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "validation":
		return apperr.ErrValidation
	case "unauthenticated":
		return apperr.ErrUnauthenticated
	case "permission":
		return apperr.ErrPermission
	case "not_found":
		return apperr.ErrNotFound
	case "conflict":
		return apperr.ErrConflict
	case "partial_cascade":
		return apperr.ErrPartialCascade
	case "downstream_unavailable":
		return apperr.ErrDownstreamUnavailable
	}
	return nil
}

// PartialError is returned with the receipt when a delete answered 207.
type PartialError struct {
	Message string
	Receipt *cascade.Receipt
}

func (e *PartialError) Error() string { return e.Message }

func (e *PartialError) Unwrap() error { return apperr.ErrPartialCascade }

/*─────────────────────────────────────────────────────────────────────────────*
| Transitions                                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

// Entities that accept approve and reject.
const (
	Projects     = "projects"
	Events       = "events"
	Completions  = "completions"
	Applications = "applications"
)

// Approve approves the entity of the given kind.
func (c *Client) Approve(ctx context.Context, kind, id string) (*lifecycle.Outcome, error) {
	var out lifecycle.Outcome
	if err := c.do(ctx, http.MethodPost, "/api/admin/"+kind+"/"+id+"/approve", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reject rejects the entity of the given kind with a reason.
func (c *Client) Reject(ctx context.Context, kind, id, reason string) (*lifecycle.Outcome, error) {
	var out lifecycle.Outcome
	body := map[string]string{"reason": reason}
	if err := c.do(ctx, http.MethodPost, "/api/admin/"+kind+"/"+id+"/reject", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EndResult is the response to EndCompany.
type EndResult struct {
	CompanyID            string `json:"company_id"`
	Ended                bool   `json:"ended"`
	NotificationsWritten int    `json:"notifications_written"`
	NotificationsFailed  int    `json:"notifications_failed"`
}

func (c *Client) EndCompany(ctx context.Context, id string) (*EndResult, error) {
	var out EndResult
	if err := c.do(ctx, http.MethodPost, "/api/admin/companies/"+id+"/end", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reconcile runs a counter reconciliation pass on the server.
func (c *Client) Reconcile(ctx context.Context) (*workers.Report, error) {
	var out workers.Report
	if err := c.do(ctx, http.MethodPost, "/api/admin/reconcile", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| Deletes                                                                     |
*─────────────────────────────────────────────────────────────────────────────*/

var rootPaths = map[cascade.Root]string{
	cascade.RootProject: "projects",
	cascade.RootEvent:   "events",
	cascade.RootGroup:   "groups",
	cascade.RootCompany: "companies",
	cascade.RootPost:    "posts",
}

// Delete cascades a delete from root. phrase must be the root's
// confirmation phrase (cascade.Phrase). When some dependents could not be
// deleted the receipt is returned together with a *PartialError.
func (c *Client) Delete(ctx context.Context, root cascade.Root, id, phrase string) (*cascade.Receipt, error) {
	seg, ok := rootPaths[root]
	if !ok {
		return nil, fmt.Errorf("%w: unknown root %q", apperr.ErrValidation, root)
	}
	body := cascade.Confirmation{Confirm: true, Phrase: phrase}

	resp, err := c.send(ctx, http.MethodDelete, "/api/admin/"+seg+"/"+id, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusMultiStatus {
		var partial struct {
			Error   string           `json:"error"`
			Receipt *cascade.Receipt `json:"receipt"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&partial); err != nil {
			return nil, fmt.Errorf("decode partial receipt: %w", err)
		}
		return partial.Receipt, &PartialError{Message: partial.Error, Receipt: partial.Receipt}
	}
	var rec cascade.Receipt
	if err := decodeResponse(resp, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| Plumbing                                                                    |
*─────────────────────────────────────────────────────────────────────────────*/

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrDownstreamUnavailable, err)
	}
	return resp, nil
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body apperr.Body
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &body) != nil || body.Error == "" {
			body.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{Status: resp.StatusCode, Code: body.Code, Message: body.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
