// ABOUTME: Authenticated HTTP client for the run monitor backend.
// ABOUTME: Fetches run state, stage trees, and reports, and opens live event streams.

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/2389-research/watchtower/runstate"
	"github.com/2389-research/watchtower/treeviz"
)

const defaultRequestTimeout = 30 * time.Second

// Client talks to the run monitor backend. Every request carries a Bearer
// token when one is set.
type Client struct {
	BaseURL string
	Token   string

	HTTPClient *http.Client
	Logf       func(format string, args ...any)

	// streamClient has no overall timeout so event streams can stay open.
	streamClient *http.Client
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithToken sets the Bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.Token = token }
}

// WithHTTPClient replaces the HTTP client used for non-streaming calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithLogf replaces the client's log function.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(c *Client) { c.Logf = logf }
}

// NewClient creates a Client for the backend at baseURL with the given
// options applied.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		HTTPClient:   &http.Client{Timeout: defaultRequestTimeout},
		Logf:         log.Printf,
		streamClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchRunState fetches the authoritative state snapshot for a run.
func (c *Client) FetchRunState(ctx context.Context, runID string) (*runstate.RunState, error) {
	var state runstate.RunState
	path := fmt.Sprintf("/api/runs/%s/state", url.PathEscape(runID))
	if err := c.getJSON(ctx, path, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// FetchStageTree fetches the current tree snapshot for one stage of a run.
// A 404 means the stage has not produced a tree yet and surfaces as a
// *NotFoundError.
func (c *Client) FetchStageTree(ctx context.Context, runID, stageID string) (*treeviz.StageTree, error) {
	var tree treeviz.StageTree
	path := fmt.Sprintf("/api/runs/%s/stages/%s/tree", url.PathEscape(runID), url.PathEscape(stageID))
	if err := c.getJSON(ctx, path, &tree); err != nil {
		return nil, err
	}
	return &tree, nil
}

// FetchReport fetches the generated report markdown for a run.
func (c *Client) FetchReport(ctx context.Context, runID string) (string, error) {
	path := fmt.Sprintf("/api/runs/%s/report", url.PathEscape(runID))
	resp, err := c.get(ctx, c.HTTPClient, path, "text/markdown")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &NetworkError{APIError: APIError{
			Message:   "reading report body",
			Retryable: true,
			Cause:     err,
		}}
	}
	if resp.StatusCode != http.StatusOK {
		return "", c.errorFromResponse(resp, body)
	}
	return string(body), nil
}

// OpenEventStream opens the live event stream for a run and returns the
// response body. The caller owns the body: closing it, or cancelling ctx,
// ends the stream.
func (c *Client) OpenEventStream(ctx context.Context, runID string) (io.ReadCloser, error) {
	path := fmt.Sprintf("/api/runs/%s/events", url.PathEscape(runID))
	req, err := c.newRequest(ctx, path, "text/event-stream")
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &NetworkError{APIError: APIError{
			Message:   "GET " + path,
			Retryable: true,
			Cause:     err,
		}}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, c.errorFromResponse(resp, body)
	}

	c.Logf("api: event stream open run=%s", runID)
	return resp.Body, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.get(ctx, c.HTTPClient, path, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{APIError: APIError{
			Message:   "reading response body",
			Retryable: true,
			Cause:     err,
		}}
	}
	if resp.StatusCode != http.StatusOK {
		return c.errorFromResponse(resp, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, hc *http.Client, path, accept string) (*http.Response, error) {
	req, err := c.newRequest(ctx, path, accept)
	if err != nil {
		return nil, err
	}
	resp, err := hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &NetworkError{APIError: APIError{
			Message:   "GET " + path,
			Retryable: true,
			Cause:     err,
		}}
	}
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, path, accept string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", accept)
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return req, nil
}

// errorFromResponse builds a typed error from a non-200 response. The
// server's JSON error body supplies the message detail when present.
func (c *Client) errorFromResponse(resp *http.Response, body []byte) error {
	message := resp.Status
	if resp.Request != nil {
		message = fmt.Sprintf("GET %s: %s", resp.Request.URL.Path, resp.Status)
	}

	var payload struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Error != "":
			message = fmt.Sprintf("%s: %s", message, payload.Error)
		case payload.Detail != "":
			message = fmt.Sprintf("%s: %s", message, payload.Detail)
		}
	}

	var retryAfter *float64
	if v := resp.Header.Get("Retry-After"); v != "" {
		if seconds, err := strconv.ParseFloat(v, 64); err == nil {
			retryAfter = &seconds
		}
	}

	return ErrorFromStatusCode(resp.StatusCode, message, body, retryAfter)
}
