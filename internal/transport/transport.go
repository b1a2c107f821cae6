// Package transport implements authenticated HTTP request/response against
// the backend, with retry-on-transient-status and a current_time injection
// obligation — grounded on the Stainless-generated service shape observed in
// the teacher's sibling SDK package (packages/sdk/go/session.go: context-first
// signatures, functional per-call options) while the executor itself is
// original plumbing built from net/http.Client plus cenkalti/backoff, the
// same retry library the teacher uses for its own LLM-call retry loop
// (internal/session/loop.go's newRetryBackoff).
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lucidicai/lucidic-go/internal/logging"
	"github.com/lucidicai/lucidic-go/internal/sdkerrors"
)

// Client is the shared HTTP executor. One Client is constructed per SDK
// instance and handed to the session manager and the queue's dispatch
// workers; it owns the pooled http.Transport.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	userAgent  string
	maxRetries int
	backoffFactor float64
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithUserAgent overrides the default user-agent string.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

const defaultUserAgent = "lucidic-sdk/go"

// New builds a Client with a pooled *http.Transport sized to maxConns.
func New(baseURL, apiKey string, timeout time.Duration, maxConns, maxRetries int, backoffFactor float64, opts ...Option) *Client {
	transport := &http.Transport{
		MaxIdleConns:        maxConns,
		MaxIdleConnsPerHost: maxConns,
		MaxConnsPerHost:     maxConns,
		IdleConnTimeout:     90 * time.Second,
	}

	c := &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		baseURL:       baseURL,
		apiKey:        apiKey,
		userAgent:     defaultUserAgent,
		maxRetries:    maxRetries,
		backoffFactor: backoffFactor,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close releases pooled idle connections.
func (c *Client) Close() error {
	if t, ok := c.httpClient.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	return nil
}

func (c *Client) newRetryBackoff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.Multiplier = c.backoffFactor
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0 // bounded by MaxRetries, not wall-clock
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxRetries)), ctx)
}

// Do issues method against path with the given body (nil for no body),
// returning the raw JSON response. For POST/PUT, body is augmented with
// current_time (RFC-3339 UTC) before marshaling, per spec.md §4.2/§6.
func (c *Client) Do(ctx context.Context, method, path string, body map[string]any) (json.RawMessage, error) {
	if (method == http.MethodPost || method == http.MethodPut) && body != nil {
		body = withCurrentTime(body)
	}

	var result json.RawMessage
	retryBackoff := c.newRetryBackoff(ctx)

	op := func() error {
		resp, err := c.attempt(ctx, method, path, body)
		if err != nil {
			if isRetriable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		result = resp
		return nil
	}

	if err := backoff.Retry(op, retryBackoff); err != nil {
		// Retry unwraps a backoff.Permanent error itself, so a non-retriable
		// failure arrives here as the mapped error (auth, quota, operational).
		if !isRetriable(err) {
			return nil, err
		}
		return nil, &sdkerrors.UnreachableBackendError{Attempts: c.maxRetries + 1, Cause: err}
	}
	return result, nil
}

// AsyncResult is the single value delivered on DoAsync's channel.
type AsyncResult struct {
	Body json.RawMessage
	Err  error
}

// DoAsync runs Do in a background goroutine and returns a channel that
// receives exactly one result.
func (c *Client) DoAsync(ctx context.Context, method, path string, body map[string]any) <-chan AsyncResult {
	ch := make(chan AsyncResult, 1)
	go func() {
		b, err := c.Do(ctx, method, path, body)
		ch <- AsyncResult{Body: b, Err: err}
	}()
	return ch
}

// retriableError marks a transport-level failure eligible for backoff retry.
type retriableError struct{ err error }

func (r *retriableError) Error() string { return r.err.Error() }
func (r *retriableError) Unwrap() error { return r.err }

func isRetriable(err error) bool {
	_, ok := err.(*retriableError)
	return ok
}

func (c *Client) attempt(ctx context.Context, method, path string, body map[string]any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(buf)
	}

	url := c.baseURL + "/" + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Api-Key "+c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &retriableError{err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retriableError{err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return respBody, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &sdkerrors.AuthenticationError{StatusCode: resp.StatusCode, Body: string(respBody)}
	case resp.StatusCode == http.StatusPaymentRequired:
		return nil, &sdkerrors.QuotaError{StatusCode: resp.StatusCode, Body: string(respBody)}
	case resp.StatusCode == http.StatusBadGateway, resp.StatusCode == http.StatusServiceUnavailable, resp.StatusCode == http.StatusGatewayTimeout:
		logging.Debug().Int("status", resp.StatusCode).Str("path", path).Msg("transient transport failure, will retry")
		return nil, &retriableError{err: fmt.Errorf("transient status %d", resp.StatusCode)}
	default:
		return nil, &sdkerrors.OperationalError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
}

// GetPrompt fetches a named prompt template's current content. Prompt
// template management is an external-collaborator concern outside this
// SDK's own scope (spec.md §1), but that collaborator still needs a
// transport call to reach `GET getprompt` — this method carries zero
// business logic of its own, it just exposes the endpoint.
func (c *Client) GetPrompt(ctx context.Context, name string) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodGet, "getprompt?prompt_name="+name, nil)
}

func withCurrentTime(body map[string]any) map[string]any {
	out := make(map[string]any, len(body)+1)
	for k, v := range body {
		out[k] = v
	}
	out["current_time"] = time.Now().UTC().Format(time.RFC3339)
	return out
}

// PutBlob uploads gzip-compressed bytes to a presigned URL outside the
// normal request envelope (no auth header, no current_time injection — the
// URL itself is the credential).
func (c *Client) PutBlob(ctx context.Context, url string, gzipped []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(gzipped))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &retriableError{err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &sdkerrors.OperationalError{StatusCode: resp.StatusCode, Body: fmt.Sprintf("blob upload to %s failed", url)}
	}
	return nil
}
