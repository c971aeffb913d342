// Package gateway is the client for the rewrite gate's /improve endpoint.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"draft-polisher/internal/domain"
)

// SessionHeader carries the renewed session token on /improve responses.
const SessionHeader = "X-Session-ID"

var (
	// ErrIdentityDenied means the gate could not resolve a session.
	ErrIdentityDenied = errors.New("gateway: invalid session")
	// ErrQuotaExceeded means the daily limit for this identity is used up.
	ErrQuotaExceeded = errors.New("gateway: daily limit reached")
)

// UpstreamError is any other failure: transport errors, non-2xx responses and
// replies that cannot be used.
type UpstreamError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("gateway: upstream failure (status %d): %v", e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("gateway: upstream failure: %v", e.Err)
	}
	return fmt.Sprintf("gateway: upstream failure (status %d): %s", e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func (e *UpstreamError) HTTPStatusCode() int {
	return e.StatusCode
}

type improveContent struct {
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Recipient string `json:"recipient"`
}

type improveRequest struct {
	DeviceID       string         `json:"deviceId"`
	PersistentUUID string         `json:"persistentUuid"`
	SessionID      string         `json:"sessionId"`
	Content        improveContent `json:"content"`
}

type improveResponse struct {
	PersistentUUID  string               `json:"persistentUuid"`
	ImprovedContent domain.RewriteResult `json:"improvedContent"`
}

// Reply is a successful /improve call.
type Reply struct {
	PersistentID string
	SessionToken string
	Result       domain.RewriteResult
}

// Client calls the gate over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client for the gate at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("gateway: base URL must not be empty")
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Improve sends one draft to the gate. The caller must persist the returned
// persistent id and session token for its next call.
func (c *Client) Improve(ctx context.Context, ids domain.Identifiers, draft domain.DraftMessage) (Reply, error) {
	body, err := json.Marshal(improveRequest{
		DeviceID:       ids.DeviceID,
		PersistentUUID: ids.PersistentID,
		SessionID:      ids.SessionToken,
		Content: improveContent{
			Subject:   draft.Subject,
			Body:      draft.NewText,
			Recipient: draft.RecipientFirstName,
		},
	})
	if err != nil {
		return Reply{}, fmt.Errorf("gateway: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/improve", bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("gateway: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return Reply{}, &UpstreamError{Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	switch {
	case res.StatusCode == http.StatusUnauthorized:
		return Reply{}, ErrIdentityDenied
	case res.StatusCode == http.StatusTooManyRequests:
		return Reply{}, ErrQuotaExceeded
	case res.StatusCode < 200 || res.StatusCode >= 300:
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return Reply{}, &UpstreamError{StatusCode: res.StatusCode, Body: string(buf)}
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return Reply{}, &UpstreamError{StatusCode: res.StatusCode, Err: fmt.Errorf("read response body: %w", err)}
	}
	var payload improveResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Reply{}, &UpstreamError{StatusCode: res.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if strings.TrimSpace(payload.ImprovedContent.Subject) == "" || strings.TrimSpace(payload.ImprovedContent.Body) == "" {
		return Reply{}, &UpstreamError{StatusCode: res.StatusCode, Err: errors.New("incomplete rewrite in response")}
	}
	return Reply{
		PersistentID: payload.PersistentUUID,
		SessionToken: res.Header.Get(SessionHeader),
		Result:       payload.ImprovedContent,
	}, nil
}
