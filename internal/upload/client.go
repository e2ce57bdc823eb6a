package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const requestTimeout = 15 * time.Second

// Client posts canonicalized HSV batches to the cloud snapshot
// endpoint. It never decides whether a non-2xx response should be
// retried; that policy lives in the worker loop.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tenantID   string
	secret     []byte
}

// NewClient constructs an upload HTTP client. secret is the tenant
// HMAC key used to sign every batch body.
func NewClient(baseURL, tenantID string, secret []byte) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    baseURL,
		tenantID:   tenantID,
		secret:     secret,
	}
}

// Send posts the canonical JSON array body, signed with the tenant
// secret and carrying bearerToken, to /v1/{tenantId}/snapshots. It
// returns the HTTP status code (0 on a transport-level failure, which
// the caller treats the same as a 5xx: retry per backoff).
func (c *Client) Send(ctx context.Context, body []byte, bearerToken string) (status int, err error) {
	url := fmt.Sprintf("%s/v1/%s/snapshots", c.baseURL, c.tenantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearerToken)
	req.Header.Set("X-Signature", Sign(c.secret, body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("upload POST %s: %w", url, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain body for connection reuse

	return resp.StatusCode, nil
}

// Delete issues a best-effort request to purge all data uploaded so far
// for this tenant. Not part of the wire contract's upload path, but
// grounded symmetrically on it: same endpoint, same signing scheme,
// applied to a DELETE instead of a POST.
func (c *Client) Delete(ctx context.Context, bearerToken string) (status int, err error) {
	url := fmt.Sprintf("%s/v1/%s/snapshots", c.baseURL, c.tenantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build delete request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearerToken)
	req.Header.Set("X-Signature", Sign(c.secret, nil))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("upload DELETE %s: %w", url, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain body for connection reuse

	return resp.StatusCode, nil
}

// CloseIdleConnections releases pooled connections on shutdown.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}
