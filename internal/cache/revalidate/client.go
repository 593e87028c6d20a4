// Package revalidate asks the storefront to rebuild a statically cached
// page.
package revalidate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BVSokolov/udemy-prostore/pkg/httpclient"
)

// SecretHeader authenticates this service to the storefront.
const SecretHeader = "X-Revalidate-Secret"

// Client posts page paths to the storefront's revalidation endpoint.
type Client struct {
	url    string
	secret string
	http   *httpclient.CircuitBreakerClient
	logger *slog.Logger
}

// New creates a revalidation client. It returns nil when url is empty so
// callers can leave the webhook unconfigured.
func New(url, secret string, client *httpclient.CircuitBreakerClient, logger *slog.Logger) *Client {
	if url == "" {
		return nil
	}
	return &Client{url: url, secret: secret, http: client, logger: logger}
}

type request struct {
	Path string `json:"path"`
}

// Invalidate asks the storefront to revalidate path. A nil Client does
// nothing.
func (c *Client) Invalidate(ctx context.Context, path string) error {
	if c == nil {
		return nil
	}

	body, err := json.Marshal(request{Path: path})
	if err != nil {
		return fmt.Errorf("marshal revalidate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create revalidate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		req.Header.Set(SecretHeader, c.secret)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("revalidate %s: %w", path, err)
	}
	if resp.StatusCode >= 300 {
		return httpclient.ParseResponseError(resp, "storefront revalidate")
	}
	_ = resp.Body.Close()

	c.logger.DebugContext(ctx, "storefront page revalidated", slog.String("path", path))
	return nil
}
