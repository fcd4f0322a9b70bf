package report

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client wraps interactions with the Gotenberg API.
type Client struct {
	http *resty.Client
}

// NewClient constructs a new client.
func NewClient(baseURL string) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(30 * time.Second)
	return &Client{http: c}
}

// Ping checks if the remote Gotenberg service is available.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/health")
	if err != nil {
		return fmt.Errorf("report: ping gotenberg: %w", err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return fmt.Errorf("report: gotenberg returned status %d", resp.StatusCode())
	}
	return nil
}

// RenderHTML converts a complete HTML document into PDF bytes.
func (c *Client) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("files", "index.html", strings.NewReader(html)).
		SetFormData(map[string]string{"printBackground": "true"}).
		Post("/forms/chromium/convert/html")
	if err != nil {
		return nil, fmt.Errorf("report: render pdf: %w", err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return nil, fmt.Errorf("report: render failed with status %d", resp.StatusCode())
	}
	return resp.Body(), nil
}
