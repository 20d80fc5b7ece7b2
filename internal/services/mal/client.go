package mal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/malsync/internal/config"
	"github.com/amaumene/malsync/internal/metrics"
)

const maxErrorBody = 64 * 1024

// Client handles communication with the MyAnimeList API
type Client struct {
	baseURL    string
	clientID   string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new MyAnimeList API client
func NewClient(cfg *config.Config, logger *logrus.Logger) (*Client, error) {
	if cfg.MALAPIURL == "" {
		return nil, fmt.Errorf("MyAnimeList API URL is required")
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.MALAPIURL, "/"),
		clientID:   cfg.MALClientID,
		httpClient: &http.Client{Timeout: cfg.UpstreamTimeout},
		logger:     logger,
	}, nil
}

// doRequest performs an authenticated HTTP request to the MyAnimeList API.
// form, when non-nil, is sent url-encoded as the request body.
func (c *Client) doRequest(ctx context.Context, method, path, accessToken string, query, form url.Values, result interface{}) error {
	var reqBody io.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	}

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}
	c.logger.WithFields(logrus.Fields{
		"method": method,
		"url":    fullURL,
	}).Debug("Making MyAnimeList API request")

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.clientID != "" {
		req.Header.Set("X-MAL-CLIENT-ID", c.clientID)
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	// Perform request
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues("mal", "error").Inc()
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// Check status code
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.UpstreamRequestsTotal.WithLabelValues("mal", "http_error").Inc()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return newAPIError(resp.StatusCode, bodyBytes)
	}
	metrics.UpstreamRequestsTotal.WithLabelValues("mal", "ok").Inc()

	// Parse response
	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
