package streams

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/malsync/internal/config"
	"github.com/amaumene/malsync/internal/services/upstream"
)

// Fetcher performs memoized GET requests
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, params url.Values) (*upstream.Response, error)
}

// streamsResponse is the aggregator's answer for one title
type streamsResponse struct {
	Streams []json.RawMessage `json:"streams"`
}

// Client queries a Stremio stream aggregator by Kitsu id
type Client struct {
	baseURL string
	fetcher Fetcher
	logger  *logrus.Logger
}

// NewClient creates a stream aggregator client. Every request goes through fetcher.
func NewClient(cfg *config.Config, fetcher Fetcher, logger *logrus.Logger) (*Client, error) {
	if cfg.StreamAggregatorURL == "" {
		return nil, fmt.Errorf("stream aggregator URL is required")
	}
	if _, err := url.Parse(cfg.StreamAggregatorURL); err != nil {
		return nil, fmt.Errorf("invalid stream aggregator URL: %w", err)
	}

	return &Client{
		baseURL: cfg.StreamAggregatorURL,
		fetcher: fetcher,
		logger:  logger,
	}, nil
}

// StreamURL builds the aggregator URL for a Kitsu title. Movies carry no
// episode suffix.
func (c *Client) StreamURL(contentType string, kitsuID int, episode int) string {
	id := "kitsu:" + strconv.Itoa(kitsuID)
	if contentType != "movie" && episode > 0 {
		id += ":" + strconv.Itoa(episode)
	}
	return fmt.Sprintf("%s/stream/%s/%s.json", c.baseURL, url.PathEscape(contentType), id)
}

// Streams returns the raw stream objects the aggregator lists for a title.
// Stream objects are passed through to the client untouched.
func (c *Client) Streams(ctx context.Context, contentType string, kitsuID int, episode int) ([]json.RawMessage, error) {
	streamURL := c.StreamURL(contentType, kitsuID, episode)

	resp, err := c.fetcher.Fetch(ctx, streamURL, nil)
	if err != nil {
		return nil, fmt.Errorf("stream aggregator request failed: %w", err)
	}

	var parsed streamsResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse stream aggregator response: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"kitsu_id": kitsuID,
		"episode":  episode,
		"count":    len(parsed.Streams),
	}).Debug("Stream aggregator lookup completed")

	if parsed.Streams == nil {
		return []json.RawMessage{}, nil
	}
	return parsed.Streams, nil
}
