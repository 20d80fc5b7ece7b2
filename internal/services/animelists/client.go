package animelists

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/malsync/internal/config"
	"github.com/amaumene/malsync/internal/metrics"
)

const maxDatasetSize = 64 * 1024 * 1024

// Entry is one title of the anime-lists dataset. Only the ids this service
// maps between are decoded.
type Entry struct {
	MALID   *int `json:"mal_id"`
	KitsuID *int `json:"kitsu_id"`
}

// Mapping is a complete Kitsu to MyAnimeList link
type Mapping struct {
	KitsuID int
	MALID   int
}

// Client downloads the cross-catalog id dataset
type Client struct {
	sourceURL  string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a dataset client
func NewClient(cfg *config.Config, logger *logrus.Logger) (*Client, error) {
	if cfg.MappingSourceURL == "" {
		return nil, fmt.Errorf("mapping source URL is required")
	}

	return &Client{
		sourceURL: cfg.MappingSourceURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		logger: logger,
	}, nil
}

// FetchMappings downloads the dataset and returns every entry that carries
// both a Kitsu and a MyAnimeList id
func (c *Client) FetchMappings(ctx context.Context) ([]Mapping, error) {
	c.logger.WithField("url", c.sourceURL).Debug("Downloading mapping dataset")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "malsync/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues("animelists", "error").Inc()
		return nil, fmt.Errorf("mapping dataset request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.UpstreamRequestsTotal.WithLabelValues("animelists", "http_error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var entries []Entry
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDatasetSize)).Decode(&entries); err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues("animelists", "error").Inc()
		return nil, fmt.Errorf("failed to parse mapping dataset: %w", err)
	}
	metrics.UpstreamRequestsTotal.WithLabelValues("animelists", "ok").Inc()

	mappings := ToMappings(entries)

	c.logger.WithFields(logrus.Fields{
		"entries":  len(entries),
		"mappings": len(mappings),
	}).Info("Mapping dataset downloaded")

	return mappings, nil
}

// ToMappings keeps the entries that link a Kitsu id to a MyAnimeList id
func ToMappings(entries []Entry) []Mapping {
	mappings := make([]Mapping, 0, len(entries))
	for _, entry := range entries {
		if entry.MALID == nil || entry.KitsuID == nil {
			continue
		}
		if *entry.MALID <= 0 || *entry.KitsuID <= 0 {
			continue
		}
		mappings = append(mappings, Mapping{KitsuID: *entry.KitsuID, MALID: *entry.MALID})
	}
	return mappings
}

// StatusError is returned when the dataset host answers with a non-OK status
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mapping source returned status %d: %s", e.StatusCode, e.Body)
}

// Permanent reports whether retrying cannot help
func (e *StatusError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
}
