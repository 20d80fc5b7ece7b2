// Package upstream memoizes outgoing calls to tertiary services such as the
// stream aggregator.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"

	"github.com/amaumene/malsync/internal/cache"
	"github.com/amaumene/malsync/internal/metrics"
)

const maxBodySize = 8 * 1024 * 1024

// breakerOpenTimeout is how long the breaker rejects calls once tripped
var breakerOpenTimeout = 30 * time.Second

// Response is a completed upstream call
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Result is what the memoizer stores per request: the response, the error,
// or both for non-2xx answers
type Result struct {
	Response *Response
	Err      error
}

// StatusError is returned for a non-2xx upstream answer
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s returned status %d", e.URL, e.StatusCode)
}

// Memoizer performs GET requests and remembers every result, failures
// included, until the bounded cache evicts it. Calls rejected by the open
// circuit breaker are not remembered.
type Memoizer struct {
	name       string
	results    cache.Cache[string, Result]
	group      singleflight.Group
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*Response]
	timeout    time.Duration
	logger     *logrus.Logger
}

// NewMemoizer creates a memoizer for one upstream. timeout bounds each call.
func NewMemoizer(name string, results cache.Cache[string, Result], timeout time.Duration, logger *logrus.Logger) *Memoizer {
	m := &Memoizer{
		name:       name,
		results:    results,
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		logger:     logger,
	}
	m.breaker = gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A 4xx is the upstream answering, not failing
		IsSuccessful: func(err error) bool {
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				return statusErr.StatusCode < 500
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"upstream": name,
				"from":     from.String(),
				"to":       to.String(),
			}).Warn("Upstream circuit breaker changed state")
		},
	})
	return m
}

// Key returns the cache key of a request: the URL with params merged into
// its query string in canonical (sorted) order
func Key(rawURL string, params url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid upstream URL: %w", err)
	}

	query := u.Query()
	for name, values := range params {
		for _, value := range values {
			query.Add(name, value)
		}
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// Fetch returns the memoized result for the request, performing the call on
// a miss. Concurrent misses for the same key share one call.
func (m *Memoizer) Fetch(ctx context.Context, rawURL string, params url.Values) (*Response, error) {
	key, err := Key(rawURL, params)
	if err != nil {
		return nil, err
	}

	if cached, ok := m.results.Get(key); ok {
		return cached.Response, cached.Err
	}

	ch := m.group.DoChan(key, func() (interface{}, error) {
		// The call outlives any single waiting request so its result can be stored
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
		defer cancel()

		resp, err := m.breaker.Execute(func() (*Response, error) {
			return m.call(callCtx, key)
		})
		result := Result{Response: resp, Err: err}
		// A call the breaker refused never reached the upstream
		if !rejected(err) {
			m.results.Add(key, result)
		}
		return result, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		result := res.Val.(Result)
		return result.Response, result.Err
	}
}

func rejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func (m *Memoizer) call(ctx context.Context, key string) (*Response, error) {
	m.logger.WithFields(logrus.Fields{
		"upstream": m.name,
		"url":      key,
	}).Debug("Calling upstream")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "malsync/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(m.name, "error").Inc()
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(m.name, "error").Inc()
		return nil, fmt.Errorf("failed to read upstream response: %w", err)
	}

	response := &Response{
		URL:        key,
		StatusCode: resp.StatusCode,
		Body:       body,
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.UpstreamRequestsTotal.WithLabelValues(m.name, "http_error").Inc()
		m.logger.WithFields(logrus.Fields{
			"upstream":    m.name,
			"status_code": resp.StatusCode,
		}).Warn("Upstream returned non-OK status")
		return response, &StatusError{URL: key, StatusCode: resp.StatusCode}
	}

	metrics.UpstreamRequestsTotal.WithLabelValues(m.name, "ok").Inc()
	return response, nil
}

// Len returns the number of memoized results
func (m *Memoizer) Len() int {
	return m.results.Len()
}

// Name returns the upstream name, used as the cache metrics label
func (m *Memoizer) Name() string {
	return m.name
}
