package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/malsync/internal/cache"
)

func newTestMemoizer(t *testing.T, capacity int) *Memoizer {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	results, err := cache.NewLRU[string, Result]("test_upstream", capacity)
	require.NoError(t, err)
	return NewMemoizer("test", results, time.Second, logger)
}

func TestKey_IsCanonical(t *testing.T) {
	a, err := Key("https://example.com/stream?b=2", url.Values{"a": {"1"}})
	require.NoError(t, err)
	b, err := Key("https://example.com/stream", url.Values{"b": {"2"}, "a": {"1"}})
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/stream?a=1&b=2", a)
	assert.Equal(t, a, b)

	_, err = Key("://bad", nil)
	assert.Error(t, err)
}

func TestFetch_MemoizesSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprintf(w, `{"q":%q}`, r.URL.Query().Get("q"))
	}))
	defer srv.Close()

	m := newTestMemoizer(t, 10)

	resp, err := m.Fetch(context.Background(), srv.URL, url.Values{"q": {"one"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"q":"one"}`, string(resp.Body))

	again, err := m.Fetch(context.Background(), srv.URL, url.Values{"q": {"one"}})
	require.NoError(t, err)
	assert.Equal(t, resp, again)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	// Different parameters are a different request
	_, err = m.Fetch(context.Background(), srv.URL, url.Values{"q": {"two"}})
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	assert.Equal(t, 2, m.Len())
}

func TestFetch_MemoizesFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "bad gateway")
	}))
	defer srv.Close()

	m := newTestMemoizer(t, 10)

	for i := 0; i < 3; i++ {
		resp, err := m.Fetch(context.Background(), srv.URL+"/x", nil)
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
		require.NotNil(t, resp)
		assert.Equal(t, "bad gateway", string(resp.Body))
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestFetch_EvictionIsTheOnlyRemoval(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		io.WriteString(w, "{}")
	}))
	defer srv.Close()

	m := newTestMemoizer(t, 2)
	ctx := context.Background()

	_, _ = m.Fetch(ctx, srv.URL+"/a", nil)
	_, _ = m.Fetch(ctx, srv.URL+"/b", nil)
	_, _ = m.Fetch(ctx, srv.URL+"/c", nil) // evicts /a
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))

	_, _ = m.Fetch(ctx, srv.URL+"/c", nil)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))

	_, _ = m.Fetch(ctx, srv.URL+"/a", nil)
	assert.EqualValues(t, 4, atomic.LoadInt32(&calls))
	assert.Equal(t, 2, m.Len())
}

func TestFetch_ConcurrentMissesShareOneCall(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		<-release
		io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	m := newTestMemoizer(t, 10)

	var wg sync.WaitGroup
	bodies := make([]string, 10)
	for i := range bodies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := m.Fetch(context.Background(), srv.URL, nil)
			if assert.NoError(t, err) {
				bodies[i] = string(resp.Body)
			}
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	// At-least-once fill: every caller sees the same complete body
	for _, body := range bodies {
		assert.Equal(t, `{"ok":true}`, body)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(10))
	assert.Equal(t, 1, m.Len())
}

func TestFetch_CallerCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		io.WriteString(w, "{}")
	}))
	defer srv.Close()
	defer close(release)

	m := newTestMemoizer(t, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.Fetch(ctx, srv.URL, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetch_BreakerOpensOnServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := newTestMemoizer(t, 100)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := m.Fetch(ctx, fmt.Sprintf("%s/%d", srv.URL, i), nil)
		require.Error(t, err)
	}
	assert.EqualValues(t, 5, atomic.LoadInt32(&calls))

	_, err := m.Fetch(ctx, srv.URL+"/next", nil)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.EqualValues(t, 5, atomic.LoadInt32(&calls))
}

func TestFetch_RejectedCallsAreNotMemoized(t *testing.T) {
	breakerOpenTimeout = 50 * time.Millisecond
	t.Cleanup(func() { breakerOpenTimeout = 30 * time.Second })

	var calls int32
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if !healthy.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"streams":[]}`)
	}))
	defer srv.Close()

	m := newTestMemoizer(t, 100)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := m.Fetch(ctx, fmt.Sprintf("%s/%d", srv.URL, i), nil)
		require.Error(t, err)
	}

	_, err := m.Fetch(ctx, srv.URL+"/later", nil)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.EqualValues(t, 5, atomic.LoadInt32(&calls))
	assert.Equal(t, 5, m.Len())

	healthy.Store(true)
	time.Sleep(100 * time.Millisecond)

	resp, err := m.Fetch(ctx, srv.URL+"/later", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 6, atomic.LoadInt32(&calls))

	// The real answer is memoized
	_, err = m.Fetch(ctx, srv.URL+"/later", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 6, atomic.LoadInt32(&calls))
}

func TestFetch_ClientErrorsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	m := newTestMemoizer(t, 100)
	for i := 0; i < 10; i++ {
		_, err := m.Fetch(context.Background(), fmt.Sprintf("%s/%d", srv.URL, i), nil)
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	}
}
