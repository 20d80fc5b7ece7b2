package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/malsync/internal/cache"
	"github.com/amaumene/malsync/internal/config"
	"github.com/amaumene/malsync/internal/controllers"
	"github.com/amaumene/malsync/internal/models"
	"github.com/amaumene/malsync/internal/services/identity"
)

type call struct {
	userID, contentType, contentID string
}

type fakeReconciler struct {
	result controllers.Result
	calls  []call
}

func (f *fakeReconciler) Reconcile(ctx context.Context, userID, contentType, contentID string) controllers.Result {
	f.calls = append(f.calls, call{userID, contentType, contentID})
	return f.result
}

type fakeStreams struct {
	result controllers.StreamResult
	calls  []call
}

func (f *fakeStreams) Streams(ctx context.Context, userID, contentType, contentID string) controllers.StreamResult {
	f.calls = append(f.calls, call{userID, contentType, contentID})
	return f.result
}

type fakeCounter struct{ count int }

func (f fakeCounter) CountMappings() (int, error) { return f.count, nil }

type fakeUsers struct {
	stored  []*models.User
	removed []string
}

func (f *fakeUsers) PutUser(user *models.User) error {
	f.stored = append(f.stored, user)
	return nil
}

func (f *fakeUsers) RemoveUser(userID string) error {
	if userID == "missing" {
		return identity.ErrUserNotFound
	}
	f.removed = append(f.removed, userID)
	return nil
}

type fakeTrigger struct{ running bool }

func (f *fakeTrigger) TriggerImport() bool {
	if f.running {
		return false
	}
	f.running = true
	return true
}

const testAdminToken = "0123456789abcdef"

func newAdminRouter(t *testing.T, users *fakeUsers, trigger *fakeTrigger) http.Handler {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return NewRouter(&config.Config{AdminToken: testAdminToken}, Dependencies{
		Reconciler: &fakeReconciler{},
		Streams:    &fakeStreams{},
		Mappings:   fakeCounter{},
		Users:      users,
		Importer:   trigger,
	}, logger)
}

func adminRequest(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func newTestRouter(t *testing.T, rateLimit int, reconciler *fakeReconciler, streams *fakeStreams) http.Handler {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	lru, err := cache.NewLRU[int, int]("test_status", 4)
	require.NoError(t, err)
	lru.Add(1, 1)

	return NewRouter(&config.Config{RateLimitPerMinute: rateLimit}, Dependencies{
		Reconciler: reconciler,
		Streams:    streams,
		Mappings:   fakeCounter{count: 42},
		Caches:     []cache.Named{lru},
	}, logger)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestSubtitlesRoute(t *testing.T) {
	reconciler := &fakeReconciler{result: controllers.Result{Outcome: models.OutcomeUpdated, Message: "Updated watched status"}}
	h := newTestRouter(t, 0, reconciler, &fakeStreams{})

	rec := get(t, h, "/user1/subtitles/series/kitsu%3A7442%3A2.json")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "private, max-age=86400", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var body struct {
		Subtitles []struct {
			ID   string `json:"id"`
			Lang string `json:"lang"`
		} `json:"subtitles"`
		Message     string `json:"message"`
		CacheMaxAge int    `json:"cacheMaxAge"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Subtitles, 1)
	assert.Equal(t, "OK", body.Subtitles[0].Lang)
	assert.Equal(t, "Updated watched status", body.Message)
	assert.Equal(t, 86400, body.CacheMaxAge)

	require.Len(t, reconciler.calls, 1)
	assert.Equal(t, call{"user1", "series", "kitsu:7442:2"}, reconciler.calls[0])
}

func TestSubtitlesRoute_WithVideoProperties(t *testing.T) {
	reconciler := &fakeReconciler{result: controllers.Result{Outcome: models.OutcomeInvalidContentID}}
	h := newTestRouter(t, 0, reconciler, &fakeStreams{})

	rec := get(t, h, "/user1/subtitles/anime/mal_21:5/videoHash=abc&videoSize=1&filename=Show.S01E05.mkv.json")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=31536000", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), `"lang":"INVALID_ID"`)

	require.Len(t, reconciler.calls, 1)
	assert.Equal(t, "mal_21:5", reconciler.calls[0].contentID)
}

func TestSubtitlesRoute_FailureIsStill200(t *testing.T) {
	reconciler := &fakeReconciler{result: controllers.Result{Outcome: models.OutcomeUpstreamFailure, Message: "Failed to update watched status"}}
	h := newTestRouter(t, 0, reconciler, &fakeStreams{})

	rec := get(t, h, "/user1/subtitles/series/kitsu:1:1.json")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "private, max-age=0", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), `"lang":"FAIL"`)
}

func TestStreamsRoute(t *testing.T) {
	streams := &fakeStreams{result: controllers.StreamResult{
		Status:  controllers.StreamsFound,
		Streams: []json.RawMessage{json.RawMessage(`{"name":"x"}`)},
	}}
	h := newTestRouter(t, 0, &fakeReconciler{}, streams)

	rec := get(t, h, "/user1/stream/series/kitsu:7442:2.json")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=3600, stale-while-revalidate=14400, stale-if-error=86400", rec.Header().Get("Cache-Control"))
	assert.JSONEq(t, `{"streams":[{"name":"x"}],"cacheMaxAge":3600,"staleRevalidate":14400,"staleError":86400}`, rec.Body.String())

	streams.result = controllers.StreamResult{Status: controllers.StreamsDisabled, Message: "Stream fetching is disabled"}
	rec = get(t, h, "/user1/stream/series/kitsu:7442:2.json")
	assert.Equal(t, "private, max-age=86400", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), `"streams":[]`)
}

func TestHealthAndStatus(t *testing.T) {
	h := newTestRouter(t, 0, &fakeReconciler{}, &fakeStreams{})

	rec := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
	assert.Equal(t, "public, max-age=0", rec.Header().Get("Cache-Control"))

	rec = get(t, h, "/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"mappings":42,"cache_entries":{"test_status":1},"cache_capacity":{"test_status":4}}`, rec.Body.String())

	rec = get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "malsync_http_request_duration_seconds")
}

func TestPreflight(t *testing.T) {
	h := newTestRouter(t, 0, &fakeReconciler{}, &fakeStreams{})

	req := httptest.NewRequest(http.MethodOptions, "/user1/subtitles/series/kitsu:1.json", nil)
	req.Header.Set("Origin", "https://web.stremio.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Less(t, rec.Code, 300)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	reconciler := &fakeReconciler{result: controllers.Result{Outcome: models.OutcomeNoUpdateNeeded}}
	h := newTestRouter(t, 2, reconciler, &fakeStreams{})

	assert.Equal(t, http.StatusOK, get(t, h, "/u/subtitles/series/kitsu:1.json").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/u/subtitles/series/kitsu:1.json").Code)
	limited := get(t, h, "/u/subtitles/series/kitsu:1.json")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "private, max-age=0", limited.Header().Get("Cache-Control"))
	assert.NotEmpty(t, limited.Header().Get("Expires"))
	assert.Contains(t, limited.Body.String(), `"message"`)

	// Health checks are not limited
	assert.Equal(t, http.StatusOK, get(t, h, "/health").Code)
}

func TestAdminRoutes_DisabledWithoutToken(t *testing.T) {
	h := newTestRouter(t, 0, &fakeReconciler{}, &fakeStreams{})

	rec := adminRequest(h, http.MethodPost, "/admin/mappings/import", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRoutes_RequireToken(t *testing.T) {
	h := newAdminRouter(t, &fakeUsers{}, &fakeTrigger{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/mappings/import", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutes_Users(t *testing.T) {
	users := &fakeUsers{}
	h := newAdminRouter(t, users, &fakeTrigger{})

	rec := adminRequest(h, http.MethodPut, "/admin/users/1234",
		`{"access_token":"tok","refresh_token":"ref","expires_in":3600,"fetch_streams":true}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "private, max-age=0", rec.Header().Get("Cache-Control"))
	require.Len(t, users.stored, 1)
	assert.Equal(t, "1234", users.stored[0].ID)
	assert.Equal(t, "tok", users.stored[0].AccessToken)
	assert.Equal(t, 3600, users.stored[0].ExpiresIn)
	assert.True(t, users.stored[0].FetchStreams)
	assert.False(t, users.stored[0].TrackUnlisted)
	assert.False(t, users.stored[0].LastUpdated.IsZero())

	rec = adminRequest(h, http.MethodPut, "/admin/users/1234", `{"expires_in":3600}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = adminRequest(h, http.MethodPut, "/admin/users/1234", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, users.stored, 1)

	rec = adminRequest(h, http.MethodDelete, "/admin/users/1234", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"1234"}, users.removed)

	rec = adminRequest(h, http.MethodDelete, "/admin/users/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRoutes_Import(t *testing.T) {
	h := newAdminRouter(t, &fakeUsers{}, &fakeTrigger{})

	rec := adminRequest(h, http.MethodPost, "/admin/mappings/import", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"import":"started"`)

	rec = adminRequest(h, http.MethodPost, "/admin/mappings/import", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"import":"running"`)
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s := NewServer(&config.Config{ServerPort: "0"}, Dependencies{}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
