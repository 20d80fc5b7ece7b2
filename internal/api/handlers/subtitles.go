package handlers

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/malsync/internal/api/envelope"
	"github.com/amaumene/malsync/internal/controllers"
)

// Reconciler records watch progress
type Reconciler interface {
	Reconcile(ctx context.Context, userID, contentType, contentID string) controllers.Result
}

// SubtitlesHandler serves the subtitles resource. The catalog client asks
// for subtitles when playback starts, which is the signal used to record
// progress. The answer is a single placeholder track whose lang carries the
// outcome tag.
type SubtitlesHandler struct {
	reconciler Reconciler
	logger     *logrus.Logger
}

// NewSubtitlesHandler creates a new subtitles handler
func NewSubtitlesHandler(reconciler Reconciler, logger *logrus.Logger) *SubtitlesHandler {
	return &SubtitlesHandler{
		reconciler: reconciler,
		logger:     logger,
	}
}

// Subtitle is a subtitle track as the catalog client expects it
type Subtitle struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Lang string `json:"lang"`
}

// SubtitlesResponse is the body of a subtitles answer
type SubtitlesResponse struct {
	Subtitles []Subtitle `json:"subtitles"`
	Message   string     `json:"message"`
	envelope.CacheHints
}

// ServeHTTP handles /{userID}/subtitles/{type}/{id}.json and its variant
// carrying extra video properties
func (h *SubtitlesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := pathParam(r, "userID")
	contentType := pathParam(r, "type")
	contentID := pathParam(r, "id")

	result := h.reconciler.Reconcile(r.Context(), userID, contentType, contentID)
	tag := result.Outcome.Tag()

	response := &SubtitlesResponse{
		Subtitles: []Subtitle{{
			ID:   "malsync-" + tag,
			URL:  "about:blank",
			Lang: tag,
		}},
		Message: result.Message,
	}

	if err := envelope.Render(w, r, envelope.ForOutcome(result.Outcome), response); err != nil {
		h.logger.WithError(err).Error("Failed to write subtitles response")
	}
}
