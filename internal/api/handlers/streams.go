package handlers

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/malsync/internal/api/envelope"
	"github.com/amaumene/malsync/internal/controllers"
)

// StreamLister looks up streams for a content id
type StreamLister interface {
	Streams(ctx context.Context, userID, contentType, contentID string) controllers.StreamResult
}

// StreamsHandler serves the stream resource
type StreamsHandler struct {
	streams StreamLister
	logger  *logrus.Logger
}

// NewStreamsHandler creates a new streams handler
func NewStreamsHandler(streams StreamLister, logger *logrus.Logger) *StreamsHandler {
	return &StreamsHandler{
		streams: streams,
		logger:  logger,
	}
}

// StreamsResponse is the body of a streams answer
type StreamsResponse struct {
	Streams []json.RawMessage `json:"streams"`
	Message string            `json:"message,omitempty"`
	envelope.CacheHints
}

var streamClasses = map[controllers.StreamStatus]envelope.Class{
	controllers.StreamsFound:       envelope.ClassStreamsFound,
	controllers.StreamsDisabled:    envelope.ClassStreamsDisabled,
	controllers.StreamsInvalidID:   envelope.ClassInvalidContentID,
	controllers.StreamsUnsupported: envelope.ClassUnsupported,
	controllers.StreamsFailed:      envelope.ClassUpstreamFailure,
}

// ServeHTTP handles /{userID}/stream/{type}/{id}.json
func (h *StreamsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	result := h.streams.Streams(r.Context(), pathParam(r, "userID"), pathParam(r, "type"), pathParam(r, "id"))

	class, ok := streamClasses[result.Status]
	if !ok {
		class = envelope.ClassUpstreamFailure
	}

	response := &StreamsResponse{
		Streams: result.Streams,
		Message: result.Message,
	}
	if response.Streams == nil {
		response.Streams = []json.RawMessage{}
	}

	if err := envelope.Render(w, r, class, response); err != nil {
		h.logger.WithError(err).Error("Failed to write streams response")
	}
}
