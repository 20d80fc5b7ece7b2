package controllers

import (
	"context"
	"errors"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/malsync/internal/models"
	"github.com/amaumene/malsync/internal/services/identity"
	"github.com/amaumene/malsync/internal/utils"
)

// StreamSource lists streams for a Kitsu title
type StreamSource interface {
	Streams(ctx context.Context, contentType string, kitsuID int, episode int) ([]json.RawMessage, error)
}

// KitsuResolver maps MyAnimeList ids back to Kitsu ids
type KitsuResolver interface {
	ReverseKitsu(ctx context.Context, id models.NativeID) (bool, int)
}

// StreamStatus classifies a stream lookup
type StreamStatus string

const (
	StreamsFound       StreamStatus = "found"
	StreamsDisabled    StreamStatus = "disabled"
	StreamsInvalidID   StreamStatus = "invalid_id"
	StreamsUnsupported StreamStatus = "unsupported"
	StreamsFailed      StreamStatus = "failed"
)

// StreamResult is the answer to a stream request. Streams is never nil.
type StreamResult struct {
	Status  StreamStatus
	Streams []json.RawMessage
	Message string
}

// StreamController proxies stream lookups to the aggregator for users who
// enabled it
type StreamController struct {
	resolver KitsuResolver
	users    UserStore
	source   StreamSource
	logger   *logrus.Logger
}

// NewStreamController creates a new stream controller
func NewStreamController(resolver KitsuResolver, users UserStore, source StreamSource, logger *logrus.Logger) *StreamController {
	return &StreamController{
		resolver: resolver,
		users:    users,
		source:   source,
		logger:   logger,
	}
}

// Streams returns the streams available for contentID
func (c *StreamController) Streams(ctx context.Context, userID, contentType, contentID string) StreamResult {
	empty := func(status StreamStatus, message string) StreamResult {
		return StreamResult{Status: status, Streams: []json.RawMessage{}, Message: message}
	}

	if !SupportedContentType(contentType) {
		return empty(StreamsUnsupported, "Content type not supported")
	}

	ref, err := ParseContentID(contentID)
	if errors.Is(err, ErrUnsupportedID) {
		return empty(StreamsUnsupported, "IMDb ids are not supported")
	}
	if err != nil {
		return empty(StreamsInvalidID, "Invalid content id")
	}

	_, policy, err := c.users.GetValidUser(ctx, userID)
	if err != nil {
		return empty(StreamsFailed, identity.UserMessage(err))
	}
	if !policy.FetchStreams {
		return empty(StreamsDisabled, "Stream fetching is disabled")
	}

	kitsuID, ok := utils.ParseDigits(ref.PrimaryID)
	if !ok {
		return empty(StreamsInvalidID, "Invalid content id")
	}
	if ref.Namespace == models.NamespaceMAL {
		found, id := c.resolver.ReverseKitsu(ctx, models.NativeID(kitsuID))
		if !found {
			return empty(StreamsInvalidID, "No Kitsu id found for this content")
		}
		kitsuID = id
	}

	streams, err := c.source.Streams(ctx, contentType, kitsuID, ref.Episode)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"kitsu_id": kitsuID,
			"episode":  ref.Episode,
		}).Warn("Stream lookup failed")
		return empty(StreamsFailed, "Failed to fetch streams")
	}

	return StreamResult{Status: StreamsFound, Streams: streams}
}
