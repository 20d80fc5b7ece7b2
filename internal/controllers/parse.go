package controllers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/amaumene/malsync/internal/models"
)

var (
	// ErrUnsupportedID marks ids from a catalog this service deliberately skips (IMDb)
	ErrUnsupportedID = errors.New("unsupported content id")
	// ErrInvalidID marks ids that match no known namespace or are malformed
	ErrInvalidID = errors.New("invalid content id")
)

const (
	malPrefix   = "mal_"
	kitsuPrefix = "kitsu:"
	imdbPrefix  = "tt"
)

// supportedTypes are the catalog content types this service reconciles
var supportedTypes = map[string]bool{
	"anime":  true,
	"series": true,
	"movie":  true,
}

// SupportedContentType reports whether contentType can be reconciled
func SupportedContentType(contentType string) bool {
	return supportedTypes[contentType]
}

// ParseContentID splits an opaque catalog id into its namespace, primary id
// and episode. Accepted forms:
//
//	mal_<id>[:<episode>]
//	kitsu:<id>[:<episode>]
//
// The episode defaults to 1 when absent, for movies and series alike.
func ParseContentID(contentID string) (models.ForeignRef, error) {
	var ref models.ForeignRef
	var rest string

	switch {
	case strings.HasPrefix(contentID, imdbPrefix):
		return ref, ErrUnsupportedID
	case strings.HasPrefix(contentID, malPrefix):
		ref.Namespace = models.NamespaceMAL
		rest = strings.TrimPrefix(contentID, malPrefix)
	case strings.HasPrefix(contentID, kitsuPrefix):
		ref.Namespace = models.NamespaceKitsu
		rest = strings.TrimPrefix(contentID, kitsuPrefix)
	default:
		return ref, ErrInvalidID
	}

	parts := strings.Split(rest, ":")
	if len(parts) > 2 || parts[0] == "" {
		return ref, ErrInvalidID
	}
	ref.PrimaryID = parts[0]
	ref.Episode = 1

	if len(parts) == 2 {
		episode, err := strconv.Atoi(parts[1])
		if err != nil || episode < 1 {
			return ref, ErrInvalidID
		}
		ref.Episode = episode
	}

	return ref, nil
}
