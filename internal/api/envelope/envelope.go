// Package envelope renders every JSON response with caching headers derived
// from why the response was produced.
package envelope

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"

	"github.com/amaumene/malsync/internal/models"
)

// Class names a kind of response. Every class has exactly one CacheDirective.
type Class string

const (
	ClassUpdated          Class = "updated"
	ClassNoUpdateNeeded   Class = "no_update"
	ClassNotInAnyList     Class = "not_listed"
	ClassInvalidContentID Class = "invalid_id"
	ClassUnsupported      Class = "unsupported"
	ClassUpstreamFailure  Class = "upstream_failure"
	ClassStreamsFound     Class = "streams_found"
	ClassStreamsDisabled  Class = "streams_disabled"
	ClassHealth           Class = "health"
	ClassAdmin            Class = "admin"
)

const (
	day  = 24 * time.Hour
	year = 365 * day
)

var directives = map[Class]models.CacheDirective{
	ClassUpdated:          {MaxAge: day, Private: true},
	ClassNoUpdateNeeded:   {MaxAge: day, Private: true},
	ClassNotInAnyList:     {MaxAge: day, Private: true},
	ClassInvalidContentID: {MaxAge: year},
	ClassUnsupported:      {MaxAge: year},
	ClassUpstreamFailure:  {Private: true},
	ClassStreamsFound:     {MaxAge: time.Hour, StaleWhileRevalidate: 4 * time.Hour, StaleIfError: day},
	ClassStreamsDisabled:  {MaxAge: day, Private: true},
	ClassHealth:           {},
	ClassAdmin:            {Private: true},
}

// Directive returns the cache directive of a class. Unknown classes are
// treated as upstream failures and not cached.
func Directive(class Class) models.CacheDirective {
	if d, ok := directives[class]; ok {
		return d
	}
	return directives[ClassUpstreamFailure]
}

// ForOutcome returns the class of a reconciliation outcome
func ForOutcome(outcome models.Outcome) Class {
	switch outcome {
	case models.OutcomeUpdated:
		return ClassUpdated
	case models.OutcomeNoUpdateNeeded:
		return ClassNoUpdateNeeded
	case models.OutcomeNotInAnyList:
		return ClassNotInAnyList
	case models.OutcomeInvalidContentID:
		return ClassInvalidContentID
	case models.OutcomeUnsupportedContentType:
		return ClassUnsupported
	default:
		return ClassUpstreamFailure
	}
}

// CacheControl formats a directive as a Cache-Control header value.
// max-age is always present; zero stale directives are omitted.
func CacheControl(d models.CacheDirective) string {
	var b strings.Builder
	if d.Private {
		b.WriteString("private")
	} else {
		b.WriteString("public")
	}
	b.WriteString(", max-age=")
	b.WriteString(strconv.Itoa(seconds(d.MaxAge)))
	if d.StaleWhileRevalidate > 0 {
		b.WriteString(", stale-while-revalidate=")
		b.WriteString(strconv.Itoa(seconds(d.StaleWhileRevalidate)))
	}
	if d.StaleIfError > 0 {
		b.WriteString(", stale-if-error=")
		b.WriteString(strconv.Itoa(seconds(d.StaleIfError)))
	}
	return b.String()
}

func seconds(d time.Duration) int {
	return int(d / time.Second)
}

// CacheHints are the caching hints catalog clients read from the body.
// Embed it in a payload to have Render fill it in.
type CacheHints struct {
	CacheMaxAge     int `json:"cacheMaxAge,omitempty"`
	StaleRevalidate int `json:"staleRevalidate,omitempty"`
	StaleError      int `json:"staleError,omitempty"`
}

// SetCacheHints implements HintCarrier
func (h *CacheHints) SetCacheHints(hints CacheHints) {
	*h = hints
}

// HintCarrier is a payload that embeds CacheHints
type HintCarrier interface {
	SetCacheHints(hints CacheHints)
}

// Hints returns the body hints matching a directive
func Hints(d models.CacheDirective) CacheHints {
	return CacheHints{
		CacheMaxAge:     seconds(d.MaxAge),
		StaleRevalidate: seconds(d.StaleWhileRevalidate),
		StaleError:      seconds(d.StaleIfError),
	}
}

// now is replaced in tests
var now = time.Now

// Render writes payload as JSON with the caching headers of class. A request
// whose If-None-Match matches the body's ETag gets a 304 without a body.
func Render(w http.ResponseWriter, r *http.Request, class Class, payload interface{}) error {
	return RenderStatus(w, r, class, http.StatusOK, payload)
}

// RenderStatus is Render with an explicit status code. Conditional requests
// are only answered with 304 for 200 responses.
func RenderStatus(w http.ResponseWriter, r *http.Request, class Class, status int, payload interface{}) error {
	directive := Directive(class)
	if carrier, ok := payload.(HintCarrier); ok {
		carrier.SetCacheHints(Hints(directive))
	}

	body, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return fmt.Errorf("failed to encode response: %w", err)
	}
	etag := ETag(body)

	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Headers", "*")
	h.Set("Cache-Control", CacheControl(directive))
	h.Set("Expires", now().Add(directive.MaxAge).UTC().Format(http.TimeFormat))
	h.Set("ETag", etag)

	if status == http.StatusOK && r != nil && noneMatch(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return nil
	}

	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, err = w.Write(body)
	return err
}

// ETag returns the strong validator of a body
func ETag(body []byte) string {
	return fmt.Sprintf(`"%016x"`, xxhash.Sum64(body))
}

// noneMatch reports whether an If-None-Match header matches etag
func noneMatch(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" {
			return true
		}
		// Weak comparison, as required for If-None-Match
		if strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
