package models

import "time"

// Namespace identifies which catalog numbering a content id belongs to
type Namespace string

const (
	NamespaceMAL   Namespace = "mal"   // MyAnimeList's own numbering, e.g. mal_12345
	NamespaceKitsu Namespace = "kitsu" // Kitsu catalog numbering, e.g. kitsu:1:2
)

// ListStatus is the status of a title in a user's MyAnimeList lists
type ListStatus string

const (
	ListStatusAbsent      ListStatus = "" // not on any list
	ListStatusPlanToWatch ListStatus = "plan_to_watch"
	ListStatusWatching    ListStatus = "watching"
	ListStatusOnHold      ListStatus = "on_hold"
	ListStatusCompleted   ListStatus = "completed"
	ListStatusDropped     ListStatus = "dropped"
)

// Progressable reports whether a title in this status may be moved forward
// automatically. Completed, dropped and unlisted titles are never reopened.
func (s ListStatus) Progressable() bool {
	switch s {
	case ListStatusPlanToWatch, ListStatusWatching, ListStatusOnHold:
		return true
	}
	return false
}

// Outcome classifies a single reconciliation request
type Outcome string

const (
	OutcomeUpdated                Outcome = "updated"
	OutcomeNoUpdateNeeded         Outcome = "no_update"
	OutcomeNotInAnyList           Outcome = "not_listed"
	OutcomeInvalidContentID       Outcome = "invalid_id"
	OutcomeUnsupportedContentType Outcome = "unsupported"
	OutcomeUpstreamFailure        Outcome = "upstream_failure"
)

// Tag returns the short machine-readable tag sent to the client
func (o Outcome) Tag() string {
	switch o {
	case OutcomeUpdated:
		return "OK"
	case OutcomeNoUpdateNeeded:
		return "NO_UPDATE"
	case OutcomeNotInAnyList:
		return "NOT_LISTED"
	case OutcomeInvalidContentID:
		return "INVALID_ID"
	case OutcomeUnsupportedContentType:
		return "SKIPPED"
	default:
		return "FAIL"
	}
}

// Date is a calendar day in the YYYY-MM-DD form MyAnimeList uses
type Date string

const dateLayout = "2006-01-02"

// DateOf returns the calendar day of t in t's location
func DateOf(t time.Time) Date {
	return Date(t.Format(dateLayout))
}

// CacheDirective describes how long clients and shared caches may keep a response
type CacheDirective struct {
	MaxAge               time.Duration
	StaleWhileRevalidate time.Duration
	StaleIfError         time.Duration
	Private              bool // the response embeds user-specific state
}
