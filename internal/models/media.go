package models

// ForeignRef is a parsed content id coming from the catalog client
type ForeignRef struct {
	Namespace Namespace
	PrimaryID string

	// Episode defaults to 1 when the id carries no episode suffix. Movies
	// and the first episode of a series addressed without a suffix share
	// this value.
	Episode int
}

// NativeID is a title id in MyAnimeList's own numbering
type NativeID int

// IDMapping is a resolved (or unresolvable) foreign id
type IDMapping struct {
	ForeignID string
	NativeID  NativeID
	Found     bool
}

// ListEntry mirrors a user's MyAnimeList entry for one title
type ListEntry struct {
	Status          ListStatus // ListStatusAbsent when the title is on no list
	EpisodesWatched int
	TotalEpisodes   int // 0 when unknown, e.g. still airing

	StartDate  *Date
	FinishDate *Date
}

// Listed reports whether the title is on any of the user's lists
func (e *ListEntry) Listed() bool {
	return e != nil && e.Status != ListStatusAbsent
}
