package models

import (
	"strconv"
	"time"
)

// MappingRecord links a foreign catalog id to a MyAnimeList id
type MappingRecord struct {
	Key       string `boltholdKey:"Key"` // "<namespace>:<foreign id>"
	Namespace string
	ForeignID int
	NativeID  int `boltholdIndex:"NativeID"`

	UpdatedAt time.Time
}

// NewMappingRecord builds the record linking foreignID in namespace ns to a
// MyAnimeList id
func NewMappingRecord(ns Namespace, foreignID int, nativeID NativeID) *MappingRecord {
	return &MappingRecord{
		Key:       MappingKey(ns, foreignID),
		Namespace: string(ns),
		ForeignID: foreignID,
		NativeID:  int(nativeID),
	}
}

// MappingKey builds the store key for a foreign id
func MappingKey(ns Namespace, foreignID int) string {
	return string(ns) + ":" + strconv.Itoa(foreignID)
}

// User is a logged-in MyAnimeList user and their addon preferences
type User struct {
	ID           string `boltholdKey:"ID"` // MyAnimeList user id
	AccessToken  string
	RefreshToken string
	ExpiresIn    int       // seconds, counted from LastUpdated
	LastUpdated  time.Time // when the token pair was issued

	// Policy
	TrackUnlisted bool // start tracking titles that are on no list
	FetchStreams  bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ExpiresAt returns when the access token stops being valid
func (u *User) ExpiresAt() time.Time {
	return u.LastUpdated.Add(time.Duration(u.ExpiresIn) * time.Second)
}
