package models

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMappings(t *testing.T) {
	db := openTestDB(t)

	count, err := db.CountMappings()
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.NoError(t, db.UpsertMappings([]*MappingRecord{
		NewMappingRecord(NamespaceKitsu, 1, 1),
		NewMappingRecord(NamespaceKitsu, 7442, 16498),
		NewMappingRecord(NamespaceKitsu, 8271, 16498),
	}))

	native, found, err := db.LookupMapping(NamespaceKitsu, 7442)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, NativeID(16498), native)

	_, found, err = db.LookupMapping(NamespaceKitsu, 404)
	require.NoError(t, err)
	assert.False(t, found)

	foreign, found, err := db.LookupByNative(NamespaceKitsu, 16498)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 7442, foreign)

	_, found, err = db.LookupByNative(NamespaceKitsu, 999999)
	require.NoError(t, err)
	assert.False(t, found)

	count, err = db.CountMappings()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestUpsertMappings_Replaces(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.UpsertMappings([]*MappingRecord{NewMappingRecord(NamespaceKitsu, 5, 50)}))
	require.NoError(t, db.UpsertMappings([]*MappingRecord{NewMappingRecord(NamespaceKitsu, 5, 51)}))

	native, found, err := db.LookupMapping(NamespaceKitsu, 5)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, NativeID(51), native)

	count, err := db.CountMappings()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUsers(t *testing.T) {
	db := openTestDB(t)

	_, err := db.GetUser("42")
	assert.ErrorIs(t, err, ErrUserNotFound)

	issued := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.SaveUser(&User{
		ID:           "42",
		AccessToken:  "access",
		ExpiresIn:    3600,
		LastUpdated:  issued,
		FetchStreams: true,
	}))

	user, err := db.GetUser("42")
	require.NoError(t, err)
	assert.Equal(t, "access", user.AccessToken)
	assert.True(t, user.FetchStreams)
	assert.False(t, user.CreatedAt.IsZero())
	assert.True(t, user.ExpiresAt().Equal(issued.Add(time.Hour)))

	require.NoError(t, db.DeleteUser("42"))
	_, err = db.GetUser("42")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestNewDatabase_Locked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := NewDatabase(path)
	require.NoError(t, err)
	defer db.Close()

	_, err = NewDatabase(path)
	require.ErrorIs(t, err, ErrDatabaseLocked)
	assert.Contains(t, err.Error(), path)
}
