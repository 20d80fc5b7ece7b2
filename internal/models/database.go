package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

// ErrDatabaseLocked is returned when another process, usually a running
// server, holds the database file
var ErrDatabaseLocked = errors.New("database is locked by another malsync process")

// Database wraps the bolthold store
type Database struct {
	store *bolthold.Store
}

// NewDatabase creates a new database connection
func NewDatabase(path string) (*Database, error) {
	store, err := bolthold.Open(path, 0600, &bolthold.Options{
		Options: &bbolt.Options{
			Timeout: 1 * time.Second,
		},
	})
	if errors.Is(err, bbolt.ErrTimeout) {
		return nil, fmt.Errorf("failed to open database %s: %w", path, ErrDatabaseLocked)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Database{store: store}, nil
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.store.Close()
}

// Mapping operations

// LookupMapping returns the MyAnimeList id mapped to a foreign id.
// A missing mapping is reported with found=false and a nil error.
func (db *Database) LookupMapping(ns Namespace, foreignID int) (NativeID, bool, error) {
	var record MappingRecord
	err := db.store.Get(MappingKey(ns, foreignID), &record)
	if errors.Is(err, bolthold.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return NativeID(record.NativeID), true, nil
}

// LookupByNative returns the foreign id in namespace ns mapped to a
// MyAnimeList id. When several foreign ids map to the same title the lowest
// one wins so that the answer is stable across imports.
func (db *Database) LookupByNative(ns Namespace, nativeID NativeID) (int, bool, error) {
	var records []*MappingRecord
	query := bolthold.Where("NativeID").Eq(int(nativeID)).Index("NativeID").And("Namespace").Eq(string(ns))
	if err := db.store.Find(&records, query); err != nil {
		return 0, false, err
	}
	if len(records) == 0 {
		return 0, false, nil
	}

	best := records[0].ForeignID
	for _, record := range records[1:] {
		if record.ForeignID < best {
			best = record.ForeignID
		}
	}
	return best, true, nil
}

// UpsertMappings inserts or replaces mapping records in a single transaction
func (db *Database) UpsertMappings(records []*MappingRecord) error {
	now := time.Now()
	return db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		for _, record := range records {
			record.Key = MappingKey(Namespace(record.Namespace), record.ForeignID)
			record.UpdatedAt = now
			if err := db.store.TxUpsert(tx, record.Key, record); err != nil {
				return fmt.Errorf("failed to upsert mapping %s: %w", record.Key, err)
			}
		}
		return nil
	})
}

// CountMappings returns the number of stored mapping records
func (db *Database) CountMappings() (int, error) {
	count, err := db.store.Count(&MappingRecord{}, nil)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// User operations

// ErrUserNotFound is returned when no user is stored under an id
var ErrUserNotFound = errors.New("user not found")

// GetUser retrieves a user by id
func (db *Database) GetUser(id string) (*User, error) {
	var user User
	err := db.store.Get(id, &user)
	if errors.Is(err, bolthold.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SaveUser creates or replaces a user
func (db *Database) SaveUser(user *User) error {
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	return db.store.Upsert(user.ID, user)
}

// DeleteUser deletes a user by id
func (db *Database) DeleteUser(id string) error {
	err := db.store.Delete(id, &User{})
	if errors.Is(err, bolthold.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}
