// Package identity answers "who is this user and may we act for them".
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/malsync/internal/models"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrSessionInvalid = errors.New("session invalid")
	ErrSessionExpired = errors.New("session expired")
)

// UserMessage returns the message shown to the user for an identity error
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrUserNotFound):
		return "No user found. Please re-login to MyAnimeList."
	case errors.Is(err, ErrSessionInvalid):
		return "Invalid MAL session. Please refresh or login again."
	case errors.Is(err, ErrSessionExpired):
		return "MAL session expired. Please refresh or login again."
	default:
		return "Unable to verify MyAnimeList session."
	}
}

// Credentials authorize calls to MyAnimeList on behalf of a user
type Credentials struct {
	UserID      string
	AccessToken string
}

// Policy holds the per-user switches the reconciliation engine branches on
type Policy struct {
	TrackUnlisted bool
	FetchStreams  bool
}

// UserDatabase is the persistence the store reads and writes users through
type UserDatabase interface {
	GetUser(id string) (*models.User, error)
	SaveUser(user *models.User) error
	DeleteUser(id string) error
}

// Store validates users against the database, keeping recently read
// records in a short-lived cache
type Store struct {
	db     UserDatabase
	cache  *gocache.Cache // nil when caching is disabled
	now    func() time.Time
	logger *logrus.Logger
}

// NewStore creates a user store. ttl <= 0 disables the record cache.
func NewStore(db UserDatabase, ttl time.Duration, logger *logrus.Logger) *Store {
	s := &Store{
		db:     db,
		now:    time.Now,
		logger: logger,
	}
	if ttl > 0 {
		s.cache = gocache.New(ttl, 2*ttl)
	}
	return s
}

// GetValidUser returns the user's credentials and policy, or an error if the
// user is unknown or their session can no longer be used
func (s *Store) GetValidUser(ctx context.Context, userID string) (*Credentials, Policy, error) {
	if err := ctx.Err(); err != nil {
		return nil, Policy{}, err
	}

	user, err := s.getUser(userID)
	if err != nil {
		return nil, Policy{}, err
	}

	if user.LastUpdated.IsZero() || user.AccessToken == "" {
		return nil, Policy{}, ErrSessionInvalid
	}
	// Expiry is checked on every call, cached or not
	if s.now().After(user.ExpiresAt()) {
		return nil, Policy{}, ErrSessionExpired
	}

	creds := &Credentials{
		UserID:      user.ID,
		AccessToken: user.AccessToken,
	}
	policy := Policy{
		TrackUnlisted: user.TrackUnlisted,
		FetchStreams:  user.FetchStreams,
	}
	return creds, policy, nil
}

func (s *Store) getUser(userID string) (*models.User, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(userID); ok {
			return cached.(*models.User), nil
		}
	}

	user, err := s.db.GetUser(userID)
	if errors.Is(err, models.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if s.cache != nil {
		s.cache.SetDefault(userID, user)
	}
	return user, nil
}

// PutUser creates or replaces a user
func (s *Store) PutUser(user *models.User) error {
	if user.ID == "" {
		return fmt.Errorf("user id is required")
	}
	if err := s.db.SaveUser(user); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	s.forget(user.ID)

	s.logger.WithField("user_id", user.ID).Info("Stored user")
	return nil
}

// RemoveUser deletes a user
func (s *Store) RemoveUser(userID string) error {
	err := s.db.DeleteUser(userID)
	s.forget(userID)
	if errors.Is(err, models.ErrUserNotFound) {
		return ErrUserNotFound
	}
	return err
}

func (s *Store) forget(userID string) {
	if s.cache != nil {
		s.cache.Delete(userID)
	}
}
