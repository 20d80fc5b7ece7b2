package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/malsync/internal/metrics"
	"github.com/amaumene/malsync/internal/models"
	"github.com/amaumene/malsync/internal/services/identity"
	"github.com/amaumene/malsync/internal/services/mal"
)

// ListClient reads and writes a user's MyAnimeList entries
type ListClient interface {
	GetEntry(ctx context.Context, accessToken string, id models.NativeID) (*models.ListEntry, error)
	SetEntry(ctx context.Context, accessToken string, id models.NativeID, update mal.Update) error
}

// UserStore supplies credentials and per-user policy
type UserStore interface {
	GetValidUser(ctx context.Context, userID string) (*identity.Credentials, identity.Policy, error)
}

// IDResolver maps foreign content ids to MyAnimeList ids
type IDResolver interface {
	Resolve(ctx context.Context, ref models.ForeignRef) (bool, models.NativeID)
}

// Result is the classified answer to one reconciliation request
type Result struct {
	Outcome models.Outcome
	Message string
}

// ReconcileController writes the viewer's progress back to MyAnimeList
type ReconcileController struct {
	resolver IDResolver
	users    UserStore
	list     ListClient
	now      func() time.Time
	logger   *logrus.Logger
}

// NewReconcileController creates a new reconcile controller
func NewReconcileController(resolver IDResolver, users UserStore, list ListClient, logger *logrus.Logger) *ReconcileController {
	return &ReconcileController{
		resolver: resolver,
		users:    users,
		list:     list,
		now:      time.Now,
		logger:   logger,
	}
}

// Reconcile records that userID finished the episode identified by
// contentID. It never returns an error: every failure is an Outcome.
func (c *ReconcileController) Reconcile(ctx context.Context, userID, contentType, contentID string) Result {
	result := c.reconcile(ctx, userID, contentType, contentID)

	metrics.ReconcileOutcomesTotal.WithLabelValues(string(result.Outcome)).Inc()
	c.logger.WithFields(logrus.Fields{
		"user_id":      userID,
		"content_type": contentType,
		"content_id":   contentID,
		"outcome":      result.Outcome,
	}).Info(result.Message)

	return result
}

func (c *ReconcileController) reconcile(ctx context.Context, userID, contentType, contentID string) Result {
	if !SupportedContentType(contentType) {
		return Result{models.OutcomeUnsupportedContentType, "Content type not supported"}
	}

	ref, err := ParseContentID(contentID)
	if errors.Is(err, ErrUnsupportedID) {
		return Result{models.OutcomeUnsupportedContentType, "IMDb ids are not tracked"}
	}
	if err != nil {
		return Result{models.OutcomeInvalidContentID, "Invalid content id"}
	}

	found, nativeID := c.resolver.Resolve(ctx, ref)
	if !found {
		return Result{models.OutcomeInvalidContentID, "No MyAnimeList id found for this content"}
	}

	creds, policy, err := c.users.GetValidUser(ctx, userID)
	if err != nil {
		c.logger.WithError(err).WithField("user_id", userID).Warn("User lookup failed")
		return Result{models.OutcomeUpstreamFailure, identity.UserMessage(err)}
	}

	entry, err := c.list.GetEntry(ctx, creds.AccessToken, nativeID)
	if err != nil {
		if mal.IsNotFound(err) {
			return Result{models.OutcomeInvalidContentID, "Title not found on MyAnimeList"}
		}
		c.logger.WithFields(mal.LogFields(err)).WithField("mal_id", nativeID).Error("Failed to fetch list status")
		return Result{models.OutcomeUpstreamFailure, "Failed to fetch watched status"}
	}

	if !entry.Listed() {
		if !policy.TrackUnlisted {
			return Result{models.OutcomeNotInAnyList, "Title is not in any of your lists"}
		}
		entry.Status = models.ListStatusWatching
		entry.EpisodesWatched = 0
	}

	status, ok := NextStatus(entry.Status, ref.Episode, entry.EpisodesWatched, entry.TotalEpisodes)
	if !ok {
		return Result{models.OutcomeNoUpdateNeeded, "Nothing to update"}
	}

	today := models.DateOf(c.now())
	start, finish := DetermineDates(today, entry.StartDate, entry.FinishDate, entry.EpisodesWatched, ref.Episode, entry.TotalEpisodes)

	update := mal.Update{
		Status:  status,
		Episode: ref.Episode,
	}
	// Only newly determined dates are sent
	if entry.StartDate == nil {
		update.StartDate = start
	}
	if entry.FinishDate == nil {
		update.FinishDate = finish
	}

	if err := c.list.SetEntry(ctx, creds.AccessToken, nativeID, update); err != nil {
		c.logger.WithFields(mal.LogFields(err)).WithField("mal_id", nativeID).Error("Failed to update list status")
		return Result{models.OutcomeUpstreamFailure, "Failed to update watched status"}
	}

	return Result{models.OutcomeUpdated, "Updated watched status"}
}
