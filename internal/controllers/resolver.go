package controllers

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/malsync/internal/cache"
	"github.com/amaumene/malsync/internal/models"
	"github.com/amaumene/malsync/internal/utils"
)

// MappingStore is the local id-mapping lookup the resolver queries on a cache miss
type MappingStore interface {
	LookupMapping(ns models.Namespace, foreignID int) (models.NativeID, bool, error)
	LookupByNative(ns models.Namespace, nativeID models.NativeID) (int, bool, error)
}

// ReverseMapping is a cached MyAnimeList to Kitsu lookup
type ReverseMapping struct {
	KitsuID int
	Found   bool
}

// Resolver turns foreign catalog ids into MyAnimeList ids
type Resolver struct {
	store   MappingStore
	forward cache.Cache[int, models.IDMapping]
	reverse cache.Cache[models.NativeID, ReverseMapping]
	timeout time.Duration
	logger  *logrus.Logger
}

// NewResolver creates a resolver. Both caches are owned by the caller and
// bound the memory the resolver can use; timeout bounds each store query.
func NewResolver(
	store MappingStore,
	forward cache.Cache[int, models.IDMapping],
	reverse cache.Cache[models.NativeID, ReverseMapping],
	timeout time.Duration,
	logger *logrus.Logger,
) *Resolver {
	return &Resolver{
		store:   store,
		forward: forward,
		reverse: reverse,
		timeout: timeout,
		logger:  logger,
	}
}

// Resolve returns the MyAnimeList id of ref. An id that cannot be resolved,
// for whatever reason, is reported with found=false.
func (r *Resolver) Resolve(ctx context.Context, ref models.ForeignRef) (bool, models.NativeID) {
	foreignID, ok := utils.ParseDigits(ref.PrimaryID)
	if !ok {
		return false, 0
	}

	switch ref.Namespace {
	case models.NamespaceMAL:
		return true, models.NativeID(foreignID)
	case models.NamespaceKitsu:
		return r.resolveKitsu(ctx, foreignID)
	default:
		return false, 0
	}
}

func (r *Resolver) resolveKitsu(ctx context.Context, kitsuID int) (bool, models.NativeID) {
	if mapping, ok := r.forward.Get(kitsuID); ok {
		return mapping.Found, mapping.NativeID
	}

	type answer struct {
		id    models.NativeID
		found bool
	}
	res, err := withTimeout(ctx, r.timeout, func() (answer, error) {
		id, found, err := r.store.LookupMapping(models.NamespaceKitsu, kitsuID)
		return answer{id, found}, err
	})
	if err != nil {
		// Not cached: the next request gets another chance
		r.logger.WithError(err).WithField("kitsu_id", kitsuID).Warn("Mapping lookup failed")
		return false, 0
	}

	r.forward.Add(kitsuID, models.IDMapping{
		ForeignID: models.MappingKey(models.NamespaceKitsu, kitsuID),
		NativeID:  res.id,
		Found:     res.found,
	})

	if !res.found {
		r.logger.WithField("kitsu_id", kitsuID).Debug("No MyAnimeList id for Kitsu id")
	}
	return res.found, res.id
}

// ReverseKitsu returns a Kitsu id mapped to a MyAnimeList id
func (r *Resolver) ReverseKitsu(ctx context.Context, id models.NativeID) (bool, int) {
	if mapping, ok := r.reverse.Get(id); ok {
		return mapping.Found, mapping.KitsuID
	}

	res, err := withTimeout(ctx, r.timeout, func() (ReverseMapping, error) {
		kitsuID, found, err := r.store.LookupByNative(models.NamespaceKitsu, id)
		return ReverseMapping{KitsuID: kitsuID, Found: found}, err
	})
	if err != nil {
		r.logger.WithError(err).WithField("mal_id", id).Warn("Reverse mapping lookup failed")
		return false, 0
	}

	r.reverse.Add(id, res)
	return res.Found, res.KitsuID
}

// Purge drops every cached mapping, making freshly imported ones visible
func (r *Resolver) Purge() {
	r.forward.Purge()
	r.reverse.Purge()
}

// withTimeout runs fn, giving up once timeout elapses or ctx is done.
// fn keeps running in the background after a timeout; its result is dropped.
func withTimeout[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		value, err := fn()
		done <- result{value, err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case res := <-done:
		return res.value, res.err
	}
}
