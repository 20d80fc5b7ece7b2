package controllers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/malsync/internal/metrics"
	"github.com/amaumene/malsync/internal/models"
	"github.com/amaumene/malsync/internal/services/animelists"
)

const importBatchSize = 1000

// MappingSource downloads the cross-catalog id dataset
type MappingSource interface {
	FetchMappings(ctx context.Context) ([]animelists.Mapping, error)
}

// MappingWriter persists id mappings
type MappingWriter interface {
	UpsertMappings(records []*models.MappingRecord) error
	CountMappings() (int, error)
}

// Purger drops cached state
type Purger interface {
	Purge()
}

// MappingImportController refreshes the local id-mapping store
type MappingImportController struct {
	source     MappingSource
	db         MappingWriter
	resolver   Purger
	newBackOff func() backoff.BackOff
	logger     *logrus.Logger
}

// NewMappingImportController creates a new import controller
func NewMappingImportController(source MappingSource, db MappingWriter, resolver Purger, logger *logrus.Logger) *MappingImportController {
	return &MappingImportController{
		source:   source,
		db:       db,
		resolver: resolver,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 5 * time.Second
			b.MaxElapsedTime = 10 * time.Minute
			return b
		},
		logger: logger,
	}
}

// Import downloads the mapping dataset and stores every mapping in it.
// It returns the number of mappings imported.
func (c *MappingImportController) Import(ctx context.Context) (int, error) {
	c.logger.Info("Starting mapping import")

	var mappings []animelists.Mapping
	operation := func() error {
		var err error
		mappings, err = c.source.FetchMappings(ctx)
		var statusErr *animelists.StatusError
		if errors.As(err, &statusErr) && statusErr.Permanent() {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.WithError(err).WithField("retry_in", wait.String()).Warn("Mapping download failed, retrying")
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(c.newBackOff(), ctx), notify); err != nil {
		metrics.MappingImportsTotal.WithLabelValues("download_failed").Inc()
		return 0, fmt.Errorf("failed to download mappings: %w", err)
	}

	records := make([]*models.MappingRecord, 0, importBatchSize)
	flush := func() error {
		if len(records) == 0 {
			return nil
		}
		if err := c.db.UpsertMappings(records); err != nil {
			return err
		}
		records = records[:0]
		return nil
	}

	for _, mapping := range mappings {
		records = append(records, models.NewMappingRecord(models.NamespaceKitsu, mapping.KitsuID, models.NativeID(mapping.MALID)))
		if len(records) == importBatchSize {
			if err := flush(); err != nil {
				metrics.MappingImportsTotal.WithLabelValues("store_failed").Inc()
				return 0, fmt.Errorf("failed to store mappings: %w", err)
			}
		}
	}
	if err := flush(); err != nil {
		metrics.MappingImportsTotal.WithLabelValues("store_failed").Inc()
		return 0, fmt.Errorf("failed to store mappings: %w", err)
	}

	c.resolver.Purge()
	metrics.MappingImportsTotal.WithLabelValues("ok").Inc()

	if count, err := c.db.CountMappings(); err != nil {
		c.logger.WithError(err).Warn("Failed to count mappings")
	} else {
		metrics.MappingRecords.Set(float64(count))
	}

	c.logger.WithField("count", len(mappings)).Info("Mapping import completed")
	return len(mappings), nil
}

// NeedsImport reports whether the mapping store is still empty
func (c *MappingImportController) NeedsImport() (bool, error) {
	count, err := c.db.CountMappings()
	if err != nil {
		return false, err
	}
	metrics.MappingRecords.Set(float64(count))
	return count == 0, nil
}
