package main

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/malsync/internal/cache"
	"github.com/amaumene/malsync/internal/config"
	"github.com/amaumene/malsync/internal/controllers"
	"github.com/amaumene/malsync/internal/models"
	"github.com/amaumene/malsync/internal/services/animelists"
	"github.com/amaumene/malsync/internal/services/identity"
	"github.com/amaumene/malsync/internal/services/mal"
	"github.com/amaumene/malsync/internal/services/streams"
	"github.com/amaumene/malsync/internal/services/upstream"
	"github.com/amaumene/malsync/internal/utils"
)

// app holds every long-lived component, built once at startup
type app struct {
	cfg    *config.Config
	logger *logrus.Logger
	db     *models.Database

	forwardCache  *cache.LRU[int, models.IDMapping]
	reverseCache  *cache.LRU[models.NativeID, controllers.ReverseMapping]
	upstreamCache *cache.LRU[string, upstream.Result]

	users      *identity.Store
	resolver   *controllers.Resolver
	reconciler *controllers.ReconcileController
	streams    *controllers.StreamController
	importer   *controllers.MappingImportController
}

func newApp() (*app, error) {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// 2. Setup logger
	logger := utils.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.WithField("config_dir", filepath.Dir(cfg.DatabaseFile)).Info("Configuration loaded")

	// 3. Initialize database
	db, err := models.NewDatabase(cfg.DatabaseFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Info("Database initialized")

	a := &app{cfg: cfg, logger: logger, db: db}
	if err := a.build(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) build() error {
	cfg, logger := a.cfg, a.logger
	var err error

	// 4. Caches
	if a.forwardCache, err = cache.NewLRU[int, models.IDMapping]("kitsu_to_mal", cfg.MappingCacheSize); err != nil {
		return err
	}
	if a.reverseCache, err = cache.NewLRU[models.NativeID, controllers.ReverseMapping]("mal_to_kitsu", cfg.MappingCacheSize); err != nil {
		return err
	}
	if a.upstreamCache, err = cache.NewLRU[string, upstream.Result]("stream_aggregator", cfg.UpstreamCacheSize); err != nil {
		return err
	}

	// 5. Initialize services
	malClient, err := mal.NewClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize MyAnimeList client: %w", err)
	}

	memo := upstream.NewMemoizer("stream_aggregator", a.upstreamCache, cfg.UpstreamTimeout, logger)
	streamsClient, err := streams.NewClient(cfg, memo, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize stream aggregator client: %w", err)
	}

	datasetClient, err := animelists.NewClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize mapping source client: %w", err)
	}

	a.users = identity.NewStore(a.db, cfg.UserCacheTTL, logger)
	logger.Info("Services initialized")

	// 6. Initialize controllers
	a.resolver = controllers.NewResolver(a.db, a.forwardCache, a.reverseCache, cfg.LookupTimeout, logger)
	a.reconciler = controllers.NewReconcileController(a.resolver, a.users, malClient, logger)
	a.streams = controllers.NewStreamController(a.resolver, a.users, streamsClient, logger)
	a.importer = controllers.NewMappingImportController(datasetClient, a.db, a.resolver, logger)
	logger.Info("Controllers initialized")

	return nil
}

// caches lists the caches reported in metrics and on /status
func (a *app) caches() []cache.Named {
	return []cache.Named{a.forwardCache, a.reverseCache, a.upstreamCache}
}

func (a *app) Close() error {
	return a.db.Close()
}
