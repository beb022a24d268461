package core

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	"secret-reflector/internal/config"
	"secret-reflector/internal/registry"
	repo "secret-reflector/internal/repository"
	psqlRepo "secret-reflector/internal/repository/postgres"
	"secret-reflector/internal/service/engine"
	"secret-reflector/internal/service/notifier"
	"secret-reflector/internal/service/reloader"
	"secret-reflector/pkg/db"
	"secret-reflector/pkg/db/migrations"
	"secret-reflector/pkg/log"
)

type Wiring struct {
	config *config.Config
	logger zerolog.Logger

	datastore      *db.PostgresDatastore
	storeRegistry  *registry.StoreRegistry
	changeNotifier *notifier.ChangeNotifier
}

func NewWiring(cfg *config.Config) *Wiring {
	return &Wiring{
		config: cfg,
		logger: log.Logger.With().Str("component", "wiring").Logger(),
	}
}

func (w *Wiring) GetConfig() *config.Config {
	return w.config
}

func (w *Wiring) InitPostgresDatastore() *db.PostgresDatastore {
	if w.datastore == nil {
		var err error
		w.datastore, err = db.NewPostgresDatastore(&w.config.Postgres, migrations.NewPostgresMigration())
		if err != nil {
			w.logger.Error().Err(err).Msg("Failed to create Postgres datastore")
			os.Exit(-1)
		}
	}
	return w.datastore
}

func (w *Wiring) InitTargetSecretRepository() repo.TargetSecretRepository {
	return psqlRepo.NewTargetSecretRepository(w.InitPostgresDatastore())
}

func (w *Wiring) InitStoreRegistry(ctx context.Context) *registry.StoreRegistry {
	if w.storeRegistry == nil {
		w.storeRegistry = registry.NewStoreRegistry(w.config.Engine.FetchSlotsPerStore)
		for _, descriptor := range w.config.StoreDescriptors() {
			if err := w.storeRegistry.Register(ctx, descriptor); err != nil {
				w.logger.Error().Err(err).Str("store", descriptor.Name).Msg("Failed to register store")
				os.Exit(-1)
			}
		}
	}
	return w.storeRegistry
}

func (w *Wiring) InitChangeNotifier() *notifier.ChangeNotifier {
	if w.changeNotifier == nil {
		w.changeNotifier = notifier.NewChangeNotifier()
	}
	return w.changeNotifier
}

func (w *Wiring) InitSyncEngine(ctx context.Context) *engine.SyncEngine {
	return engine.NewSyncEngine(
		w.InitStoreRegistry(ctx),
		w.InitTargetSecretRepository(),
		w.InitChangeNotifier(),
		w.config.SecretMappings(),
		w.config.Engine.ReconcileTimeout,
	)
}

func (w *Wiring) InitReloader() *reloader.Reloader {
	targets := make([]string, 0, len(w.config.Mappings))
	for _, mapping := range w.config.Mappings {
		targets = append(targets, mapping.Target)
	}
	return reloader.NewReloader(w.InitChangeNotifier(), targets)
}
