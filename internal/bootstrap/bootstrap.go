package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"adsetl/internal/domain"
	"adsetl/internal/infrastructure"
	"adsetl/internal/usecase"
	"adsetl/pkg/config"
	"adsetl/pkg/logger"
	"adsetl/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// App holds the wired services shared by every entrypoint.
type App struct {
	Config  *config.Config
	Logger  *logger.Logger
	Metrics *metrics.Metrics

	ETL     *usecase.ETLService
	Loads   *usecase.LoadService
	History *usecase.HistoryService

	closers []func() error
}

// New builds the application from cfg. Call Close when done.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, reg prometheus.Registerer) (*App, error) {
	app := &App{
		Config:  cfg,
		Logger:  log,
		Metrics: metrics.New(reg),
	}

	secrets, err := app.openSecretStore(ctx)
	if err != nil {
		return nil, err
	}

	warehouse, err := app.openWarehouse(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	graph := infrastructure.NewGraphClient(infrastructure.GraphClientConfig{
		BaseURL:            cfg.Facebook.GraphAPIURL,
		RequestTimeout:     cfg.ETL.RequestTimeout,
		TokenTimeout:       cfg.ETL.TokenTimeout,
		MaxRetries:         cfg.ETL.MaxRetries,
		RateLimitPerSecond: cfg.ETL.RateLimitPerSecond,
	}, log, app.Metrics)

	tokens := usecase.NewTokenService(
		secrets,
		graph,
		usecase.TokenSecretKeys{
			Token:     cfg.Secrets.TokenKey,
			Metadata:  cfg.Secrets.TokenMetadataKey,
			AppID:     cfg.Secrets.AppIDKey,
			AppSecret: cfg.Secrets.AppSecretKey,
		},
		cfg.Facebook.TokenOverride,
		cfg.ETL.RefreshThresholdDays,
		log,
		app.Metrics,
	)

	loader := usecase.NewLoader(warehouse, cfg.Warehouse.Table, log, app.Metrics)
	csvStore := infrastructure.NewCSVStore(cfg.ETL.CSVDir, log)
	runs := infrastructure.NewRunRepository(log)

	// runs export only when a CSV directory is configured
	var exporter domain.RowExporter
	if cfg.ETL.CSVDir != "" {
		exporter = csvStore
	}

	app.ETL = usecase.NewETLService(usecase.ETLDependencies{
		Tokens:   tokens,
		Fetcher:  graph,
		Loader:   loader,
		Exporter: exporter,
		Runs:     runs,
		Accounts: cfg.Facebook.AccountIDs,
		Logger:   log,
		Metrics:  app.Metrics,
	})
	app.Loads = usecase.NewLoadService(csvStore, loader, runs, log)
	app.History = usecase.NewHistoryService(runs, log)

	log.WithFields(map[string]any{
		"accounts":       len(cfg.Facebook.AccountIDs),
		"secret_backend": cfg.Secrets.Backend,
		"warehouse":      cfg.Warehouse.Backend,
		"table":          cfg.Warehouse.Table,
	}).Info("Application wired")

	return app, nil
}

// Close releases the secret store and warehouse clients.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// openSecretStore returns a nil store when an override token is set;
// the token service never reads secrets in that case.
func (a *App) openSecretStore(ctx context.Context) (domain.SecretStore, error) {
	cfg := a.Config.Secrets

	if cfg.Backend != config.SecretBackendLocal && cfg.Backend != config.SecretBackendGCP {
		return nil, fmt.Errorf("unknown secret backend %q", cfg.Backend)
	}
	if a.Config.Facebook.TokenOverride != "" {
		a.Logger.WithField("secret_backend", cfg.Backend).Info("Token override set, not opening secret store")
		return nil, nil
	}

	if cfg.Backend == config.SecretBackendLocal {
		store, err := infrastructure.NewBadgerSecretStore(cfg.LocalPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open local secret store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	}

	store, err := infrastructure.NewSecretManagerStore(ctx, cfg.GCPProject, a.Logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)
	return store, nil
}

func (a *App) openWarehouse(ctx context.Context) (domain.Warehouse, error) {
	cfg := a.Config.Warehouse

	switch cfg.Backend {
	case config.WarehouseDuckDB:
		warehouse, err := infrastructure.NewDuckDBWarehouse(cfg.DuckDBPath, a.Logger, a.Metrics)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, warehouse.Close)
		return warehouse, nil
	case config.WarehouseBigQuery:
		warehouse, err := infrastructure.NewBigQueryWarehouse(ctx, cfg.GCPProject, a.Logger, a.Metrics)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, warehouse.Close)
		return warehouse, nil
	default:
		return nil, fmt.Errorf("unknown warehouse backend %q", cfg.Backend)
	}
}
