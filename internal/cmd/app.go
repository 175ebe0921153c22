package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/99designs/keyring"

	"github.com/jmgilman/oceanctl/internal/api"
	"github.com/jmgilman/oceanctl/internal/auth"
	"github.com/jmgilman/oceanctl/internal/cache"
	"github.com/jmgilman/oceanctl/internal/catalog"
	"github.com/jmgilman/oceanctl/internal/config"
	"github.com/jmgilman/oceanctl/internal/jobs"
	"github.com/jmgilman/oceanctl/internal/keychain"
	"github.com/jmgilman/oceanctl/internal/metrics"
	"github.com/jmgilman/oceanctl/internal/model"
)

// keyringPasswordEnv unlocks the file keyring backend without a prompt.
const keyringPasswordEnv = "OCEANCTL_KEYRING_PASSWORD"

// App holds the components a command works with.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Store   *cache.Store
	Client  *api.Client
	Keys    keychain.Keychain
	Session *auth.Session
	Jobs    *jobs.Tracker

	catalog *catalog.Loader
}

// NewApp wires the cache, the service client and the domain components
// described by cfg.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	m := metrics.New()
	store := cache.New(
		cache.WithLogger(logger),
		cache.WithRecorder(m),
		cache.WithContext(ctx),
	)

	keys := keychain.Lazy(keychainConfig(cfg))

	client, err := api.New(cfg.API.BaseURL,
		api.WithTimeout(cfg.API.Timeout),
		api.WithTokenSource(auth.NewTokens(keys)),
		api.WithLogger(logger),
	)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create api client: %w", err)
	}

	tracker := jobs.New(store, client,
		jobs.WithLogger(logger),
		jobs.WithRecorder(m),
		jobs.WithJournal(jobs.NewFileJournal(cfg.Jobs.Journal)),
	)
	if err := tracker.Restore(ctx); err != nil {
		logger.Warn("restore job journal", "error", err)
	}

	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: m,
		Store:   store,
		Client:  client,
		Keys:    keys,
		Session: auth.NewSession(store, client, keys, auth.WithLogger(logger)),
		Jobs:    tracker,
	}
	app.catalog = app.newCatalog(cfg.Catalog.Direct)
	return app, nil
}

// Catalog returns the catalog loader. direct selects reading catalogs
// straight from each THREDDS server rather than through the service.
func (a *App) Catalog(direct bool) *catalog.Loader {
	if direct == a.Config.Catalog.Direct {
		return a.catalog
	}
	return a.newCatalog(direct)
}

func (a *App) newCatalog(direct bool) *catalog.Loader {
	opts := []catalog.Option{catalog.WithLogger(a.Logger)}
	if direct {
		opts = append(opts, catalog.WithDirect(
			catalog.WithPasswords(a.serverPassword),
			catalog.WithDirectLogger(a.Logger),
		))
	}
	return catalog.New(a.Store, a.Client, opts...)
}

// serverPassword reads the stored password of a server, or "" when none is
// stored.
func (a *App) serverPassword(_ context.Context, srv model.Server) (string, error) {
	pw, err := a.Keys.Get(keychain.ServerAccount(srv.ID))
	if errors.Is(err, keychain.ErrNotFound) {
		return "", nil
	}
	return pw, err
}

// Close stops the cache.
func (a *App) Close() {
	a.Store.Close()
}

func keychainConfig(cfg *config.Config) keychain.Config {
	kc := keychain.Config{
		Backend: cfg.Keyring.Backend,
		FileDir: cfg.Keyring.FileDir,
	}
	if pw, ok := os.LookupEnv(keyringPasswordEnv); ok {
		kc.FilePassword = keyring.FixedStringPrompt(pw)
	}
	return kc
}
