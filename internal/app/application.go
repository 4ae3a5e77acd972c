// Package app wires the process: it opens the database, seeds the default
// dork catalog, builds the resource pools and search clients and hands the
// assembled orchestrator to whoever drives it (the HTTP server or the CLI).
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/raysh454/dorkrecon/internal/catalog"
	"github.com/raysh454/dorkrecon/internal/logging"
	"github.com/raysh454/dorkrecon/internal/pool"
	"github.com/raysh454/dorkrecon/internal/ratelimit"
	"github.com/raysh454/dorkrecon/internal/scan"
	"github.com/raysh454/dorkrecon/internal/searcher"
	"github.com/raysh454/dorkrecon/internal/store"
	"github.com/raysh454/dorkrecon/internal/webclient"
)

// Application holds the wired components for one process.
type Application struct {
	Config       *Config
	Logger       logging.Logger
	Store        *store.Store
	Catalog      *catalog.Catalog
	Proxies      *pool.Selector
	Tokens       *pool.Selector
	Tracker      *scan.Tracker
	Orchestrator *scan.Orchestrator

	db     *sql.DB
	client webclient.WebClient
}

// New builds an Application from config. The storage root is created if
// missing, the database schema is applied, and the default dork catalog is
// seeded on first run.
func New(ctx context.Context, cfg *Config, logger logging.Logger) (*Application, error) {
	root, err := expandPath(cfg.StorageRoot)
	if err != nil {
		return nil, fmt.Errorf("expanding storage root path: %w", err)
	}
	cfg.StorageRoot = root
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(root, "dorkrecon.db"))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	st, err := store.New(db, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating store: %w", err)
	}

	defaults, err := catalog.DefaultDorks()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("loading default dorks: %w", err)
	}
	if err := st.SeedDorks(ctx, defaults); err != nil {
		db.Close()
		return nil, fmt.Errorf("seeding dorks: %w", err)
	}

	proxies, err := st.ListProxies(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("loading proxies: %w", err)
	}
	tokens, err := st.ListTokens(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("loading tokens: %w", err)
	}
	proxyPool := pool.NewSelector(pool.KindProxy, cfg.Proxies, proxies, st, logger)
	tokenPool := pool.NewSelector(pool.KindToken, cfg.Tokens, tokens, st, logger)

	client, err := webclient.New(cfg.WebClient, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating web client: %w", err)
	}

	cat := catalog.New(st, logger)
	tracker := scan.NewTracker()
	orch := scan.NewOrchestrator(cfg.Scan, scan.Deps{
		Store:    st,
		Catalog:  cat,
		Limiters: ratelimit.NewRegistry(cfg.RateLimitDefaults, cfg.RateLimits, logger),
		Searchers: map[string]searcher.Searcher{
			catalog.PlatformGoogle: searcher.NewGoogleClient(cfg.Searcher, client, logger),
			catalog.PlatformGitHub: searcher.NewGitHubClient(cfg.Searcher, client, logger),
		},
		Selectors: map[string]*pool.Selector{
			catalog.PlatformGoogle: proxyPool,
			catalog.PlatformGitHub: tokenPool,
		},
		Tracker: tracker,
		Logger:  logger,
	})

	return &Application{
		Config:       cfg,
		Logger:       logger,
		Store:        st,
		Catalog:      cat,
		Proxies:      proxyPool,
		Tokens:       tokenPool,
		Tracker:      tracker,
		Orchestrator: orch,
		db:           db,
		client:       client,
	}, nil
}

// Close releases the web client and the database.
func (a *Application) Close() error {
	var firstErr error
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			firstErr = err
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
