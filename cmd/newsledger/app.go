package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/pevans/newsledger"
	"github.com/pevans/newsledger/articles"
	"github.com/pevans/newsledger/config"
	"github.com/pevans/newsledger/discovery"
	"github.com/pevans/newsledger/ledger"
	"github.com/pevans/newsledger/logger"
	"github.com/pevans/newsledger/sources"
)

// app holds the long-lived clients built once at startup.
type app struct {
	cfg     *config.Config
	log     logger.Interface
	catalog *sources.Catalog
	repo    articles.Repository
	anchor  ledger.Anchor
	crawler *newsledger.Crawler
}

// newApp loads configuration and opens every dependency. Config, catalog
// and store failures are fatal; an unreachable ledger only disables
// anchoring.
func newApp(ctx context.Context, opts *globalOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	catalog, err := loadCatalog(cfg.Crawl.SourcesFile, opts.sources)
	if err != nil {
		return nil, err
	}

	repo, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	log.Info("Article store ready", "driver", cfg.Store.Driver)

	anchor, err := openLedger(ctx, cfg.Ledger, log)
	if err != nil {
		repo.Close()
		return nil, err
	}

	fetcher := discovery.NewFetcher(discovery.FetcherConfig{
		Timeout:      cfg.Crawl.FetchTimeout,
		UserAgent:    cfg.Crawl.UserAgent,
		HostInterval: cfg.Crawl.PolitenessDelay,
	})

	crawler := newsledger.NewCrawler(
		catalog,
		discovery.NewLinkDiscoverer(fetcher),
		discovery.NewArticleExtractor(fetcher),
		repo,
		anchor,
		log,
		newsledger.CrawlerConfig{
			PolitenessDelay:  cfg.Crawl.PolitenessDelay,
			Concurrency:      cfg.Crawl.Concurrency,
			AnchorSweepLimit: cfg.Crawl.AnchorSweepLimit,
		},
	)

	return &app{
		cfg:     cfg,
		log:     log,
		catalog: catalog,
		repo:    repo,
		anchor:  anchor,
		crawler: crawler,
	}, nil
}

// openLedger builds the configured anchor. Malformed ledger settings are
// fatal. A ledger that cannot be reached at startup is logged and anchoring
// stays off for this process; articles keep being persisted and the pending
// sweep anchors them once the ledger is back and the process restarts.
func openLedger(ctx context.Context, cfg ledger.Config, log logger.Interface) (ledger.Anchor, error) {
	anchor, err := ledger.New(ctx, cfg)
	switch {
	case errors.Is(err, ledger.ErrDisabled):
		log.Info("Ledger anchoring disabled: rpc url, contract address or private key not set")
		return nil, nil
	case errors.Is(err, ledger.ErrAnchor):
		log.Warn("Ledger unreachable, anchoring disabled for this run",
			"rpc", cfg.RPCURL, "contract", cfg.ContractAddress, "error", err)
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to initialize ledger: %w", err)
	}

	log.Info("Ledger anchoring enabled", "rpc", cfg.RPCURL, "contract", cfg.ContractAddress)
	return anchor, nil
}

// Close releases the store and ledger connections and flushes the log.
func (a *app) Close() {
	if closer, ok := a.anchor.(interface{ Close() }); ok {
		closer.Close()
	}
	if err := a.repo.Close(); err != nil {
		a.log.Warn("Failed to close article store", "error", err)
	}
	_ = a.log.Sync()
}

// loadCatalog reads the catalog file, or the built-in catalog when path is
// empty, and narrows it to ids when given.
func loadCatalog(path string, ids []string) (*sources.Catalog, error) {
	catalog := sources.DefaultCatalog()
	if path != "" {
		var err error
		if catalog, err = sources.LoadCatalog(path); err != nil {
			return nil, fmt.Errorf("failed to load sources: %w", err)
		}
	}
	if len(ids) == 0 {
		return catalog, nil
	}
	return catalog.Only(ids...)
}

func openStore(ctx context.Context, cfg config.StoreConfig) (articles.Repository, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		store, err := articles.OpenPostgres(ctx, cfg.Postgres())
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return store, nil
	case config.DriverSQLite:
		store, err := articles.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to reach sqlite store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
