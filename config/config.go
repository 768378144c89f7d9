// Package config loads newsledger settings from a YAML file, .env files
// and the environment.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pevans/newsledger/articles"
	"github.com/pevans/newsledger/ledger"
	"github.com/pevans/newsledger/logger"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrInvalidConfig matches every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// StoreConfig selects and configures the article store.
type StoreConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// Postgres returns the connection settings for the PostgreSQL store.
func (s StoreConfig) Postgres() articles.PostgresConfig {
	return articles.PostgresConfig{
		Host:     s.Host,
		Port:     strconv.Itoa(s.Port),
		User:     s.User,
		Password: s.Password,
		DBName:   s.Name,
		SSLMode:  s.SSLMode,
	}
}

// CrawlConfig tunes crawl cycles.
type CrawlConfig struct {
	Schedule        string        `yaml:"schedule"`
	PolitenessDelay time.Duration `yaml:"politeness_delay"`
	// FetchTimeout of zero uses the fetcher's own default.
	FetchTimeout     time.Duration `yaml:"fetch_timeout"`
	UserAgent        string        `yaml:"user_agent"`
	Concurrency      int           `yaml:"concurrency"`
	AnchorSweepLimit int           `yaml:"anchor_sweep_limit"`
	// SourcesFile points to a YAML catalog; empty uses the built-in one.
	SourcesFile string `yaml:"sources_file"`
}

// APIConfig configures the admin HTTP API. An empty Listen disables it.
type APIConfig struct {
	Listen string `yaml:"listen"`
}

// Config is the full newsledger configuration.
type Config struct {
	Store  StoreConfig   `yaml:"store"`
	Ledger ledger.Config `yaml:"ledger"`
	Crawl  CrawlConfig   `yaml:"crawl"`
	Log    logger.Config `yaml:"log"`
	API    APIConfig     `yaml:"api"`
}

// Defaults.
const (
	DefaultStorePath        = "newsledger.db"
	DefaultPostgresPort     = 5432
	DefaultSchedule         = "@every 6h"
	DefaultPolitenessDelay  = 2 * time.Second
	DefaultFetchTimeout     = 30 * time.Second
	DefaultConcurrency      = 1
	DefaultAnchorSweepLimit = articles.DefaultPendingLimit
)

// Default returns the configuration a missing or empty config file yields.
// The file and environment are applied over it, so an explicit zero is
// kept: politeness_delay: 0 disables the delay and anchor_sweep_limit: 0
// disables the sweep.
func Default() *Config {
	return &Config{
		Crawl: CrawlConfig{
			PolitenessDelay:  DefaultPolitenessDelay,
			FetchTimeout:     DefaultFetchTimeout,
			Concurrency:      DefaultConcurrency,
			AnchorSweepLimit: DefaultAnchorSweepLimit,
		},
	}
}

// applyDefaults fills the unset fields whose zero value is never
// meaningful. A configured database host with no explicit driver selects
// PostgreSQL.
func (c *Config) applyDefaults() {
	if c.Store.Driver == "" {
		if c.Store.Host != "" {
			c.Store.Driver = DriverPostgres
		} else {
			c.Store.Driver = DriverSQLite
		}
	}
	if c.Store.Driver == DriverSQLite && c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
	}
	if c.Store.Driver == DriverPostgres && c.Store.Port == 0 {
		c.Store.Port = DefaultPostgresPort
	}

	if c.Ledger.GasLimit == 0 {
		c.Ledger.GasLimit = ledger.DefaultGasLimit
	}
	if c.Ledger.Timeout == 0 {
		c.Ledger.Timeout = ledger.DefaultTimeout
	}

	if c.Crawl.Schedule == "" {
		c.Crawl.Schedule = DefaultSchedule
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Encoding == "" {
		c.Log.Encoding = "console"
	}
}

// Validate reports every problem found, joined into one error.
func (c *Config) Validate() error {
	var problems []string

	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for sqlite")
		}
	case DriverPostgres:
		if c.Store.Host == "" {
			problems = append(problems, "store.host is required for postgres")
		}
		if c.Store.Name == "" {
			problems = append(problems, "store.name is required for postgres")
		}
		if c.Store.Port <= 0 || c.Store.Port > 65535 {
			problems = append(problems, fmt.Sprintf("store.port %d out of range", c.Store.Port))
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown store.driver %q", c.Store.Driver))
	}

	if c.Crawl.PolitenessDelay < 0 {
		problems = append(problems, "crawl.politeness_delay must not be negative")
	}
	if c.Crawl.FetchTimeout < 0 {
		problems = append(problems, "crawl.fetch_timeout must not be negative")
	}
	if c.Crawl.Concurrency < 1 {
		problems = append(problems, "crawl.concurrency must be at least 1")
	}
	if c.Crawl.AnchorSweepLimit < 0 {
		problems = append(problems, "crawl.anchor_sweep_limit must not be negative")
	}
	if c.Ledger.Timeout < 0 {
		problems = append(problems, "ledger.timeout must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
