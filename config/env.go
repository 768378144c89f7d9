package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, key, value)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := parseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
	}
	return d, nil
}

// applyEnv overlays environment variables on c.
func (c *Config) applyEnv() error {
	var err error

	c.Store.Driver = getEnv("NEWSLEDGER_STORE_DRIVER", c.Store.Driver)
	c.Store.Path = getEnv("NEWSLEDGER_STORE_PATH", c.Store.Path)
	c.Store.Host = getEnv("DB_HOST", c.Store.Host)
	c.Store.Name = getEnv("DB_NAME", c.Store.Name)
	c.Store.User = getEnv("DB_USER", c.Store.User)
	c.Store.Password = getEnv("DB_PASSWORD", c.Store.Password)
	c.Store.SSLMode = getEnv("DB_SSLMODE", c.Store.SSLMode)
	if c.Store.Port, err = getEnvInt("DB_PORT", c.Store.Port); err != nil {
		return err
	}

	c.Ledger.RPCURL = getEnv("POLYGON_RPC", c.Ledger.RPCURL)
	c.Ledger.ContractAddress = getEnv("CONTRACT_ADDRESS", c.Ledger.ContractAddress)
	c.Ledger.PrivateKey = getEnv("PRIVATE_KEY", c.Ledger.PrivateKey)

	c.Crawl.Schedule = getEnv("NEWSLEDGER_SCHEDULE", c.Crawl.Schedule)
	c.Crawl.SourcesFile = getEnv("NEWSLEDGER_SOURCES_FILE", c.Crawl.SourcesFile)
	if c.Crawl.PolitenessDelay, err = getEnvDuration("NEWSLEDGER_POLITENESS_DELAY", c.Crawl.PolitenessDelay); err != nil {
		return err
	}
	if c.Crawl.AnchorSweepLimit, err = getEnvInt("NEWSLEDGER_ANCHOR_SWEEP_LIMIT", c.Crawl.AnchorSweepLimit); err != nil {
		return err
	}

	c.Log.Level = getEnv("NEWSLEDGER_LOG_LEVEL", c.Log.Level)
	c.API.Listen = getEnv("NEWSLEDGER_API_LISTEN", c.API.Listen)

	return nil
}

// parseDuration extends time.ParseDuration to support 'd' (days) and 'w'
// (weeks)
func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	units := map[string]time.Duration{"d": 24 * time.Hour, "w": 7 * 24 * time.Hour}
	for suffix, unit := range units {
		if !strings.HasSuffix(s, suffix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(s, suffix))
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		return time.Duration(n) * unit, nil
	}

	return 0, fmt.Errorf("invalid duration: %s", s)
}
