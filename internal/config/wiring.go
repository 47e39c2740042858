package config

import (
	"log/slog"
	"strings"

	"github.com/JonMunkholm/carteras/internal/core"
	"github.com/JonMunkholm/carteras/internal/database"
)

// StoreOptions returns the database.Open options of the configured backend.
func (c *Config) StoreOptions() database.Options {
	return database.Options{
		Driver:          strings.ToLower(c.Database.Driver),
		URL:             c.Database.URL,
		MaxConns:        c.Database.MaxConns,
		MinConns:        c.Database.MinConns,
		MaxConnLifetime: c.Database.MaxConnLifetime,
		MaxConnIdleTime: c.Database.MaxConnIdleTime,
		SQLitePath:      c.Database.SQLitePath,
	}
}

// ServiceConfig returns the import service settings.
func (c *Config) ServiceConfig(logger *slog.Logger) core.ServiceConfig {
	return core.ServiceConfig{
		MaxConcurrentCommits: c.Import.MaxConcurrentCommits,
		CommitWait:           c.Import.MaxWaitTime,
		SessionTTL:           c.Import.SessionTTL,
		Retry: core.RetryPolicy{
			MaxAttempts: c.Retry.MaxAttempts,
			BaseDelay:   c.Retry.BaseDelay,
			MaxDelay:    c.Retry.MaxDelay,
		},
		Stage: core.StageOptions{
			DefaultMunicipality: c.Import.DefaultMunicipality,
			DefaultState:        c.Import.DefaultState,
		},
		Logger: logger,
	}
}
