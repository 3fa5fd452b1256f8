package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/mridulmehra/CyberGaurd-Backend/internal/config"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/directory"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/directory/sqlstore"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/logging"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/messaging"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/moderation"
)

// openDirectory opens the configured room directory and applies pending
// migrations when auto_migrate is set.
func openDirectory(cfg config.DatabaseConfig) (directory.Directory, error) {
	if cfg.Driver == config.DriverMemory {
		return directory.NewMemory(), nil
	}

	store, err := sqlstore.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := store.Migrate(); err != nil {
			store.Close()
			return nil, err
		}
	}
	return store, nil
}

// newClassifier builds the configured classifier and the function that
// releases it.
func newClassifier(cfg config.ModerationConfig, nc *messaging.NATSClient) (moderation.Classifier, func(), error) {
	noop := func() {}
	log := logging.Component("moderation")

	switch cfg.Backend {
	case config.BackendGemini:
		if cfg.APIKey == "" {
			log.Warn().Msg("no Gemini API key configured, every message passes moderation")
			return moderation.Nop{}, noop, nil
		}
		g, err := moderation.NewGeminiClassifier(context.Background(), cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, noop, err
		}
		return g, func() { g.Close() }, nil

	case config.BackendRemote:
		if nc == nil {
			return nil, noop, errors.New("remote moderation requires a NATS connection")
		}
		return moderation.NewRemoteClassifier(nc), noop, nil

	case config.BackendLocal:
		return moderation.NewLocalClassifier(nil), noop, nil

	case config.BackendNone:
		return moderation.Nop{}, noop, nil
	}
	return nil, noop, fmt.Errorf("unknown moderation backend %q", cfg.Backend)
}
