package bootstrap

import (
	"fmt"

	"github.com/go-authgate/wpgate/internal/config"
	"github.com/go-authgate/wpgate/internal/store"

	"go.uber.org/zap"
)

// initializeDatabase creates the database connection, migrates and seeds it
func initializeDatabase(cfg *config.Config, log *zap.Logger) (*store.Store, error) {
	db, err := store.New(cfg.DatabaseDriver, cfg.DatabaseDSN, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, nil
}
