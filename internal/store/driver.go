package store

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var dialectors = map[string]func(dsn string) gorm.Dialector{
	"sqlite":     sqlite.Open,
	"sqlite3":    sqlite.Open,
	"postgres":   postgres.Open,
	"postgresql": postgres.Open,
}

// GetDialector resolves DATABASE_DRIVER (case-insensitive) to a gorm dialector.
func GetDialector(driver, dsn string) (gorm.Dialector, error) {
	open, ok := dialectors[strings.ToLower(strings.TrimSpace(driver))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	if dsn == "" {
		return nil, fmt.Errorf("store: empty DSN for driver %q", driver)
	}
	return open(dsn), nil
}

// isSharedMemory reports whether every pooled connection would open its own
// empty in-memory sqlite database.
func isSharedMemory(dsn string) bool {
	return dsn == ":memory:" || strings.HasPrefix(dsn, "file::memory:")
}
