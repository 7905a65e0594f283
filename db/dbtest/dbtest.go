// Package dbtest opens throwaway in-memory databases for tests.
package dbtest

import (
	"io"
	"log/slog"
	"testing"

	"telemetry-server/db"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New returns a migrated in-memory sqlite database closed at test cleanup.
func New(t testing.TB) db.Database {
	t.Helper()

	database, err := db.Open(
		sqlite.Open(db.SQLiteDSN("file::memory:")),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent), TranslateError: true},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := database.GetDB().DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return database
}
