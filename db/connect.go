package db

import (
	"fmt"
	"log/slog"
	"strings"

	"telemetry-server/confs"
	"telemetry-server/entities"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the relational store selected by cfg.Database, tunes the
// pool and migrates the schema.
func Connect(cfg *confs.Config, log *slog.Logger) (Database, error) {
	var dialector gorm.Dialector

	switch strings.ToLower(cfg.Database.Driver) {
	case "sqlite":
		dialector = sqlite.Open(SQLiteDSN(cfg.Database.SQLitePath))
		log.Info("connecting to sqlite database", "path", cfg.Database.SQLitePath)
	default:
		dsn, sslMode := PostgresDSN(cfg.Database)
		dialector = postgres.Open(dsn)
		log.Info("connecting to postgres database", "from_url", cfg.Database.URL != "", "sslmode", sslMode)
	}

	level := logger.Warn
	if !cfg.IsProduction() {
		level = logger.Info
	}

	return Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		PrepareStmt:    true,
		TranslateError: true,
	}, log)
}

// Open connects through an arbitrary dialector and migrates the schema.
// Tests use it with an in-memory sqlite dialector.
func Open(dialector gorm.Dialector, gormCfg *gorm.Config, log *slog.Logger) (Database, error) {
	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	if db.Dialector.Name() == "sqlite" {
		// one connection keeps in-memory databases alive and serializes writers
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(0)
	}

	log.Info("running database migrations")
	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Info("database ready", "dialect", db.Dialector.Name())

	return &GormDatabase{DB: db}, nil
}

// Migrate creates or updates the users, servers and sensor_readings tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&entities.User{}, &entities.Server{}, &entities.SensorReading{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// PostgresDSN builds a DSN from DB_URL or the individual parameters. Remote
// hosts get sslmode=require unless the URL says otherwise.
func PostgresDSN(d confs.DatabaseConfig) (dsn, sslMode string) {
	if d.URL != "" {
		dsn = d.URL
		if !strings.Contains(dsn, "sslmode=") {
			if strings.Contains(dsn, "?") {
				dsn += "&sslmode=require"
			} else {
				dsn += "?sslmode=require"
			}
		}
		return dsn, "url"
	}

	sslMode = "require"
	if d.Host == "localhost" || d.Host == "127.0.0.1" {
		sslMode = "disable"
	}
	dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		d.Host, d.User, d.Password, d.Name, d.Port, sslMode)
	return dsn, sslMode
}

// SQLiteDSN enables foreign keys so cascading deletes hold on sqlite too.
func SQLiteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on"
}
