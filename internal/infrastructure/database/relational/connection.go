// internal/infrastructure/database/relational/connection.go
package relational

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"github.com/your-org/inventory-ledger/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB wraps the gorm connection
type DB struct {
	conn   *gorm.DB
	driver string
	log    logrus.FieldLogger
}

// NewConnection opens the configured database. Postgres is the production
// store; MySQL and SQLite are supported for smaller deployments and local
// development.
func NewConnection(cfg *config.Config, log logrus.FieldLogger) (*DB, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}

	logLevel := logger.Warn
	if cfg.App.Debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.Database.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	// Configure connection pool
	maxOpen := cfg.Database.MaxOpenConns
	if cfg.Database.Driver == "sqlite" {
		maxOpen = 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	log.WithFields(logrus.Fields{
		"driver":         cfg.Database.Driver,
		"max_open_conns": maxOpen,
	}).Info("Database connection established")

	return &DB{conn: db, driver: cfg.Database.Driver, log: log}, nil
}

// Dialector returns the gorm dialector for the configured driver
func Dialector(cfg *config.Config) (gorm.Dialector, error) {
	dsn := cfg.GetDatabaseDSN()

	switch cfg.Database.Driver {
	case "postgres":
		return postgres.Open(dsn), nil
	case "mysql":
		// Microsecond timestamps keep stored values equal to hashed values.
		return mysql.New(mysql.Config{
			DSN:                      dsn,
			DefaultStringSize:        255,
			DefaultDatetimePrecision: &datetimePrecision,
		}), nil
	case "sqlite":
		if dir := filepath.Dir(cfg.Database.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
			}
		}
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

var datetimePrecision = 6

// Driver returns the configured driver name
func (db *DB) Driver() string {
	return db.driver
}

// GetDB returns the gorm handle
func (db *DB) GetDB() *gorm.DB {
	return db.conn
}

// Health checks the database connection health
func (db *DB) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sqlDB, err := db.conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (db *DB) Close() error {
	sqlDB, err := db.conn.DB()
	if err != nil {
		return err
	}
	db.log.Info("Closing database connection")
	return sqlDB.Close()
}
