package database

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Connect initializes the database connection.
// SQLite is the default; PostgreSQL is used for deployments that run several
// server processes against one database. SQLite pragmas such as
// _busy_timeout and _foreign_keys are passed through the DSN.
func Connect(driver, dsn string) error {
	dialector, err := dialectorFor(driver, dsn)
	if err != nil {
		return err
	}

	DB, err = gorm.Open(dialector, &gorm.Config{
		// Surface duplicate keys as gorm.ErrDuplicatedKey regardless of driver
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	return nil
}

// GetDB returns the database instance.
func GetDB() *gorm.DB {
	return DB
}

func dialectorFor(driver, dsn string) (gorm.Dialector, error) {
	switch {
	case isSQLite(driver):
		return sqlite.Open(dsn), nil
	case strings.EqualFold(driver, "postgres"), strings.EqualFold(driver, "postgresql"):
		return postgres.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

func isSQLite(driver string) bool {
	switch strings.ToLower(driver) {
	case "", "sqlite", "sqlite3":
		return true
	}
	return false
}
