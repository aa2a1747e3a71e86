package database

import (
	"fmt"
	"log"

	"github.com/charitylink/backend/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/spf13/viper"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenSQLite opens an embedded database and migrates the payment tables.
// The pool is pinned to one connection: SQLite has a single writer and an
// in-memory database lives only as long as its connection.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("error opening sqlite database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("error getting sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := gdb.AutoMigrate(models.MigrateModels...); err != nil {
		return nil, fmt.Errorf("error migrating sqlite schema: %w", err)
	}
	return gdb, nil
}

// InitSQLite opens the embedded store configured by database.sqlite_dsn.
func InitSQLite() (*gorm.DB, error) {
	viper.SetDefault("database.sqlite_dsn", "file:charitylink.db?_pragma=busy_timeout(5000)")

	dsn := viper.GetString("database.sqlite_dsn")
	gdb, err := OpenSQLite(dsn)
	if err != nil {
		return nil, err
	}
	log.Println("Embedded SQLite store ready")
	return gdb, nil
}
