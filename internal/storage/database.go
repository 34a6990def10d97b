package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	// DriverNameSQLite identifies the SQLite driver implementation.
	DriverNameSQLite = "sqlite"
	// DriverNamePostgres identifies the PostgreSQL driver implementation.
	DriverNamePostgres = "postgres"
	// DriverNameMySQL identifies the MySQL driver implementation.
	DriverNameMySQL = "mysql"

	errorMessageMissingDatabaseDriverName = "storage: missing database driver name"
	errorMessageUnsupportedDatabaseDriver = "storage: unsupported database driver"
	errorMessageMissingDataSourceName     = "storage: missing database data source name"
	errorMessageOpenDatabase              = "storage: open database"
	errorMessageOpenSQLiteDatabase        = "storage: open sqlite database"
	errorMessageOpenPostgresDatabase      = "storage: open postgres database"
	errorMessageOpenMySQLDatabase         = "storage: open mysql database"
)

var (
	// ErrMissingDatabaseDriverName indicates the database driver name configuration was omitted.
	ErrMissingDatabaseDriverName = errors.New(errorMessageMissingDatabaseDriverName)
	// ErrUnsupportedDatabaseDriver indicates the provided database driver is not supported.
	ErrUnsupportedDatabaseDriver = errors.New(errorMessageUnsupportedDatabaseDriver)
	// ErrMissingDataSourceName indicates the database data source name configuration was omitted.
	ErrMissingDataSourceName = errors.New(errorMessageMissingDataSourceName)
)

type databaseOpener func(Config) (*gorm.DB, error)

var databaseOpeners = map[string]databaseOpener{
	DriverNameSQLite:   openSQLiteDatabase,
	DriverNamePostgres: openPostgresDatabase,
	DriverNameMySQL:    openMySQLDatabase,
}

// Config captures database connection configuration.
type Config struct {
	DriverName     string
	DataSourceName string
}

// OpenDatabase opens a database connection using the configured driver and data source name.
func OpenDatabase(configuration Config) (*gorm.DB, error) {
	trimmedDriverName := strings.ToLower(strings.TrimSpace(configuration.DriverName))
	if trimmedDriverName == "" {
		return nil, ErrMissingDatabaseDriverName
	}

	opener, driverSupported := databaseOpeners[trimmedDriverName]
	if !driverSupported {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDatabaseDriver, trimmedDriverName)
	}

	dataSourceName := strings.TrimSpace(configuration.DataSourceName)
	if dataSourceName == "" {
		return nil, ErrMissingDataSourceName
	}

	database, openErr := opener(Config{
		DriverName:     trimmedDriverName,
		DataSourceName: dataSourceName,
	})
	if openErr != nil {
		return nil, fmt.Errorf("%s: %w", errorMessageOpenDatabase, openErr)
	}

	return database, nil
}

func openSQLiteDatabase(configuration Config) (*gorm.DB, error) {
	if configuration.DataSourceName == "" {
		return nil, ErrMissingDataSourceName
	}

	database, openErr := gorm.Open(sqlite.Open(configuration.DataSourceName), &gorm.Config{})
	if openErr != nil {
		return nil, fmt.Errorf("%s: %w", errorMessageOpenSQLiteDatabase, openErr)
	}

	return database, nil
}

func openPostgresDatabase(configuration Config) (*gorm.DB, error) {
	if configuration.DataSourceName == "" {
		return nil, ErrMissingDataSourceName
	}

	database, openErr := gorm.Open(postgres.New(postgres.Config{
		DSN:                  configuration.DataSourceName,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
	if openErr != nil {
		return nil, fmt.Errorf("%s: %w", errorMessageOpenPostgresDatabase, openErr)
	}

	return database, nil
}

func openMySQLDatabase(configuration Config) (*gorm.DB, error) {
	if configuration.DataSourceName == "" {
		return nil, ErrMissingDataSourceName
	}

	database, openErr := gorm.Open(mysql.Open(configuration.DataSourceName), &gorm.Config{})
	if openErr != nil {
		return nil, fmt.Errorf("%s: %w", errorMessageOpenMySQLDatabase, openErr)
	}

	return database, nil
}

// Ping checks that the database connection is usable.
func Ping(ctx context.Context, database *gorm.DB) error {
	sqlDatabase, sqlErr := database.DB()
	if sqlErr != nil {
		return sqlErr
	}
	return sqlDatabase.PingContext(ctx)
}

// NewID generates a new globally unique identifier.
func NewID() string {
	return uuid.NewString()
}
