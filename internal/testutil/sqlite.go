package testutil

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aggiex/accelerator/internal/storage"
)

const (
	sqliteTestDatabaseNamePrefix        = "aggiex-test-db"
	sqliteInMemoryDataSourceNamePattern = "file:%s?mode=memory&cache=shared&_foreign_keys=on"
	sqliteWALDataSourceNamePattern      = "file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)"
	sqliteWALDatabaseFileName           = "aggiex.db"
)

// SQLiteTestDatabase provides helpers for configuring temporary SQLite databases in tests.
type SQLiteTestDatabase struct {
	configuration storage.Config
}

type testingLogWriter struct {
	testingT *testing.T
}

func (writer testingLogWriter) Write(data []byte) (int, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed != "" {
		writer.testingT.Log(trimmed)
	}
	return len(data), nil
}

// NewSQLiteTestDatabase creates a SQLiteTestDatabase with a unique in-memory database configuration.
func NewSQLiteTestDatabase(testingT *testing.T) SQLiteTestDatabase {
	testingT.Helper()

	databaseName := fmt.Sprintf("%s-%s", sqliteTestDatabaseNamePrefix, storage.NewID())

	return SQLiteTestDatabase{
		configuration: storage.Config{
			DriverName:     storage.DriverNameSQLite,
			DataSourceName: fmt.Sprintf(sqliteInMemoryDataSourceNamePattern, databaseName),
		},
	}
}

// Configuration returns the storage configuration for the temporary SQLite database.
func (database SQLiteTestDatabase) Configuration() storage.Config {
	return database.configuration
}

// DataSourceName returns the SQLite data source name for the temporary database.
func (database SQLiteTestDatabase) DataSourceName() string {
	return database.configuration.DataSourceName
}

// ConfigureDatabaseLogger returns a database session that suppresses record-not-found logs during tests.
func ConfigureDatabaseLogger(testingT *testing.T, database *gorm.DB) *gorm.DB {
	testingT.Helper()
	if database == nil {
		testingT.Fatalf("configure database logger: nil database")
	}
	gormLogger := logger.New(
		log.New(testingLogWriter{testingT: testingT}, "", 0),
		logger.Config{
			IgnoreRecordNotFoundError: true,
			LogLevel:                  logger.Error,
		},
	)
	return database.Session(&gorm.Session{Logger: gormLogger})
}

// NewMigratedDatabase opens a fresh in-memory SQLite database with the schema applied.
func NewMigratedDatabase(testingT *testing.T) *gorm.DB {
	testingT.Helper()

	sqliteDatabase := NewSQLiteTestDatabase(testingT)
	database, openErr := storage.OpenDatabase(sqliteDatabase.Configuration())
	require.NoError(testingT, openErr)
	database = ConfigureDatabaseLogger(testingT, database)
	require.NoError(testingT, storage.AutoMigrate(database))

	sqlDatabase, sqlErr := database.DB()
	require.NoError(testingT, sqlErr)
	// Shared-cache memory databases report table locks under concurrent writers.
	sqlDatabase.SetMaxOpenConns(1)
	testingT.Cleanup(func() {
		_ = sqlDatabase.Close()
	})

	return database
}

// NewConcurrentMigratedDatabase opens a file-backed WAL SQLite database with up to connections
// open connections, so writers on separate goroutines contend on real database locks.
func NewConcurrentMigratedDatabase(testingT *testing.T, connections int) *gorm.DB {
	testingT.Helper()

	databasePath := filepath.Join(testingT.TempDir(), sqliteWALDatabaseFileName)
	database, openErr := storage.OpenDatabase(storage.Config{
		DriverName:     storage.DriverNameSQLite,
		DataSourceName: fmt.Sprintf(sqliteWALDataSourceNamePattern, databasePath),
	})
	require.NoError(testingT, openErr)
	database = ConfigureDatabaseLogger(testingT, database)
	require.NoError(testingT, storage.AutoMigrate(database))

	sqlDatabase, sqlErr := database.DB()
	require.NoError(testingT, sqlErr)
	sqlDatabase.SetMaxOpenConns(connections)
	sqlDatabase.SetMaxIdleConns(connections)
	testingT.Cleanup(func() {
		_ = sqlDatabase.Close()
	})

	var journalMode string
	require.NoError(testingT, database.Raw("PRAGMA journal_mode").Scan(&journalMode).Error)
	require.Equal(testingT, "wal", journalMode)

	return database
}
