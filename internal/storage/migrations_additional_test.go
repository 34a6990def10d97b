package storage

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aggiex/accelerator/internal/model"
)

func openInternalTestDatabase(testingT *testing.T) Config {
	return Config{
		DriverName:     DriverNameSQLite,
		DataSourceName: fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", strings.ReplaceAll(testingT.Name(), "/", "_")),
	}
}

func TestAutoMigrateReportsErrorOnClosedDatabase(testingT *testing.T) {
	database, openErr := OpenDatabase(openInternalTestDatabase(testingT))
	require.NoError(testingT, openErr)

	sqlDatabase, sqlErr := database.DB()
	require.NoError(testingT, sqlErr)
	require.NoError(testingT, sqlDatabase.Close())

	migrateErr := AutoMigrate(database)
	require.Error(testingT, migrateErr)
}

func TestBackfillContactStatusesMarksBlankRowsActive(testingT *testing.T) {
	database, openErr := OpenDatabase(openInternalTestDatabase(testingT))
	require.NoError(testingT, openErr)
	require.NoError(testingT, AutoMigrate(database))

	blankContact := model.Contact{
		ID:             NewID(),
		Email:          "blank@example.com",
		Source:         model.ContactSourceNewsletter,
		Interests:      []string{},
		LastEngagement: time.Now().UTC(),
		Status:         "",
	}
	require.NoError(testingT, database.Create(&blankContact).Error)

	unsubscribedContact := model.Contact{
		ID:             NewID(),
		Email:          "paused@example.com",
		Source:         model.ContactSourceNewsletter,
		Interests:      []string{},
		LastEngagement: time.Now().UTC(),
		Status:         "paused",
	}
	require.NoError(testingT, database.Create(&unsubscribedContact).Error)

	require.NoError(testingT, backfillContactStatuses(database))

	var refreshedBlank model.Contact
	require.NoError(testingT, database.First(&refreshedBlank, "id = ?", blankContact.ID).Error)
	require.Equal(testingT, model.ContactStatusActive, refreshedBlank.Status)

	var refreshedPaused model.Contact
	require.NoError(testingT, database.First(&refreshedPaused, "id = ?", unsubscribedContact.ID).Error)
	require.Equal(testingT, "paused", refreshedPaused.Status)
}

func TestBackfillContactStatusesReportsErrorOnClosedDatabase(testingT *testing.T) {
	database, openErr := OpenDatabase(openInternalTestDatabase(testingT))
	require.NoError(testingT, openErr)

	sqlDatabase, sqlErr := database.DB()
	require.NoError(testingT, sqlErr)
	require.NoError(testingT, sqlDatabase.Close())

	require.Error(testingT, backfillContactStatuses(database))
}
