package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tipukhan564/Commodities-Exchange/pkg/models"
)

func TestNewSQLiteDBAndMigrate(t *testing.T) {
	db, err := NewSQLiteDB(":memory:")
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)

	require.NoError(t, AutoMigrate(db))

	for _, model := range []interface{}{
		&models.User{}, &models.Commodity{}, &models.Holding{},
		&models.Order{}, &models.CashTransaction{},
		&models.WatchlistEntry{}, &models.PriceAlert{},
	} {
		assert.True(t, db.Migrator().HasTable(model))
	}
}
