package watchlist

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	apperrors "github.com/Tipukhan564/Commodities-Exchange/pkg/errors"
	"github.com/Tipukhan564/Commodities-Exchange/pkg/models"
)

func setupService(t *testing.T) (WatchlistService, *models.Commodity) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.Commodity{}, &models.WatchlistEntry{}))

	svc, err := NewService(zap.NewNop(), db)
	require.NoError(t, err)

	commodity := &models.Commodity{
		ID:           uuid.New(),
		Symbol:       "WHEAT",
		Name:         "Wheat",
		CurrentPrice: decimal.RequireFromString("6.20"),
		UpdatedAt:    time.Now(),
	}
	require.NoError(t, db.Create(commodity).Error)
	return svc, commodity
}

func TestAddToWatchlist(t *testing.T) {
	svc, commodity := setupService(t)
	ctx := context.Background()
	userID := uuid.New()

	entry, err := svc.AddToWatchlist(ctx, userID, commodity.ID)
	require.NoError(t, err)
	assert.Equal(t, commodity.ID, entry.CommodityID)

	list, err := svc.GetUserWatchlist(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAddToWatchlistDuplicate(t *testing.T) {
	svc, commodity := setupService(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.AddToWatchlist(ctx, userID, commodity.ID)
	require.NoError(t, err)

	_, err = svc.AddToWatchlist(ctx, userID, commodity.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))
}

func TestAddToWatchlistUnknownCommodity(t *testing.T) {
	svc, _ := setupService(t)

	_, err := svc.AddToWatchlist(context.Background(), uuid.New(), uuid.New())
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestRemoveFromWatchlist(t *testing.T) {
	svc, commodity := setupService(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.AddToWatchlist(ctx, userID, commodity.ID)
	require.NoError(t, err)

	require.NoError(t, svc.RemoveFromWatchlist(ctx, userID, commodity.ID))

	list, err := svc.GetUserWatchlist(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, list)

	err = svc.RemoveFromWatchlist(ctx, userID, commodity.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestWatchlistsAreIsolatedPerUser(t *testing.T) {
	svc, commodity := setupService(t)
	ctx := context.Background()
	first, second := uuid.New(), uuid.New()

	_, err := svc.AddToWatchlist(ctx, first, commodity.ID)
	require.NoError(t, err)

	list, err := svc.GetUserWatchlist(ctx, second)
	require.NoError(t, err)
	assert.Empty(t, list)

	err = svc.RemoveFromWatchlist(ctx, second, commodity.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}
