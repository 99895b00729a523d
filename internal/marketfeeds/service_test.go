package marketfeeds

import (
	"context"
	"testing"

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

func setupService(t *testing.T) MarketFeedService {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.Commodity{}))

	svc, err := NewService(zap.NewNop(), db, nil, 0)
	require.NoError(t, err)
	require.NoError(t, svc.Start())
	return svc
}

func TestStartSeedsCatalogOnce(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	commodities, err := svc.ListCommodities(ctx)
	require.NoError(t, err)
	assert.Len(t, commodities, 8)

	// Second start must not duplicate the seed.
	require.NoError(t, svc.Start())
	commodities, err = svc.ListCommodities(ctx)
	require.NoError(t, err)
	assert.Len(t, commodities, 8)
}

func TestListCommoditiesSortedBySymbol(t *testing.T) {
	svc := setupService(t)

	commodities, err := svc.ListCommodities(context.Background())
	require.NoError(t, err)
	for i := 1; i < len(commodities); i++ {
		assert.Less(t, commodities[i-1].Symbol, commodities[i].Symbol)
	}
}

func TestGetCommodityBySymbol(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	gold, err := svc.GetCommodityBySymbol(ctx, "GOLD")
	require.NoError(t, err)
	assert.Equal(t, "Gold", gold.Name)
	assert.True(t, gold.CurrentPrice.Equal(decimal.RequireFromString("1950.00")))

	byID, err := svc.GetCommodity(ctx, gold.ID)
	require.NoError(t, err)
	assert.Equal(t, gold.Symbol, byID.Symbol)

	_, err = svc.GetCommodityBySymbol(ctx, "PLATINUM")
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

	_, err = svc.GetCommodity(ctx, uuid.New())
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

type recordingEvaluator struct {
	seen []*models.Commodity
}

func (r *recordingEvaluator) Evaluate(_ context.Context, commodity *models.Commodity) ([]*models.PriceAlert, error) {
	r.seen = append(r.seen, commodity)
	return nil, nil
}

func TestUpdatePrice(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	eval := &recordingEvaluator{}
	svc.SetAlertEvaluator(eval)

	high := decimal.RequireFromString("2010.00")
	updated, err := svc.UpdatePrice(ctx, "GOLD", &models.PriceUpdateRequest{
		Price:   decimal.RequireFromString("2000.00"),
		High24h: &high,
	})
	require.NoError(t, err)
	assert.True(t, updated.CurrentPrice.Equal(decimal.RequireFromString("2000.00")))
	assert.True(t, updated.High24h.Equal(high))

	stored, err := svc.GetCommodityBySymbol(ctx, "GOLD")
	require.NoError(t, err)
	assert.True(t, stored.CurrentPrice.Equal(decimal.RequireFromString("2000.00")))

	require.Len(t, eval.seen, 1)
	assert.Equal(t, "GOLD", eval.seen[0].Symbol)
}

func TestUpdatePriceValidation(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	_, err := svc.UpdatePrice(ctx, "GOLD", &models.PriceUpdateRequest{Price: decimal.Zero})
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	_, err = svc.UpdatePrice(ctx, "PLATINUM", &models.PriceUpdateRequest{
		Price: decimal.RequireFromString("100.00"),
	})
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}
