// Package marketfeeds owns the commodity catalog and its quoted prices.
// The trading engine reads the catalog; only admins write to it.
package marketfeeds

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	apperrors "github.com/Tipukhan564/Commodities-Exchange/pkg/errors"
	"github.com/Tipukhan564/Commodities-Exchange/pkg/models"
)

const commodityListCacheKey = "commodities:all"

// AlertEvaluator is notified after every committed price update.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, commodity *models.Commodity) ([]*models.PriceAlert, error)
}

// MarketFeedService defines commodity catalog operations
type MarketFeedService interface {
	Start() error
	Stop() error
	ListCommodities(ctx context.Context) ([]*models.Commodity, error)
	GetCommodity(ctx context.Context, id uuid.UUID) (*models.Commodity, error)
	GetCommodityBySymbol(ctx context.Context, symbol string) (*models.Commodity, error)
	UpdatePrice(ctx context.Context, symbol string, req *models.PriceUpdateRequest) (*models.Commodity, error)
	SetAlertEvaluator(eval AlertEvaluator)
}

// Service implements MarketFeedService
type Service struct {
	logger   *zap.Logger
	db       *gorm.DB
	cache    *redis.Client
	cacheTTL time.Duration
	alerts   AlertEvaluator
}

// NewService creates a new MarketFeedService. cache may be nil, which
// disables the read-through listing cache.
func NewService(logger *zap.Logger, db *gorm.DB, cache *redis.Client, cacheTTL time.Duration) (MarketFeedService, error) {
	return &Service{logger: logger, db: db, cache: cache, cacheTTL: cacheTTL}, nil
}

// SetAlertEvaluator wires the price alert hook
func (s *Service) SetAlertEvaluator(eval AlertEvaluator) {
	s.alerts = eval
}

// Start seeds the catalog on first run and starts the service
func (s *Service) Start() error {
	if err := s.seedCommodities(); err != nil {
		return fmt.Errorf("failed to seed commodities: %w", err)
	}
	s.logger.Info("Market feed service started")
	return nil
}

// Stop stops the market feed service
func (s *Service) Stop() error {
	s.logger.Info("Market feed service stopped")
	return nil
}

// ListCommodities returns the full catalog, served from cache when warm
func (s *Service) ListCommodities(ctx context.Context) ([]*models.Commodity, error) {
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, commodityListCacheKey).Bytes(); err == nil {
			var cached []*models.Commodity
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		}
	}

	var commodities []*models.Commodity
	if err := s.db.WithContext(ctx).Order("symbol ASC").Find(&commodities).Error; err != nil {
		return nil, fmt.Errorf("failed to find commodities: %w", err)
	}

	if s.cache != nil {
		if raw, err := json.Marshal(commodities); err == nil {
			if err := s.cache.Set(ctx, commodityListCacheKey, raw, s.cacheTTL).Err(); err != nil {
				s.logger.Warn("Failed to cache commodity list", zap.Error(err))
			}
		}
	}

	return commodities, nil
}

// GetCommodity returns one commodity by identity
func (s *Service) GetCommodity(ctx context.Context, id uuid.UUID) (*models.Commodity, error) {
	var commodity models.Commodity
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&commodity).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.New(apperrors.KindNotFound, "commodity not found")
		}
		return nil, fmt.Errorf("failed to find commodity: %w", err)
	}
	return &commodity, nil
}

// GetCommodityBySymbol returns one commodity by symbol
func (s *Service) GetCommodityBySymbol(ctx context.Context, symbol string) (*models.Commodity, error) {
	var commodity models.Commodity
	if err := s.db.WithContext(ctx).Where("symbol = ?", symbol).First(&commodity).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.Newf(apperrors.KindNotFound, "commodity not found with symbol: %s", symbol)
		}
		return nil, fmt.Errorf("failed to find commodity: %w", err)
	}
	return &commodity, nil
}

// UpdatePrice applies an admin quote update, invalidates the cache and
// runs the alert hook against the new price
func (s *Service) UpdatePrice(ctx context.Context, symbol string, req *models.PriceUpdateRequest) (*models.Commodity, error) {
	if !req.Price.IsPositive() {
		return nil, apperrors.New(apperrors.KindValidation, "price must be positive")
	}

	commodity, err := s.GetCommodityBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}

	commodity.CurrentPrice = req.Price
	if req.Change24h != nil {
		commodity.PriceChange24h = *req.Change24h
	}
	if req.High24h != nil {
		commodity.High24h = *req.High24h
	}
	if req.Low24h != nil {
		commodity.Low24h = *req.Low24h
	}
	if req.Volume24h != nil {
		commodity.Volume24h = *req.Volume24h
	}
	commodity.UpdatedAt = time.Now()

	if err := s.db.WithContext(ctx).Save(commodity).Error; err != nil {
		return nil, fmt.Errorf("failed to save commodity: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Del(ctx, commodityListCacheKey).Err(); err != nil {
			s.logger.Warn("Failed to invalidate commodity cache", zap.Error(err))
		}
	}

	if s.alerts != nil {
		triggered, err := s.alerts.Evaluate(ctx, commodity)
		if err != nil {
			s.logger.Warn("Alert evaluation failed", zap.String("symbol", symbol), zap.Error(err))
		} else if len(triggered) > 0 {
			s.logger.Info("Price alerts triggered",
				zap.String("symbol", symbol),
				zap.Int("count", len(triggered)))
		}
	}

	return commodity, nil
}

// seedCommodities inserts the default catalog when the table is empty
func (s *Service) seedCommodities() error {
	var count int64
	if err := s.db.Model(&models.Commodity{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	seed := []struct {
		symbol string
		name   string
		price  string
	}{
		{"GOLD", "Gold", "1950.00"},
		{"SILVER", "Silver", "24.50"},
		{"CRUDE", "Crude Oil", "78.30"},
		{"NATGAS", "Natural Gas", "2.85"},
		{"COPPER", "Copper", "3.90"},
		{"WHEAT", "Wheat", "6.20"},
		{"CORN", "Corn", "4.75"},
		{"COFFEE", "Coffee", "1.65"},
	}

	for _, c := range seed {
		commodity := &models.Commodity{
			ID:           uuid.New(),
			Symbol:       c.symbol,
			Name:         c.name,
			CurrentPrice: decimal.RequireFromString(c.price),
			UpdatedAt:    time.Now(),
		}
		if err := s.db.Create(commodity).Error; err != nil {
			return err
		}
	}

	s.logger.Info("Seeded commodity catalog", zap.Int("count", len(seed)))
	return nil
}
