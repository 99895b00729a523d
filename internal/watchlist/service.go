// Package watchlist lets users pin commodities they want to follow.
package watchlist

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	apperrors "github.com/Tipukhan564/Commodities-Exchange/pkg/errors"
	"github.com/Tipukhan564/Commodities-Exchange/pkg/models"
)

// WatchlistService defines watchlist operations
type WatchlistService interface {
	GetUserWatchlist(ctx context.Context, userID uuid.UUID) ([]*models.WatchlistEntry, error)
	AddToWatchlist(ctx context.Context, userID, commodityID uuid.UUID) (*models.WatchlistEntry, error)
	RemoveFromWatchlist(ctx context.Context, userID, commodityID uuid.UUID) error
}

// Service implements WatchlistService
type Service struct {
	logger *zap.Logger
	db     *gorm.DB
}

// NewService creates a new WatchlistService
func NewService(logger *zap.Logger, db *gorm.DB) (WatchlistService, error) {
	return &Service{logger: logger, db: db}, nil
}

// GetUserWatchlist returns a user's watchlist entries
func (s *Service) GetUserWatchlist(ctx context.Context, userID uuid.UUID) ([]*models.WatchlistEntry, error) {
	var entries []*models.WatchlistEntry
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("added_at DESC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to find watchlist: %w", err)
	}
	return entries, nil
}

// AddToWatchlist pins a commodity for a user
func (s *Service) AddToWatchlist(ctx context.Context, userID, commodityID uuid.UUID) (*models.WatchlistEntry, error) {
	var commodity models.Commodity
	if err := s.db.WithContext(ctx).Where("id = ?", commodityID).First(&commodity).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.New(apperrors.KindNotFound, "commodity not found")
		}
		return nil, fmt.Errorf("failed to find commodity: %w", err)
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.WatchlistEntry{}).
		Where("user_id = ? AND commodity_id = ?", userID, commodityID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check watchlist: %w", err)
	}
	if count > 0 {
		return nil, apperrors.New(apperrors.KindConflict, "commodity already in watchlist")
	}

	entry := &models.WatchlistEntry{
		ID:          uuid.New(),
		UserID:      userID,
		CommodityID: commodityID,
		AddedAt:     time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to create watchlist entry: %w", err)
	}
	return entry, nil
}

// RemoveFromWatchlist unpins a commodity for a user
func (s *Service) RemoveFromWatchlist(ctx context.Context, userID, commodityID uuid.UUID) error {
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND commodity_id = ?", userID, commodityID).
		Delete(&models.WatchlistEntry{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete watchlist entry: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.KindNotFound, "commodity not in watchlist")
	}
	return nil
}
