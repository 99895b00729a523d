// Package holdings owns per-(user, commodity) positions and their
// weighted-average cost basis.
package holdings

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/Tipukhan564/Commodities-Exchange/pkg/errors"
	"github.com/Tipukhan564/Commodities-Exchange/pkg/models"
)

// HoldingsService defines position operations. UpsertTx and ReduceTx
// participate in a caller-managed gorm transaction.
type HoldingsService interface {
	Start() error
	Stop() error
	GetUserHoldings(ctx context.Context, userID uuid.UUID) ([]*models.Holding, error)
	GetHolding(ctx context.Context, userID, commodityID uuid.UUID) (*models.Holding, error)

	UpsertTx(tx *gorm.DB, userID, commodityID uuid.UUID, quantity, price, totalCost decimal.Decimal) (*models.Holding, error)
	ReduceTx(tx *gorm.DB, userID, commodityID uuid.UUID, quantity decimal.Decimal) error
}

// Service implements HoldingsService
type Service struct {
	logger *zap.Logger
	db     *gorm.DB
}

// NewService creates a new HoldingsService
func NewService(logger *zap.Logger, db *gorm.DB) (HoldingsService, error) {
	return &Service{logger: logger, db: db}, nil
}

// Start starts the holdings service
func (s *Service) Start() error {
	s.logger.Info("Holdings service started")
	return nil
}

// Stop stops the holdings service
func (s *Service) Stop() error {
	s.logger.Info("Holdings service stopped")
	return nil
}

// GetUserHoldings returns all of a user's positions
func (s *Service) GetUserHoldings(ctx context.Context, userID uuid.UUID) ([]*models.Holding, error) {
	var holdings []*models.Holding
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&holdings).Error; err != nil {
		return nil, fmt.Errorf("failed to find holdings: %w", err)
	}
	return holdings, nil
}

// GetHolding returns a user's position in one commodity
func (s *Service) GetHolding(ctx context.Context, userID, commodityID uuid.UUID) (*models.Holding, error) {
	var holding models.Holding
	if err := s.db.WithContext(ctx).Where("user_id = ? AND commodity_id = ?", userID, commodityID).First(&holding).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.New(apperrors.KindNotFound, "no holdings found for this commodity")
		}
		return nil, fmt.Errorf("failed to find holding: %w", err)
	}
	return &holding, nil
}

// UpsertTx creates or grows a position inside the caller's transaction.
// On an existing position the average price becomes the quantity-weighted
// mean of the prior cost basis and the new acquisition, rounded half-up
// to 2 decimals.
func (s *Service) UpsertTx(tx *gorm.DB, userID, commodityID uuid.UUID, quantity, price, totalCost decimal.Decimal) (*models.Holding, error) {
	holding, err := lockHolding(tx, userID, commodityID)
	if err != nil && !apperrors.IsKind(err, apperrors.KindNotFound) {
		return nil, err
	}

	if holding == nil {
		holding = &models.Holding{
			ID:           uuid.New(),
			UserID:       userID,
			CommodityID:  commodityID,
			Quantity:     quantity,
			AveragePrice: price,
			UpdatedAt:    time.Now(),
		}
		if err := tx.Create(holding).Error; err != nil {
			return nil, fmt.Errorf("failed to create holding: %w", err)
		}
		return holding, nil
	}

	totalValue := holding.Quantity.Mul(holding.AveragePrice).Add(totalCost)
	newQuantity := holding.Quantity.Add(quantity)
	holding.Quantity = newQuantity
	holding.AveragePrice = totalValue.DivRound(newQuantity, 2)
	holding.UpdatedAt = time.Now()
	if err := tx.Save(holding).Error; err != nil {
		return nil, fmt.Errorf("failed to save holding: %w", err)
	}
	return holding, nil
}

// ReduceTx shrinks a position inside the caller's transaction. The stored
// quantity is re-checked under lock; exact exhaustion deletes the record,
// and a sell never changes the average price.
func (s *Service) ReduceTx(tx *gorm.DB, userID, commodityID uuid.UUID, quantity decimal.Decimal) error {
	holding, err := lockHolding(tx, userID, commodityID)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			return apperrors.New(apperrors.KindInsufficientHoldings, "no holdings found for this commodity")
		}
		return err
	}

	if holding.Quantity.LessThan(quantity) {
		return apperrors.Newf(apperrors.KindInsufficientHoldings,
			"insufficient quantity to sell: have %s, need %s", holding.Quantity.String(), quantity.String())
	}

	remaining := holding.Quantity.Sub(quantity)
	if remaining.IsZero() {
		if err := tx.Delete(holding).Error; err != nil {
			return fmt.Errorf("failed to delete holding: %w", err)
		}
		return nil
	}

	holding.Quantity = remaining
	holding.UpdatedAt = time.Now()
	if err := tx.Save(holding).Error; err != nil {
		return fmt.Errorf("failed to save holding: %w", err)
	}
	return nil
}

// lockHolding reads the holding row under an exclusive lock; see lockUser
// in the bookkeeper for the SQLite caveat.
func lockHolding(tx *gorm.DB, userID, commodityID uuid.UUID) (*models.Holding, error) {
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var holding models.Holding
	if err := q.Where("user_id = ? AND commodity_id = ?", userID, commodityID).First(&holding).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.New(apperrors.KindNotFound, "holding not found")
		}
		return nil, fmt.Errorf("failed to find holding: %w", err)
	}
	return &holding, nil
}
