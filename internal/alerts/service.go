// Package alerts manages user price alerts and their evaluation against
// quote updates.
package alerts

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

// AlertService defines price alert operations
type AlertService interface {
	GetUserAlerts(ctx context.Context, userID uuid.UUID) ([]*models.PriceAlert, error)
	GetUserActiveAlerts(ctx context.Context, userID uuid.UUID) ([]*models.PriceAlert, error)
	CreateAlert(ctx context.Context, userID uuid.UUID, req *models.AlertRequest) (*models.PriceAlert, error)
	DeleteAlert(ctx context.Context, userID, alertID uuid.UUID) error
	Evaluate(ctx context.Context, commodity *models.Commodity) ([]*models.PriceAlert, error)
}

// Service implements AlertService
type Service struct {
	logger *zap.Logger
	db     *gorm.DB
}

// NewService creates a new AlertService
func NewService(logger *zap.Logger, db *gorm.DB) (AlertService, error) {
	return &Service{logger: logger, db: db}, nil
}

// GetUserAlerts returns all of a user's alerts
func (s *Service) GetUserAlerts(ctx context.Context, userID uuid.UUID) ([]*models.PriceAlert, error) {
	var alerts []*models.PriceAlert
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("failed to find alerts: %w", err)
	}
	return alerts, nil
}

// GetUserActiveAlerts returns a user's alerts that have not fired yet
func (s *Service) GetUserActiveAlerts(ctx context.Context, userID uuid.UUID) ([]*models.PriceAlert, error) {
	var alerts []*models.PriceAlert
	if err := s.db.WithContext(ctx).Where("user_id = ? AND active = ?", userID, true).Order("created_at DESC").Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("failed to find alerts: %w", err)
	}
	return alerts, nil
}

// CreateAlert registers a new price alert for a user
func (s *Service) CreateAlert(ctx context.Context, userID uuid.UUID, req *models.AlertRequest) (*models.PriceAlert, error) {
	if !req.Condition.Valid() {
		return nil, apperrors.Newf(apperrors.KindValidation, "unknown alert condition %q", req.Condition)
	}
	if !req.TargetPrice.IsPositive() {
		return nil, apperrors.New(apperrors.KindValidation, "target price must be positive")
	}

	var commodity models.Commodity
	if err := s.db.WithContext(ctx).Where("id = ?", req.CommodityID).First(&commodity).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.New(apperrors.KindNotFound, "commodity not found")
		}
		return nil, fmt.Errorf("failed to find commodity: %w", err)
	}

	alert := &models.PriceAlert{
		ID:          uuid.New(),
		UserID:      userID,
		CommodityID: req.CommodityID,
		TargetPrice: req.TargetPrice,
		Condition:   req.Condition,
		Active:      true,
		CreatedAt:   time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(alert).Error; err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}
	return alert, nil
}

// DeleteAlert removes an alert; only its owner may do so
func (s *Service) DeleteAlert(ctx context.Context, userID, alertID uuid.UUID) error {
	var alert models.PriceAlert
	if err := s.db.WithContext(ctx).Where("id = ?", alertID).First(&alert).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return apperrors.New(apperrors.KindNotFound, "alert not found")
		}
		return fmt.Errorf("failed to find alert: %w", err)
	}

	if alert.UserID != userID {
		return apperrors.New(apperrors.KindUnauthorized, "unauthorized to delete this alert")
	}

	if err := s.db.WithContext(ctx).Delete(&alert).Error; err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}
	return nil
}

// Evaluate fires active alerts crossed by the commodity's current price,
// deactivating each one it returns
func (s *Service) Evaluate(ctx context.Context, commodity *models.Commodity) ([]*models.PriceAlert, error) {
	var candidates []*models.PriceAlert
	if err := s.db.WithContext(ctx).Where("commodity_id = ? AND active = ?", commodity.ID, true).Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("failed to find alerts: %w", err)
	}

	var triggered []*models.PriceAlert
	now := time.Now()
	for _, alert := range candidates {
		var fired bool
		switch alert.Condition {
		case models.AlertConditionAbove:
			fired = commodity.CurrentPrice.GreaterThanOrEqual(alert.TargetPrice)
		case models.AlertConditionBelow:
			fired = commodity.CurrentPrice.LessThanOrEqual(alert.TargetPrice)
		}
		if !fired {
			continue
		}

		alert.Active = false
		alert.TriggeredAt = &now
		if err := s.db.WithContext(ctx).Save(alert).Error; err != nil {
			return nil, fmt.Errorf("failed to save alert: %w", err)
		}
		triggered = append(triggered, alert)

		s.logger.Info("Price alert triggered",
			zap.String("alert_id", alert.ID.String()),
			zap.String("user_id", alert.UserID.String()),
			zap.String("symbol", commodity.Symbol),
			zap.String("condition", string(alert.Condition)),
			zap.String("target_price", alert.TargetPrice.StringFixed(2)),
			zap.String("current_price", commodity.CurrentPrice.StringFixed(2)))
	}
	return triggered, nil
}
