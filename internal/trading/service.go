// Package trading implements the order execution engine: validation,
// affordability/availability checks and the atomic four-way state update
// across balance, holdings, order log and cash ledger.
package trading

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Tipukhan564/Commodities-Exchange/internal/bookkeeper"
	"github.com/Tipukhan564/Commodities-Exchange/internal/holdings"
	"github.com/Tipukhan564/Commodities-Exchange/internal/marketfeeds"
	"github.com/Tipukhan564/Commodities-Exchange/internal/messaging"
	apperrors "github.com/Tipukhan564/Commodities-Exchange/pkg/errors"
	"github.com/Tipukhan564/Commodities-Exchange/pkg/metrics"
	"github.com/Tipukhan564/Commodities-Exchange/pkg/models"
)

// TradingService defines order execution operations
type TradingService interface {
	Start() error
	Stop() error
	PlaceOrder(ctx context.Context, userID uuid.UUID, req *models.OrderRequest) (*models.Order, error)
	CancelOrder(ctx context.Context, userID, orderID uuid.UUID) error
	GetUserOrders(ctx context.Context, userID uuid.UUID) ([]*models.Order, error)
	ListOrders(ctx context.Context) ([]*models.Order, error)
}

// Config holds engine retry settings
type Config struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:   3,
		RetryBackoff: 100 * time.Millisecond,
	}
}

// Service implements TradingService
type Service struct {
	logger      *zap.Logger
	db          *gorm.DB
	bookkeeper  bookkeeper.BookkeeperService
	holdings    holdings.HoldingsService
	marketfeeds marketfeeds.MarketFeedService
	publisher   messaging.Publisher
	config      *Config
}

// NewService creates a new TradingService
func NewService(
	logger *zap.Logger,
	db *gorm.DB,
	bookkeeperSvc bookkeeper.BookkeeperService,
	holdingsSvc holdings.HoldingsService,
	marketfeedsSvc marketfeeds.MarketFeedService,
	publisher messaging.Publisher,
	config *Config,
) (TradingService, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	return &Service{
		logger:      logger,
		db:          db,
		bookkeeper:  bookkeeperSvc,
		holdings:    holdingsSvc,
		marketfeeds: marketfeedsSvc,
		publisher:   publisher,
		config:      config,
	}, nil
}

// Start starts the trading service
func (s *Service) Start() error {
	s.logger.Info("Trading service started")
	return nil
}

// Stop stops the trading service
func (s *Service) Stop() error {
	s.logger.Info("Trading service stopped")
	return nil
}

// PlaceOrder validates and executes a buy/sell request. Balance, holding,
// order log and cash ledger move in one transaction: either all four commit
// or none do. The affordability and availability checks run inside that
// transaction under row locks, so concurrent orders for the same account
// observe each other's effects in commit order.
func (s *Service) PlaceOrder(ctx context.Context, userID uuid.UUID, req *models.OrderRequest) (*models.Order, error) {
	start := time.Now()

	if err := validateOrderRequest(req); err != nil {
		metrics.OrdersRejected.WithLabelValues(string(apperrors.KindOf(err))).Inc()
		return nil, err
	}

	commodity, err := s.marketfeeds.GetCommodity(ctx, req.CommodityID)
	if err != nil {
		metrics.OrdersRejected.WithLabelValues(string(apperrors.KindOf(err))).Inc()
		return nil, err
	}

	totalCost := req.Quantity.Mul(req.Price)

	var order *models.Order
	err = s.withRetry(ctx, func() error {
		order = nil
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			// Both sides lock the account row before the holding row so
			// concurrent opposite-side orders on the same position cannot
			// deadlock. A credit applied before a failed reduce rolls back
			// with the rest of the transaction.
			switch req.Side {
			case models.OrderSideBuy:
				if err := s.bookkeeper.DebitTx(tx, userID, totalCost); err != nil {
					return err
				}
				if _, err := s.holdings.UpsertTx(tx, userID, commodity.ID, req.Quantity, req.Price, totalCost); err != nil {
					return err
				}
			case models.OrderSideSell:
				if err := s.bookkeeper.CreditTx(tx, userID, totalCost); err != nil {
					return err
				}
				if err := s.holdings.ReduceTx(tx, userID, commodity.ID, req.Quantity); err != nil {
					return err
				}
			default:
				return apperrors.Newf(apperrors.KindValidation, "unknown order side %q", req.Side)
			}

			order = &models.Order{
				ID:          uuid.New(),
				UserID:      userID,
				CommodityID: commodity.ID,
				Side:        req.Side,
				Quantity:    req.Quantity,
				Price:       req.Price,
				Status:      models.OrderStatusCompleted,
				CreatedAt:   time.Now(),
			}
			if err := tx.Create(order).Error; err != nil {
				return fmt.Errorf("failed to create order: %w", err)
			}

			var txType models.TransactionType
			var amount decimal.Decimal
			var description string
			if req.Side == models.OrderSideBuy {
				txType = models.TransactionTypeBuy
				amount = totalCost.Neg()
				description = fmt.Sprintf("Bought %s %s", req.Quantity.String(), commodity.Name)
			} else {
				txType = models.TransactionTypeSell
				amount = totalCost
				description = fmt.Sprintf("Sold %s %s", req.Quantity.String(), commodity.Name)
			}
			if _, err := s.bookkeeper.AppendTransactionTx(tx, userID, txType, amount, description); err != nil {
				return err
			}

			return nil
		})
	})
	if err != nil {
		metrics.OrdersRejected.WithLabelValues(string(apperrors.KindOf(err))).Inc()
		return nil, err
	}

	metrics.OrdersProcessed.WithLabelValues(strings.ToLower(string(req.Side))).Inc()
	metrics.OrderLatency.Observe(time.Since(start).Seconds())

	s.publisher.PublishOrderExecuted(ctx, order)

	s.logger.Info("Order executed",
		zap.String("order_id", order.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("symbol", commodity.Symbol),
		zap.String("side", string(req.Side)),
		zap.String("quantity", req.Quantity.String()),
		zap.String("price", req.Price.StringFixed(2)))

	return order, nil
}

// CancelOrder transitions a PENDING order to CANCELLED. Executed orders
// are terminal and never reversed.
func (s *Service) CancelOrder(ctx context.Context, userID, orderID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.Where("id = ?", orderID).First(&order).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperrors.New(apperrors.KindNotFound, "order not found")
			}
			return fmt.Errorf("failed to find order: %w", err)
		}

		if order.UserID != userID {
			return apperrors.New(apperrors.KindUnauthorized, "unauthorized to cancel this order")
		}

		switch order.Status {
		case models.OrderStatusPending:
			// the only state a cancel is legal from
		case models.OrderStatusCompleted, models.OrderStatusCancelled:
			return apperrors.New(apperrors.KindInvalidState, "only pending orders can be cancelled")
		default:
			return apperrors.Newf(apperrors.KindInvalidState, "unknown order status %q", order.Status)
		}

		order.Status = models.OrderStatusCancelled
		if err := tx.Save(&order).Error; err != nil {
			return fmt.Errorf("failed to save order: %w", err)
		}
		return nil
	})
}

// GetUserOrders returns a user's orders, newest first
func (s *Service) GetUserOrders(ctx context.Context, userID uuid.UUID) ([]*models.Order, error) {
	var orders []*models.Order
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to find orders: %w", err)
	}
	return orders, nil
}

// ListOrders returns every order on the exchange, newest first
func (s *Service) ListOrders(ctx context.Context) ([]*models.Order, error) {
	var orders []*models.Order
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to find orders: %w", err)
	}
	return orders, nil
}

// withRetry runs fn, retrying storage-level conflicts with backoff.
// Typed business failures are final and surface on the first attempt.
func (s *Service) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.config.RetryBackoff * time.Duration(attempt)):
			}
		}

		err = fn()
		if err == nil {
			return nil
		}

		var appErr *apperrors.Error
		if apperrors.As(err, &appErr) {
			return err
		}

		s.logger.Warn("Order transaction conflict, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return apperrors.Wrap(apperrors.KindTransient, err, "order could not be executed after retries")
}

// validateOrderRequest rejects malformed input before any state is touched
func validateOrderRequest(req *models.OrderRequest) error {
	if req == nil {
		return apperrors.New(apperrors.KindValidation, "order request is required")
	}
	if req.CommodityID == uuid.Nil {
		return apperrors.New(apperrors.KindValidation, "commodity_id is required")
	}
	if !req.Side.Valid() {
		return apperrors.Newf(apperrors.KindValidation, "unknown order side %q", req.Side)
	}
	if !req.Quantity.IsPositive() {
		return apperrors.New(apperrors.KindValidation, "quantity must be positive")
	}
	if !req.Price.IsPositive() {
		return apperrors.New(apperrors.KindValidation, "price must be positive")
	}
	return nil
}
