// Package bookkeeper owns the cash side of the exchange: account balances
// and the append-only cash transaction ledger.
package bookkeeper

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

// BookkeeperService defines balance movement and ledger operations.
// The Tx variants participate in a caller-managed gorm transaction; the
// engine uses them to keep the four-way order update atomic.
type BookkeeperService interface {
	Start() error
	Stop() error
	GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*models.CashTransaction, error)
	GetUserTransactions(ctx context.Context, userID uuid.UUID) ([]*models.CashTransaction, error)
	ListTransactions(ctx context.Context, limit int) ([]*models.CashTransaction, error)

	DebitTx(tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal) error
	CreditTx(tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal) error
	AppendTransactionTx(tx *gorm.DB, userID uuid.UUID, txType models.TransactionType, amount decimal.Decimal, description string) (*models.CashTransaction, error)
}

// Service implements BookkeeperService
type Service struct {
	logger *zap.Logger
	db     *gorm.DB
}

// NewService creates a new BookkeeperService
func NewService(logger *zap.Logger, db *gorm.DB) (BookkeeperService, error) {
	return &Service{logger: logger, db: db}, nil
}

// Start starts the bookkeeper service
func (s *Service) Start() error {
	s.logger.Info("Bookkeeper service started")
	return nil
}

// Stop stops the bookkeeper service
func (s *Service) Stop() error {
	s.logger.Info("Bookkeeper service stopped")
	return nil
}

// GetBalance returns a user's committed cash balance
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return decimal.Zero, apperrors.New(apperrors.KindNotFound, "account not found")
		}
		return decimal.Zero, fmt.Errorf("failed to find account: %w", err)
	}
	return user.Balance, nil
}

// Deposit credits the balance and appends a DEPOSIT ledger entry atomically
func (s *Service) Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*models.CashTransaction, error) {
	if !amount.IsPositive() {
		return nil, apperrors.New(apperrors.KindValidation, "deposit amount must be positive")
	}

	var entry *models.CashTransaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.CreditTx(tx, userID, amount); err != nil {
			return err
		}
		var err error
		entry, err = s.AppendTransactionTx(tx, userID, models.TransactionTypeDeposit, amount, "Account deposit")
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Deposit completed",
		zap.String("user_id", userID.String()),
		zap.String("amount", amount.String()))
	return entry, nil
}

// GetUserTransactions returns a user's ledger entries, newest first
func (s *Service) GetUserTransactions(ctx context.Context, userID uuid.UUID) ([]*models.CashTransaction, error) {
	var transactions []*models.CashTransaction
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&transactions).Error; err != nil {
		return nil, fmt.Errorf("failed to find transactions: %w", err)
	}
	return transactions, nil
}

// ListTransactions returns ledger entries across all accounts, newest
// first, capped at limit
func (s *Service) ListTransactions(ctx context.Context, limit int) ([]*models.CashTransaction, error) {
	var transactions []*models.CashTransaction
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&transactions).Error; err != nil {
		return nil, fmt.Errorf("failed to find transactions: %w", err)
	}
	return transactions, nil
}

// DebitTx subtracts from the balance inside the caller's transaction.
// The balance is re-read under a row lock so a concurrent writer cannot
// slip a spend between check and update; the resulting balance must not
// go negative.
func (s *Service) DebitTx(tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperrors.New(apperrors.KindValidation, "debit amount must be positive")
	}

	user, err := lockUser(tx, userID)
	if err != nil {
		return err
	}

	if user.Balance.LessThan(amount) {
		return apperrors.Newf(apperrors.KindInsufficientFunds,
			"insufficient balance: have %s, need %s", user.Balance.StringFixed(2), amount.StringFixed(2))
	}

	user.Balance = user.Balance.Sub(amount)
	user.UpdatedAt = time.Now()
	if err := tx.Save(user).Error; err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// CreditTx adds to the balance inside the caller's transaction. Any
// non-negative amount succeeds.
func (s *Service) CreditTx(tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return apperrors.New(apperrors.KindValidation, "credit amount must not be negative")
	}

	user, err := lockUser(tx, userID)
	if err != nil {
		return err
	}

	user.Balance = user.Balance.Add(amount)
	user.UpdatedAt = time.Now()
	if err := tx.Save(user).Error; err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// AppendTransactionTx writes an immutable ledger entry inside the caller's
// transaction and returns it with its assigned identity and timestamp.
func (s *Service) AppendTransactionTx(tx *gorm.DB, userID uuid.UUID, txType models.TransactionType, amount decimal.Decimal, description string) (*models.CashTransaction, error) {
	switch txType {
	case models.TransactionTypeDeposit, models.TransactionTypeBuy, models.TransactionTypeSell:
	default:
		return nil, apperrors.Newf(apperrors.KindValidation, "unknown transaction type %q", txType)
	}

	entry := &models.CashTransaction{
		ID:          uuid.New(),
		UserID:      userID,
		Type:        txType,
		Amount:      amount,
		Description: description,
		CreatedAt:   time.Now(),
	}
	if err := tx.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to create cash transaction: %w", err)
	}
	return entry, nil
}

// lockUser reads the account row under an exclusive lock. SQLite has no
// row locks but serializes writers itself, so the clause is Postgres-only.
func lockUser(tx *gorm.DB, userID uuid.UUID) (*models.User, error) {
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var user models.User
	if err := q.Where("id = ?", userID).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.New(apperrors.KindNotFound, "account not found")
		}
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return &user, nil
}
