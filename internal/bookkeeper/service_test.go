package bookkeeper

import (
	"context"
	"sync"
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

func setupService(t *testing.T) (BookkeeperService, *gorm.DB, *models.User) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.CashTransaction{}))

	svc, err := NewService(zap.NewNop(), db)
	require.NoError(t, err)

	user := &models.User{
		ID:        uuid.New(),
		Email:     "cash@example.com",
		Username:  "cash",
		Balance:   decimal.RequireFromString("1000.00"),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, db.Create(user).Error)

	return svc, db, user
}

func TestGetBalance(t *testing.T) {
	svc, _, user := setupService(t)

	balance, err := svc.GetBalance(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("1000.00")))

	_, err = svc.GetBalance(context.Background(), uuid.New())
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestDebitTx(t *testing.T) {
	svc, db, user := setupService(t)

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.DebitTx(tx, user.ID, decimal.RequireFromString("250.00"))
	})
	require.NoError(t, err)

	balance, err := svc.GetBalance(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("750.00")))
}

func TestDebitTxInsufficientFunds(t *testing.T) {
	svc, db, user := setupService(t)

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.DebitTx(tx, user.ID, decimal.RequireFromString("1000.01"))
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindInsufficientFunds))

	balance, err := svc.GetBalance(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("1000.00")))
}

func TestDebitTxRejectsNonPositiveAmounts(t *testing.T) {
	svc, db, user := setupService(t)

	for _, amount := range []string{"0", "-1.00"} {
		err := db.Transaction(func(tx *gorm.DB) error {
			return svc.DebitTx(tx, user.ID, decimal.RequireFromString(amount))
		})
		assert.True(t, apperrors.IsKind(err, apperrors.KindValidation), "amount %s", amount)
	}
}

func TestCreditTx(t *testing.T) {
	svc, db, user := setupService(t)

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.CreditTx(tx, user.ID, decimal.RequireFromString("99.99"))
	})
	require.NoError(t, err)

	balance, err := svc.GetBalance(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("1099.99")))
}

func TestCreditTxAcceptsZeroRejectsNegative(t *testing.T) {
	svc, db, user := setupService(t)

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.CreditTx(tx, user.ID, decimal.Zero)
	})
	require.NoError(t, err)

	balance, err := svc.GetBalance(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("1000.00")))

	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.CreditTx(tx, user.ID, decimal.RequireFromString("-1.00"))
	})
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestDeposit(t *testing.T) {
	svc, _, user := setupService(t)
	ctx := context.Background()

	entry, err := svc.Deposit(ctx, user.ID, decimal.RequireFromString("500.00"))
	require.NoError(t, err)
	assert.Equal(t, models.TransactionTypeDeposit, entry.Type)
	assert.Equal(t, "Account deposit", entry.Description)
	assert.True(t, entry.Amount.Equal(decimal.RequireFromString("500.00")))

	balance, err := svc.GetBalance(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("1500.00")))

	_, err = svc.Deposit(ctx, user.ID, decimal.Zero)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	_, err = svc.Deposit(ctx, uuid.New(), decimal.RequireFromString("10.00"))
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestAppendTransactionTxRejectsUnknownType(t *testing.T) {
	svc, db, user := setupService(t)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.AppendTransactionTx(tx, user.ID, models.TransactionType("REFUND"), decimal.Zero, "")
		return err
	})
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestGetUserTransactionsNewestFirst(t *testing.T) {
	svc, _, user := setupService(t)
	ctx := context.Background()

	for _, amount := range []string{"10.00", "20.00", "30.00"} {
		_, err := svc.Deposit(ctx, user.ID, decimal.RequireFromString(amount))
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}

	entries, err := svc.GetUserTransactions(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, entries[0].Amount.Equal(decimal.RequireFromString("30.00")))
	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i-1].CreatedAt.Before(entries[i].CreatedAt))
	}
}

func TestListTransactionsAcrossAccounts(t *testing.T) {
	svc, db, user := setupService(t)
	ctx := context.Background()

	other := &models.User{
		ID:        uuid.New(),
		Email:     "other@example.com",
		Username:  "other",
		Balance:   decimal.RequireFromString("100.00"),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, db.Create(other).Error)

	_, err := svc.Deposit(ctx, user.ID, decimal.RequireFromString("10.00"))
	require.NoError(t, err)
	_, err = svc.Deposit(ctx, other.ID, decimal.RequireFromString("20.00"))
	require.NoError(t, err)

	entries, err := svc.ListTransactions(ctx, 1000)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	capped, err := svc.ListTransactions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, capped, 1)
}

func TestConcurrentDebitsNeverGoNegative(t *testing.T) {
	svc, db, user := setupService(t)

	// 1000.00 balance, 15 attempts at 100.00: exactly 10 can fit.
	const n = 15
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- db.Transaction(func(tx *gorm.DB) error {
				return svc.DebitTx(tx, user.ID, decimal.RequireFromString("100.00"))
			})
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded int
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, apperrors.IsKind(err, apperrors.KindInsufficientFunds))
		}
	}
	assert.Equal(t, 10, succeeded)

	balance, err := svc.GetBalance(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.Zero), "balance = %s", balance)
}
