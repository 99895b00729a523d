package identities

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	apperrors "github.com/Tipukhan564/Commodities-Exchange/pkg/errors"
	"github.com/Tipukhan564/Commodities-Exchange/pkg/models"
)

func setupService(t *testing.T) (IdentityService, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.CashTransaction{}, &models.Order{},
		&models.Holding{}, &models.WatchlistEntry{}, &models.PriceAlert{},
	))

	svc, err := NewService(zap.NewNop(), db, "test-secret", 24)
	require.NoError(t, err)
	return svc, db
}

func registerReq() *models.RegisterRequest {
	return &models.RegisterRequest{
		Email:    "alice@example.com",
		Username: "alice",
		Password: "correct-horse-battery",
		FullName: "Alice Example",
	}
}

func TestNewServiceRequiresSecret(t *testing.T) {
	_, err := NewService(zap.NewNop(), nil, "", 24)
	assert.Error(t, err)
}

func TestRegisterGrantsStartingBalance(t *testing.T) {
	svc, db := setupService(t)

	resp, err := svc.Register(context.Background(), registerReq())
	require.NoError(t, err)
	require.NotNil(t, resp.User)
	assert.NotEmpty(t, resp.Token)
	assert.True(t, resp.User.Balance.Equal(StartingBalance))
	assert.False(t, resp.User.IsAdmin)

	var entry models.CashTransaction
	require.NoError(t, db.Where("user_id = ?", resp.User.ID).First(&entry).Error)
	assert.Equal(t, models.TransactionTypeDeposit, entry.Type)
	assert.Equal(t, "Initial deposit", entry.Description)
	assert.True(t, entry.Amount.Equal(StartingBalance))
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, registerReq())
	require.NoError(t, err)

	dupUsername := registerReq()
	dupUsername.Email = "other@example.com"
	_, err = svc.Register(ctx, dupUsername)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))

	dupEmail := registerReq()
	dupEmail.Username = "bob"
	_, err = svc.Register(ctx, dupEmail)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))
}

func TestLogin(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, registerReq())
	require.NoError(t, err)

	resp, err := svc.Login(ctx, &models.LoginRequest{Username: "alice", Password: "correct-horse-battery"})
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, resp.User.ID)
	assert.NotEmpty(t, resp.Token)

	_, err = svc.Login(ctx, &models.LoginRequest{Username: "alice", Password: "wrong-password"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindUnauthorized))

	_, err = svc.Login(ctx, &models.LoginRequest{Username: "nobody", Password: "whatever-password"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindUnauthorized))
}

func TestTokenRoundTrip(t *testing.T) {
	svc, _ := setupService(t)

	resp, err := svc.Register(context.Background(), registerReq())
	require.NoError(t, err)

	userID, err := svc.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, userID)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc, _ := setupService(t)

	for _, token := range []string{"", "not-a-token", "aaa.bbb.ccc"} {
		_, err := svc.ValidateToken(token)
		assert.True(t, apperrors.IsKind(err, apperrors.KindUnauthorized), "token %q", token)
	}
}

func TestValidateTokenRejectsForeignSignature(t *testing.T) {
	svc, _ := setupService(t)
	other, err := NewService(zap.NewNop(), nil, "different-secret", 24)
	require.NoError(t, err)

	resp, err := svc.Register(context.Background(), registerReq())
	require.NoError(t, err)

	_, err = other.ValidateToken(resp.Token)
	assert.True(t, apperrors.IsKind(err, apperrors.KindUnauthorized))
}

func TestUpdateProfile(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	resp, err := svc.Register(ctx, registerReq())
	require.NoError(t, err)

	updated, err := svc.UpdateProfile(ctx, resp.User.ID, &models.UpdateProfileRequest{
		FullName: "Alice Renamed",
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice Renamed", updated.FullName)
	assert.Equal(t, "alice@example.com", updated.Email, "empty email keeps the current one")

	updated, err = svc.UpdateProfile(ctx, resp.User.ID, &models.UpdateProfileRequest{
		Email: "alice.new@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice.new@example.com", updated.Email)
	assert.Equal(t, "Alice Renamed", updated.FullName)

	_, err = svc.UpdateProfile(ctx, uuid.New(), &models.UpdateProfileRequest{FullName: "Ghost"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestUpdateProfileRejectsTakenEmail(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	alice, err := svc.Register(ctx, registerReq())
	require.NoError(t, err)

	other := registerReq()
	other.Username = "bob"
	other.Email = "bob@example.com"
	_, err = svc.Register(ctx, other)
	require.NoError(t, err)

	_, err = svc.UpdateProfile(ctx, alice.User.ID, &models.UpdateProfileRequest{
		Email: "bob@example.com",
	})
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))

	// Re-submitting the current email is not a conflict
	_, err = svc.UpdateProfile(ctx, alice.User.ID, &models.UpdateProfileRequest{
		Email: "alice@example.com",
	})
	assert.NoError(t, err)
}

func TestDeleteUser(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()

	admin, err := svc.Register(ctx, registerReq())
	require.NoError(t, err)

	other := registerReq()
	other.Username = "bob"
	other.Email = "bob@example.com"
	victim, err := svc.Register(ctx, other)
	require.NoError(t, err)

	err = svc.DeleteUser(ctx, admin.User.ID, admin.User.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	err = svc.DeleteUser(ctx, admin.User.ID, uuid.New())
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

	require.NoError(t, svc.DeleteUser(ctx, admin.User.ID, victim.User.ID))

	_, err = svc.GetUser(ctx, victim.User.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

	// The account's ledger went with it
	var entryCount int64
	db.Model(&models.CashTransaction{}).Where("user_id = ?", victim.User.ID).Count(&entryCount)
	assert.Zero(t, entryCount)
}

func TestGetUserAndIsAdmin(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()

	resp, err := svc.Register(ctx, registerReq())
	require.NoError(t, err)

	user, err := svc.GetUser(ctx, resp.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	_, err = svc.GetUser(ctx, uuid.New())
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

	admin, err := svc.IsAdmin(ctx, resp.User.ID)
	require.NoError(t, err)
	assert.False(t, admin)

	require.NoError(t, db.Model(&models.User{}).Where("id = ?", resp.User.ID).Update("is_admin", true).Error)
	admin, err = svc.IsAdmin(ctx, resp.User.ID)
	require.NoError(t, err)
	assert.True(t, admin)
}
