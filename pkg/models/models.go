package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderSide is the direction of an order
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Valid reports whether the side is one of the closed set of values.
func (s OrderSide) Valid() bool {
	switch s {
	case OrderSideBuy, OrderSideSell:
		return true
	default:
		return false
	}
}

// OrderStatus is the lifecycle state of an order.
// PENDING may transition to COMPLETED or CANCELLED; both are terminal.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// TransactionType is the kind of a cash movement
type TransactionType string

const (
	TransactionTypeDeposit TransactionType = "DEPOSIT"
	TransactionTypeBuy     TransactionType = "BUY"
	TransactionTypeSell    TransactionType = "SELL"
)

// AlertCondition is the trigger direction of a price alert
type AlertCondition string

const (
	AlertConditionAbove AlertCondition = "ABOVE"
	AlertConditionBelow AlertCondition = "BELOW"
)

// Valid reports whether the condition is one of the closed set of values.
func (c AlertCondition) Valid() bool {
	switch c {
	case AlertConditionAbove, AlertConditionBelow:
		return true
	default:
		return false
	}
}

// User represents a registered account holding the cash balance
type User struct {
	ID           uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	Email        string          `json:"email" gorm:"uniqueIndex" validate:"required,email,max=254"`
	Username     string          `json:"username" gorm:"uniqueIndex" validate:"required,min=3,max=30,alphanum"`
	PasswordHash string          `json:"-" gorm:"column:password_hash"`
	FullName     string          `json:"full_name" validate:"required,min=1,max=100"`
	Balance      decimal.Decimal `json:"balance" gorm:"type:decimal(15,2)"`
	IsAdmin      bool            `json:"is_admin" gorm:"default:false"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Commodity represents a tradable instrument with its current quote
type Commodity struct {
	ID             uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	Symbol         string          `json:"symbol" gorm:"uniqueIndex;size:20" validate:"required,min=1,max=20"`
	Name           string          `json:"name" gorm:"size:100" validate:"required,min=1,max=100"`
	CurrentPrice   decimal.Decimal `json:"current_price" gorm:"type:decimal(15,2)"`
	PriceChange24h decimal.Decimal `json:"price_change_24h" gorm:"type:decimal(10,2)"`
	High24h        decimal.Decimal `json:"high_24h" gorm:"type:decimal(15,2)"`
	Low24h         decimal.Decimal `json:"low_24h" gorm:"type:decimal(15,2)"`
	Volume24h      decimal.Decimal `json:"volume_24h" gorm:"type:decimal(20,4)"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Holding represents a user's position in one commodity.
// A record exists only while quantity is strictly positive.
type Holding struct {
	ID           uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	UserID       uuid.UUID       `json:"user_id" gorm:"type:uuid;uniqueIndex:idx_holdings_user_commodity"`
	CommodityID  uuid.UUID       `json:"commodity_id" gorm:"type:uuid;uniqueIndex:idx_holdings_user_commodity"`
	Quantity     decimal.Decimal `json:"quantity" gorm:"type:decimal(15,4)"`
	AveragePrice decimal.Decimal `json:"average_price" gorm:"type:decimal(15,2)"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Order represents a single executed buy/sell request.
// Immutable once written except for the status transition in CancelOrder.
type Order struct {
	ID          uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	UserID      uuid.UUID       `json:"user_id" gorm:"type:uuid;index"`
	CommodityID uuid.UUID       `json:"commodity_id" gorm:"type:uuid;index"`
	Side        OrderSide       `json:"side" gorm:"size:10"`
	Quantity    decimal.Decimal `json:"quantity" gorm:"type:decimal(15,4)"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(15,2)"`
	Status      OrderStatus     `json:"status" gorm:"size:20"`
	CreatedAt   time.Time       `json:"created_at"`
}

// CashTransaction is an immutable ledger entry for a cash movement.
// Amount is negative for outflows and positive for inflows.
type CashTransaction struct {
	ID          uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	UserID      uuid.UUID       `json:"user_id" gorm:"type:uuid;index"`
	Type        TransactionType `json:"type" gorm:"size:10"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:decimal(15,2)"`
	Description string          `json:"description" gorm:"size:255"`
	CreatedAt   time.Time       `json:"created_at"`
}

// WatchlistEntry pins a commodity to a user's watchlist
type WatchlistEntry struct {
	ID          uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	UserID      uuid.UUID `json:"user_id" gorm:"type:uuid;uniqueIndex:idx_watchlist_user_commodity"`
	CommodityID uuid.UUID `json:"commodity_id" gorm:"type:uuid;uniqueIndex:idx_watchlist_user_commodity"`
	AddedAt     time.Time `json:"added_at"`
}

// PriceAlert notifies a user when a commodity crosses a target price
type PriceAlert struct {
	ID          uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	UserID      uuid.UUID       `json:"user_id" gorm:"type:uuid;index"`
	CommodityID uuid.UUID       `json:"commodity_id" gorm:"type:uuid;index"`
	TargetPrice decimal.Decimal `json:"target_price" gorm:"type:decimal(15,2)"`
	Condition   AlertCondition  `json:"condition" gorm:"size:10"`
	Active      bool            `json:"active" gorm:"default:true"`
	CreatedAt   time.Time       `json:"created_at"`
	TriggeredAt *time.Time      `json:"triggered_at"`
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required,min=3,max=30,alphanum"`
	Password string `json:"password" binding:"required,min=8,max=128"`
	FullName string `json:"full_name" binding:"required,min=1,max=100"`
}

// LoginRequest represents a user login request
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}

// LoginResponse represents a user login response
type LoginResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// UpdateProfileRequest represents a profile update; empty fields are left
// unchanged
type UpdateProfileRequest struct {
	FullName string `json:"full_name" binding:"omitempty,min=1,max=100"`
	Email    string `json:"email" binding:"omitempty,email"`
}

// OrderRequest represents an order placement request
type OrderRequest struct {
	CommodityID uuid.UUID       `json:"commodity_id" binding:"required"`
	Side        OrderSide       `json:"side" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity" binding:"required,gt=0"`
	Price       decimal.Decimal `json:"price" binding:"required,gt=0"`
}

// DepositRequest represents a wallet deposit request
type DepositRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required,gt=0"`
}

// WatchlistRequest represents a request to pin a commodity
type WatchlistRequest struct {
	CommodityID uuid.UUID `json:"commodity_id" binding:"required"`
}

// AlertRequest represents a price alert creation request
type AlertRequest struct {
	CommodityID uuid.UUID       `json:"commodity_id" binding:"required"`
	TargetPrice decimal.Decimal `json:"target_price" binding:"required,gt=0"`
	Condition   AlertCondition  `json:"condition" binding:"required"`
}

// PriceUpdateRequest represents an admin quote update for a commodity
type PriceUpdateRequest struct {
	Price     decimal.Decimal  `json:"price" binding:"required,gt=0"`
	Change24h *decimal.Decimal `json:"change_24h"`
	High24h   *decimal.Decimal `json:"high_24h"`
	Low24h    *decimal.Decimal `json:"low_24h"`
	Volume24h *decimal.Decimal `json:"volume_24h"`
}

// HoldingView is a holding joined with its commodity for portfolio listings
type HoldingView struct {
	Holding
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	CurrentValue  decimal.Decimal `json:"current_value"`
	ProfitLoss    decimal.Decimal `json:"profit_loss"`
	ProfitLossPct decimal.Decimal `json:"profit_loss_pct"`
}
