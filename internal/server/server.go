// Package server exposes the HTTP API over gin.
package server

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/Tipukhan564/Commodities-Exchange/internal/alerts"
	"github.com/Tipukhan564/Commodities-Exchange/internal/bookkeeper"
	"github.com/Tipukhan564/Commodities-Exchange/internal/holdings"
	"github.com/Tipukhan564/Commodities-Exchange/internal/identities"
	"github.com/Tipukhan564/Commodities-Exchange/internal/marketfeeds"
	"github.com/Tipukhan564/Commodities-Exchange/internal/trading"
	"github.com/Tipukhan564/Commodities-Exchange/internal/watchlist"
	apperrors "github.com/Tipukhan564/Commodities-Exchange/pkg/errors"
	"github.com/Tipukhan564/Commodities-Exchange/pkg/models"
	"github.com/Tipukhan564/Commodities-Exchange/pkg/validation"
)

const ctxUserIDKey = "userID"

// statsTransactionLimit caps the ledger scan on admin listings
const statsTransactionLimit = 1000

// Server represents the HTTP server
type Server struct {
	logger         *zap.Logger
	identitiesSvc  identities.IdentityService
	bookkeeperSvc  bookkeeper.BookkeeperService
	holdingsSvc    holdings.HoldingsService
	marketfeedsSvc marketfeeds.MarketFeedService
	tradingSvc     trading.TradingService
	watchlistSvc   watchlist.WatchlistService
	alertsSvc      alerts.AlertService
}

// NewServer creates a new HTTP server
func NewServer(
	logger *zap.Logger,
	identitiesSvc identities.IdentityService,
	bookkeeperSvc bookkeeper.BookkeeperService,
	holdingsSvc holdings.HoldingsService,
	marketfeedsSvc marketfeeds.MarketFeedService,
	tradingSvc trading.TradingService,
	watchlistSvc watchlist.WatchlistService,
	alertsSvc alerts.AlertService,
) *Server {
	return &Server{
		logger:         logger,
		identitiesSvc:  identitiesSvc,
		bookkeeperSvc:  bookkeeperSvc,
		holdingsSvc:    holdingsSvc,
		marketfeedsSvc: marketfeedsSvc,
		tradingSvc:     tradingSvc,
		watchlistSvc:   watchlistSvc,
		alertsSvc:      alertsSvc,
	}
}

// Router creates a new HTTP router
func (s *Server) Router() *gin.Engine {
	validation.RegisterCustomTypes()

	router := gin.New()

	router.Use(ginzap.Ginzap(s.logger, "2006-01-02T15:04:05Z07:00", true))
	router.Use(ginzap.RecoveryWithZap(s.logger, true))
	router.Use(otelgin.Middleware("commodity-exchange"))
	router.Use(cors.Default())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			auth := v1.Group("/auth")
			{
				auth.POST("/register", s.handleRegister)
				auth.POST("/login", s.handleLogin)
			}

			commodities := v1.Group("/commodities")
			{
				commodities.GET("", s.handleListCommodities)
				commodities.GET("/:symbol", s.handleGetCommodity)
			}

			tradingGroup := v1.Group("/trading", s.authMiddleware())
			{
				tradingGroup.POST("/orders", s.handlePlaceOrder)
				tradingGroup.GET("/orders", s.handleGetOrders)
				tradingGroup.DELETE("/orders/:id", s.handleCancelOrder)
			}

			v1.GET("/portfolio", s.authMiddleware(), s.handleGetPortfolio)

			profile := v1.Group("/profile", s.authMiddleware())
			{
				profile.GET("", s.handleGetProfile)
				profile.PUT("", s.handleUpdateProfile)
			}

			wallet := v1.Group("/wallet", s.authMiddleware())
			{
				wallet.GET("", s.handleGetWallet)
				wallet.POST("/deposit", s.handleDeposit)
				wallet.GET("/transactions", s.handleGetTransactions)
			}

			watchlistGroup := v1.Group("/watchlist", s.authMiddleware())
			{
				watchlistGroup.GET("", s.handleGetWatchlist)
				watchlistGroup.POST("", s.handleAddToWatchlist)
				watchlistGroup.DELETE("/:commodityId", s.handleRemoveFromWatchlist)
			}

			alertsGroup := v1.Group("/alerts", s.authMiddleware())
			{
				alertsGroup.GET("", s.handleGetAlerts)
				alertsGroup.POST("", s.handleCreateAlert)
				alertsGroup.DELETE("/:id", s.handleDeleteAlert)
			}

			admin := v1.Group("/admin", s.authMiddleware(), s.adminMiddleware())
			{
				admin.GET("/users", s.handleListUsers)
				admin.GET("/users/:id", s.handleGetUserDetails)
				admin.DELETE("/users/:id", s.handleDeleteUser)
				admin.GET("/orders", s.handleListAllOrders)
				admin.GET("/transactions", s.handleListAllTransactions)
				admin.GET("/stats", s.handleGetStats)
				admin.PUT("/commodities/:symbol/price", s.handleUpdatePrice)
			}
		}
	}

	return router
}

// authMiddleware resolves the acting account from the Authorization header
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or malformed authorization header"})
			return
		}

		userID, err := s.identitiesSvc.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ctxUserIDKey, userID)
		c.Next()
	}
}

// adminMiddleware requires the acting account to have the admin flag
func (s *Server) adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.MustGet(ctxUserIDKey).(uuid.UUID)
		isAdmin, err := s.identitiesSvc.IsAdmin(c.Request.Context(), userID)
		if err != nil || !isAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}

// respondError maps a service failure onto an HTTP response
func (s *Server) respondError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": string(apperrors.KindOf(err))})
}

func currentUserID(c *gin.Context) uuid.UUID {
	return c.MustGet(ctxUserIDKey).(uuid.UUID)
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) handleRegister(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	resp, err := s.identitiesSvc.Register(c.Request.Context(), &req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleLogin(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	resp, err := s.identitiesSvc.Login(c.Request.Context(), &req)
	if err != nil {
		// Uniform 401 regardless of which check failed
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListCommodities(c *gin.Context) {
	commodities, err := s.marketfeedsSvc.ListCommodities(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, commodities)
}

func (s *Server) handleGetCommodity(c *gin.Context) {
	commodity, err := s.marketfeedsSvc.GetCommodityBySymbol(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, commodity)
}

func (s *Server) handlePlaceOrder(c *gin.Context) {
	var req models.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	order, err := s.tradingSvc.PlaceOrder(c.Request.Context(), currentUserID(c), &req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (s *Server) handleGetOrders(c *gin.Context) {
	orders, err := s.tradingSvc.GetUserOrders(c.Request.Context(), currentUserID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (s *Server) handleCancelOrder(c *gin.Context) {
	orderID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := s.tradingSvc.CancelOrder(c.Request.Context(), currentUserID(c), orderID); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "order cancelled"})
}

func (s *Server) handleGetPortfolio(c *gin.Context) {
	ctx := c.Request.Context()
	userHoldings, err := s.holdingsSvc.GetUserHoldings(ctx, currentUserID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}

	views := make([]*models.HoldingView, 0, len(userHoldings))
	for _, h := range userHoldings {
		view := &models.HoldingView{Holding: *h}
		if commodity, err := s.marketfeedsSvc.GetCommodity(ctx, h.CommodityID); err == nil {
			view.Symbol = commodity.Symbol
			view.Name = commodity.Name
			view.CurrentPrice = commodity.CurrentPrice
			view.CurrentValue = h.Quantity.Mul(commodity.CurrentPrice).Round(2)
			costBasis := h.Quantity.Mul(h.AveragePrice)
			view.ProfitLoss = view.CurrentValue.Sub(costBasis).Round(2)
			if costBasis.IsPositive() {
				view.ProfitLossPct = view.ProfitLoss.Div(costBasis).Mul(decimalHundred).Round(2)
			}
		}
		views = append(views, view)
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) handleGetWallet(c *gin.Context) {
	balance, err := s.bookkeeperSvc.GetBalance(c.Request.Context(), currentUserID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

func (s *Server) handleDeposit(c *gin.Context) {
	var req models.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	entry, err := s.bookkeeperSvc.Deposit(c.Request.Context(), currentUserID(c), req.Amount)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (s *Server) handleGetTransactions(c *gin.Context) {
	transactions, err := s.bookkeeperSvc.GetUserTransactions(c.Request.Context(), currentUserID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, transactions)
}

func (s *Server) handleGetWatchlist(c *gin.Context) {
	entries, err := s.watchlistSvc.GetUserWatchlist(c.Request.Context(), currentUserID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) handleAddToWatchlist(c *gin.Context) {
	var req models.WatchlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	entry, err := s.watchlistSvc.AddToWatchlist(c.Request.Context(), currentUserID(c), req.CommodityID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (s *Server) handleRemoveFromWatchlist(c *gin.Context) {
	commodityID, ok := parseUUIDParam(c, "commodityId")
	if !ok {
		return
	}

	if err := s.watchlistSvc.RemoveFromWatchlist(c.Request.Context(), currentUserID(c), commodityID); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "removed from watchlist"})
}

func (s *Server) handleGetAlerts(c *gin.Context) {
	ctx := c.Request.Context()
	userID := currentUserID(c)

	var (
		result []*models.PriceAlert
		err    error
	)
	if c.Query("active") == "true" {
		result, err = s.alertsSvc.GetUserActiveAlerts(ctx, userID)
	} else {
		result, err = s.alertsSvc.GetUserAlerts(ctx, userID)
	}
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleCreateAlert(c *gin.Context) {
	var req models.AlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	alert, err := s.alertsSvc.CreateAlert(c.Request.Context(), currentUserID(c), &req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, alert)
}

func (s *Server) handleDeleteAlert(c *gin.Context) {
	alertID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := s.alertsSvc.DeleteAlert(c.Request.Context(), currentUserID(c), alertID); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "alert deleted"})
}

func (s *Server) handleGetProfile(c *gin.Context) {
	user, err := s.identitiesSvc.GetUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) handleUpdateProfile(c *gin.Context) {
	var req models.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	user, err := s.identitiesSvc.UpdateProfile(c.Request.Context(), currentUserID(c), &req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) handleListUsers(c *gin.Context) {
	users, err := s.identitiesSvc.ListUsers(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (s *Server) handleGetUserDetails(c *gin.Context) {
	userID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	user, err := s.identitiesSvc.GetUser(ctx, userID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	orders, err := s.tradingSvc.GetUserOrders(ctx, userID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	transactions, err := s.bookkeeperSvc.GetUserTransactions(ctx, userID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":         user,
		"orders":       orders,
		"transactions": transactions,
	})
}

func (s *Server) handleDeleteUser(c *gin.Context) {
	userID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := s.identitiesSvc.DeleteUser(c.Request.Context(), currentUserID(c), userID); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
}

func (s *Server) handleListAllOrders(c *gin.Context) {
	orders, err := s.tradingSvc.ListOrders(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (s *Server) handleListAllTransactions(c *gin.Context) {
	transactions, err := s.bookkeeperSvc.ListTransactions(c.Request.Context(), statsTransactionLimit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, transactions)
}

func (s *Server) handleGetStats(c *gin.Context) {
	ctx := c.Request.Context()

	users, err := s.identitiesSvc.ListUsers(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}
	orders, err := s.tradingSvc.ListOrders(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}
	commodities, err := s.marketfeedsSvc.ListCommodities(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}
	transactions, err := s.bookkeeperSvc.ListTransactions(ctx, statsTransactionLimit)
	if err != nil {
		s.respondError(c, err)
		return
	}

	totalVolume := decimal.Zero
	var buyOrders, sellOrders int
	for _, order := range orders {
		totalVolume = totalVolume.Add(order.Quantity.Mul(order.Price))
		switch order.Side {
		case models.OrderSideBuy:
			buyOrders++
		case models.OrderSideSell:
			sellOrders++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"total_users":        len(users),
		"total_orders":       len(orders),
		"buy_orders":         buyOrders,
		"sell_orders":        sellOrders,
		"total_commodities":  len(commodities),
		"total_volume":       totalVolume,
		"total_transactions": len(transactions),
	})
}

func (s *Server) handleUpdatePrice(c *gin.Context) {
	var req models.PriceUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	commodity, err := s.marketfeedsSvc.UpdatePrice(c.Request.Context(), c.Param("symbol"), &req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, commodity)
}

var decimalHundred = decimal.NewFromInt(100)
