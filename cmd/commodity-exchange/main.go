package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Tipukhan564/Commodities-Exchange/internal/alerts"
	"github.com/Tipukhan564/Commodities-Exchange/internal/bookkeeper"
	"github.com/Tipukhan564/Commodities-Exchange/internal/config"
	"github.com/Tipukhan564/Commodities-Exchange/internal/database"
	"github.com/Tipukhan564/Commodities-Exchange/internal/holdings"
	"github.com/Tipukhan564/Commodities-Exchange/internal/identities"
	"github.com/Tipukhan564/Commodities-Exchange/internal/marketfeeds"
	"github.com/Tipukhan564/Commodities-Exchange/internal/messaging"
	"github.com/Tipukhan564/Commodities-Exchange/internal/server"
	"github.com/Tipukhan564/Commodities-Exchange/internal/trading"
	"github.com/Tipukhan564/Commodities-Exchange/internal/watchlist"
	"github.com/Tipukhan564/Commodities-Exchange/pkg/logger"
	"github.com/Tipukhan564/Commodities-Exchange/pkg/metrics"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Create logger
	zapLogger, err := logger.NewLogger(cfg.LogLevel, "commodity-exchange")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	// Connect to the database
	var db *gorm.DB
	switch cfg.Database.Driver {
	case "postgres":
		db, err = database.NewPostgresDB(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	case "sqlite":
		db, err = database.NewSQLiteDB(cfg.Database.DSN)
	default:
		zapLogger.Fatal("Unknown database driver", zap.String("driver", cfg.Database.Driver))
	}
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Run migrations
	if err := database.AutoMigrate(db); err != nil {
		zapLogger.Fatal("Failed to migrate database", zap.Error(err))
	}

	// Optional Redis cache
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			zapLogger.Warn("Redis unavailable, caching disabled", zap.Error(err))
			redisClient = nil
		}
	}

	// Optional Kafka order event publisher
	var publisher messaging.Publisher = messaging.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPub := messaging.NewKafkaPublisher(zapLogger, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kafkaPub.Close()
		publisher = kafkaPub
	}

	// Create services
	identitiesSvc, err := identities.NewService(zapLogger, db, cfg.JWT.Secret, cfg.JWT.ExpirationHours)
	if err != nil {
		zapLogger.Fatal("Failed to create identities service", zap.Error(err))
	}

	bookkeeperSvc, err := bookkeeper.NewService(zapLogger, db)
	if err != nil {
		zapLogger.Fatal("Failed to create bookkeeper service", zap.Error(err))
	}

	holdingsSvc, err := holdings.NewService(zapLogger, db)
	if err != nil {
		zapLogger.Fatal("Failed to create holdings service", zap.Error(err))
	}

	marketfeedsSvc, err := marketfeeds.NewService(zapLogger, db, redisClient, cfg.Redis.TTL)
	if err != nil {
		zapLogger.Fatal("Failed to create market feeds service", zap.Error(err))
	}

	alertsSvc, err := alerts.NewService(zapLogger, db)
	if err != nil {
		zapLogger.Fatal("Failed to create alerts service", zap.Error(err))
	}
	marketfeedsSvc.SetAlertEvaluator(alertsSvc)

	watchlistSvc, err := watchlist.NewService(zapLogger, db)
	if err != nil {
		zapLogger.Fatal("Failed to create watchlist service", zap.Error(err))
	}

	tradingSvc, err := trading.NewService(zapLogger, db, bookkeeperSvc, holdingsSvc, marketfeedsSvc, publisher, &trading.Config{
		MaxRetries:   cfg.Trading.MaxRetries,
		RetryBackoff: cfg.Trading.RetryBackoff,
	})
	if err != nil {
		zapLogger.Fatal("Failed to create trading service", zap.Error(err))
	}

	// Start services
	if err := identitiesSvc.Start(); err != nil {
		zapLogger.Fatal("Failed to start identities service", zap.Error(err))
	}
	if err := bookkeeperSvc.Start(); err != nil {
		zapLogger.Fatal("Failed to start bookkeeper service", zap.Error(err))
	}
	if err := holdingsSvc.Start(); err != nil {
		zapLogger.Fatal("Failed to start holdings service", zap.Error(err))
	}
	if err := marketfeedsSvc.Start(); err != nil {
		zapLogger.Fatal("Failed to start market feeds service", zap.Error(err))
	}
	if err := tradingSvc.Start(); err != nil {
		zapLogger.Fatal("Failed to start trading service", zap.Error(err))
	}

	// Schedule DB pool metrics collection every 30s
	tickerDB := time.NewTicker(30 * time.Second)
	defer tickerDB.Stop()
	go func() {
		for range tickerDB.C {
			if sqlDB, err := db.DB(); err == nil {
				stats := sqlDB.Stats()
				metrics.DBOpenConns.WithLabelValues(cfg.Database.Driver).Set(float64(stats.OpenConnections))
				metrics.DBInUseConns.WithLabelValues(cfg.Database.Driver).Set(float64(stats.InUse))
			}
		}
	}()

	// Create HTTP server
	apiServer := server.NewServer(zapLogger, identitiesSvc, bookkeeperSvc, holdingsSvc, marketfeedsSvc, tradingSvc, watchlistSvc, alertsSvc)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: apiServer.Router(),
	}

	go func() {
		zapLogger.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		zapLogger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	if err := tradingSvc.Stop(); err != nil {
		zapLogger.Error("Failed to stop trading service", zap.Error(err))
	}
	if err := marketfeedsSvc.Stop(); err != nil {
		zapLogger.Error("Failed to stop market feeds service", zap.Error(err))
	}
	if err := holdingsSvc.Stop(); err != nil {
		zapLogger.Error("Failed to stop holdings service", zap.Error(err))
	}
	if err := bookkeeperSvc.Stop(); err != nil {
		zapLogger.Error("Failed to stop bookkeeper service", zap.Error(err))
	}
	if err := identitiesSvc.Stop(); err != nil {
		zapLogger.Error("Failed to stop identities service", zap.Error(err))
	}
}
