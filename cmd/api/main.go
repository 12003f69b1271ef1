// cmd/api/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/inventory-ledger/internal/config"
	"github.com/your-org/inventory-ledger/internal/domain/inventory"
	"github.com/your-org/inventory-ledger/internal/infrastructure/database/redis"
	"github.com/your-org/inventory-ledger/internal/infrastructure/database/relational"
	"github.com/your-org/inventory-ledger/internal/infrastructure/messaging/rabbitmq"
	"github.com/your-org/inventory-ledger/internal/interfaces/http"
	"github.com/your-org/inventory-ledger/internal/pkg/logger"
	"github.com/your-org/inventory-ledger/internal/pkg/pdf"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := logger.New(cfg)
	log.WithFields(logrus.Fields{
		"app":         cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	}).Info("Starting inventory ledger")

	// Connect to database
	db, err := relational.NewConnection(cfg, log)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Health(); err != nil {
		log.Fatalf("Database health check failed: %v", err)
	}

	// Connect to Redis (optional)
	redisClient, err := redis.NewConnection(cfg, log)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	// Run database migrations
	migration := relational.NewMigration(db.GetDB(), db.Driver(), log)
	if err := migration.Run(); err != nil {
		log.Fatalf("Database migration failed: %v", err)
	}

	if cfg.IsDevelopment() {
		if err := migration.SeedInitialData(); err != nil {
			log.WithError(err).Warn("Data seeding failed")
		}
	}

	services := inventory.NewServices(db.GetDB(), redisClient.GetClient(), cfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Sweeper.Enabled {
		if err := services.Sweeper.Start(ctx); err != nil {
			log.Fatalf("Failed to start expiry sweeper: %v", err)
		}
		defer services.Sweeper.Stop()
	}

	if cfg.Messaging.RabbitURL != "" {
		consumer, err := rabbitmq.NewConsumer(cfg, rabbitmq.NewDispatcher(services.Allocations, log), log)
		if err != nil {
			log.Fatalf("Failed to start RabbitMQ consumer: %v", err)
		}
		defer consumer.Close()

		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.WithError(err).Error("RabbitMQ consumer stopped")
			}
		}()
	}

	server := http.NewServer(cfg, db.GetDB(), redisClient.GetClient(), services, pdf.NewService(cfg), log)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("Failed to shutdown HTTP server gracefully")
	}
	cancel()

	log.Info("Server shutdown completed")
}
