// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/substance-compliance/internal/cache"
	"github.com/javajoker/substance-compliance/internal/config"
	"github.com/javajoker/substance-compliance/internal/database"
	"github.com/javajoker/substance-compliance/internal/i18n"
	"github.com/javajoker/substance-compliance/internal/metrics"
	"github.com/javajoker/substance-compliance/internal/router"
	"github.com/javajoker/substance-compliance/internal/scheduler"
	"github.com/javajoker/substance-compliance/internal/services"
)

func init() {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	if os.Getenv("LOG_LEVEL") == "debug" {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	// Initialize database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize database")
	}
	defer database.Close(db)

	// Run database migrations
	if err := database.RunMigrations(db); err != nil {
		logrus.WithError(err).Fatal("Failed to run migrations")
	}
	if cfg.AdminPassword != "" {
		if err := database.SeedInitialData(db, cfg.AdminPassword); err != nil {
			logrus.WithError(err).Fatal("Failed to seed initial data")
		}
	}

	// Initialize i18n
	if err := i18n.Initialize(cfg.I18n.LocalesPath, cfg.I18n.DefaultLocale); err != nil {
		logrus.WithError(err).Fatal("Failed to initialize i18n")
	}

	// Lookup cache is optional
	var store cache.Store
	if cfg.Redis.Enabled {
		redisStore, err := cache.NewRedisStore(cfg.Redis)
		if err != nil {
			logrus.WithError(err).Warn("Redis unavailable, lookup caching disabled")
		} else {
			defer redisStore.Close()
			store = redisStore
		}
	}

	blobs, err := services.NewBlobStore(cfg.AWS)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize document storage")
	}

	svc := services.New(db, cfg, store, blobs, metrics.New(nil))

	// Background jobs
	if cfg.Scheduler.Enabled {
		jobs := scheduler.New(cfg.Scheduler, svc.Licences, svc.Transactions).WithNotifier(svc.Notifications)
		if err := jobs.Start(); err != nil {
			logrus.WithError(err).Fatal("Failed to start scheduler")
		}
		defer jobs.Stop()
	}

	// Set Gin mode
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize router
	r := router.Initialize(db, cfg, svc)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logrus.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server...")

	// Create a deadline for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("Server forced to shutdown")
	}

	logrus.Info("Server exited")
}
