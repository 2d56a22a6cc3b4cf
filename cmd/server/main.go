package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/vpastila/mineserv/internal/api"
	"github.com/vpastila/mineserv/internal/auth"
	"github.com/vpastila/mineserv/internal/backup"
	"github.com/vpastila/mineserv/internal/config"
	"github.com/vpastila/mineserv/internal/database"
	"github.com/vpastila/mineserv/internal/downloader"
	"github.com/vpastila/mineserv/internal/logging"
	"github.com/vpastila/mineserv/internal/metrics"
	"github.com/vpastila/mineserv/internal/plugins"
	"github.com/vpastila/mineserv/internal/server"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up logging
	if err := setupLogging(cfg); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logging.Close()

	// Check if running migrations
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		runMigrations(cfg)
		return
	}

	if cfg.Auth.AdminPasswordHash == "" {
		log.Fatalf("ADMIN_PASSWORD_HASH is not set; generate one with the hashpw tool")
	}

	// Initialize database
	db, err := database.NewDB(cfg.Database.Path, cfg.Database.MaxConnections)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Run migrations automatically
	log.Println("Running database migrations...")
	if err := db.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	instanceStore := database.NewInstanceStore(db)
	backupStore := database.NewBackupStore(db)
	activityLogger := logging.NewActivityLogger(db.DB)

	// Initialize instance registry and reconcile persisted state before
	// any request can reach it
	registry := server.NewRegistry(cfg.Storage.ServersDir)
	if err := registry.Recover(instanceStore); err != nil {
		log.Fatalf("Failed to recover instances: %v", err)
	}

	dl := downloader.NewManager(cfg.Storage.CacheDir)
	pluginManager := plugins.NewManager()

	// Backups run on demand regardless of the schedule; the scheduler only
	// starts when enabled
	dest, err := backup.NewDestination(cfg.Backup, cfg.Storage.BackupDir)
	if err != nil {
		log.Fatalf("Failed to initialize backup destination: %v", err)
	}
	backupService := backup.NewService(backupStore, activityLogger, dest, cfg.Backup.Retention)

	var backupScheduler *backup.Scheduler
	if cfg.Backup.Enabled {
		backupScheduler = backup.NewScheduler(backupService, registry, cfg.Backup.Schedule)
		if err := backupScheduler.Start(); err != nil {
			log.Fatalf("Failed to start backup scheduler: %v", err)
		}
		defer backupScheduler.Stop()
	}

	// Start metrics collector
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(registry, time.Duration(cfg.Metrics.DefaultInterval)*time.Second)
		collector.Start()
		defer collector.Stop()
	}

	// Initialize authentication
	tokenDuration, err := time.ParseDuration(cfg.Auth.TokenDuration)
	if err != nil {
		log.Fatalf("Invalid token duration %q: %v", cfg.Auth.TokenDuration, err)
	}
	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, tokenDuration)
	authenticator := auth.NewAuthenticator(cfg.Auth.AdminUser, cfg.Auth.AdminPasswordHash, jwtManager)

	log.Println("All server components initialized successfully")

	// Set up HTTP server
	router, shutdownOps := api.SetupRouter(cfg, registry, instanceStore, activityLogger, dl, pluginManager, backupService, collector, authenticator)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting server on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Wait for background provisioning
	shutdownOps()

	log.Println("Server exited")
}

func setupLogging(cfg *config.Config) error {
	if cfg != nil && strings.TrimSpace(cfg.Logging.File) == "" {
		dataDir := cfg.Storage.DataDir
		if dataDir == "" {
			dataDir = "./data"
		}
		cfg.Logging.File = filepath.Join(dataDir, "logs", "server.log")
	}
	if cfg != nil && strings.TrimSpace(cfg.Logging.File) != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			return err
		}
	}
	_, err := logging.Init(cfg.Logging)
	return err
}

func runMigrations(cfg *config.Config) {
	log.Println("Running database migrations...")

	db, err := database.NewDB(cfg.Database.Path, cfg.Database.MaxConnections)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Migrations completed successfully")
}
