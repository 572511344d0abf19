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

	"simpleblog/internal/api"
	"simpleblog/internal/auth"
	"simpleblog/internal/blog"
	"simpleblog/internal/bluesky"
	"simpleblog/internal/config"
	"simpleblog/internal/core"
	"simpleblog/internal/fediverse"
	"simpleblog/internal/geo"
	"simpleblog/internal/github"
	"simpleblog/internal/store"
)

const (
	defaultAdminUsername = "admin"
	defaultAdminPassword = "admin" // flagged must_change until rotated
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if config.AppConfig.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbStore.Close()

	// Seed the default admin credential on first run
	defaultHash, err := auth.HashPassword(defaultAdminPassword)
	if err != nil {
		log.Fatalf("Failed to hash default credential: %v", err)
	}
	if err := dbStore.EnsureAdminCredential(defaultAdminUsername, defaultHash); err != nil {
		log.Fatalf("Failed to seed admin credential: %v", err)
	}

	// The post list is a rebuildable cache: it starts empty after every
	// restart and fills on the first admin scan.
	snapshot := blog.NewSnapshot()

	// Outbound clients
	ghClient := github.New(config.AppConfig.GitHubToken, config.AppConfig.RequestTimeout)
	geoClient := geo.New(config.AppConfig.RequestTimeout)

	var crossPoster core.CrossPoster
	if config.AppConfig.BlueskyHandle != "" && config.AppConfig.BlueskyAppPass != "" {
		crossPoster = bluesky.New(config.AppConfig.BlueskyHandle, config.AppConfig.BlueskyAppPass, config.AppConfig.RequestTimeout)
		log.Println("Bluesky cross-posting enabled")
	}

	// Thumbnail provider chain: primary, secondary, then the
	// deterministic placeholder that cannot fail.
	geminiProvider := core.NewGeminiProvider()
	defer geminiProvider.Close()
	providers := []core.ImageProvider{
		core.NewDalleProvider(config.AppConfig.OpenAIAPIKey, config.AppConfig.RequestTimeout),
		geminiProvider,
		core.PlaceholderProvider{},
	}

	// Services
	scanService := core.NewScanService(dbStore, ghClient, snapshot, config.AppConfig.ExcerptLength, crossPoster)
	thumbnailService := core.NewThumbnailService(dbStore, snapshot, providers)
	analyticsService := core.NewAnalyticsService(dbStore, geoClient)
	adminService := core.NewAdminService(dbStore, snapshot)
	fediService := fediverse.NewService(config.AppConfig.BaseURL, snapshot)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(adminService, scanService, thumbnailService, analyticsService, snapshot, fediService)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // scans and image generation run inside the request
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}
