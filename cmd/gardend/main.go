package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"garden-push-backend/config"
	"garden-push-backend/internal/api"
	"garden-push-backend/internal/broker"
	"garden-push-backend/internal/db"
	"garden-push-backend/internal/dedup"
	"garden-push-backend/internal/ingest"
	"garden-push-backend/internal/notification"
	"garden-push-backend/internal/store"
)

func main() {
	logger := log.New(os.Stdout, "garden-push ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logger.Fatalf("VAPID keys must be configured. Please generate them and add them to your config file.")
	}

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	appStore := store.NewGormStore(gormDB)

	sensorZone, err := time.LoadLocation(cfg.Broker.Timezone)
	if err != nil {
		logger.Printf("invalid timezone %q, falling back to local: %v", cfg.Broker.Timezone, err)
		sensorZone = time.Local
	}

	dispatcher := notification.NewDispatcher(appStore, &webpushOptions)
	deduplicator := dedup.New(appStore, cfg.Dedup.Window)
	pipeline := ingest.New(appStore, deduplicator, dispatcher, sensorZone)

	var brokerClient *broker.Client
	if cfg.Broker.Enabled {
		brokerClient = broker.NewClient(&cfg.Broker, pipeline.HandleMessage)
		if err := brokerClient.Connect(); err != nil {
			logger.Fatalf("failed to start broker client: %v", err)
		}
		logger.Printf("broker client started (%s)", brokerClient)
	} else {
		logger.Println("broker client is disabled, only HTTP entry points are active")
	}

	router := api.NewRouter(&cfg.Server, appStore, pipeline, &webpushOptions)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	if brokerClient != nil {
		brokerClient.Close()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
