// ABOUTME: Entry point for the calendar sync engine server
// ABOUTME: Wires config, storage, OAuth client, gateway, coordinator, and HTTP surface
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/feelgame3025/ilouli-homepage-sub000/calsync"
	"github.com/feelgame3025/ilouli-homepage-sub000/db"
	"github.com/feelgame3025/ilouli-homepage-sub000/web"
)

const version = "0.2.0"

// userHeader carries the verified user id set by the platform's auth layer,
// which terminates session tokens in front of this engine.
const userHeader = "X-Ilouli-User"

func main() {
	showVersion := flag.Bool("version", false, "Show version and exit")
	configPath := flag.String("config", "", "Config file path (default: ~/.config/ilouli/calsync.toml)")
	dbPath := flag.String("db-path", "", "Database path (default: ~/.local/share/ilouli/calsync.db)")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("calsync version %s\n", version)
		os.Exit(0)
	}

	// .env is optional; real deployments configure through the environment.
	_ = godotenv.Load()

	cfg, err := calsync.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if cfg.DBPath == "" {
		cfg.DBPath = db.DefaultPath()
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("calsync starting",
		zap.String("version", version),
		zap.String("db", cfg.DBPath),
		zap.String("addr", cfg.Addr))

	database, err := db.OpenDatabase(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer database.Close()

	tokens := db.NewTokenStore(database)
	events := db.NewEventStore(database)
	oauth := calsync.NewOAuthClient(cfg, tokens)
	gateway := calsync.NewGoogleGateway(cfg)
	coordinator := calsync.NewCoordinator(oauth, gateway, events, tokens, logger)

	server := web.NewServer(coordinator, headerIdentity, cfg.FrontendURL, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.Addr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}
}

// headerIdentity resolves the requesting user from the trusted upstream
// header.
func headerIdentity(r *http.Request) (string, error) {
	userID := r.Header.Get(userHeader)
	if userID == "" {
		return "", fmt.Errorf("missing %s header", userHeader)
	}
	return userID, nil
}
