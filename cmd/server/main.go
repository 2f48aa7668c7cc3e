package main

import (
	"context"
	"errors"
	"fmt"
	"live-hub/auth"
	"live-hub/contract"
	"live-hub/gateway"
	"live-hub/internal"
	"live-hub/media"
	"live-hub/moderation"
	"live-hub/repositories"
	"live-hub/runtime"
	"live-hub/runtime/workers"
	"live-hub/services"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 10 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Hub terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and owns the process lifecycle, so that deferred
// cleanups always execute before the exit code is returned.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	charReplacement, _ := internal.CharacterRune(config.CharReplacement)
	logger := logs.GetLoggerFromString(config.LogLevel)

	// 2. Event store (BadgerDB or Redis)
	store, closeStore, err := openStore(config, logger)
	if err != nil {
		return exitRuntime, err
	}
	defer closeStore()

	// 3. Collaborators
	censor, err := buildModerator(config, charReplacement, logger)
	if err != nil {
		return exitConfig, err
	}
	verifier := auth.NewVerifier(config.JWTSecret, config.JWTIssuer)
	issuer := media.NewTokenIssuer(media.Config{
		AccountID: config.MediaAccountID,
		APIKey:    config.MediaAPIKey,
		APISecret: config.MediaAPISecret,
		TTL:       config.MediaTokenTTL,
	})

	// 4. Supervision & Orchestration
	sup := workers.NewSupervisor(logger)
	orchestrator := runtime.NewOrchestrator(logger, sup, store, config.RoomConfig(censor),
		config.SweepInterval, config.MetricInterval)
	service := services.NewRoomService(orchestrator, auth.ScopeAuthorizer{}, issuer, logger)

	// 5. HTTP & websocket gateway
	handler := gateway.NewHandler(service, gateway.Config{
		WriteTimeout:   config.WriteTimeout,
		PongWait:       config.PongWait,
		ReadLimit:      config.ReadLimit,
		AllowedOrigins: config.Origins(),
	}, logger)
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{
		Addr:              address,
		Handler:           gateway.NewRouter(handler, verifier, service, orchestrator, config.GinMode),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 6. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting orchestrator...")
		orchestrator.Start(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	// 7. Wait for Stop or Error
	if err := g.Wait(); err != nil {
		return exitRuntime, err
	}
	logger.Info("Program stopped cleanly")
	return exitOK, nil
}

func openStore(config internal.Config, logger *slog.Logger) (contract.EventStore, func(), error) {
	switch config.StoreBackend {
	case internal.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     config.RedisAddr,
			Password: config.RedisPassword,
			DB:       config.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("redis unreachable at %s: %w", config.RedisAddr, err)
		}
		closeFn := func() {
			logger.Info("Closing Redis client...")
			_ = client.Close()
		}
		return repositories.NewRedisEventRepository(client, config.RedisPrefix, logger), closeFn, nil
	default:
		options := badger.DefaultOptions(config.BadgerFilepath).WithLoggingLevel(badger.WARNING)
		if logger.Enabled(context.Background(), slog.LevelDebug) {
			options = options.WithLoggingLevel(badger.INFO)
		}
		db, err := badger.Open(options)
		if err != nil {
			return nil, nil, fmt.Errorf("database opening failed: %w", err)
		}
		closeFn := func() {
			logger.Info("Closing BadgerDB...")
			_ = db.Close()
		}
		return repositories.NewEventRepository(db, logger), closeFn, nil
	}
}

func buildModerator(config internal.Config, charReplacement rune, logger *slog.Logger) (*moderation.Moderator, error) {
	var words []string
	if config.CensoredWordsFile != "" {
		file, err := os.Open(config.CensoredWordsFile)
		if err != nil {
			return nil, fmt.Errorf("censored words unreadable: %w", err)
		}
		defer file.Close()
		if words, err = moderation.ReadWords(file); err != nil {
			return nil, fmt.Errorf("censored words unreadable: %w", err)
		}
	}
	return moderation.NewModerator(words, charReplacement, logger)
}
