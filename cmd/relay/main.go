package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-relay/auth"
	"chat-relay/infrastructure/messaging"
	"chat-relay/infrastructure/storage"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/realtime"
	transport "chat-relay/transport/websocket"

	env "github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
)

// Exit codes to provide meaningful status to the operating system or
// service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting, so every defer (database close, broker
// drain) executes before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	logger := internal.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database (BadgerDB)
	options := badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(options)
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	messageStore := storage.NewMessageRepository(db, logger, config.LimitMessages)
	roomLookup := storage.NewRoomRepository(db, logger)

	// 3. Optional content moderation
	var filter realtime.ContentFilter
	if config.CensoredWordsPath != "" {
		replacement, err := internal.CharacterRune(config.CharReplacement)
		if err != nil {
			return exitConfig, err
		}
		words, err := moderation.LoadWordList(config.CensoredWordsPath)
		if err != nil {
			return exitConfig, fmt.Errorf("censored word list: %w", err)
		}
		moderator, err := moderation.NewModerator(words, replacement, logger)
		if err != nil {
			return exitConfig, fmt.Errorf("moderator setup: %w", err)
		}
		filter = &moderator
		logger.Info("Moderation enabled", "words", len(words))
	}

	// 4. Broker (NATS JetStream)
	broker := messaging.NewJetStreamBroker(messaging.Config{
		URL:            config.NatsURL,
		PublishTimeout: config.PublishTimeout,
		AckWait:        config.AckWait,
		MaxDeliver:     config.MaxDeliver,
		ReconnectWait:  config.ReconnectWait,
		MaxReconnects:  config.MaxReconnects,
		MaxAge:         config.MessageMaxAge,
	}, logger)
	defer broker.Close()

	// 5. Core wiring: registry, processor, broker fanout, transport
	registry := realtime.NewRegistry(logger)
	processor := realtime.NewProcessor(registry, roomLookup, messageStore, broker, filter, config.MaxContentLength, logger)

	if err := broker.Subscribe(ctx, processor.HandleDelivery); err != nil {
		return exitRuntime, fmt.Errorf("broker subscription failed: %w", err)
	}

	verifier := auth.NewVerifier(config.JWTSecret)
	handler := transport.NewHandler(verifier, processor, logger)

	mux := http.NewServeMux()
	mux.Handle("/ws", handler)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Relay listening", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return exitRuntime, fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return exitRuntime, fmt.Errorf("shutdown failed: %w", err)
	}

	return exitOK, nil
}
