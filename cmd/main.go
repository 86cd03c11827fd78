package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stataggg-chat/auth"
	"stataggg-chat/infrastructure/httpapi"
	"stataggg-chat/infrastructure/websocket"
	"stataggg-chat/moderation"
	"stataggg-chat/observability"
	"stataggg-chat/repositories"
	"stataggg-chat/runtime"
	"stataggg-chat/runtime/workers"
	"stataggg-chat/services"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and owns the server lifecycle, so that deferred
// cleanups (Badger, Mongo) run before the process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := config.validate(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database (BadgerDB): users and blacklist always, messages unless Mongo is selected
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	// 4. Message log
	store, closeStore, err := openMessageStore(ctx, config, db, log, metrics)
	if err != nil {
		return err
	}
	defer closeStore()

	// 5. Moderation: configured words are merged into the persisted blacklist
	if words := config.CensoredWordList(); len(words) > 0 {
		if err = moderation.SaveBlacklist(db, words); err != nil {
			return fmt.Errorf("saving blacklist: %w", err)
		}
	}
	words, err := moderation.LoadBlacklist(db)
	if err != nil {
		return fmt.Errorf("loading blacklist: %w", err)
	}
	if config.CensoredDir != "" {
		dict, err := moderation.LoadDictionaries(os.DirFS(config.CensoredDir), ".")
		if err != nil {
			return fmt.Errorf("loading dictionaries from %s: %w", config.CensoredDir, err)
		}
		log.Info("Censored dictionaries loaded", "languages", dict.Languages, "words", len(dict.Words))
		words = append(words, dict.Words...)
	}
	moderator, err := moderation.NewModerator(words, config.ReplacementRune(), log)
	if err != nil {
		return fmt.Errorf("building moderator: %w", err)
	}
	log.Info("Moderation ready", "censored_words", len(words))

	// 6. Room
	presence := runtime.NewRegistry()
	hub := runtime.NewHub(presence, log, config.SendTimeout, metrics)
	service := services.NewChatService(store, presence, hub, moderator, metrics, log, config.LimitMessages)

	users := repositories.NewUserRepository(db)
	tokens := auth.NewTokenIssuer(config.JwtSecret, config.AuthTokenDuration)
	resolver := auth.NewResolver(tokens, users, log)

	// 7. Background workers
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(
		workers.NewValueLogGCWorker(db, log, config.GCInterval),
		workers.NewHeartbeatWorker(log, presence, store, metrics, config.HeartbeatInterval),
	)
	go sup.Run(ctx)

	// 8. HTTP server. Sessions hang off sessionsCtx so they end on shutdown
	// even though http.Server does not track hijacked connections.
	sessionsCtx, closeSessions := context.WithCancel(context.Background())
	defer closeSessions()

	chatHandler := websocket.NewHandler(sessionsCtx, resolver, service, metrics, log, websocket.Options{
		CookieName:     config.CookieName,
		AllowedOrigins: config.AllowedOriginList(),
		WriteTimeout:   config.WriteTimeout,
		PingInterval:   config.PingInterval,
	})
	api := httpapi.NewAPI(service, users, tokens, log, httpapi.Options{
		CookieName:   config.CookieName,
		CookieSecure: config.CookieSecure,
		BotToken:     config.BotToken,
		AdminIDs:     config.AdminIDList(),
		LoginMaxAge:  config.LoginMaxAge,
		SessionTTL:   config.AuthTokenDuration,
	})
	server := &http.Server{
		Addr:              config.Address(),
		Handler:           httpapi.NewRouter(api, chatHandler, registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", server.Addr, "driver", config.StorageDriver, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 9. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err = <-errChan:
		sup.Stop()
		return err
	}

	// 10. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err = server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", "error", err)
	}
	closeSessions()
	// Stores close on return: let every session finish its Leave first.
	if err = chatHandler.Wait(shutdownCtx); err != nil {
		log.Error("Sessions did not end in time", "error", err)
	}
	sup.Stop()
	log.Info("Program stopped cleanly", "online_peers", presence.Len())
	return nil
}

// openMessageStore returns the message log selected by STORAGE_DRIVER and its cleanup.
func openMessageStore(
	ctx context.Context,
	config Config,
	db *badger.DB,
	log *slog.Logger,
	metrics *observability.Metrics,
) (repositories.IMessageRepository, func(), error) {
	switch config.StorageDriver {
	case driverMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(config.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("mongo connection failed: %w", err)
		}
		disconnect := func() {
			log.Info("Disconnecting MongoDB...")
			_ = client.Disconnect(context.Background())
		}
		if err = client.Ping(connectCtx, nil); err != nil {
			disconnect()
			return nil, nil, fmt.Errorf("mongo ping failed: %w", err)
		}
		store, err := repositories.NewMongoMessageRepository(connectCtx, client.Database(config.MongoDatabase), log, config.LimitMessages, metrics)
		if err != nil {
			disconnect()
			return nil, nil, err
		}
		return store, disconnect, nil
	default:
		store, err := repositories.NewMessageRepository(db, log, config.LimitMessages, metrics)
		if err != nil {
			return nil, nil, fmt.Errorf("message repository: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	}
}
