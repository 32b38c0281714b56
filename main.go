package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-redis/redis/v8"

	"github.com/danielhkuo/fingervote/cliparse"
	"github.com/danielhkuo/fingervote/db"
	"github.com/danielhkuo/fingervote/feed"
	"github.com/danielhkuo/fingervote/handlers"
	"github.com/danielhkuo/fingervote/ledger"
	"github.com/danielhkuo/fingervote/middleware"
	"github.com/danielhkuo/fingervote/router"
)

func main() {
	var err error

	// Parse configuration
	cfg, err := cliparse.ParseFlags(os.Args[1:])
	if err != nil {
		slog.Error("Error parsing flags", "error", err)
		os.Exit(1)
	}

	// Connect to the database
	dbConn, err := db.Open(cfg.DatabaseType, cfg.DatabaseURL)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	// Create schema (tables)
	if err := db.CreateSchema(dbConn); err != nil {
		slog.Error("schema creation failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database schema ready", "type", cfg.DatabaseType)

	if cfg.AdminEmail != "" {
		if err := handlers.EnsureAdminUser(dbConn, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			slog.Error("admin bootstrap failed", "error", err)
			os.Exit(1)
		}
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Change feed: local hub, optionally bridged through redis and exported to kafka
	hub := feed.NewHub(64)
	var publisher feed.Publisher = hub
	var rdb *redis.Client

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid redis URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()

		bridge := feed.NewRedisBridge(rdb, feed.DefaultRedisChannel, hub)
		publisher = bridge
		go func() {
			if err := bridge.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("redis feed bridge stopped", "error", err)
			}
		}()
	}

	if len(cfg.KafkaBrokers) > 0 {
		kafka := feed.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafka.Close()
		publisher = feed.Multi{publisher, kafka}
		slog.Info("exporting votes to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	// With a cache, events are published after invalidation instead
	var store *ledger.SQLBackend
	var votes ledger.Backend
	if rdb != nil {
		store = ledger.NewSQLBackend(dbConn, nil)
		votes = ledger.NewCachedBackend(store, rdb, ledger.DefaultTallyCacheTTL, publisher)
	} else {
		store = ledger.NewSQLBackend(dbConn, publisher)
		votes = store
	}

	// Create router
	mux := router.NewRouter(dbConn, cfg, votes, store, hub)

	// Create server
	server := http.Server{
		Handler: middleware.CORS(mux),
		Addr:    ":" + strconv.Itoa(cfg.Port),
	}

	// signal.Notify requires the channel to be buffered
	ctrlc := make(chan os.Signal, 1)
	signal.Notify(ctrlc, os.Interrupt, syscall.SIGTERM)
	go func() {
		// Wait for Ctrl-C signal
		<-ctrlc
		stop()
		server.Close()
	}()

	// Start server
	slog.Info("Listening", "port", cfg.Port)
	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		slog.Error("Server closed", "error", err)
	} else {
		slog.Info("Server closed", "error", err)
	}
}
