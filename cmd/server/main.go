package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"subs_engine/internal/config"
	"subs_engine/internal/entity"
	httpGateway "subs_engine/internal/gateways/http"
	"subs_engine/internal/repository/memory"
	"subs_engine/internal/repository/postgres"
	usecaseInternal "subs_engine/internal/usecase"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := config.LoadConfig()
	log := setupLogger(cfg.Env)

	log.Info("starting subs engine", slog.String("env", cfg.Env), slog.String("storage", cfg.Storage.Driver))
	log.Debug("debug messages are enabled")

	sub, closeStorage, err := setupStorage(ctx, cfg, log)
	if err != nil {
		log.Error("failed to init storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeStorage()

	useCases := httpGateway.UseCases{Sub: sub}

	server, err := httpGateway.New(useCases,
		*cfg,
		log,
		httpGateway.WithHost(cfg.Server.Host),
		httpGateway.WithPort(uint16(cfg.Server.Port)),
		httpGateway.WithLogger(log),
		httpGateway.WithTimeout(cfg.Server.Timeout),
	)
	if err != nil {
		log.Error("failed to init http server", slog.String("error", err.Error()))
		closeStorage()
		os.Exit(1)
	}

	log.Info("starting server", slog.String("address", cfg.Server.Host+":"+strconv.Itoa(cfg.Server.Port)))
	if err := server.Run(ctx); err != nil {
		log.Error(err.Error())
		return
	}
}

// setupStorage builds the subscription use case on top of the configured storage driver
func setupStorage(ctx context.Context, cfg *config.Config, log *slog.Logger) (*usecaseInternal.Subscription, func(), error) {
	opts := []usecaseInternal.Option{
		usecaseInternal.WithLogger(log),
		usecaseInternal.WithMaxBatch(cfg.Engine.MaxBatch),
	}

	switch strings.ToLower(cfg.Storage.Driver) {
	case config.StorageMemory:
		store := memory.NewStore()
		for account, amount := range cfg.Ledger.Seed {
			if err := store.Deposit(ctx, entity.Account(account).Normalize(), amount); err != nil {
				return nil, nil, fmt.Errorf("seed %s: %w", account, err)
			}
		}
		log.Debug("init memory storage", slog.Int("seeded_accounts", len(cfg.Ledger.Seed)))
		return usecaseInternal.NewSubscription(store, store, store, store, opts...), func() {}, nil

	case config.StoragePostgres, "":
		pgCfg := cfg.Pg
		sslMode := pgCfg.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		databaseUrl := fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			pgCfg.User,
			pgCfg.Password,
			pgCfg.Host,
			pgCfg.Port,
			pgCfg.Db,
			sslMode)

		if cfg.Storage.MigrateOnStart {
			if err := postgres.Migrate(databaseUrl, "file://"+cfg.Storage.Migrations); err != nil {
				return nil, nil, err
			}
			log.Debug("migrations applied", slog.String("source", cfg.Storage.Migrations))
		}

		pool, err := pgxpool.New(ctx, databaseUrl)
		if err != nil {
			return nil, nil, fmt.Errorf("pgx pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("pgx ping: %w", err)
		}
		log.Debug("init database")

		sub := usecaseInternal.NewSubscription(
			postgres.NewSubRepository(pool),
			postgres.NewLedger(pool),
			postgres.NewEventRepository(pool),
			postgres.NewTransactor(pool),
			opts...,
		)
		return sub, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger
	switch strings.ToLower(env) {
	case envLocal:
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return log
}
