package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/clients"
	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/config"
	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/coupon"
	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/events"
	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/gateway"
	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/handlers"
	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/repository"
	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/server"
	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/service"
)

func main() {
	_ = godotenv.Load()

	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "orders").
		Logger()

	cfg := config.Load()

	db, err := openDatabase(cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := runMigrations(db, cfg.MigrationsPath); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}
	logger.Info().Msg("database migrations applied")

	store := repository.NewStore(db)
	orderRepo := repository.NewPostgresOrderRepository(store.DB(), logger)
	catalog := repository.NewPostgresProductCatalog(store.DB(), logger)
	cache := repository.NewRedisOrderCache(cfg.Redis, logger)
	defer cache.Close()

	ledger := coupon.NewLedger(store.DB(), logger)
	vnpay := gateway.New(cfg.VNPay)

	userClient := clients.NewHTTPUserClient(cfg.UserService, logger)
	notifier := clients.NewHTTPNotificationClient(cfg.NotificationService, logger)

	publisher := events.NewKafkaPublisher(cfg.Kafka, logger)
	defer publisher.Close()

	orderService := service.NewOrderService(
		store, orderRepo, catalog, ledger, userClient, notifier, publisher, cache, logger,
	)
	paymentService := service.NewPaymentService(vnpay, orderRepo, cache, publisher, logger)

	h := handlers.New(orderService, paymentService, readiness{db: db, cache: cache}, cfg.FrontendURL, logger)

	srv := server.New(cfg.Server, h, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func runMigrations(db *sql.DB, path string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+path, "postgres", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// readiness checks the stores the service cannot run without.
type readiness struct {
	db    *sql.DB
	cache *repository.RedisOrderCache
}

func (r readiness) Ready(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return err
	}
	return r.cache.Ping(ctx)
}
