package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"accounts/backend/internal/config"
	"accounts/backend/internal/httpserver"
	"accounts/backend/internal/infrastructure/password"
	"accounts/backend/internal/infrastructure/postgres"
	sessionredis "accounts/backend/internal/infrastructure/redis"
	"accounts/backend/internal/infrastructure/token"
	"accounts/backend/internal/jobs"
	"accounts/backend/internal/logging"
	"accounts/backend/internal/usecase/account"
	authusecase "accounts/backend/internal/usecase/auth"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("server exited")
		os.Exit(1)
	}
	logger.Info("graceful shutdown completed")
}

func run(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	db, err := postgres.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.WithError(err).Warn("redis close")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return err
	}

	queue := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer queue.Close()

	hasher := password.NewBcryptHasher(bcrypt.DefaultCost)
	users := postgres.NewUserRepository(db.DB)

	authService := authusecase.NewService(
		users,
		sessionredis.NewSessionStore(redisClient),
		token.NewJWTManager(cfg.Session.Secret, cfg.Session.Issuer),
		hasher,
		cfg.Session.TTL,
		logger,
	)
	accountService := account.NewService(
		users,
		postgres.NewStore(db.DB),
		hasher,
		jobs.NewDispatcher(queue, cfg.Recovery.ResetURL, logger),
		account.Options{
			TokenTTL:            cfg.Recovery.TokenTTL,
			ConcealUnknownEmail: cfg.Recovery.ConcealUnknownEmail,
		},
		logger,
	)

	server := httpserver.NewServer(cfg, authService, accountService, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", server.Addr()).Info("HTTP server listening")
		return server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
