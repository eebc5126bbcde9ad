package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"accounts/backend/internal/config"
	"accounts/backend/internal/jobs"
	"accounts/backend/internal/logging"
)

func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var mailer jobs.Mailer
	if cfg.SMTP.Host != "" {
		mailer = jobs.NewSMTPMailer(jobs.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.Mail.From,
		})
	} else {
		logger.Warn("smtp.host not set, emails will only be logged")
		mailer = jobs.NewLogMailer(logger)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		Concurrency: cfg.Worker.Concurrency,
		Mailer:      mailer,
		Logger:      logger,
	})
	if err != nil {
		logger.WithError(err).Error("init worker")
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("worker exited")
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
