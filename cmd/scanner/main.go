package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	mqcontracts "jobmail/contracts/mq"
	"jobmail/internal/mailbox"
	"jobmail/internal/repository"
	"jobmail/pkg/config"
	"jobmail/pkg/db"
	"jobmail/pkg/logger"
	"jobmail/pkg/mq"
	"jobmail/pkg/otel"
	"jobmail/pkg/outbox"
	"jobmail/pkg/trace"
)

func main() {
	cfg, err := config.Load(config.GetConfigEnv(), config.GetEnv("CONFIG_DIR", "config"))
	if err != nil {
		panic(err)
	}
	log := logger.NewLogger(cfg.Log.Level)
	defer log.Sync()

	if cfg.Gmail.Owner == "" {
		log.Fatal("gmail.owner is not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(cfg.Tracing, "jobmail-scanner", log)
	if err != nil {
		log.Fatal("OpenTelemetry init failed", zap.Error(err))
	}
	defer shutdownTracing()

	pool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB connection failed", zap.Error(err))
	}
	defer pool.Close()
	jobRepo := repository.NewJobRepository(pool, outbox.NewRepository(pool))

	srv, err := mailbox.NewGmailService(ctx, cfg.Gmail)
	if err != nil {
		log.Fatal("Gmail client init failed", zap.Error(err))
	}
	fetcher := mailbox.NewGmailFetcher(srv, cfg.Gmail.UserID, cfg.Gmail.MaxResults, log)

	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init publisher", zap.Error(err))
	}
	defer publisher.Close()

	for {
		if err := scan(ctx, cfg.Gmail, jobRepo, fetcher, publisher, log); err != nil {
			log.Error("Scan failed", zap.Error(err))
		}
		if cfg.Gmail.ScanInterval <= 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(cfg.Gmail.ScanInterval):
		}
	}
}

func scan(ctx context.Context, cfg config.GmailConfig, repo *repository.JobRepository, fetcher *mailbox.GmailFetcher, publisher *mq.Publisher, log *zap.Logger) error {
	known, err := repo.KnownEmailIDs(ctx, cfg.Owner)
	if err != nil {
		return err
	}
	emails, err := fetcher.Fetch(ctx, cfg.Query, known)
	if err != nil {
		return err
	}

	published := 0
	for _, email := range emails {
		ectx, traceID := trace.Ensure(ctx, "")
		payload := mqcontracts.EmailFetchedPayload{
			UserID:  cfg.Owner,
			TraceID: traceID,
			Email:   email,
		}
		if err := publisher.PublishWithContext(ectx, mq.RoutingEmailFetched, payload); err != nil {
			return err
		}
		published++
	}
	log.Info("Scan complete",
		zap.String("owner", cfg.Owner),
		zap.Int("published", published),
		zap.Int("known", len(known)),
	)
	return nil
}
