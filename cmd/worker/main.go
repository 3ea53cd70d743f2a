package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"jobmail/internal/extractor"
	"jobmail/internal/httpserver"
	"jobmail/internal/merge"
	"jobmail/internal/mqhandler"
	"jobmail/internal/repository"
	"jobmail/pkg/config"
	"jobmail/pkg/db"
	"jobmail/pkg/lock"
	"jobmail/pkg/logger"
	"jobmail/pkg/mq"
	"jobmail/pkg/otel"
	"jobmail/pkg/outbox"
	"jobmail/pkg/redis"
	"jobmail/pkg/util"
)

type redisPinger struct{ rdb *goredis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.rdb.Ping(ctx).Err() }

func main() {
	cfg, err := config.Load(config.GetConfigEnv(), config.GetEnv("CONFIG_DIR", "config"))
	if err != nil {
		panic(err)
	}
	log := logger.NewLogger(cfg.Log.Level)
	defer log.Sync()

	log.Info("Starting jobmail worker...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(cfg.Tracing, "jobmail-worker", log)
	if err != nil {
		log.Fatal("OpenTelemetry init failed", zap.Error(err))
	}
	defer shutdownTracing()

	// Redis
	rdb, err := redis.NewRedisClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal("Redis connection failed", zap.Error(err))
	}
	defer rdb.Close()

	deduper := util.NewDeduperWithLogger(rdb, cfg.Pipeline.DedupTTL, log)
	retryCounter := util.NewRetryCounter(rdb, cfg.Pipeline.DedupTTL)

	// DB
	pool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB connection failed", zap.Error(err))
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatal("DB migration failed", zap.Error(err))
	}
	log.Info("DB ready")

	// repositories
	outboxRepo := outbox.NewRepository(pool)
	jobRepo := repository.NewJobRepository(pool, outboxRepo)
	processedRepo := repository.NewProcessedEmailRepository(pool)

	engine := merge.NewEngine(jobRepo,
		merge.WithLocker(lock.NewRedisLocker(rdb, cfg.Pipeline.LockTTL, log)),
		merge.WithLogger(log),
		merge.WithRetries(cfg.Pipeline.MergeRetries),
	)

	// publisher：outbox 转发与 DLQ 共用
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init publisher", zap.Error(err))
	}
	defer publisher.Close()

	handler := mqhandler.NewEmailFetchedHandler(
		extractor.New(),
		engine,
		processedRepo,
		deduper,
		retryCounter,
		publisher,
		cfg.Pipeline,
		log,
	)

	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log).
		WithInterval(cfg.Pipeline.OutboxInterval)
	go dispatcher.Start(ctx)

	// -------------------------
	// job.email.fetched consumer
	// -------------------------
	log.Info("Init consumer", zap.String("queue", cfg.MQ.Queue))
	consumer, err := mq.NewConsumer(cfg.MQ.URL, cfg.MQ.Queue, mq.RoutingEmailFetched, cfg.MQ.Prefetch, log)
	if err != nil {
		log.Fatal("Consumer init failed", zap.Error(err))
	}
	defer consumer.Close()
	consumer.SetHandler(handler.Handle)

	go func() {
		if err := consumer.StartConsuming(ctx); err != nil {
			log.Error("Consumer crashed", zap.Error(err))
			stop()
		}
	}()

	// ops endpoints
	router := httpserver.NewRouter(log, jobRepo, map[string]httpserver.Pinger{
		"db":    pool,
		"redis": redisPinger{rdb},
	})
	go func() {
		log.Info("Ops server listening", zap.String("addr", cfg.Metrics.Addr))
		if err := router.Run(cfg.Metrics.Addr); err != nil {
			log.Error("Ops server failed", zap.Error(err))
		}
	}()

	log.Info("Worker running")
	<-ctx.Done()

	log.Info("Shutting down worker gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := router.Shutdown(shutdownCtx); err != nil {
		log.Warn("Ops server shutdown error", zap.Error(err))
	}
	log.Info("Worker shutdown complete")
}
