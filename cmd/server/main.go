package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"mailroom/internal/blob"
	"mailroom/internal/extraction"
	ledgerservice "mailroom/internal/ledger/service"
	ledgerstore "mailroom/internal/ledger/store"
	"mailroom/internal/pipeline"
	"mailroom/internal/pipeline/metrics"
	"mailroom/internal/platform/config"
	"mailroom/internal/platform/httpserver"
	"mailroom/internal/platform/logger"
	"mailroom/internal/platform/postgres"
	redisplatform "mailroom/internal/platform/redis"
	projectservice "mailroom/internal/project/service"
	projectstore "mailroom/internal/project/store"
	"mailroom/internal/queue"
	"mailroom/internal/reply"
	tenantservice "mailroom/internal/tenant/service"
	tenantstore "mailroom/internal/tenant/store"
	httptransport "mailroom/internal/transport/http"
	usageservice "mailroom/internal/usage/service"
	usagestore "mailroom/internal/usage/store"
	"mailroom/pkg/platform/tx"
)

// main wires stores, services, the queue consumer, and the admin API, then
// supervises both loops until shutdown. Business logic lives in internal
// services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Env)

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("mailroom exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Stores. No Postgres URL means in-memory everything, which is only
	// useful for local development.
	var (
		orgs     tenantstore.OrganizationStore
		projects projectstore.ProjectStore
		events   ledgerstore.EventStore
		runner   tx.Runner
	)
	health := map[string]func() error{}

	if cfg.PostgresURL != "" {
		db, err := postgres.Open(ctx, cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return err
		}
		orgs = tenantstore.NewPostgresStore(db)
		projects = projectstore.NewPostgresStore(db)
		events = ledgerstore.NewPostgresStore(db)
		runner = tx.NewSQLRunner(db)
		health["postgres"] = db.Ping
	} else {
		log.Warn("no postgres url configured, state is in-memory and lost on restart")
		orgs = tenantstore.NewInMemoryStore()
		projects = projectstore.NewInMemoryStore()
		events = ledgerstore.NewInMemoryStore()
		runner = tx.NewNopRunner()
	}

	var usageStore usagestore.UsageStore = usagestore.NewInMemoryStore()
	redisClient, err := redisplatform.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		usageStore = usagestore.NewRedisStore(redisClient)
		health["redis"] = func() error { return redisClient.Health(context.Background()) }
	}

	blobs, err := blob.NewFilesystemStore(cfg.BlobDir)
	if err != nil {
		return err
	}

	// Services.
	tenants := tenantservice.New(orgs, tenantservice.WithLogger(log))
	resolver := projectservice.NewResolver(projects, projectservice.WithLogger(log))
	writer := ledgerservice.NewWriter(projects, events, runner,
		ledgerservice.WithLogger(log),
		ledgerservice.WithMetrics(m),
	)
	usage := usageservice.New(usageStore, usageservice.WithLogger(log))

	extractor := extraction.NewOrchestrator(extraction.NewHTTPClient(cfg.AI),
		extraction.WithLogger(log),
		extraction.WithMetrics(m),
		extraction.WithMaxAttempts(cfg.AI.MaxAttempts),
		extraction.WithMaxInputChars(cfg.AI.MaxInputChars),
	)

	pipe := pipeline.New(pipeline.Deps{
		Blobs:              blobs,
		Tenants:            tenants,
		Extractor:          extractor,
		Projects:           resolver,
		Ledger:             writer,
		Usage:              usage,
		Dispatcher:         reply.NewLogDispatcher(log),
		Logger:             log,
		Metrics:            m,
		ReplyFrom:          cfg.ReplyFrom,
		MaxAttachmentBytes: cfg.MaxAttachmentBytes,
	})

	// Queue.
	if err := queue.EnsureTopics(ctx, cfg.Kafka.Brokers, cfg.Kafka.InboundTopic, cfg.Kafka.QuarantineTopic); err != nil {
		return err
	}
	consumer, err := queue.NewConsumer(queue.ConsumerConfig{
		Brokers:         cfg.Kafka.Brokers,
		ConsumerGroup:   cfg.Kafka.ConsumerGroup,
		InboundTopic:    cfg.Kafka.InboundTopic,
		QuarantineTopic: cfg.Kafka.QuarantineTopic,
		MaxRedeliveries: cfg.MaxRedeliveries,
		Workers:         cfg.Workers,
	}, pipe.Handler(),
		queue.WithLogger(log),
		queue.WithMetrics(m),
		queue.WithMessageTimeout(func(ctx context.Context) (context.Context, context.CancelFunc) {
			return context.WithTimeout(ctx, cfg.MessageTimeout)
		}),
	)
	if err != nil {
		return err
	}

	// Admin API.
	handlerOpts := []httptransport.Option{httptransport.WithLogger(log)}
	for name, check := range health {
		handlerOpts = append(handlerOpts, httptransport.WithHealthCheck(name, check))
	}
	handler := httptransport.NewHandler(tenants, resolver, writer, usage, handlerOpts...)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler, cfg.OperatorToken))

	log.Info("mailroom starting",
		"addr", cfg.Addr,
		"env", cfg.Env,
		"inbound_topic", cfg.Kafka.InboundTopic,
		"workers", cfg.Workers,
	)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
