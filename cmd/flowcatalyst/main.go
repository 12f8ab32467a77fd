// FlowCatalyst combined pipeline binary.
//
// Runs the stream fan-out, dispatch scheduler and message router in a single
// process, together with the ingress HTTP endpoint. The outbox processor is
// not started here; it runs in cmd/outbox. Only the scheduler takes part in
// leader election (when its LeaderElection config is enabled); the stream
// processor and the router run without leader election or standby
// coordination in this binary.
//
//	@title			FlowCatalyst Ingress API
//	@version		1.0
//	@description	Event and dispatch job ingestion endpoint for the outbox processor's API client.
//
//	@host		localhost:8080
//	@BasePath	/
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	_ "github.com/flowcatalyst-oss/corepipe/docs" // swagger docs

	"github.com/flowcatalyst-oss/corepipe/internal/common/health"
	"github.com/flowcatalyst-oss/corepipe/internal/common/secrets"
	"github.com/flowcatalyst-oss/corepipe/internal/common/webhook"
	"github.com/flowcatalyst-oss/corepipe/internal/config"
	"github.com/flowcatalyst-oss/corepipe/internal/dispatchjob"
	"github.com/flowcatalyst-oss/corepipe/internal/ingress"
	"github.com/flowcatalyst-oss/corepipe/internal/queue"
	natsqueue "github.com/flowcatalyst-oss/corepipe/internal/queue/nats"
	sqsqueue "github.com/flowcatalyst-oss/corepipe/internal/queue/sqs"
	"github.com/flowcatalyst-oss/corepipe/internal/router/manager"
	"github.com/flowcatalyst-oss/corepipe/internal/router/mediator"
	"github.com/flowcatalyst-oss/corepipe/internal/scheduler"
	"github.com/flowcatalyst-oss/corepipe/internal/stream"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("FLOWCATALYST_DEV") == "true" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("starting flowcatalyst", "version", version, "build_time", buildTime)

	cfg, err := config.LoadWithFile()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healthChecker := health.NewChecker()

	slog.Info("connecting to mongodb", "uri", maskURI(cfg.MongoDB.URI))
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoDB.URI))
	if err != nil {
		slog.Error("failed to connect to mongodb", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := mongoClient.Disconnect(ctx); err != nil {
			slog.Error("error disconnecting from mongodb", "error", err)
		}
	}()

	if err := mongoClient.Ping(ctx, nil); err != nil {
		slog.Error("failed to ping mongodb", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to mongodb", "database", cfg.MongoDB.Database)

	healthChecker.AddReadinessCheck(health.MongoDBCheck(func() error {
		return mongoClient.Ping(ctx, nil)
	}))

	var queuePublisher queue.Publisher
	var queueConsumer queue.Consumer
	var queueCloser func() error

	switch cfg.Queue.Type {
	case "embedded":
		slog.Info("starting embedded nats server")
		natsCfg := natsqueue.DefaultEmbeddedConfig()
		natsCfg.DataDir = cfg.Queue.NATS.DataDir
		if cfg.DataDir != "" {
			natsCfg.DataDir = cfg.DataDir + "/nats"
		}

		embeddedNATS, err := natsqueue.NewEmbeddedServer(natsCfg)
		if err != nil {
			slog.Error("failed to start embedded nats server", "error", err)
			os.Exit(1)
		}
		queueCloser = embeddedNATS.Close
		queuePublisher = embeddedNATS.Publisher()

		consumer, err := embeddedNATS.CreateConsumer(ctx, "dispatch-consumer", "dispatch.>", nil)
		if err != nil {
			slog.Error("failed to create nats consumer", "error", err)
			os.Exit(1)
		}
		queueConsumer = consumer

		healthChecker.AddReadinessCheck(health.NATSCheck(func() bool {
			return embeddedNATS.Connection().IsConnected()
		}))

	case "nats":
		slog.Info("connecting to external nats server", "url", cfg.Queue.NATS.URL)
		natsClient, err := natsqueue.NewClient(&queue.NATSConfig{
			URL:        cfg.Queue.NATS.URL,
			StreamName: "DISPATCH",
		})
		if err != nil {
			slog.Error("failed to connect to nats server", "error", err)
			os.Exit(1)
		}
		queueCloser = natsClient.Close
		queuePublisher = natsClient.Publisher()

		consumer, err := natsClient.CreateConsumer(ctx, "dispatch-consumer", "dispatch.>")
		if err != nil {
			slog.Error("failed to create nats consumer", "error", err)
			os.Exit(1)
		}
		queueConsumer = consumer

		healthChecker.AddReadinessCheck(health.NATSCheck(func() bool { return true }))

	case "sqs":
		slog.Info("connecting to aws sqs", "region", cfg.Queue.SQS.Region, "queueURL", cfg.Queue.SQS.QueueURL)

		sqsCfg := &queue.SQSConfig{
			QueueURL:            cfg.Queue.SQS.QueueURL,
			Region:              cfg.Queue.SQS.Region,
			WaitTimeSeconds:     int32(cfg.Queue.SQS.WaitTimeSeconds),
			VisibilityTimeout:   int32(cfg.Queue.SQS.VisibilityTimeout),
			MaxNumberOfMessages: 10,
		}

		sqsClient, err := sqsqueue.NewClient(ctx, sqsCfg)
		if err != nil {
			slog.Error("failed to create sqs client", "error", err)
			os.Exit(1)
		}
		queueCloser = sqsClient.Close
		queuePublisher = sqsClient.Publisher()

		consumer, err := sqsClient.CreateConsumer(ctx, "dispatch-consumer", "")
		if err != nil {
			slog.Error("failed to create sqs consumer", "error", err)
			os.Exit(1)
		}
		queueConsumer = consumer

		healthChecker.AddReadinessCheck(health.SQSCheck(func() error {
			checkCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return sqsClient.HealthCheck(checkCtx)
		}))

	default:
		slog.Error("unknown queue type", "type", cfg.Queue.Type)
		os.Exit(1)
	}

	if queueCloser != nil {
		defer func() {
			if err := queueCloser(); err != nil {
				slog.Error("error closing queue", "error", err)
			}
		}()
	}

	db := mongoClient.Database(cfg.MongoDB.Database)

	streamCfg := stream.DefaultProcessorConfig()
	streamCfg.Database = cfg.MongoDB.Database
	streamProcessor := stream.NewProcessor(mongoClient, streamCfg)

	if err := streamProcessor.EnsureIndexes(ctx); err != nil {
		slog.Warn("failed to ensure projection indexes", "error", err)
	}
	if err := streamProcessor.Start(); err != nil {
		slog.Error("failed to start stream processor", "error", err)
		os.Exit(1)
	}
	defer streamProcessor.Stop()
	healthChecker.AddReadinessCheck(streamProcessor.HealthCheck())

	secretsProvider, err := secrets.NewProvider(&cfg.Secrets)
	if err != nil {
		slog.Warn("failed to initialize secrets provider, dispatch auth token falls back to env var", "error", err)
	}

	schedulerCfg := scheduler.DefaultSchedulerConfig()
	schedulerCfg.Database = cfg.MongoDB.Database
	schedulerCfg.AppKey = resolveAppKey(ctx, secretsProvider, cfg.Auth.AppKeySecretName)
	schedulerCfg.AuthMode = cfg.Auth.Mode
	dispatchScheduler := scheduler.NewScheduler(mongoClient, queuePublisher, schedulerCfg)
	dispatchScheduler.Start()
	defer dispatchScheduler.Stop()

	var dispatchAuthService dispatchjob.AuthTokenService
	if cfg.Auth.Mode == "jwt" {
		dispatchAuthService = dispatchjob.NewJWTAuthService(schedulerCfg.AppKey, nil)
	} else {
		dispatchAuthService = dispatchjob.NewDispatchAuthService(schedulerCfg.AppKey, nil)
	}

	mediatorCfg := mediator.DefaultHTTPMediatorConfig()
	mediatorDeps := mediator.Deps{
		Jobs:            dispatchjob.NewRepository(db),
		AuthService:     dispatchAuthService,
		Signer:          webhook.NewSigner(),
		SecretsProvider: secretsProvider,
	}
	messageRouter := manager.NewRouter(queueConsumer, mediatorCfg, mediatorDeps)
	messageRouter.Start()
	defer messageRouter.Stop()

	ingressHandlers := ingress.NewHandlers(db)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.HTTP.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/q/health", healthChecker.HandleHealth)
	r.Get("/q/health/live", healthChecker.HandleLive)
	r.Get("/q/health/ready", healthChecker.HandleReady)

	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/q/metrics", promhttp.Handler())

	r.Post("/ingress/batch", ingressHandlers.HandleBatch)

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "port", cfg.HTTP.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server forced to shutdown", "error", err)
	}

	slog.Info("flowcatalyst stopped")
}

func maskURI(uri string) string {
	if len(uri) > 20 {
		return uri[:20] + "..."
	}
	return uri
}

// resolveAppKey looks up the dispatch auth token signing key from the
// configured secret provider first, falling back to FC_SCHEDULER_APP_KEY
// for deployments that haven't adopted a secret provider.
func resolveAppKey(ctx context.Context, provider secrets.Provider, secretName string) string {
	if provider != nil {
		if key, err := provider.Get(ctx, secretName); err == nil && key != "" {
			return key
		}
	}
	return os.Getenv("FC_SCHEDULER_APP_KEY")
}
