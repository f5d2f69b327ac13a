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

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"

	"github.com/brightclass/video-service/internal/analytics"
	"github.com/brightclass/video-service/internal/config"
	"github.com/brightclass/video-service/internal/logger"
	"github.com/brightclass/video-service/internal/observability"
	"github.com/brightclass/video-service/internal/progress"
	"github.com/brightclass/video-service/internal/provider"
	"github.com/brightclass/video-service/internal/reconcile"
	"github.com/brightclass/video-service/internal/videostore"
)

const (
	ShutdownTimeout  = 5 * time.Second
	AWSConfigTimeout = 10 * time.Second
)

func main() {
	log := logger.New()
	slog.SetDefault(log)

	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, using system environment variables")
	}

	cfg, err := config.LoadReconciler()
	if err != nil {
		log.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize tracing
	shutdownTracer, err := observability.InitTracer(context.Background(), "video-reconciler", cfg)
	if err != nil {
		log.Error("Failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			log.Error("Failed to shutdown tracer", "error", err)
		}
	}()

	// Initialize AWS clients
	ctx, cancel := context.WithTimeout(context.Background(), AWSConfigTimeout)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		log.Error("Failed to load AWS config", "error", err)
		os.Exit(1)
	}
	otelaws.AppendMiddlewares(&awsCfg.APIOptions)

	dynamoClient := dynamodb.NewFromConfig(awsCfg)
	videos := videostore.NewFromClient(dynamoClient, cfg.AWS.DynamoDBTable)

	providerClient, err := provider.New(&provider.Config{
		BaseURL:           cfg.Provider.BaseURL,
		TokenID:           cfg.Provider.TokenID,
		TokenSecret:       cfg.Provider.TokenSecret,
		WebhookSecret:     cfg.Provider.WebhookSecret,
		SigningKeyID:      cfg.Provider.SigningKeyID,
		SigningKeyPrivate: cfg.Provider.SigningKeyPrivate,
		Logger:            log,
	})
	if err != nil {
		log.Error("Failed to create provider client", "error", err)
		os.Exit(1)
	}

	sessions := analytics.NewSessionStore(dynamoClient, cfg.AWS.DynamoDBTable)
	analyticsEngine := analytics.NewEngine(sessions, videos, nil, cfg.Limits.AnalyticsRetentionDays, log)

	reconciler := reconcile.New(videos, providerClient, progress.NewBus(), analyticsEngine, cfg.Reconciler.SyncBatchSize, log)

	// Start metrics server
	metricsServer := startMetricsServer(cfg.Reconciler.MetricsPort, log)

	// Graceful shutdown
	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("Shutting down reconciler...")
		cancel()
	}()

	reconciler.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shutdown metrics server", "error", err)
	}
}

func startMetricsServer(port int, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		if _, err := rw.Write([]byte(`{"status":"healthy"}`)); err != nil {
			log.Error("Failed to write health response", "error", err)
		}
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Starting metrics server", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server error", "error", err)
		}
	}()
	return server
}
