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
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"

	"github.com/brightclass/video-service/internal/config"
	"github.com/brightclass/video-service/internal/logger"
	"github.com/brightclass/video-service/internal/objectstore"
	"github.com/brightclass/video-service/internal/observability"
	"github.com/brightclass/video-service/internal/progress"
	"github.com/brightclass/video-service/internal/queue"
	"github.com/brightclass/video-service/internal/transcoder"
	"github.com/brightclass/video-service/internal/videostore"
	"github.com/brightclass/video-service/internal/worker"
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

	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize tracing
	shutdownTracer, err := observability.InitTracer(context.Background(), "video-worker", cfg)
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

	s3Client := s3.NewFromConfig(awsCfg)
	sqsClient := sqs.NewFromConfig(awsCfg)
	dynamoClient := dynamodb.NewFromConfig(awsCfg)

	objects := objectstore.NewFromClient(s3Client, cfg.AWS.StorageBucket, cfg.AWS.Region, cfg.AWS.CDNDomain, log)
	videos := videostore.NewFromClient(dynamoClient, cfg.AWS.DynamoDBTable)
	jobs := queue.NewFromClient(sqsClient, cfg.AWS.SQSQueueURL, log)

	encoder := transcoder.New(&transcoder.Config{
		BinaryPath: cfg.Transcoder.BinaryPath,
		ProbePath:  cfg.Transcoder.ProbePath,
		Logger:     log,
	})
	if !encoder.Available() {
		log.Warn("Encoder binary not found; jobs will complete in degraded mode",
			"binary", cfg.Transcoder.BinaryPath,
		)
	}

	w := worker.New(&worker.Config{
		Objects:    objects,
		Videos:     videos,
		Jobs:       jobs,
		Transcoder: encoder,
		Bus:        progress.NewBus(),
		AppConfig:  cfg,
		Logger:     log,
	})

	// Start metrics server
	metricsServer := startMetricsServer(cfg.Worker.MetricsPort, log)

	// Graceful shutdown
	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("Shutting down worker...")
		cancel()
	}()

	// Start polling
	w.Run(ctx)

	// Shutdown metrics server gracefully
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
