package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"

	"github.com/brightclass/video-service/internal/access"
	"github.com/brightclass/video-service/internal/analytics"
	"github.com/brightclass/video-service/internal/api"
	"github.com/brightclass/video-service/internal/auth"
	"github.com/brightclass/video-service/internal/config"
	"github.com/brightclass/video-service/internal/health"
	"github.com/brightclass/video-service/internal/ingest"
	"github.com/brightclass/video-service/internal/logger"
	"github.com/brightclass/video-service/internal/migrate"
	"github.com/brightclass/video-service/internal/objectstore"
	"github.com/brightclass/video-service/internal/observability"
	"github.com/brightclass/video-service/internal/progress"
	"github.com/brightclass/video-service/internal/provider"
	"github.com/brightclass/video-service/internal/queue"
	"github.com/brightclass/video-service/internal/reconcile"
	"github.com/brightclass/video-service/internal/resolver"
	"github.com/brightclass/video-service/internal/videostore"
)

const (
	ShutdownTimeout       = 30 * time.Second
	TracerShutdownTimeout = 5 * time.Second
	AWSConfigTimeout      = 10 * time.Second
)

func main() {
	log := logger.New()
	slog.SetDefault(log)

	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, using system environment variables")
	}

	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize tracer
	shutdownTracer, err := observability.InitTracer(context.Background(), "video-api", cfg)
	if err != nil {
		log.Error("Failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), TracerShutdownTimeout)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
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

	// Signed playback needs a signing key; provision one when none is
	// configured so the descriptor resolver can mint tokens.
	if cfg.SignedPlayback() && providerClient.Signer() == nil {
		if err := provisionSigningKey(ctx, providerClient, log); err != nil {
			log.Error("Failed to provision signing key", "error", err)
			os.Exit(1)
		}
	}

	detector := access.NewDetector(access.DefaultDetectorConfig())
	guard := access.NewGuard(videos, detector, log)
	bus := progress.NewBus()

	sessions := analytics.NewSessionStore(dynamoClient, cfg.AWS.DynamoDBTable)
	analyticsEngine := analytics.NewEngine(sessions, videos, nil, cfg.Limits.AnalyticsRetentionDays, log)

	ingestPipeline := ingest.New(objects, videos, jobs, providerClient, guard, bus, cfg, log)
	playbackResolver := resolver.New(objects, providerClient.Signer(), cfg.SignedPlayback())
	migrationEngine := migrate.New(videos, objects, providerClient, bus, cfg.Limits.MaxMigrationBytes, log)
	reconciler := reconcile.New(videos, providerClient, bus, analyticsEngine, cfg.Reconciler.SyncBatchSize, log)

	jwtService := auth.NewJWTService(cfg.API.JWTSecret, "brightclass-platform")

	// Initialize health checker
	healthConfig := health.DefaultConfig("video-api", log)
	healthConfig.S3Client = s3Client
	healthConfig.S3Bucket = cfg.AWS.StorageBucket
	healthConfig.SQSClient = sqsClient
	healthConfig.SQSQueueURL = cfg.AWS.SQSQueueURL
	healthConfig.DynamoDBClient = dynamoClient
	healthConfig.DynamoDBTable = cfg.AWS.DynamoDBTable
	healthChecker := health.NewChecker(healthConfig)

	server, err := api.NewServer(&api.ServerConfig{
		Config:        cfg,
		Logger:        log,
		Ingest:        ingestPipeline,
		Resolver:      playbackResolver,
		Videos:        videos,
		Analytics:     analyticsEngine,
		Migrations:    migrationEngine,
		Reconciler:    reconciler,
		Guard:         guard,
		Detector:      detector,
		Bus:           bus,
		JWTService:    jwtService,
		HealthChecker: healthChecker,
		Downloads:     objects,
	})
	if err != nil {
		log.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	// Start server in goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Error("Server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	ctx, cancel = context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Server shutdown complete")
}

// provisionSigningKey reuses an existing provider signing key only when the
// private key is known, which it never is for listed keys; so in practice a
// fresh key is created and logged for operators to persist.
func provisionSigningKey(ctx context.Context, client *provider.Client, log *slog.Logger) error {
	key, err := client.CreateSigningKey(ctx)
	if err != nil {
		return err
	}

	signer, err := provider.NewTokenSigner(key.ID, key.PrivateKey)
	if err != nil {
		return err
	}
	client.SetSigner(signer)

	log.Warn("Provisioned ephemeral playback signing key; set PROVIDER_SIGNING_KEY_ID and PROVIDER_SIGNING_KEY_PRIVATE to persist it",
		"keyId", key.ID,
	)
	return nil
}
