// Package worker consumes transcode jobs and produces HLS renditions.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/brightclass/video-service/internal/config"
	"github.com/brightclass/video-service/internal/metrics"
	"github.com/brightclass/video-service/internal/objectstore"
	"github.com/brightclass/video-service/internal/progress"
	"github.com/brightclass/video-service/internal/queue"
	"github.com/brightclass/video-service/internal/transcoder"
	"github.com/brightclass/video-service/internal/videostore"
)

// RetryBackoffPeriod is the pause after a failed queue receive.
const RetryBackoffPeriod = 5 * time.Second

var tracer = otel.Tracer("video-worker")

// Worker processes transcode jobs from the queue.
type Worker struct {
	objects    objectstore.Store
	videos     *videostore.Store
	jobs       *queue.Queue
	transcoder *transcoder.Transcoder
	bus        *progress.Bus
	cfg        *config.Config
	log        *slog.Logger
}

// Config holds worker dependencies.
type Config struct {
	Objects    objectstore.Store
	Videos     *videostore.Store
	Jobs       *queue.Queue
	Transcoder *transcoder.Transcoder
	Bus        *progress.Bus
	AppConfig  *config.Config
	Logger     *slog.Logger
}

// New creates a Worker with the given configuration.
func New(cfg *Config) *Worker {
	return &Worker{
		objects:    cfg.Objects,
		videos:     cfg.Videos,
		jobs:       cfg.Jobs,
		transcoder: cfg.Transcoder,
		bus:        cfg.Bus,
		cfg:        cfg.AppConfig,
		log:        cfg.Logger,
	}
}

// Run starts the worker and blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.log.InfoContext(ctx, "Starting queue polling",
		"queueURL", w.jobs.QueueURL(),
		"maxConcurrent", w.cfg.Worker.MaxConcurrentJobs,
	)

	sem := make(chan struct{}, w.cfg.Worker.MaxConcurrentJobs)
	var wg sync.WaitGroup

messageLoop:
	for {
		select {
		case <-ctx.Done():
			w.log.InfoContext(ctx, "Waiting for in-progress jobs to complete...")
			wg.Wait()
			w.log.InfoContext(ctx, "All jobs completed, shutting down")
			return
		default:
		}

		messages, err := w.jobs.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue // Shutting down
			}
			w.log.ErrorContext(ctx, "Failed to receive messages", "error", err)
			time.Sleep(RetryBackoffPeriod)
			continue
		}

		for _, msg := range messages {
			select {
			case sem <- struct{}{}:
				wg.Add(1)
				go func(msg types.Message) {
					defer wg.Done()
					defer func() { <-sem }()

					metrics.ActiveJobs.Inc()
					defer metrics.ActiveJobs.Dec()

					if err := w.processMessage(ctx, msg); err != nil {
						// Leave the message for redelivery after the
						// visibility timeout.
						w.log.ErrorContext(ctx, "Failed to process message",
							"error", err,
							"messageId", safeStringDeref(msg.MessageId),
						)
						return
					}
					if delErr := w.jobs.Delete(ctx, msg.ReceiptHandle); delErr != nil {
						w.log.ErrorContext(ctx, "Failed to delete message", "error", delErr)
					}
				}(msg)
			case <-ctx.Done():
				w.log.InfoContext(ctx, "Context cancelled, stopping message processing")
				break messageLoop
			}
		}
	}
}

func safeStringDeref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (w *Worker) processMessage(ctx context.Context, msg types.Message) error {
	ctx, span := tracer.Start(ctx, "process-message")
	defer span.End()

	job, err := queue.ParseJob(msg.Body)
	if err != nil {
		// A malformed message never becomes valid; log and drop it.
		w.log.ErrorContext(ctx, "Dropping unparseable job", "error", err)
		return nil
	}

	span.SetAttributes(
		attribute.String("lesson.id", job.LessonID),
		attribute.String("asset.id", job.AssetID),
		attribute.String("asset.object_key", job.ObjectKey),
	)

	return w.processJob(ctx, job)
}
