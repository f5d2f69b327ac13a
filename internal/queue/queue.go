// Package queue wraps the transcode job queue. The API enqueues jobs after
// an upload commits; the worker polls them back out.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"

	"github.com/brightclass/video-service/pkg/models"
)

const (
	// MaxMessages per receive. One at a time keeps visibility timeouts
	// honest for long transcodes.
	MaxMessages = 1

	// WaitTimeSeconds enables long polling.
	WaitTimeSeconds = 20

	// VisibilityTimeout must exceed the longest plausible transcode.
	VisibilityTimeout = 900
)

// Queue sends and receives transcode jobs over SQS.
type Queue struct {
	client   *sqs.Client
	queueURL string
	log      *slog.Logger
}

// New creates a Queue from the default AWS config chain.
func New(ctx context.Context, queueURL, region string, log *slog.Logger) (*Queue, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	otelaws.AppendMiddlewares(&awsCfg.APIOptions)

	return NewFromClient(sqs.NewFromConfig(awsCfg), queueURL, log), nil
}

// NewFromClient creates a Queue from an existing client.
func NewFromClient(client *sqs.Client, queueURL string, log *slog.Logger) *Queue {
	return &Queue{client: client, queueURL: queueURL, log: log}
}

// Client exposes the underlying SQS client for health checks.
func (q *Queue) Client() *sqs.Client {
	return q.client
}

// QueueURL returns the configured queue URL.
func (q *Queue) QueueURL() string {
	return q.queueURL
}

// EnqueueTranscode publishes a transcode job.
func (q *Queue) EnqueueTranscode(ctx context.Context, job *models.TranscodeJob) error {
	if err := job.Validate(); err != nil {
		return err
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal transcode job: %w", err)
	}

	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("%w: failed to enqueue transcode job: %v", models.ErrStorageUnavailable, err)
	}

	q.log.InfoContext(ctx, "Transcode job enqueued",
		"lessonId", job.LessonID,
		"assetId", job.AssetID,
	)
	return nil
}

// Receive long-polls for jobs.
func (q *Queue) Receive(ctx context.Context) ([]types.Message, error) {
	result, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: MaxMessages,
		WaitTimeSeconds:     WaitTimeSeconds,
		VisibilityTimeout:   VisibilityTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive messages: %w", err)
	}
	return result.Messages, nil
}

// Delete acknowledges a processed message.
func (q *Queue) Delete(ctx context.Context, receiptHandle *string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: receiptHandle,
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// ParseJob decodes and validates a transcode job message body.
func ParseJob(body *string) (*models.TranscodeJob, error) {
	if body == nil {
		return nil, fmt.Errorf("%w: empty message body", models.ErrJobParseFailed)
	}

	var job models.TranscodeJob
	if err := json.Unmarshal([]byte(*body), &job); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrJobParseFailed, err)
	}
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrJobParseFailed, err)
	}
	return &job, nil
}
