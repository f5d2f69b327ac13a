// Package analytics records playback view sessions and computes the
// lesson, course, and teacher aggregates served to dashboards.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/brightclass/video-service/internal/metrics"
	"github.com/brightclass/video-service/pkg/models"
)

// View session key layout, sharing the service's single table.
const (
	viewPrefix    = "VIEW#"
	extViewPrefix = "EXTVIEW#"
	sessionEntity = "VIEW_SESSION"

	gsiExternal = "GSI1"
)

func lessonPK(lessonID string) string { return "LESSON#" + lessonID }

// SessionStore persists view sessions.
type SessionStore struct {
	client    *dynamodb.Client
	tableName string
}

// NewSessionStore creates a SessionStore on an existing client.
func NewSessionStore(client *dynamodb.Client, tableName string) *SessionStore {
	return &SessionStore{client: client, tableName: tableName}
}

// Record upserts a view session. A session carrying an external view id
// that already exists is updated in place; everything else inserts a new
// row. Returns true when a new row was created.
func (s *SessionStore) Record(ctx context.Context, session *models.ViewSession) (bool, error) {
	if session.LessonID == "" {
		return false, fmt.Errorf("%w: view session missing lesson id", models.ErrInvalidInput)
	}
	session.Normalize()

	if session.ExternalViewID != "" {
		existing, err := s.findByExternalID(ctx, session.ExternalViewID)
		if err != nil {
			return false, err
		}
		if existing != nil {
			if err := s.updateInPlace(ctx, existing, session); err != nil {
				return false, err
			}
			metrics.ViewSessionsRecorded.WithLabelValues("updated").Inc()
			return false, nil
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.SessionStartedAt == "" {
		session.SessionStartedAt = now
	}
	session.PK = lessonPK(session.LessonID)
	session.SK = viewPrefix + session.SessionStartedAt + "#" + session.ID
	if session.ExternalViewID != "" {
		session.GSI1PK = extViewPrefix + session.ExternalViewID
		session.GSI1SK = session.SK
	}

	item, err := attributevalue.MarshalMap(session)
	if err != nil {
		return false, fmt.Errorf("failed to marshal view session: %w", err)
	}
	item["entity"] = &types.AttributeValueMemberS{Value: sessionEntity}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return false, fmt.Errorf("failed to put view session: %w", err)
	}

	metrics.ViewSessionsRecorded.WithLabelValues("created").Inc()
	return true, nil
}

func (s *SessionStore) findByExternalID(ctx context.Context, externalID string) (*models.ViewSession, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(gsiExternal),
		KeyConditionExpression: aws.String("gsi1pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: extViewPrefix + externalID},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up external view id: %w", err)
	}
	if len(result.Items) == 0 {
		return nil, nil
	}

	var session models.ViewSession
	if err := attributevalue.UnmarshalMap(result.Items[0], &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal view session: %w", err)
	}
	return &session, nil
}

// updateInPlace refreshes the mutable fields of an existing session row.
func (s *SessionStore) updateInPlace(ctx context.Context, existing, incoming *models.ViewSession) error {
	values := map[string]types.AttributeValue{
		":watch_time":        &types.AttributeValueMemberN{Value: fmt.Sprintf("%g", incoming.WatchTimeSeconds)},
		":completion":        &types.AttributeValueMemberN{Value: fmt.Sprintf("%g", incoming.CompletionPercentage)},
		":completed":         &types.AttributeValueMemberBOOL{Value: incoming.SessionCompleted},
		":progress":          &types.AttributeValueMemberN{Value: fmt.Sprintf("%g", incoming.PlaybackProgress)},
		":rebuffer_count":    &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", incoming.RebufferCount)},
		":rebuffer_duration": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", incoming.RebufferDurationMS)},
	}
	expr := `SET watch_time_seconds = :watch_time,
		completion_percentage = :completion,
		session_completed = :completed,
		playback_progress = :progress,
		rebuffer_count = :rebuffer_count,
		rebuffer_duration_ms = :rebuffer_duration`
	if incoming.SessionEndedAt != "" {
		expr += ", session_ended_at = :ended_at"
		values[":ended_at"] = &types.AttributeValueMemberS{Value: incoming.SessionEndedAt}
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: existing.PK},
			"sk": &types.AttributeValueMemberS{Value: existing.SK},
		},
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("failed to update view session: %w", err)
	}
	return nil
}

// ListByLesson returns every session for a lesson started at or after
// since. A zero since returns the full history.
func (s *SessionStore) ListByLesson(ctx context.Context, lessonID string, since time.Time) ([]models.ViewSession, error) {
	keyCondition := "pk = :pk AND begins_with(sk, :prefix)"
	values := map[string]types.AttributeValue{
		":pk":     &types.AttributeValueMemberS{Value: lessonPK(lessonID)},
		":prefix": &types.AttributeValueMemberS{Value: viewPrefix},
	}
	if !since.IsZero() {
		keyCondition = "pk = :pk AND sk >= :start"
		values[":start"] = &types.AttributeValueMemberS{Value: viewPrefix + since.UTC().Format(time.RFC3339)}
	}

	var sessions []models.ViewSession
	var startKey map[string]types.AttributeValue
	for {
		input := &dynamodb.QueryInput{
			TableName:                 aws.String(s.tableName),
			KeyConditionExpression:    aws.String(keyCondition),
			ExpressionAttributeValues: values,
		}
		if startKey != nil {
			input.ExclusiveStartKey = startKey
		}

		result, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to list view sessions: %w", err)
		}

		var page []models.ViewSession
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal view sessions: %w", err)
		}
		sessions = append(sessions, page...)

		if result.LastEvaluatedKey == nil {
			break
		}
		startKey = result.LastEvaluatedKey
	}
	return sessions, nil
}

// DeleteOlderThan removes sessions started before the cutoff. Returns the
// number of rows deleted. Runs as a paginated scan; it is a daily batch
// job, not a hot path.
func (s *SessionStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	cutoffStr := cutoff.UTC().Format(time.RFC3339)
	deleted := 0
	var startKey map[string]types.AttributeValue

	for {
		input := &dynamodb.ScanInput{
			TableName:        aws.String(s.tableName),
			FilterExpression: aws.String("entity = :entity AND session_started_at < :cutoff"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":entity": &types.AttributeValueMemberS{Value: sessionEntity},
				":cutoff": &types.AttributeValueMemberS{Value: cutoffStr},
			},
			ProjectionExpression: aws.String("pk, sk"),
		}
		if startKey != nil {
			input.ExclusiveStartKey = startKey
		}

		result, err := s.client.Scan(ctx, input)
		if err != nil {
			return deleted, fmt.Errorf("failed to scan expired sessions: %w", err)
		}

		// BatchWriteItem accepts at most 25 requests per call.
		for start := 0; start < len(result.Items); start += 25 {
			end := start + 25
			if end > len(result.Items) {
				end = len(result.Items)
			}
			writes := make([]types.WriteRequest, 0, end-start)
			for _, item := range result.Items[start:end] {
				writes = append(writes, types.WriteRequest{
					DeleteRequest: &types.DeleteRequest{Key: map[string]types.AttributeValue{
						"pk": item["pk"],
						"sk": item["sk"],
					}},
				})
			}
			_, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{s.tableName: writes},
			})
			if err != nil {
				return deleted, fmt.Errorf("failed to delete expired sessions: %w", err)
			}
			deleted += len(writes)
		}

		if result.LastEvaluatedKey == nil {
			break
		}
		startKey = result.LastEvaluatedKey
	}
	return deleted, nil
}
