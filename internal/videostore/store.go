// Package videostore persists lesson video fields, video assets, and the
// course/enrollment records the access guard reads. Single-table DynamoDB
// layout: lessons under LESSON#<id>/VIDEO, assets under
// LESSON#<id>/ASSET#<id>, with GSI1 for course listing, GSI2 for provider
// listing, and a sparse GSI3 for lessons awaiting managed-provider sync.
package videostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"

	"github.com/brightclass/video-service/pkg/models"
)

// Key construction
const (
	lessonSK    = "VIDEO"
	assetPrefix = "ASSET#"

	gsiCourse   = "GSI1"
	gsiProvider = "GSI2"
	gsiSync     = "GSI3"

	syncPartition = "MANAGED_SYNC"
)

func lessonPK(lessonID string) string { return "LESSON#" + lessonID }
func coursePK(courseID string) string { return "COURSE#" + courseID }

// Store is the DynamoDB-backed persistence layer.
type Store struct {
	client    *dynamodb.Client
	tableName string
}

// New creates a Store using the default AWS config chain.
func New(ctx context.Context, region, tableName string) (*Store, error) {
	if tableName == "" {
		return nil, errors.New("DynamoDB table name is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	otelaws.AppendMiddlewares(&awsCfg.APIOptions)

	return NewFromClient(dynamodb.NewFromConfig(awsCfg), tableName), nil
}

// NewFromClient creates a Store from an existing DynamoDB client.
func NewFromClient(client *dynamodb.Client, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// Client exposes the underlying client so other stores share the table.
func (s *Store) Client() *dynamodb.Client { return s.client }

// TableName returns the configured table.
func (s *Store) TableName() string { return s.tableName }

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// needsManagedSync mirrors the reconciliation selector: an upload without an
// asset, an asset without a playback handle, or a non-terminal status.
func needsManagedSync(m models.ManagedVideo) bool {
	if m.UploadID != "" && m.AssetID == "" {
		return true
	}
	if m.AssetID != "" && m.PlaybackID == "" {
		return true
	}
	return m.Status == models.ManagedPreparing || m.Status == models.ManagedProcessing
}

// PutLesson writes a full lesson video record. Used by platform glue and
// tests; normal mutation goes through UpdateLessonVideoFields.
func (s *Store) PutLesson(ctx context.Context, lesson *models.Lesson) error {
	now := nowRFC3339()
	lesson.PK = lessonPK(lesson.ID)
	lesson.SK = lessonSK
	lesson.GSI1PK = coursePK(lesson.CourseID)
	lesson.GSI1SK = lessonPK(lesson.ID)
	if lesson.UpdatedAt == "" {
		lesson.UpdatedAt = now
	}
	if lesson.VideoProvider == "" {
		lesson.VideoProvider = models.ProviderNone
	}

	item, err := attributevalue.MarshalMap(lesson)
	if err != nil {
		return fmt.Errorf("failed to marshal lesson: %w", err)
	}
	applyLessonIndexes(item, lesson.VideoProvider, lesson.Managed, lesson.UpdatedAt)

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put lesson: %w", err)
	}
	return nil
}

// GetLesson retrieves a lesson's video fields.
func (s *Store) GetLesson(ctx context.Context, lessonID string) (*models.Lesson, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: lessonPK(lessonID)},
			"sk": &types.AttributeValueMemberS{Value: lessonSK},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get lesson: %w", err)
	}
	if result.Item == nil {
		return nil, models.ErrLessonNotFound
	}

	var lesson models.Lesson
	if err := attributevalue.UnmarshalMap(result.Item, &lesson); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lesson: %w", err)
	}
	return &lesson, nil
}

// LessonVideoUpdate describes a partial update of a lesson's video fields.
// Nil fields are left untouched; non-nil empty strings clear the field.
type LessonVideoUpdate struct {
	VideoProvider   *models.VideoProvider
	VideoURL        *string
	HLSURL          *string
	ObjectKey       *string
	ThumbnailURL    *string
	DurationSeconds *float64
	Managed         *models.ManagedVideo
	Migration       *models.MigrationState
	AllowDownload   *bool

	// ExpectedVersion, when non-zero, makes the write conditional so that
	// ingest and reconciliation writers to the same row serialize.
	ExpectedVersion int64
}

// UpdateLessonVideoFields applies a partial update and bumps the version.
// Returns ErrConflictState when the version check fails.
func (s *Store) UpdateLessonVideoFields(ctx context.Context, lessonID string, update *LessonVideoUpdate) error {
	now := nowRFC3339()

	names := map[string]string{}
	values := map[string]types.AttributeValue{
		":updated_at": &types.AttributeValueMemberS{Value: now},
		":one":        &types.AttributeValueMemberN{Value: "1"},
	}
	sets := []string{"updated_at = :updated_at"}
	adds := []string{"version :one"}
	var removes []string

	setString := func(attr, placeholder string, value *string) {
		if value == nil {
			return
		}
		if *value == "" {
			removes = append(removes, attr)
			return
		}
		sets = append(sets, fmt.Sprintf("%s = %s", attr, placeholder))
		values[placeholder] = &types.AttributeValueMemberS{Value: *value}
	}

	setString("video_url", ":video_url", update.VideoURL)
	setString("hls_url", ":hls_url", update.HLSURL)
	setString("object_key", ":object_key", update.ObjectKey)
	setString("thumbnail_url", ":thumbnail_url", update.ThumbnailURL)

	if update.VideoProvider != nil {
		sets = append(sets, "video_provider = :provider", "gsi2pk = :gsi2pk")
		values[":provider"] = &types.AttributeValueMemberS{Value: string(*update.VideoProvider)}
		values[":gsi2pk"] = &types.AttributeValueMemberS{Value: "PROVIDER#" + string(*update.VideoProvider)}
	}
	if update.DurationSeconds != nil {
		sets = append(sets, "duration_seconds = :duration")
		values[":duration"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%g", *update.DurationSeconds)}
	}
	if update.AllowDownload != nil {
		sets = append(sets, "allow_download = :allow_download")
		values[":allow_download"] = &types.AttributeValueMemberBOOL{Value: *update.AllowDownload}
	}
	if update.Managed != nil {
		managedAV, err := attributevalue.Marshal(*update.Managed)
		if err != nil {
			return fmt.Errorf("failed to marshal managed fields: %w", err)
		}
		sets = append(sets, "managed = :managed")
		values[":managed"] = managedAV

		if needsManagedSync(*update.Managed) {
			sets = append(sets, "gsi3pk = :gsi3pk", "gsi3sk = :gsi3sk")
			values[":gsi3pk"] = &types.AttributeValueMemberS{Value: syncPartition}
			values[":gsi3sk"] = &types.AttributeValueMemberS{Value: now + "#" + lessonID}
		} else {
			removes = append(removes, "gsi3pk", "gsi3sk")
		}
	}
	if update.Migration != nil {
		migrationAV, err := attributevalue.Marshal(*update.Migration)
		if err != nil {
			return fmt.Errorf("failed to marshal migration fields: %w", err)
		}
		sets = append(sets, "migration = :migration")
		values[":migration"] = migrationAV
	}

	expr := "SET " + strings.Join(sets, ", ") + " ADD " + strings.Join(adds, ", ")
	if len(removes) > 0 {
		expr += " REMOVE " + strings.Join(removes, ", ")
	}

	condition := "attribute_exists(pk)"
	if update.ExpectedVersion != 0 {
		condition += " AND version = :expected_version"
		values[":expected_version"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", update.ExpectedVersion)}
	}

	input := &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: lessonPK(lessonID)},
			"sk": &types.AttributeValueMemberS{Value: lessonSK},
		},
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String(condition),
	}
	if len(names) > 0 {
		input.ExpressionAttributeNames = names
	}

	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			if update.ExpectedVersion != 0 {
				return fmt.Errorf("%w: lesson %s version changed", models.ErrConflictState, lessonID)
			}
			return models.ErrLessonNotFound
		}
		return fmt.Errorf("failed to update lesson: %w", err)
	}
	return nil
}

// ListLessonsNeedingManagedSync returns lessons whose managed state is
// mid-flight: upload without asset, asset without playback id, or a
// non-terminal provider status.
func (s *Store) ListLessonsNeedingManagedSync(ctx context.Context, limit int32) ([]models.Lesson, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(gsiSync),
		KeyConditionExpression: aws.String("gsi3pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: syncPartition},
		},
		Limit: aws.Int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list lessons needing sync: %w", err)
	}

	var lessons []models.Lesson
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &lessons); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lessons: %w", err)
	}
	return lessons, nil
}

// ListLessonsOnSelf pages through lessons served from self-hosted storage.
func (s *Store) ListLessonsOnSelf(ctx context.Context, limit int32, startKey map[string]types.AttributeValue) ([]models.Lesson, map[string]types.AttributeValue, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(gsiProvider),
		KeyConditionExpression: aws.String("gsi2pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: "PROVIDER#" + string(models.ProviderSelf)},
		},
		Limit: aws.Int32(limit),
	}
	if startKey != nil {
		input.ExclusiveStartKey = startKey
	}

	result, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list self-hosted lessons: %w", err)
	}

	var lessons []models.Lesson
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &lessons); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal lessons: %w", err)
	}
	return lessons, result.LastEvaluatedKey, nil
}

// ListLessonsByProvider pages lessons served by the given provider. The
// analytics sync job uses it to enumerate ready managed lessons.
func (s *Store) ListLessonsByProvider(ctx context.Context, p models.VideoProvider, limit int32, startKey map[string]types.AttributeValue) ([]models.Lesson, map[string]types.AttributeValue, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(gsiProvider),
		KeyConditionExpression: aws.String("gsi2pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: "PROVIDER#" + string(p)},
		},
		Limit: aws.Int32(limit),
	}
	if startKey != nil {
		input.ExclusiveStartKey = startKey
	}

	result, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list lessons by provider: %w", err)
	}

	var lessons []models.Lesson
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &lessons); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal lessons: %w", err)
	}
	return lessons, result.LastEvaluatedKey, nil
}

// RecordMigrationError stores the last migration failure on the lesson.
func (s *Store) RecordMigrationError(ctx context.Context, lessonID, errMsg string, attempt int) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: lessonPK(lessonID)},
			"sk": &types.AttributeValueMemberS{Value: lessonSK},
		},
		UpdateExpression: aws.String("SET migration.last_error = :err, migration.attempt_count = :attempt, updated_at = :updated_at"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":err":        &types.AttributeValueMemberS{Value: errMsg},
			":attempt":    &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", attempt)},
			":updated_at": &types.AttributeValueMemberS{Value: nowRFC3339()},
		},
		ConditionExpression: aws.String("attribute_exists(pk)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return models.ErrLessonNotFound
		}
		return fmt.Errorf("failed to record migration error: %w", err)
	}
	return nil
}

// applyLessonIndexes sets the provider and sync index attributes on a
// marshaled lesson item.
func applyLessonIndexes(item map[string]types.AttributeValue, p models.VideoProvider, m models.ManagedVideo, updatedAt string) {
	item["gsi2pk"] = &types.AttributeValueMemberS{Value: "PROVIDER#" + string(p)}
	if needsManagedSync(m) {
		item["gsi3pk"] = &types.AttributeValueMemberS{Value: syncPartition}
		item["gsi3sk"] = &types.AttributeValueMemberS{Value: updatedAt}
	}
}
