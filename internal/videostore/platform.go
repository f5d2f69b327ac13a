package videostore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/brightclass/video-service/pkg/models"
)

// Platform-owned records the video service reads for authorization and
// rollups: courses, enrollments, and per-lesson progress.

const (
	courseSK       = "META"
	enrollPrefix   = "ENROLL#"
	progressPrefix = "PROGRESS#"
	accessPrefix   = "ACCESS#"
)

func userPK(userID string) string { return "USER#" + userID }

// GetCourse retrieves a course's ownership fields.
func (s *Store) GetCourse(ctx context.Context, courseID string) (*models.Course, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: coursePK(courseID)},
			"sk": &types.AttributeValueMemberS{Value: courseSK},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	if result.Item == nil {
		return nil, models.ErrNotFound
	}

	var course models.Course
	if err := attributevalue.UnmarshalMap(result.Item, &course); err != nil {
		return nil, fmt.Errorf("failed to unmarshal course: %w", err)
	}
	return &course, nil
}

// GetEnrollment returns the user's enrollment in a course, or ErrNotFound.
func (s *Store) GetEnrollment(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: userPK(userID)},
			"sk": &types.AttributeValueMemberS{Value: enrollPrefix + courseID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}
	if result.Item == nil {
		return nil, models.ErrNotFound
	}

	var enrollment models.Enrollment
	if err := attributevalue.UnmarshalMap(result.Item, &enrollment); err != nil {
		return nil, fmt.Errorf("failed to unmarshal enrollment: %w", err)
	}
	return &enrollment, nil
}

// ListCoursesByTeacher returns the courses a teacher created.
func (s *Store) ListCoursesByTeacher(ctx context.Context, teacherID string) ([]models.Course, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(gsiCourse),
		KeyConditionExpression: aws.String("gsi1pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: "TEACHER#" + teacherID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}

	var courses []models.Course
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &courses); err != nil {
		return nil, fmt.Errorf("failed to unmarshal courses: %w", err)
	}
	return courses, nil
}

// ListLessonsByCourse returns the lessons of one course.
func (s *Store) ListLessonsByCourse(ctx context.Context, courseID string) ([]models.Lesson, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(gsiCourse),
		KeyConditionExpression: aws.String("gsi1pk = :pk AND begins_with(gsi1sk, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: coursePK(courseID)},
			":prefix": &types.AttributeValueMemberS{Value: "LESSON#"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list lessons: %w", err)
	}

	var lessons []models.Lesson
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &lessons); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lessons: %w", err)
	}
	return lessons, nil
}

// RecordAccess appends an authorization decision to the lesson's access log.
func (s *Store) RecordAccess(ctx context.Context, entry *models.AccessLogEntry) error {
	if entry.CreatedAt == "" {
		entry.CreatedAt = nowRFC3339()
	}
	entry.PK = lessonPK(entry.Resource)
	entry.SK = accessPrefix + entry.CreatedAt + "#" + entry.UserID

	item, err := attributevalue.MarshalMap(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal access entry: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to record access entry: %w", err)
	}
	return nil
}

// CountLessonProgress counts distinct users with non-zero progress on a
// lesson. The teacher dashboard falls back to this when no view sessions
// exist yet.
func (s *Store) CountLessonProgress(ctx context.Context, lessonID string) (int, error) {
	count := 0
	var startKey map[string]types.AttributeValue

	for {
		input := &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :prefix)"),
			FilterExpression:       aws.String("progress > :zero"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     &types.AttributeValueMemberS{Value: lessonPK(lessonID)},
				":prefix": &types.AttributeValueMemberS{Value: progressPrefix},
				":zero":   &types.AttributeValueMemberN{Value: "0"},
			},
			Select: types.SelectCount,
		}
		if startKey != nil {
			input.ExclusiveStartKey = startKey
		}

		result, err := s.client.Query(ctx, input)
		if err != nil {
			return 0, fmt.Errorf("failed to count lesson progress: %w", err)
		}
		count += int(result.Count)
		if result.LastEvaluatedKey == nil {
			break
		}
		startKey = result.LastEvaluatedKey
	}

	return count, nil
}
