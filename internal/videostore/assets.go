package videostore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/brightclass/video-service/pkg/models"
)

// LinkAssetToLesson creates the asset row and updates the lesson's video
// fields in one transaction, so readers never observe a half-linked upload.
func (s *Store) LinkAssetToLesson(ctx context.Context, lessonID string, asset *models.VideoAsset, update *LessonVideoUpdate) error {
	now := nowRFC3339()
	asset.PK = lessonPK(lessonID)
	asset.SK = assetPrefix + asset.ID
	asset.LessonID = lessonID
	if asset.CreatedAt == "" {
		asset.CreatedAt = now
	}
	asset.UpdatedAt = now

	assetItem, err := attributevalue.MarshalMap(asset)
	if err != nil {
		return fmt.Errorf("failed to marshal asset: %w", err)
	}

	values := map[string]types.AttributeValue{
		":updated_at": &types.AttributeValueMemberS{Value: now},
		":one":        &types.AttributeValueMemberN{Value: "1"},
		":provider":   &types.AttributeValueMemberS{Value: string(models.ProviderSelf)},
		":gsi2pk":     &types.AttributeValueMemberS{Value: "PROVIDER#" + string(models.ProviderSelf)},
	}
	expr := "SET updated_at = :updated_at, video_provider = :provider, gsi2pk = :gsi2pk"
	if update != nil {
		if update.ObjectKey != nil {
			expr += ", object_key = :object_key"
			values[":object_key"] = &types.AttributeValueMemberS{Value: *update.ObjectKey}
		}
		if update.VideoURL != nil {
			expr += ", video_url = :video_url"
			values[":video_url"] = &types.AttributeValueMemberS{Value: *update.VideoURL}
		}
	}
	expr += " ADD version :one"

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(s.tableName),
					Item:                assetItem,
					ConditionExpression: aws.String("attribute_not_exists(pk) OR attribute_not_exists(sk)"),
				},
			},
			{
				Update: &types.Update{
					TableName: aws.String(s.tableName),
					Key: map[string]types.AttributeValue{
						"pk": &types.AttributeValueMemberS{Value: lessonPK(lessonID)},
						"sk": &types.AttributeValueMemberS{Value: lessonSK},
					},
					UpdateExpression:          aws.String(expr),
					ExpressionAttributeValues: values,
					ConditionExpression:       aws.String("attribute_exists(pk)"),
				},
			},
		},
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			for _, reason := range canceled.CancellationReasons {
				if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
					return models.ErrLessonNotFound
				}
			}
		}
		return fmt.Errorf("failed to link asset to lesson: %w", err)
	}
	return nil
}

// GetAsset retrieves one video asset row.
func (s *Store) GetAsset(ctx context.Context, lessonID, assetID string) (*models.VideoAsset, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: lessonPK(lessonID)},
			"sk": &types.AttributeValueMemberS{Value: assetPrefix + assetID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	if result.Item == nil {
		return nil, models.ErrAssetNotFound
	}

	var asset models.VideoAsset
	if err := attributevalue.UnmarshalMap(result.Item, &asset); err != nil {
		return nil, fmt.Errorf("failed to unmarshal asset: %w", err)
	}
	return &asset, nil
}

// ListAssets returns all asset rows for a lesson.
func (s *Store) ListAssets(ctx context.Context, lessonID string) ([]models.VideoAsset, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: lessonPK(lessonID)},
			":prefix": &types.AttributeValueMemberS{Value: assetPrefix},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}

	var assets []models.VideoAsset
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &assets); err != nil {
		return nil, fmt.Errorf("failed to unmarshal assets: %w", err)
	}
	return assets, nil
}

// BeginAssetAttempt increments the attempt counter, marks the asset
// processing, and returns the new attempt number.
func (s *Store) BeginAssetAttempt(ctx context.Context, lessonID, assetID string) (int, error) {
	result, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: lessonPK(lessonID)},
			"sk": &types.AttributeValueMemberS{Value: assetPrefix + assetID},
		},
		UpdateExpression: aws.String(`
			SET #status = :status,
			    processing_started_at = :started_at,
			    updated_at = :updated_at
			ADD processing_attempts :one
		`),
		ExpressionAttributeNames: map[string]string{"#status": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":     &types.AttributeValueMemberS{Value: string(models.AssetProcessing)},
			":started_at": &types.AttributeValueMemberS{Value: nowRFC3339()},
			":updated_at": &types.AttributeValueMemberS{Value: nowRFC3339()},
			":one":        &types.AttributeValueMemberN{Value: "1"},
		},
		ConditionExpression: aws.String("attribute_exists(pk)"),
		ReturnValues:        types.ReturnValueAllNew,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return 0, models.ErrAssetNotFound
		}
		return 0, fmt.Errorf("failed to begin asset attempt: %w", err)
	}

	var asset models.VideoAsset
	if err := attributevalue.UnmarshalMap(result.Attributes, &asset); err != nil {
		return 0, fmt.Errorf("failed to unmarshal asset: %w", err)
	}
	return asset.ProcessingAttempts, nil
}

// CompleteAsset marks an asset ready with its HLS playlist URL.
func (s *Store) CompleteAsset(ctx context.Context, lessonID, assetID, hlsURL string) error {
	return s.updateAssetStatus(ctx, lessonID, assetID, models.AssetReady, hlsURL, "")
}

// MarkAssetRetrying records a failed attempt that will be retried.
func (s *Store) MarkAssetRetrying(ctx context.Context, lessonID, assetID, errMsg string) error {
	return s.updateAssetStatus(ctx, lessonID, assetID, models.AssetRetrying, "", errMsg)
}

// MarkAssetFailed records a terminal processing failure.
func (s *Store) MarkAssetFailed(ctx context.Context, lessonID, assetID, errMsg string) error {
	return s.updateAssetStatus(ctx, lessonID, assetID, models.AssetFailed, "", errMsg)
}

// CompleteAssetDegraded marks an asset ready without an HLS ladder (encoder
// unavailable); playback falls back to the signed original.
func (s *Store) CompleteAssetDegraded(ctx context.Context, lessonID, assetID string) error {
	return s.updateAssetStatus(ctx, lessonID, assetID, models.AssetReady, "", "")
}

func (s *Store) updateAssetStatus(ctx context.Context, lessonID, assetID string, status models.AssetStatus, hlsURL, errMsg string) error {
	now := nowRFC3339()
	expr := "SET #status = :status, updated_at = :updated_at"
	values := map[string]types.AttributeValue{
		":status":     &types.AttributeValueMemberS{Value: string(status)},
		":updated_at": &types.AttributeValueMemberS{Value: now},
	}
	if hlsURL != "" {
		expr += ", hls_url = :hls_url"
		values[":hls_url"] = &types.AttributeValueMemberS{Value: hlsURL}
	}
	if status == models.AssetReady || status == models.AssetFailed {
		expr += ", processing_completed_at = :completed_at"
		values[":completed_at"] = &types.AttributeValueMemberS{Value: now}
	}
	if errMsg != "" {
		expr += ", processing_error = :error"
		values[":error"] = &types.AttributeValueMemberS{Value: errMsg}
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: lessonPK(lessonID)},
			"sk": &types.AttributeValueMemberS{Value: assetPrefix + assetID},
		},
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  map[string]string{"#status": "status"},
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(pk)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return models.ErrAssetNotFound
		}
		return fmt.Errorf("failed to update asset status: %w", err)
	}
	return nil
}

// DeleteAssets removes every asset row for a lesson.
func (s *Store) DeleteAssets(ctx context.Context, lessonID string) error {
	assets, err := s.ListAssets(ctx, lessonID)
	if err != nil {
		return err
	}
	for _, asset := range assets {
		_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.tableName),
			Key: map[string]types.AttributeValue{
				"pk": &types.AttributeValueMemberS{Value: asset.PK},
				"sk": &types.AttributeValueMemberS{Value: asset.SK},
			},
		})
		if err != nil {
			return fmt.Errorf("failed to delete asset %s: %w", asset.ID, err)
		}
	}
	return nil
}
