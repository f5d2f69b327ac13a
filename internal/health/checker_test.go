package health

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type mockS3Client struct {
	err error
}

func (m *mockS3Client) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &s3.HeadBucketOutput{}, nil
}

type mockSQSClient struct {
	err error
}

func (m *mockSQSClient) GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.GetQueueAttributesOutput{}, nil
}

type mockDynamoClient struct {
	err error
}

func (m *mockDynamoClient) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &dynamodb.DescribeTableOutput{}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func fullConfig() *Config {
	return &Config{
		ServiceName:    "test-service",
		S3Client:       &mockS3Client{},
		S3Bucket:       "test-bucket",
		SQSClient:      &mockSQSClient{},
		SQSQueueURL:    "https://sqs.test",
		DynamoDBClient: &mockDynamoClient{},
		DynamoDBTable:  "test-table",
		Logger:         testLogger(),
		CacheTTL:       time.Second,
		CheckTimeout:   time.Second,
		DeepCheckLimit: time.Millisecond,
	}
}

func TestChecker_Check_Shallow(t *testing.T) {
	checker := NewChecker(DefaultConfig("test-service", testLogger()))

	status := checker.Check(context.Background(), false)

	if status.Status != "healthy" {
		t.Errorf("Status = %s, want healthy", status.Status)
	}
	if status.Service != "test-service" {
		t.Errorf("Service = %s, want test-service", status.Service)
	}
	if len(status.Checks) != 0 {
		t.Errorf("shallow check ran %d component checks, want 0", len(status.Checks))
	}
}

func TestChecker_Check_Deep_AllHealthy(t *testing.T) {
	checker := NewChecker(fullConfig())

	status := checker.Check(context.Background(), true)

	if status.Status != "healthy" {
		t.Errorf("Status = %s, want healthy", status.Status)
	}
	if len(status.Checks) != 3 {
		t.Errorf("Checks should have 3 entries, got %d", len(status.Checks))
	}
	for _, name := range []string{"s3", "sqs", "dynamodb"} {
		if status.Checks[name].Status != "healthy" {
			t.Errorf("%s check status = %s, want healthy", name, status.Checks[name].Status)
		}
	}
}

func TestChecker_Check_Deep_DependencyDown(t *testing.T) {
	config := fullConfig()
	config.DynamoDBClient = &mockDynamoClient{err: errors.New("table throttled")}
	checker := NewChecker(config)

	status := checker.Check(context.Background(), true)

	if status.Status != "degraded" {
		t.Errorf("Status = %s, want degraded", status.Status)
	}
	if status.Checks["dynamodb"].Status != "unhealthy" {
		t.Errorf("dynamodb check status = %s, want unhealthy", status.Checks["dynamodb"].Status)
	}
	if status.Checks["dynamodb"].Error != "table throttled" {
		t.Errorf("dynamodb check error = %s", status.Checks["dynamodb"].Error)
	}
	if status.Checks["s3"].Status != "healthy" {
		t.Errorf("s3 check status = %s, want healthy", status.Checks["s3"].Status)
	}
}

func TestChecker_Check_Caching(t *testing.T) {
	config := DefaultConfig("test-service", testLogger())
	config.CacheTTL = time.Hour
	checker := NewChecker(config)

	status1 := checker.Check(context.Background(), false)
	status2 := checker.Check(context.Background(), false)

	if status1.Timestamp != status2.Timestamp {
		t.Error("second shallow check should return the cached result")
	}
}

func TestChecker_CanPerformDeepCheck(t *testing.T) {
	checker := NewChecker(&Config{
		ServiceName:    "test-service",
		DeepCheckLimit: 50 * time.Millisecond,
	})

	if !checker.CanPerformDeepCheck() {
		t.Error("CanPerformDeepCheck() = false initially")
	}

	checker.RecordDeepCheck()
	if checker.CanPerformDeepCheck() {
		t.Error("CanPerformDeepCheck() = true immediately after recording")
	}

	time.Sleep(60 * time.Millisecond)
	if !checker.CanPerformDeepCheck() {
		t.Error("CanPerformDeepCheck() = false after limit passed")
	}
}

func TestChecker_Handler(t *testing.T) {
	checker := NewChecker(DefaultConfig("test-service", testLogger()))

	req := httptest.NewRequest("GET", "/health", nil)
	rr := httptest.NewRecorder()

	checker.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("Handler returned %d, want %d", rr.Code, http.StatusOK)
	}

	var status Status
	if err := json.NewDecoder(rr.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if status.Status != "healthy" {
		t.Errorf("Status = %s, want healthy", status.Status)
	}
}

func TestChecker_DeepHandler_RateLimited(t *testing.T) {
	config := fullConfig()
	config.DeepCheckLimit = time.Hour
	checker := NewChecker(config)

	checker.RecordDeepCheck()

	req := httptest.NewRequest("GET", "/health/deep", nil)
	rr := httptest.NewRecorder()

	checker.DeepHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("Handler returned %d, want %d", rr.Code, http.StatusTooManyRequests)
	}
	if rr.Header().Get("Retry-After") != "10" {
		t.Errorf("Retry-After = %s, want 10", rr.Header().Get("Retry-After"))
	}
}

func TestChecker_DeepHandler_Degraded(t *testing.T) {
	config := fullConfig()
	config.S3Client = &mockS3Client{err: errors.New("bucket unreachable")}
	checker := NewChecker(config)

	req := httptest.NewRequest("GET", "/health/deep", nil)
	rr := httptest.NewRecorder()

	checker.DeepHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Handler returned %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}
