package models

// VideoProvider identifies which backend serves a lesson's video.
type VideoProvider string

const (
	ProviderSelf    VideoProvider = "self"
	ProviderManaged VideoProvider = "managed"
	ProviderNone    VideoProvider = "none"
)

// ManagedStatus is the lifecycle state reported by the managed provider.
type ManagedStatus string

const (
	ManagedPreparing  ManagedStatus = "preparing"
	ManagedProcessing ManagedStatus = "processing"
	ManagedReady      ManagedStatus = "ready"
	ManagedErrored    ManagedStatus = "errored"
)

// Rank orders managed states so reconciliation never regresses a lesson.
// Terminal states rank equal so duplicate deliveries stay idempotent.
func (s ManagedStatus) Rank() int {
	switch s {
	case ManagedPreparing:
		return 1
	case ManagedProcessing:
		return 2
	case ManagedReady, ManagedErrored:
		return 3
	}
	return 0
}

// AssetStatus is the lifecycle state of a self-hosted video asset.
type AssetStatus string

const (
	AssetProcessing AssetStatus = "processing"
	AssetRetrying   AssetStatus = "retrying"
	AssetReady      AssetStatus = "ready"
	AssetFailed     AssetStatus = "failed"
)

// IsValid returns true if the status is a known AssetStatus.
func (s AssetStatus) IsValid() bool {
	switch s {
	case AssetProcessing, AssetRetrying, AssetReady, AssetFailed:
		return true
	}
	return false
}

// MaxProcessingAttempts caps transcode retries; hitting the cap fails the asset.
const MaxProcessingAttempts = 3

// ManagedVideo holds the managed-provider fields stored on a lesson.
type ManagedVideo struct {
	UploadID   string        `dynamodbav:"upload_id,omitempty" json:"uploadId,omitempty"`
	AssetID    string        `dynamodbav:"asset_id,omitempty" json:"assetId,omitempty"`
	PlaybackID string        `dynamodbav:"playback_id,omitempty" json:"playbackId,omitempty"`
	Status     ManagedStatus `dynamodbav:"status,omitempty" json:"status,omitempty"`
	Error      string        `dynamodbav:"error,omitempty" json:"error,omitempty"`
	CreatedAt  string        `dynamodbav:"created_at,omitempty" json:"createdAt,omitempty"`
}

// MigrationState tracks a lesson's self-to-managed migration bookkeeping.
type MigrationState struct {
	AttemptCount   int    `dynamodbav:"attempt_count,omitempty" json:"attemptCount,omitempty"`
	LastError      string `dynamodbav:"last_error,omitempty" json:"lastError,omitempty"`
	KeptSelfBackup bool   `dynamodbav:"kept_self_backup,omitempty" json:"keptSelfBackup,omitempty"`
}

// Lesson carries the video fields this service owns. Course metadata and the
// rest of the lesson record belong to the platform backend.
type Lesson struct {
	PK     string `dynamodbav:"pk"`
	SK     string `dynamodbav:"sk"`
	GSI1PK string `dynamodbav:"gsi1pk,omitempty"`
	GSI1SK string `dynamodbav:"gsi1sk,omitempty"`

	ID              string         `dynamodbav:"lesson_id" json:"lessonId"`
	CourseID        string         `dynamodbav:"course_id" json:"courseId"`
	Title           string         `dynamodbav:"title,omitempty" json:"title,omitempty"`
	DurationSeconds float64        `dynamodbav:"duration_seconds,omitempty" json:"durationSeconds,omitempty"`
	VideoProvider   VideoProvider  `dynamodbav:"video_provider,omitempty" json:"videoProvider,omitempty"`
	VideoURL        string         `dynamodbav:"video_url,omitempty" json:"videoUrl,omitempty"`
	HLSURL          string         `dynamodbav:"hls_url,omitempty" json:"hlsUrl,omitempty"`
	ObjectKey       string         `dynamodbav:"object_key,omitempty" json:"objectKey,omitempty"`
	Managed         ManagedVideo   `dynamodbav:"managed,omitempty" json:"managed,omitempty"`
	Migration       MigrationState `dynamodbav:"migration,omitempty" json:"migration,omitempty"`
	ThumbnailURL    string         `dynamodbav:"thumbnail_url,omitempty" json:"thumbnailUrl,omitempty"`
	AllowDownload   bool           `dynamodbav:"allow_download,omitempty" json:"allowDownload,omitempty"`
	UpdatedAt       string         `dynamodbav:"updated_at" json:"updatedAt"`
	Version         int64          `dynamodbav:"version" json:"-"`
}

// HasSelfVideo reports whether any self-hosted video field is populated.
func (l *Lesson) HasSelfVideo() bool {
	return l.VideoURL != "" || l.ObjectKey != "" || l.HLSURL != ""
}

// VideoAsset is one ingested original on the self-hosted path.
type VideoAsset struct {
	PK     string `dynamodbav:"pk"`
	SK     string `dynamodbav:"sk"`
	GSI1PK string `dynamodbav:"gsi1pk,omitempty"`
	GSI1SK string `dynamodbav:"gsi1sk,omitempty"`

	ID                    string      `dynamodbav:"asset_id" json:"assetId"`
	LessonID              string      `dynamodbav:"lesson_id" json:"lessonId"`
	UploaderID            string      `dynamodbav:"uploader_id" json:"uploaderId"`
	ObjectKey             string      `dynamodbav:"object_key" json:"objectKey"`
	StorageURL            string      `dynamodbav:"storage_url" json:"storageUrl"`
	HLSURL                string      `dynamodbav:"hls_url,omitempty" json:"hlsUrl,omitempty"`
	SizeBytes             int64       `dynamodbav:"size_bytes" json:"sizeBytes"`
	ContentHash           string      `dynamodbav:"content_hash,omitempty" json:"contentHash,omitempty"`
	Status                AssetStatus `dynamodbav:"status" json:"status"`
	ProcessingAttempts    int         `dynamodbav:"processing_attempts" json:"processingAttempts"`
	ProcessingError       string      `dynamodbav:"processing_error,omitempty" json:"processingError,omitempty"`
	ProcessingStartedAt   string      `dynamodbav:"processing_started_at,omitempty" json:"processingStartedAt,omitempty"`
	ProcessingCompletedAt string      `dynamodbav:"processing_completed_at,omitempty" json:"processingCompletedAt,omitempty"`
	CreatedAt             string      `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt             string      `dynamodbav:"updated_at" json:"updatedAt"`
}

// TranscodeJob is the SQS message handed from ingest to the worker.
type TranscodeJob struct {
	LessonID  string `json:"lessonId"`
	AssetID   string `json:"assetId"`
	ObjectKey string `json:"objectKey"`
	Bucket    string `json:"bucket"`
	Filename  string `json:"filename"`
	Attempt   int    `json:"attempt"`
}

// Validate checks that the transcode job has all required fields.
func (j *TranscodeJob) Validate() error {
	if j.LessonID == "" {
		return ErrJobParseFailed
	}
	if j.AssetID == "" {
		return ErrJobParseFailed
	}
	if j.ObjectKey == "" {
		return ErrJobParseFailed
	}
	if j.Bucket == "" {
		return ErrJobParseFailed
	}
	return nil
}
