package models

import "errors"

// Sentinel errors for video lifecycle operations. Callers classify with
// errors.Is; the HTTP layer maps each group to a status code.
var (
	// Input validation
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidContainer = errors.New("invalid video container")
	ErrFileTooLarge     = errors.New("file exceeds size limit")
	ErrFilenameTooLong  = errors.New("filename too long")

	// Lookup
	ErrNotFound       = errors.New("not found")
	ErrLessonNotFound = errors.New("lesson not found")
	ErrAssetNotFound  = errors.New("video asset not found")

	// Authorization
	ErrPermissionDenied = errors.New("permission denied")

	// Managed provider
	ErrProviderUnavailable = errors.New("video provider unavailable")
	ErrProviderRejected    = errors.New("video provider rejected request")

	// Object storage
	ErrStorageUnavailable = errors.New("object storage unavailable")
	ErrStorageRejected    = errors.New("object storage rejected request")

	// Transcoding
	ErrTranscoderMissing = errors.New("transcoder binary not available")
	ErrTranscoderFailed  = errors.New("transcoder execution failed")

	// State machine
	ErrConflictState = errors.New("conflicting state transition")

	// Worker plumbing
	ErrJobParseFailed  = errors.New("failed to parse job")
	ErrContextCanceled = errors.New("context canceled")
)
