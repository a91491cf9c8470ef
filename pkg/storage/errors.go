package storage

import "errors"

var (
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrFailedToLoadConfig = errors.New("failed to load AWS config")
	ErrInvalidBucket      = errors.New("invalid bucket name")
	ErrInvalidPath        = errors.New("invalid path")

	// S3 error classification
	ErrBucketNotFound     = errors.New("bucket not found")
	ErrBucketTaken        = errors.New("bucket name owned by another account")
	ErrAccessDenied       = errors.New("access denied")
	ErrRequestTimeout     = errors.New("request timed out")
	ErrServiceUnavailable = errors.New("service temporarily unavailable")

	ErrOperationTimeout  = errors.New("operation timed out")
	ErrOperationCanceled = errors.New("operation canceled")
	ErrPaginatorNil      = errors.New("paginator factory returned nil")
)
