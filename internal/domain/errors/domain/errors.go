// Package domain provides domain-specific error definitions and utilities.
package domain

import "errors"

// Batch-related errors.
var (
	ErrBatchNotFound     = errors.New("image batch not found")
	ErrBatchTerminal     = errors.New("image batch is already in a terminal state")
	ErrBatchNotRetryable = errors.New("image batch has no failed images or no retries left")
	ErrAllUploadsFailed  = errors.New("no image in the batch could be uploaded")
)

// Image-related errors.
var (
	ErrImageNotFound   = errors.New("game image not found")
	ErrImageNotInBatch = errors.New("game image does not belong to the batch")
)

// Vector and search errors.
var (
	ErrVectorNotFound      = errors.New("game vector not found")
	ErrInvalidSearchMethod = errors.New("search method is invalid")
	ErrEmptySearchQuery    = errors.New("search query cannot be empty")
)

// Queue-related errors.
var (
	ErrQueueUnavailable = errors.New("processing queue is unavailable")
	ErrJobNotFound      = errors.New("processing job not found")
	ErrInvalidJob       = errors.New("processing job payload is invalid")
)

// General domain errors.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)
