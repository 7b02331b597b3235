package common

import "fmt"

// ServiceError ties a failed service operation to its cause. The cause
// stays reachable through errors.Is and errors.As.
type ServiceError struct {
	Operation string
	Cause     error
}

func (e ServiceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Cause)
}

func (e ServiceError) Unwrap() error {
	return e.Cause
}

// WrapServiceError annotates err with the operation that failed. A nil
// err passes through, so callers can wrap return values unconditionally.
func WrapServiceError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return ServiceError{
		Operation: operation,
		Cause:     err,
	}
}

// Operation names used in ServiceError messages, shared across services
// so the same failure reads the same everywhere.
const (
	OpCreateBatch       = "create image batch"
	OpRetrieveBatch     = "retrieve image batch"
	OpUpdateBatch       = "update image batch"
	OpRetryBatch        = "retry image batch"
	OpSaveImage         = "save game image"
	OpRetrieveImage     = "retrieve game image"
	OpUpdateImage       = "update game image"
	OpUploadImage       = "upload image file"
	OpDownloadImage     = "download image file"
	OpEnqueueJob        = "enqueue processing job"
	OpRecordProgress    = "record batch progress"
	OpAnalyzeImage      = "analyze image"
	OpGenerateEmbedding = "generate embedding"
	OpStoreVector       = "store vector"
	OpSearchVectors     = "search vectors"
	OpPublishBatchEvent = "publish batch event"
	OpReconcileImages   = "reconcile stale images"
)
