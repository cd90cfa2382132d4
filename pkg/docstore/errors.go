package docstore

import "errors"

var (
	// ErrInvalidConfig indicates the store was constructed with missing or
	// invalid configuration.
	ErrInvalidConfig = errors.New("docstore: invalid config")

	// ErrDocumentNotFound indicates no document exists under the key.
	ErrDocumentNotFound = errors.New("docstore: document not found")

	// ErrUploadFailed wraps storage-backend upload failures.
	ErrUploadFailed = errors.New("docstore: upload failed")
)
