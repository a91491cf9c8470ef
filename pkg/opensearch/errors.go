package opensearch

import "errors"

var (
	ErrConnectionFailed  = errors.New("opensearch connection failed")
	ErrHealthcheckFailed = errors.New("opensearch healthcheck failed")

	// ErrBulkFailed wraps a rejected bulk request or per-item failures.
	ErrBulkFailed = errors.New("opensearch bulk indexing failed")
)
