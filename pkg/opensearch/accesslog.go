package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/courtlens/tenancy/pkg/accesslog"
)

// AccessLogWriter indexes access-log batches with the _bulk API.
// *opensearch.Client satisfies the transport.
type AccessLogWriter struct {
	transport opensearchapi.Transport
	prefix    string
}

var _ accesslog.BatchWriter = (*AccessLogWriter)(nil)

// NewAccessLogWriter writes into "<prefix>-YYYY.MM.DD" indices.
func NewAccessLogWriter(transport opensearchapi.Transport, prefix string) *AccessLogWriter {
	if prefix == "" {
		prefix = "tenant-access"
	}
	return &AccessLogWriter{transport: transport, prefix: prefix}
}

// Index returns the daily index an entry belongs to.
func (w *AccessLogWriter) Index(e accesslog.Entry) string {
	return w.prefix + "-" + e.Time.UTC().Format("2006.01.02")
}

type bulkAction struct {
	Index struct {
		Index string `json:"_index"`
	} `json:"index"`
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Status int `json:"status"`
		Error  struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// WriteBatch sends entries in one bulk request. Per-item failures are
// reported with the count and the first reason.
func (w *AccessLogWriter) WriteBatch(ctx context.Context, entries []accesslog.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, e := range entries {
		var action bulkAction
		action.Index.Index = w.Index(e)
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("%w: encode action: %w", ErrBulkFailed, err)
		}
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("%w: encode entry: %w", ErrBulkFailed, err)
		}
	}

	res, err := opensearchapi.BulkRequest{Body: &body}.Do(ctx, w.transport)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBulkFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("%w: %s", ErrBulkFailed, res.Status())
	}

	var out bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrBulkFailed, err)
	}
	if !out.Errors {
		return nil
	}

	failed := 0
	var first string
	for _, item := range out.Items {
		for _, result := range item {
			if result.Status < 300 {
				continue
			}
			failed++
			if first == "" {
				first = strings.TrimSpace(result.Error.Type + ": " + result.Error.Reason)
			}
		}
	}
	return fmt.Errorf("%w: %d of %d entries rejected (%s)", ErrBulkFailed, failed, len(entries), first)
}
