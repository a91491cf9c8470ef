// Package opensearch connects to OpenSearch and bulk-indexes tenant
// access logs.
//
// New builds a client from Config and checks the cluster with
// Healthcheck, which doubles as a readiness check. AccessLogWriter is an
// accesslog.BatchWriter that writes each batch with one _bulk request
// into daily indices:
//
//	client, err := opensearch.New(ctx, cfg.OpenSearch)
//	if err != nil {
//		return err
//	}
//	w := opensearch.NewAccessLogWriter(client, cfg.OpenSearch.AccessIndex)
//	sink := accesslog.NewAsyncWriter(w, accesslog.AsyncOptions{}, log)
package opensearch
