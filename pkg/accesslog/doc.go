// Package accesslog records tenant-scoped request entries.
//
// The tenant middleware writes one Entry per resolved request to a Sink.
// SlogSink logs entries; AsyncWriter batches them to a BatchWriter such as
// the OpenSearch bulk indexer in pkg/opensearch. Multi combines sinks.
//
//	osw := opensearch.NewAccessLogWriter(client, "tenant-access")
//	aw := accesslog.NewAsyncWriter(osw, accesslog.AsyncOptions{}, log)
//	defer aw.Close(ctx)
//	sink := accesslog.Multi(accesslog.NewSlogSink(log), aw)
package accesslog
