// Package storage provisions per-tenant object storage on Amazon S3 and
// S3-compatible services.
//
// Buckets creates buckets idempotently, blocks public access, enables
// default server-side encryption and maintains a marker object carrying
// the owning tenant under each tenant path. DeletePrefix empties a
// tenant path when the tenant is removed.
//
//	b, err := storage.New(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	if err := b.EnsureBucket(ctx, "tenant-storage"); err != nil {
//		return err
//	}
//	n, err := b.DeletePrefix(ctx, "tenant-storage", "tenants/"+id)
package storage
