// Package pgstore persists tenants, provisioning records and templates in
// Postgres through pgx.
//
// Apply the embedded goose migrations before use:
//
//	if err := pgstore.Migrate(ctx, pool, "schema_migrations", log); err != nil { ... }
//	store := pgstore.New(pool, pgstore.WithCipher(cipher))
//
// The (domain, subdomain) pair is unique case-insensitively, with a
// missing subdomain treated as empty; a violation maps to
// tenant.ErrDomainTaken.
package pgstore
