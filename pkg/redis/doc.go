// Package redis connects go-redis clients and provides the key helpers
// shared by the tenant record cache and cache isolation.
//
// Connect retries until the server answers PING. Healthcheck adapts a
// client to a readiness check. DeletePrefix removes a tenant's keys with
// SCAN and DEL.
package redis
