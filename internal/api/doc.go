// Package api exposes the tenancy service over HTTP.
//
// NewRouter mounts three groups of routes on a chi router:
//
//	/health/live, /health/ready, /metrics    infrastructure
//	/tenants, /provisioning                  admin API, guarded by X-Admin-Token
//	/app/...                                 tenant-scoped routes behind tenant.Middleware
//
// Admin handlers call the provisioning service; error values are mapped
// to JSON {"error","message"} bodies with a matching status code.
package api
