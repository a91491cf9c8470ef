// Package tenant resolves, validates and scopes the tenant of every HTTP
// request in a multi-tenant service.
//
// Resolution runs a Chain of Strategy values in configured order; the
// first strategy that finds an identifier wins and strategy errors are
// skipped. Six strategies are provided: subdomain, domain, header,
// jwt_claim, query_param and path_param. StrategiesByName builds them from
// configuration.
//
// Middleware rejects requests whose tenant cannot be resolved (400, when
// an active tenant is required) or is not active (403). Otherwise it gets
// the per-(tenant, user) Context from a ContextCache, building it with a
// ContextBuilder on miss, and attaches the tenant, the Context and an
// isolated Connection to the request context:
//
//	store := tenant.NewMemoryStore()
//	cache := tenant.NewContextCache(tenant.WithTTL(5 * time.Minute))
//	mw := tenant.Middleware(store,
//		tenant.WithContextCache(cache),
//		tenant.WithConnectionProvider(isolationService),
//		tenant.WithAccessLog(accesslog.NewSlogSink(log)),
//	)
//
// Handlers read the results with FromContext, ContextFromContext and
// ConnectionFromContext. Any code that updates a tenant must call
// ContextCache.Invalidate, because Contexts carry copies of the tenant's
// isolation and resource settings.
package tenant
