// Package rbac supplies tenant user and permission lookups for the tenant
// context builder.
//
// Roles are loaded once from a RoleSource (in memory or a YAML file) and
// their effective permissions, inherited ones included, are precomputed by
// NewAuthorizer. Provider combines the Authorizer with a MemberStore and
// implements tenant.UserProvider and tenant.PermissionProvider:
//
//	authz, err := rbac.NewAuthorizer(ctx, rbac.NewYAMLRoleSource("roles.yaml"))
//	provider := rbac.NewProvider(authz, members)
//	builder := tenant.NewBuilder(store,
//		tenant.WithUserProvider(provider),
//		tenant.WithPermissionProvider(provider),
//	)
//
// Permissions are "resource:action" strings. "*" grants everything and
// "documents:*" grants every documents action.
package rbac
