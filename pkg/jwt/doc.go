// Package jwt reads claims from bearer tokens without verifying them.
//
// Tenant and user resolution only need routing hints from the token;
// signature checks belong to the authentication layer that runs before or
// after resolution. Decode wraps golang-jwt's unverified parser and
// Lookup picks the first present claim from a list of aliases:
//
//	claims, err := jwt.FromRequest(r)
//	if err == nil {
//		tenantID, _ := jwt.Lookup(claims, "tenant_id", "tid")
//	}
package jwt
