package rbac

import (
	"slices"
	"strings"
)

// Match reports whether granted covers required. "*" covers everything;
// "documents:*" covers "documents:read" and "documents:share:external".
func Match(granted, required string) bool {
	if granted == "*" || granted == required {
		return true
	}
	prefix, ok := strings.CutSuffix(granted, "*")
	if !ok {
		return false
	}
	return strings.HasSuffix(prefix, ":") && strings.HasPrefix(required, prefix)
}

// Has reports whether any permission in granted covers required.
func Has(granted []string, required string) bool {
	for _, g := range granted {
		if Match(g, required) {
			return true
		}
	}
	return false
}

// HasAll reports whether every required permission is covered.
func HasAll(granted []string, required ...string) bool {
	for _, r := range required {
		if !Has(granted, r) {
			return false
		}
	}
	return true
}

// Normalize trims, drops empties, sorts and deduplicates. A "*" grant
// collapses the set to ["*"].
func Normalize(perms []string) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if p == "*" {
			return []string{"*"}
		}
		out = append(out, p)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
