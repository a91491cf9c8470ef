// Package clientip extracts the caller address recorded in tenant access
// logs when the service sits behind a load balancer.
package clientip

import (
	"net"
	"net/http"
	"strings"
)

// FromRequest returns the caller IP in canonical form. Sources are tried
// in order: the RFC 7239 Forwarded header, X-Forwarded-For, X-Real-IP and
// finally RemoteAddr. Within a list the first parseable address wins.
// It returns "" when no source holds a valid address.
func FromRequest(r *http.Request) string {
	for elem := range strings.SplitSeq(r.Header.Get("Forwarded"), ",") {
		if ip := forwardedFor(elem); ip != "" {
			return ip
		}
	}
	for addr := range strings.SplitSeq(r.Header.Get("X-Forwarded-For"), ",") {
		if ip := canonical(addr); ip != "" {
			return ip
		}
	}
	if ip := canonical(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return canonical(stripPort(r.RemoteAddr))
}

// forwardedFor reads the for= pair of one Forwarded element, e.g.
// `for="[2001:db8::1]:4711";proto=https`.
func forwardedFor(elem string) string {
	for pair := range strings.SplitSeq(elem, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || !strings.EqualFold(key, "for") {
			continue
		}
		return canonical(stripPort(strings.Trim(value, `"`)))
	}
	return ""
}

func stripPort(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]")
}

func canonical(s string) string {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return ""
	}
	return ip.String()
}
