package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/courtlens/tenancy/pkg/jwt"
	"github.com/courtlens/tenancy/pkg/logger"
)

// Strategy names accepted by StrategiesByName.
const (
	StrategySubdomain  = "subdomain"
	StrategyDomain     = "domain"
	StrategyHeader     = "header"
	StrategyJWTClaim   = "jwt_claim"
	StrategyQueryParam = "query_param"
	StrategyPathParam  = "path_param"
)

var (
	tenantHeaders     = []string{"X-Organization-ID", "Organization-ID", "X-Tenant-ID", "Tenant-ID"}
	tenantQueryParams = []string{"organization_id", "organizationId", "tenant_id", "tenantId"}
	tenantClaims      = []string{"tenant_id", "tid"}
	tenantPathPattern = regexp.MustCompile(`^/tenant/([^/]+)`)
)

// Resolution is the outcome of one strategy. The zero value means the
// strategy found nothing. Tenant is nil when the identifier was found
// but the record could not be loaded.
type Resolution struct {
	TenantID string
	Tenant   *Tenant
	Strategy string
}

// Empty reports whether the resolution carries no identifier.
func (r Resolution) Empty() bool {
	return r.TenantID == ""
}

// Strategy extracts a tenant from a request.
type Strategy interface {
	Name() string

	// Resolve returns the zero Resolution when the request carries nothing
	// this strategy understands. Errors are treated as "no result" by Chain.
	Resolve(r *http.Request) (Resolution, error)
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc struct {
	StrategyName string
	Fn           func(r *http.Request) (Resolution, error)
}

func (f StrategyFunc) Name() string { return f.StrategyName }

func (f StrategyFunc) Resolve(r *http.Request) (Resolution, error) { return f.Fn(r) }

// SubdomainStrategy resolves "acme.app.example.com" to the tenant with
// subdomain "acme" on domain "app.example.com". Hosts with fewer than
// three labels never match.
type SubdomainStrategy struct {
	finder Finder
}

func NewSubdomainStrategy(finder Finder) *SubdomainStrategy {
	return &SubdomainStrategy{finder: finder}
}

func (s *SubdomainStrategy) Name() string { return StrategySubdomain }

func (s *SubdomainStrategy) Resolve(r *http.Request) (Resolution, error) {
	labels := strings.Split(hostname(r), ".")
	if len(labels) < 3 || labels[0] == "" {
		return Resolution{}, nil
	}
	sub, domain := labels[0], strings.Join(labels[1:], ".")
	return lookupDomain(r.Context(), s.finder, domain, sub)
}

// DomainStrategy resolves a tenant registered on the bare request host.
type DomainStrategy struct {
	finder Finder
}

func NewDomainStrategy(finder Finder) *DomainStrategy {
	return &DomainStrategy{finder: finder}
}

func (s *DomainStrategy) Name() string { return StrategyDomain }

func (s *DomainStrategy) Resolve(r *http.Request) (Resolution, error) {
	host := hostname(r)
	if host == "" {
		return Resolution{}, nil
	}
	return lookupDomain(r.Context(), s.finder, host, "")
}

// HeaderStrategy reads the tenant id from the first present of
// X-Organization-ID, Organization-ID, X-Tenant-ID and Tenant-ID.
type HeaderStrategy struct {
	finder Finder
}

func NewHeaderStrategy(finder Finder) *HeaderStrategy {
	return &HeaderStrategy{finder: finder}
}

func (s *HeaderStrategy) Name() string { return StrategyHeader }

func (s *HeaderStrategy) Resolve(r *http.Request) (Resolution, error) {
	for _, h := range tenantHeaders {
		if v := strings.TrimSpace(r.Header.Get(h)); v != "" {
			return lookupID(r.Context(), s.finder, v), nil
		}
	}
	return Resolution{}, nil
}

// JWTClaimStrategy reads the tenant_id (or tid) claim of the bearer token.
// The signature is not verified here.
type JWTClaimStrategy struct {
	finder Finder
}

func NewJWTClaimStrategy(finder Finder) *JWTClaimStrategy {
	return &JWTClaimStrategy{finder: finder}
}

func (s *JWTClaimStrategy) Name() string { return StrategyJWTClaim }

func (s *JWTClaimStrategy) Resolve(r *http.Request) (Resolution, error) {
	claims, err := jwt.FromRequest(r)
	if errors.Is(err, jwt.ErrNoToken) {
		return Resolution{}, nil
	}
	if err != nil {
		return Resolution{}, err
	}
	id, ok := jwt.Lookup(claims, tenantClaims...)
	if !ok {
		return Resolution{}, nil
	}
	return lookupID(r.Context(), s.finder, id), nil
}

// QueryParamStrategy reads organization_id, organizationId, tenant_id or
// tenantId from the query string.
type QueryParamStrategy struct {
	finder Finder
}

func NewQueryParamStrategy(finder Finder) *QueryParamStrategy {
	return &QueryParamStrategy{finder: finder}
}

func (s *QueryParamStrategy) Name() string { return StrategyQueryParam }

func (s *QueryParamStrategy) Resolve(r *http.Request) (Resolution, error) {
	q := r.URL.Query()
	for _, p := range tenantQueryParams {
		if v := strings.TrimSpace(q.Get(p)); v != "" {
			return lookupID(r.Context(), s.finder, v), nil
		}
	}
	return Resolution{}, nil
}

// PathParamStrategy matches paths of the form /tenant/<id>/...
type PathParamStrategy struct {
	finder Finder
}

func NewPathParamStrategy(finder Finder) *PathParamStrategy {
	return &PathParamStrategy{finder: finder}
}

func (s *PathParamStrategy) Name() string { return StrategyPathParam }

func (s *PathParamStrategy) Resolve(r *http.Request) (Resolution, error) {
	m := tenantPathPattern.FindStringSubmatch(r.URL.Path)
	if m == nil {
		return Resolution{}, nil
	}
	return lookupID(r.Context(), s.finder, m[1]), nil
}

// StrategiesByName builds strategies in the given order.
func StrategiesByName(finder Finder, names ...string) ([]Strategy, error) {
	out := make([]Strategy, 0, len(names))
	for _, name := range names {
		switch strings.TrimSpace(name) {
		case StrategySubdomain:
			out = append(out, NewSubdomainStrategy(finder))
		case StrategyDomain:
			out = append(out, NewDomainStrategy(finder))
		case StrategyHeader:
			out = append(out, NewHeaderStrategy(finder))
		case StrategyJWTClaim:
			out = append(out, NewJWTClaimStrategy(finder))
		case StrategyQueryParam:
			out = append(out, NewQueryParamStrategy(finder))
		case StrategyPathParam:
			out = append(out, NewPathParamStrategy(finder))
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
		}
	}
	return out, nil
}

// DefaultStrategies returns subdomain, header and jwt_claim, in that order.
func DefaultStrategies(finder Finder) []Strategy {
	return []Strategy{
		NewSubdomainStrategy(finder),
		NewHeaderStrategy(finder),
		NewJWTClaimStrategy(finder),
	}
}

// Chain tries strategies in order and returns the first non-empty
// Resolution. Later strategies are not invoked once one succeeds.
type Chain struct {
	strategies []Strategy
	logger     *slog.Logger
	observer   Observer
}

func NewChain(strategies ...Strategy) *Chain {
	return &Chain{
		strategies: strategies,
		logger:     logger.Discard(),
		observer:   NopObserver{},
	}
}

// Resolve returns the winning Resolution, or false when no strategy matched.
// Strategy errors and panics are logged at debug level and skipped.
func (c *Chain) Resolve(r *http.Request) (Resolution, bool) {
	start := time.Now()
	defer func() { c.observer.ResolveDuration(time.Since(start)) }()

	for _, s := range c.strategies {
		res, err := safeResolve(s, r)
		if err != nil {
			c.logger.DebugContext(r.Context(), "tenant strategy failed",
				logger.Strategy(s.Name()),
				logger.Error(err),
			)
			c.observer.StrategyResult(s.Name(), false)
			continue
		}
		if res.Empty() {
			c.observer.StrategyResult(s.Name(), false)
			continue
		}
		c.observer.StrategyResult(s.Name(), true)
		res.Strategy = s.Name()
		return res, true
	}
	return Resolution{}, false
}

// safeResolve turns a strategy panic into an error.
func safeResolve(s Strategy, r *http.Request) (res Resolution, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = Resolution{}, fmt.Errorf("tenant: strategy %s panicked: %v", s.Name(), p)
		}
	}()
	return s.Resolve(r)
}

func hostname(r *http.Request) string {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(strings.TrimSuffix(host, "."))
}

func lookupDomain(ctx context.Context, finder Finder, domain, subdomain string) (Resolution, error) {
	t, err := finder.GetByDomain(ctx, domain, subdomain)
	if errors.Is(err, ErrTenantNotFound) {
		return Resolution{}, nil
	}
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{TenantID: t.ID.String(), Tenant: t}, nil
}

// lookupID keeps the identifier even when the record cannot be loaded.
func lookupID(ctx context.Context, finder Finder, raw string) Resolution {
	id, err := uuid.Parse(raw)
	if err != nil {
		return Resolution{TenantID: raw}
	}
	t, err := finder.Get(ctx, id)
	if err != nil {
		return Resolution{TenantID: id.String()}
	}
	return Resolution{TenantID: t.ID.String(), Tenant: t}
}
