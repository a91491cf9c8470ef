package tenant

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Finder is the read side of a Store, used by resolution strategies.
type Finder interface {
	// Get returns ErrTenantNotFound when no tenant has the id.
	Get(ctx context.Context, id uuid.UUID) (*Tenant, error)

	// GetByDomain looks up by domain and subdomain. An empty subdomain
	// matches only tenants registered without one.
	GetByDomain(ctx context.Context, domain, subdomain string) (*Tenant, error)
}

// Store persists tenant records.
type Store interface {
	Finder

	// Create returns ErrDomainTaken when the domain pair is already used.
	Create(ctx context.Context, t *Tenant) error

	// Update replaces the stored record. Returns ErrTenantNotFound for
	// unknown ids.
	Update(ctx context.Context, t *Tenant) error

	Delete(ctx context.Context, id uuid.UUID) error

	// ListChildren returns the tenants whose ParentID is id.
	ListChildren(ctx context.Context, id uuid.UUID) ([]*Tenant, error)
}

// MemoryStore is a mutex-guarded Store for tests and single-process
// development. Records are cloned on the way in and out.
type MemoryStore struct {
	mu       sync.RWMutex
	byID     map[uuid.UUID]*Tenant
	byDomain map[string]uuid.UUID
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[uuid.UUID]*Tenant),
		byDomain: make(map[string]uuid.UUID),
	}
}

func domainKey(domain, subdomain string) string {
	return strings.ToLower(subdomain) + "|" + strings.ToLower(domain)
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.byID[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	return t.Clone()
}

func (s *MemoryStore) GetByDomain(_ context.Context, domain, subdomain string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byDomain[domainKey(domain, subdomain)]
	if !ok {
		return nil, ErrTenantNotFound
	}
	return s.byID[id].Clone()
}

func (s *MemoryStore) Create(_ context.Context, t *Tenant) error {
	cp, err := t.Clone()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := domainKey(t.Domain, t.Subdomain)
	if _, taken := s.byDomain[key]; taken {
		return ErrDomainTaken
	}
	s.byID[t.ID] = cp
	s.byDomain[key] = t.ID
	return nil
}

func (s *MemoryStore) Update(_ context.Context, t *Tenant) error {
	cp, err := t.Clone()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.byID[t.ID]
	if !ok {
		return ErrTenantNotFound
	}

	oldKey, newKey := domainKey(old.Domain, old.Subdomain), domainKey(t.Domain, t.Subdomain)
	if oldKey != newKey {
		if _, taken := s.byDomain[newKey]; taken {
			return ErrDomainTaken
		}
		delete(s.byDomain, oldKey)
		s.byDomain[newKey] = t.ID
	}
	s.byID[t.ID] = cp
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok {
		return ErrTenantNotFound
	}
	delete(s.byDomain, domainKey(t.Domain, t.Subdomain))
	delete(s.byID, id)
	return nil
}

func (s *MemoryStore) ListChildren(_ context.Context, id uuid.UUID) ([]*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var children []*Tenant
	for _, t := range s.byID {
		if t.ParentID == nil || *t.ParentID != id {
			continue
		}
		cp, err := t.Clone()
		if err != nil {
			return nil, err
		}
		children = append(children, cp)
	}
	return children, nil
}
