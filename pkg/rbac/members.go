package rbac

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrMemberNotFound is returned when a user has no membership in a tenant.
var ErrMemberNotFound = errors.New("rbac.member_not_found")

// MemberStore looks up tenant memberships.
type MemberStore interface {
	Member(ctx context.Context, tenantID uuid.UUID, userID string) (*Member, error)
}

// MemberDirectory is a MemberStore whose memberships can be managed.
// RemoveMember returns ErrMemberNotFound for unknown memberships.
type MemberDirectory interface {
	MemberStore
	Members(ctx context.Context, tenantID uuid.UUID) ([]Member, error)
	PutMember(ctx context.Context, m Member) error
	RemoveMember(ctx context.Context, tenantID uuid.UUID, userID string) error
}

var _ MemberDirectory = (*MemoryMembers)(nil)

// MemoryMembers is a mutex-guarded MemberStore.
type MemoryMembers struct {
	mu      sync.RWMutex
	members map[uuid.UUID]map[string]Member
}

func NewMemoryMembers() *MemoryMembers {
	return &MemoryMembers{members: make(map[uuid.UUID]map[string]Member)}
}

// Put adds or replaces a membership.
func (s *MemoryMembers) Put(m Member) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byUser, ok := s.members[m.TenantID]
	if !ok {
		byUser = make(map[string]Member)
		s.members[m.TenantID] = byUser
	}
	m.Roles = slices.Clone(m.Roles)
	byUser[m.UserID] = m
}

// Remove deletes a membership. It reports whether one existed.
func (s *MemoryMembers) Remove(tenantID uuid.UUID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[tenantID][userID]; !ok {
		return false
	}
	delete(s.members[tenantID], userID)
	return true
}

func (s *MemoryMembers) Member(_ context.Context, tenantID uuid.UUID, userID string) (*Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[tenantID][userID]
	if !ok {
		return nil, ErrMemberNotFound
	}
	m.Roles = slices.Clone(m.Roles)
	return &m, nil
}

// Members lists the tenant's memberships ordered by user id.
func (s *MemoryMembers) Members(_ context.Context, tenantID uuid.UUID) ([]Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Member, 0, len(s.members[tenantID]))
	for _, m := range s.members[tenantID] {
		m.Roles = slices.Clone(m.Roles)
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b Member) int { return strings.Compare(a.UserID, b.UserID) })
	return out, nil
}

func (s *MemoryMembers) PutMember(_ context.Context, m Member) error {
	s.Put(m)
	return nil
}

func (s *MemoryMembers) RemoveMember(_ context.Context, tenantID uuid.UUID, userID string) error {
	if !s.Remove(tenantID, userID) {
		return ErrMemberNotFound
	}
	return nil
}
