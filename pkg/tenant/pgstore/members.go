package pgstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/courtlens/tenancy/pkg/pg"
	"github.com/courtlens/tenancy/pkg/rbac"
	"github.com/courtlens/tenancy/pkg/tenant"
)

// Members is an rbac.MemberDirectory over the tenant_members table.
// Memberships are removed with their tenant.
type Members struct {
	db DB
}

var _ rbac.MemberDirectory = (*Members)(nil)

func NewMembers(db DB) *Members {
	return &Members{db: db}
}

const memberColumns = `tenant_id, user_id, email, roles`

func (s *Members) Member(ctx context.Context, tenantID uuid.UUID, userID string) (*rbac.Member, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+memberColumns+` FROM tenant_members
		WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID,
	)
	m, err := scanMember(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, rbac.ErrMemberNotFound
		}
		return nil, fmt.Errorf("pgstore: get member %s of tenant %s: %w", userID, tenantID, err)
	}
	return m, nil
}

func (s *Members) Members(ctx context.Context, tenantID uuid.UUID) ([]rbac.Member, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+memberColumns+` FROM tenant_members
		WHERE tenant_id = $1
		ORDER BY user_id`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list members of tenant %s: %w", tenantID, err)
	}
	defer rows.Close()

	out := []rbac.Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("pgstore: scan member: %w", err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: list members of tenant %s: %w", tenantID, err)
	}
	return out, nil
}

// PutMember inserts or replaces a membership. A missing tenant maps to
// tenant.ErrTenantNotFound through the foreign key.
func (s *Members) PutMember(ctx context.Context, m rbac.Member) error {
	roles := m.Roles
	if roles == nil {
		roles = []string{}
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO tenant_members (tenant_id, user_id, email, roles)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, user_id)
		DO UPDATE SET email = EXCLUDED.email, roles = EXCLUDED.roles, updated_at = now()`,
		m.TenantID, m.UserID, m.Email, roles,
	)
	if err != nil {
		if pg.IsForeignKeyViolationError(err) {
			return fmt.Errorf("pgstore: put member %s of tenant %s: %w", m.UserID, m.TenantID, tenant.ErrTenantNotFound)
		}
		return fmt.Errorf("pgstore: put member %s of tenant %s: %w", m.UserID, m.TenantID, err)
	}
	return nil
}

func (s *Members) RemoveMember(ctx context.Context, tenantID uuid.UUID, userID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM tenant_members WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID)
	if err != nil {
		return fmt.Errorf("pgstore: remove member %s of tenant %s: %w", userID, tenantID, err)
	}
	if tag.RowsAffected() == 0 {
		return rbac.ErrMemberNotFound
	}
	return nil
}

func scanMember(row pgx.Row) (*rbac.Member, error) {
	var m rbac.Member
	if err := row.Scan(&m.TenantID, &m.UserID, &m.Email, &m.Roles); err != nil {
		return nil, err
	}
	if m.Roles == nil {
		m.Roles = []string{}
	}
	return &m, nil
}
