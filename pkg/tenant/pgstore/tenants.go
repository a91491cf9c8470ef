package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/courtlens/tenancy/pkg/pg"
	"github.com/courtlens/tenancy/pkg/secrets"
	"github.com/courtlens/tenancy/pkg/tenant"
)

const tenantColumns = `id, name, domain, subdomain, status, plan, settings, isolation,
	resources, billing, created_at, updated_at, created_by, parent_id, child_ids`

// Store is a tenant.Store on Postgres. Settings, isolation, resources and
// billing are JSONB columns. With a cipher, isolation connection strings
// are encrypted before they are written and decrypted on read.
type Store struct {
	db     DB
	cipher *secrets.Cipher
}

var _ tenant.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithCipher encrypts separate-database connection strings at rest.
func WithCipher(c *secrets.Cipher) Option {
	return func(s *Store) { s.cipher = c }
}

// New creates a Store over db, usually a *pgxpool.Pool.
func New(db DB, opts ...Option) *Store {
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Create(ctx context.Context, t *tenant.Tenant) error {
	if t == nil {
		return ErrNilTenant
	}
	row, err := s.encode(t)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO tenants (`+tenantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		row.args()...,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return tenant.ErrDomainTaken
		}
		return fmt.Errorf("pgstore: create tenant: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	t, err := s.scan(s.db.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("pgstore: get tenant %s: %w", id, err)
	}
	return t, nil
}

func (s *Store) GetByDomain(ctx context.Context, domain, subdomain string) (*tenant.Tenant, error) {
	t, err := s.scan(s.db.QueryRow(ctx, `
		SELECT `+tenantColumns+` FROM tenants
		WHERE lower(domain) = lower($1) AND lower(coalesce(subdomain, '')) = lower($2)`,
		domain, subdomain,
	))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("pgstore: get tenant by domain %q: %w", domain, err)
	}
	return t, nil
}

func (s *Store) Update(ctx context.Context, t *tenant.Tenant) error {
	if t == nil {
		return ErrNilTenant
	}
	row, err := s.encode(t)
	if err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE tenants SET
			name = $2, domain = $3, subdomain = $4, status = $5, plan = $6,
			settings = $7, isolation = $8, resources = $9, billing = $10,
			created_at = $11, updated_at = $12, created_by = $13, parent_id = $14, child_ids = $15
		WHERE id = $1`,
		row.args()...,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return tenant.ErrDomainTaken
		}
		return fmt.Errorf("pgstore: update tenant %s: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return tenant.ErrTenantNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("pgstore: delete tenant %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return tenant.ErrTenantNotFound
	}
	return nil
}

func (s *Store) ListChildren(ctx context.Context, id uuid.UUID) ([]*tenant.Tenant, error) {
	rows, err := s.db.Query(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE parent_id = $1 ORDER BY created_at`, id)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list children of %s: %w", id, err)
	}
	defer rows.Close()

	var children []*tenant.Tenant
	for rows.Next() {
		t, err := s.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("pgstore: scan child of %s: %w", id, err)
		}
		children = append(children, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: list children of %s: %w", id, err)
	}
	return children, nil
}

// tenantRow is the column representation of a tenant.
type tenantRow struct {
	ID        uuid.UUID
	Name      string
	Domain    string
	Subdomain *string
	Status    string
	Plan      string
	Settings  []byte
	Isolation []byte
	Resources []byte
	Billing   []byte
	CreatedAt time.Time
	UpdatedAt time.Time
	CreatedBy string
	ParentID  *uuid.UUID
	ChildIDs  []byte
}

func (r *tenantRow) args() []any {
	return []any{
		r.ID, r.Name, r.Domain, r.Subdomain, r.Status, r.Plan, r.Settings, r.Isolation,
		r.Resources, r.Billing, r.CreatedAt, r.UpdatedAt, r.CreatedBy, r.ParentID, r.ChildIDs,
	}
}

func (r *tenantRow) dest() []any {
	return []any{
		&r.ID, &r.Name, &r.Domain, &r.Subdomain, &r.Status, &r.Plan, &r.Settings, &r.Isolation,
		&r.Resources, &r.Billing, &r.CreatedAt, &r.UpdatedAt, &r.CreatedBy, &r.ParentID, &r.ChildIDs,
	}
}

func (s *Store) encode(t *tenant.Tenant) (*tenantRow, error) {
	iso := t.Isolation
	if s.cipher != nil && iso.Database.ConnectionString != "" && !secrets.IsEncrypted(iso.Database.ConnectionString) {
		enc, err := s.cipher.Encrypt(t.ID, iso.Database.ConnectionString)
		if err != nil {
			return nil, fmt.Errorf("pgstore: encrypt connection string of %s: %w", t.ID, err)
		}
		iso.Database.ConnectionString = enc
	}

	row := &tenantRow{
		ID:        t.ID,
		Name:      t.Name,
		Domain:    t.Domain,
		Status:    string(t.Status),
		Plan:      string(t.Plan),
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
		CreatedBy: t.CreatedBy,
		ParentID:  t.ParentID,
	}
	if t.Subdomain != "" {
		sub := t.Subdomain
		row.Subdomain = &sub
	}

	childIDs := t.ChildIDs
	if childIDs == nil {
		childIDs = []uuid.UUID{}
	}
	docs := []struct {
		dst *[]byte
		src any
	}{
		{&row.Settings, t.Settings},
		{&row.Isolation, iso},
		{&row.Resources, t.Resources},
		{&row.Billing, t.Billing},
		{&row.ChildIDs, childIDs},
	}
	for _, d := range docs {
		data, err := json.Marshal(d.src)
		if err != nil {
			return nil, fmt.Errorf("pgstore: encode tenant %s: %w", t.ID, err)
		}
		*d.dst = data
	}
	return row, nil
}

func (s *Store) scan(row pgx.Row) (*tenant.Tenant, error) {
	var r tenantRow
	if err := row.Scan(r.dest()...); err != nil {
		return nil, err
	}

	t := &tenant.Tenant{
		ID:        r.ID,
		Name:      r.Name,
		Domain:    r.Domain,
		Status:    tenant.Status(r.Status),
		Plan:      tenant.Plan(r.Plan),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		CreatedBy: r.CreatedBy,
		ParentID:  r.ParentID,
	}
	if r.Subdomain != nil {
		t.Subdomain = *r.Subdomain
	}

	docs := []struct {
		src []byte
		dst any
	}{
		{r.Settings, &t.Settings},
		{r.Isolation, &t.Isolation},
		{r.Resources, &t.Resources},
		{r.Billing, &t.Billing},
		{r.ChildIDs, &t.ChildIDs},
	}
	for _, d := range docs {
		if len(d.src) == 0 {
			continue
		}
		if err := json.Unmarshal(d.src, d.dst); err != nil {
			return nil, fmt.Errorf("decode tenant %s: %w", r.ID, err)
		}
	}
	if t.ChildIDs == nil {
		t.ChildIDs = []uuid.UUID{}
	}

	if s.cipher != nil && t.Isolation.Database.ConnectionString != "" {
		plain, err := s.cipher.Decrypt(t.ID, t.Isolation.Database.ConnectionString)
		if err != nil {
			return nil, fmt.Errorf("decrypt connection string of %s: %w", r.ID, err)
		}
		t.Isolation.Database.ConnectionString = plain
	}
	return t, nil
}
