package pgstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/courtlens/tenancy/pkg/pg"
	"github.com/courtlens/tenancy/pkg/provisioning"
	"github.com/courtlens/tenancy/pkg/tenant"
)

// Templates is a provisioning.TemplateStore backed by tenant_templates.
type Templates struct {
	db DB
}

var _ provisioning.TemplateStore = (*Templates)(nil)

func NewTemplates(db DB) *Templates {
	return &Templates{db: db}
}

func (s *Templates) Template(ctx context.Context, id string) (*tenant.Template, error) {
	var doc []byte
	err := s.db.QueryRow(ctx, `SELECT template FROM tenant_templates WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: %q", provisioning.ErrTemplateNotFound, id)
		}
		return nil, fmt.Errorf("pgstore: get template %q: %w", id, err)
	}
	var t tenant.Template
	if err := json.Unmarshal(doc, &t); err != nil {
		return nil, fmt.Errorf("pgstore: decode template %q: %w", id, err)
	}
	return &t, nil
}

// Save inserts or replaces a template, used to seed the table from the
// YAML template files.
func (s *Templates) Save(ctx context.Context, t tenant.Template) error {
	doc, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("pgstore: encode template %q: %w", t.ID, err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO tenant_templates (id, name, template, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, template = EXCLUDED.template, updated_at = now()`,
		t.ID, t.Name, doc,
	)
	if err != nil {
		return fmt.Errorf("pgstore: save template %q: %w", t.ID, err)
	}
	return nil
}
