package pgstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/courtlens/tenancy/pkg/pg"
	"github.com/courtlens/tenancy/pkg/provisioning"
)

// Records is a provisioning.RecordStore. The record is kept as one JSONB
// document; status and timestamps are copied into columns for queries.
type Records struct {
	db DB
}

var _ provisioning.RecordStore = (*Records)(nil)

func NewRecords(db DB) *Records {
	return &Records{db: db}
}

func (s *Records) CreateRecord(ctx context.Context, r *provisioning.Record) error {
	if r == nil {
		return ErrNilRecord
	}
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("pgstore: encode provisioning record %s: %w", r.ID, err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO tenant_provisioning (id, tenant_id, status, started_at, updated_at, record)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.TenantID, string(r.Status), r.StartedAt, r.UpdatedAt, doc,
	)
	if err != nil {
		return fmt.Errorf("pgstore: create provisioning record %s: %w", r.ID, err)
	}
	return nil
}

func (s *Records) UpdateRecord(ctx context.Context, r *provisioning.Record) error {
	if r == nil {
		return ErrNilRecord
	}
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("pgstore: encode provisioning record %s: %w", r.ID, err)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE tenant_provisioning SET status = $2, updated_at = $3, record = $4
		WHERE id = $1`,
		r.ID, string(r.Status), r.UpdatedAt, doc,
	)
	if err != nil {
		return fmt.Errorf("pgstore: update provisioning record %s: %w", r.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return provisioning.ErrRecordNotFound
	}
	return nil
}

func (s *Records) Record(ctx context.Context, id uuid.UUID) (*provisioning.Record, error) {
	return scanRecord(s.db.QueryRow(ctx, `SELECT record FROM tenant_provisioning WHERE id = $1`, id))
}

func (s *Records) LatestRecord(ctx context.Context, tenantID uuid.UUID) (*provisioning.Record, error) {
	return scanRecord(s.db.QueryRow(ctx, `
		SELECT record FROM tenant_provisioning
		WHERE tenant_id = $1
		ORDER BY started_at DESC
		LIMIT 1`,
		tenantID,
	))
}

func scanRecord(row pgx.Row) (*provisioning.Record, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if pg.IsNotFoundError(err) {
			return nil, provisioning.ErrRecordNotFound
		}
		return nil, fmt.Errorf("pgstore: get provisioning record: %w", err)
	}
	var r provisioning.Record
	if err := json.Unmarshal(doc, &r); err != nil {
		return nil, fmt.Errorf("pgstore: decode provisioning record: %w", err)
	}
	return &r, nil
}
