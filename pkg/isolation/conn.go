package isolation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/courtlens/tenancy/pkg/pg"
	"github.com/courtlens/tenancy/pkg/tenant"
)

// Conn is a tenant-scoped database handle. Connection leases it to the
// caller; a Conn evicted from the pool stays open until the last lease is
// released.
type Conn struct {
	tenantID uuid.UUID
	pool     Pool
	// scoped transactions set app.current_tenant for row-level security.
	scoped bool
	owned  bool
	secure *Conn

	mu      sync.Mutex
	leases  int
	retired bool
	closed  bool
}

var _ tenant.Connection = (*Conn)(nil)

// TenantID returns the owning tenant.
func (c *Conn) TenantID() uuid.UUID { return c.tenantID }

// Pool returns the underlying pool. Queries on shared tables outside
// WithTx see no rows under row-level security.
func (c *Conn) Pool() Pool { return c.pool }

// Secure returns the schema connection of a hybrid tenant, or nil.
func (c *Conn) Secure() *Conn { return c.secure }

func (c *Conn) Ping(ctx context.Context) error {
	if err := c.pool.Ping(ctx); err != nil {
		return err
	}
	if c.secure != nil {
		return c.secure.Ping(ctx)
	}
	return nil
}

// WithTx runs fn in a transaction, committing when fn returns nil.
func (c *Conn) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return err
	}
	if c.scoped {
		if _, err := tx.Exec(ctx, "SELECT set_config('app.current_tenant', $1, true)", c.tenantID.String()); err != nil {
			return errors.Join(err, tx.Rollback(ctx))
		}
	}
	if err := fn(tx); err != nil {
		return errors.Join(err, tx.Rollback(ctx))
	}
	return tx.Commit(ctx)
}

// Release returns a lease taken by Service.Connection.
func (c *Conn) Release() {
	c.mu.Lock()
	if c.leases > 0 {
		c.leases--
	}
	closing := c.retired && c.leases == 0 && !c.closed
	if closing {
		c.closed = true
	}
	c.mu.Unlock()

	if closing {
		c.close()
	}
}

// acquire takes a lease. It fails once the Conn has left the pool.
func (c *Conn) acquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.retired {
		return false
	}
	c.leases++
	return true
}

// retire marks the Conn as evicted and closes it when no lease is held.
func (c *Conn) retire() {
	c.mu.Lock()
	c.retired = true
	closing := c.leases == 0 && !c.closed
	if closing {
		c.closed = true
	}
	c.mu.Unlock()

	if closing {
		c.close()
	}
}

func (c *Conn) close() {
	if c.owned {
		c.pool.Close()
	}
	if c.secure != nil {
		c.secure.close()
	}
}

// Connection leases the pooled connection for the tenant's isolation
// mode, opening it on first use. The caller must Release it.
func (s *Service) Connection(ctx context.Context, tc *tenant.Context) (tenant.Connection, error) {
	if tc == nil {
		return nil, ErrNilTenant
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}
	mode := tc.Isolation.Mode
	if mode == nil {
		return nil, ErrUnknownMode
	}

	key := tc.TenantID.String() + ":" + mode.String()
	for {
		c, err := s.conns.GetOrCreate(key, func() (*Conn, error) {
			v := &connOpener{ctx: ctx, s: s, id: tc.TenantID, db: tc.Isolation.Database}
			if err := mode.Accept(v); err != nil {
				return nil, err
			}
			return v.conn, nil
		})
		if err != nil {
			return nil, err
		}
		// An evicted Conn is gone from the pool; the next lookup opens a new one.
		if c.acquire() {
			return c, nil
		}
		if s.closed.Load() {
			return nil, ErrClosed
		}
	}
}

type connOpener struct {
	ctx  context.Context
	s    *Service
	id   uuid.UUID
	db   tenant.DatabaseConfig
	conn *Conn
}

func (o *connOpener) SharedDatabase() error {
	o.conn = &Conn{tenantID: o.id, pool: o.s.db, scoped: true}
	return nil
}

func (o *connOpener) SeparateSchema() error {
	schema := o.db.Schema
	if schema == "" {
		schema = schemaName(o.id)
	}
	c, err := o.schemaConn(schema)
	if err != nil {
		return err
	}
	o.conn = c
	return nil
}

func (o *connOpener) SeparateDatabase() error {
	if o.db.ConnectionString == "" {
		return ErrNoConnectionString
	}
	pool, err := o.s.open(o.ctx, o.db.ConnectionString)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	o.conn = &Conn{tenantID: o.id, pool: pool, owned: true}
	return nil
}

func (o *connOpener) Hybrid() error {
	schema := o.db.Schema
	if schema == "" {
		schema = secureSchema(o.id)
	}
	secure, err := o.schemaConn(schema)
	if err != nil {
		return err
	}
	o.conn = &Conn{tenantID: o.id, pool: o.s.db, scoped: true, secure: secure}
	return nil
}

func (o *connOpener) schemaConn(schema string) (*Conn, error) {
	pool, err := o.s.open(o.ctx, o.s.pgcfg.ConnectionString, pg.WithSearchPath(schema))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return &Conn{tenantID: o.id, pool: pool, owned: true}, nil
}
