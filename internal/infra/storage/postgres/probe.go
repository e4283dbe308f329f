package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Prober runs the diagnostic queries used by the database health check.
type Prober struct {
	db *sqlx.DB
}

// NewProber creates a Prober.
func NewProber(db *sqlx.DB) *Prober {
	return &Prober{db: db}
}

// Ping checks connectivity.
func (p *Prober) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// ActiveConnections counts server sessions on the current database.
func (p *Prober) ActiveConnections(ctx context.Context) (int, error) {
	var n int
	err := p.db.GetContext(ctx, &n,
		"SELECT count(*) FROM pg_stat_activity WHERE datname = current_database()")
	return n, err
}

// Version returns the server version string.
func (p *Prober) Version(ctx context.Context) (string, error) {
	var v string
	err := p.db.GetContext(ctx, &v, "SELECT version()")
	return v, err
}

// PoolStats reports open and in-use connections of the local pool.
func (p *Prober) PoolStats() (open, inUse int) {
	s := p.db.Stats()
	return s.OpenConnections, s.InUse
}
