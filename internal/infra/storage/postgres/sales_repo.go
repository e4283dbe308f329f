package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/demandcast/internal/core/domain"
	"github.com/vietddude/demandcast/internal/core/errs"
)

// SalesRepo implements storage.SalesRepository using PostgreSQL.
type SalesRepo struct {
	db *sqlx.DB
}

// NewSalesRepo creates a new PostgreSQL sales repository.
func NewSalesRepo(db *sqlx.DB) *SalesRepo {
	return &SalesRepo{db: db}
}

const fetchSalesQuery = `
SELECT sale_date, product, quantity, avg_temperature, promotion
FROM sales
WHERE sale_date >= $1
ORDER BY sale_date, product`

// FetchSales returns records on or after since, oldest first.
func (r *SalesRepo) FetchSales(ctx context.Context, since time.Time) ([]domain.SaleRecord, error) {
	var rows []domain.SaleRecord
	if err := r.db.SelectContext(ctx, &rows, fetchSalesQuery, since); err != nil {
		return nil, errs.Database("failed to fetch sales", errs.WithCause(err),
			errs.WithContext(map[string]any{"since": since.Format(time.DateOnly)}))
	}
	return rows, nil
}

const fetchProductsQuery = `
SELECT name FROM products
UNION
SELECT DISTINCT product FROM sales
ORDER BY 1`

// FetchProducts returns the distinct product names.
func (r *SalesRepo) FetchProducts(ctx context.Context) ([]string, error) {
	var names []string
	if err := r.db.SelectContext(ctx, &names, fetchProductsQuery); err != nil {
		return nil, errs.Database("failed to fetch products", errs.WithCause(err))
	}
	return names, nil
}

// Ping checks connectivity.
func (r *SalesRepo) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sales database: %w", err)
	}
	return nil
}
