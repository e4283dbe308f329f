package storage

import (
	"context"
	"time"

	"github.com/vietddude/demandcast/internal/core/domain"
)

// SalesRepository reads historical sales from the relational source.
type SalesRepository interface {
	// FetchSales returns records on or after since, oldest first
	FetchSales(ctx context.Context, since time.Time) ([]domain.SaleRecord, error)

	// FetchProducts returns the distinct product names
	FetchProducts(ctx context.Context) ([]string, error)

	// Ping checks connectivity
	Ping(ctx context.Context) error
}
