package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/vietddude/demandcast/internal/core/errs"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestFetchSales(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSalesRepo(db)
	since := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"sale_date", "product", "quantity", "avg_temperature", "promotion"}).
		AddRow(since, "Croissant", 40, 22.5, 0).
		AddRow(since.AddDate(0, 0, 1), "Croissant", 60, 24.0, 1)
	mock.ExpectQuery(regexp.QuoteMeta("FROM sales")).WithArgs(since).WillReturnRows(rows)

	got, err := repo.FetchSales(context.Background(), since)
	if err != nil {
		t.Fatalf("FetchSales: %v", err)
	}
	if len(got) != 2 || got[1].Quantity != 60 || got[1].Promotion != 1 {
		t.Errorf("got %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestFetchSales_ErrorIsDatabaseCategory(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("FROM sales").WillReturnError(errors.New("relation does not exist"))

	_, err := NewSalesRepo(db).FetchSales(context.Background(), time.Now())
	e, ok := errs.As(err)
	if !ok || e.Category() != errs.CategoryDatabase {
		t.Fatalf("got %v", err)
	}
}

func TestFetchProducts(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("FROM products").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Cappuccino").AddRow("Croissant"))

	got, err := NewSalesRepo(db).FetchProducts(context.Background())
	if err != nil || len(got) != 2 || got[0] != "Cappuccino" {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestProber(t *testing.T) {
	db, mock := newMock(t)
	p := NewProber(db)

	mock.ExpectPing()
	mock.ExpectQuery("pg_stat_activity").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery("version").WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("PostgreSQL 16.2"))

	if err := p.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if n, err := p.ActiveConnections(context.Background()); err != nil || n != 7 {
		t.Errorf("active = %d, %v", n, err)
	}
	if v, err := p.Version(context.Background()); err != nil || v != "PostgreSQL 16.2" {
		t.Errorf("version = %q, %v", v, err)
	}
}

func TestNewDB_UnsupportedDriver(t *testing.T) {
	if _, err := NewDB(context.Background(), Config{Driver: "mysql"}); err == nil {
		t.Fatal("expected error")
	}
}
