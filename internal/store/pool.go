// Package store is the Relational Store: durable typed storage
// of receipts and line items, plus the three aggregations, on a pgx/v5
// connection pool (DATABASE_URL / DB_HOST-family env resolution), holding
// a receipt+line-item model rather than a single flat invoices table.
package store

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/localledger/receipt-backend/internal/logging"
	"github.com/localledger/receipt-backend/internal/models"
)

var log = logging.New("store")

// Filter is the optional filter set accepted by ListReceipts and the
// aggregations.
type Filter = models.ListFilter

// Store is the Relational Store capability set used by the rest of the
// service. A single pgx-backed implementation satisfies it; the interface
// exists so the Ingestor and Query Planner can be exercised against a fake
// in tests without a live Postgres instance.
type Store interface {
	InsertReceipt(ctx context.Context, r *models.Receipt) (int64, error)
	UpdateReceipt(ctx context.Context, r *models.Receipt) error
	DeleteReceipt(ctx context.Context, id int64) error
	GetReceipt(ctx context.Context, id int64) (*models.Receipt, error)
	ListReceipts(ctx context.Context, f Filter) ([]*models.Receipt, error)
	FindDuplicateCandidates(ctx context.Context, vendorNormalized string, day time.Time, total decimal.Decimal, excludeID int64) ([]*models.Receipt, error)

	MonthlyTotals(ctx context.Context, f Filter) ([]models.MonthlyTotal, error)
	VendorTotals(ctx context.Context, f Filter) ([]models.VendorTotal, error)
	CategoryTotals(ctx context.Context, f Filter) ([]models.CategoryTotal, error)
}

// PGStore implements Store against PostgreSQL via pgx/v5.
type PGStore struct {
	pool *pgxpool.Pool
}

// Open resolves a connection string (DATABASE_URL, else storePath, else
// DB_HOST/DB_PORT/DB_USER/...), applies the schema, and returns a ready
// PGStore.
func Open(ctx context.Context, storePath string) (*PGStore, error) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		databaseURL = storePath
	}
	if databaseURL == "" {
		host := os.Getenv("DB_HOST")
		user := os.Getenv("DB_USER")
		dbname := os.Getenv("DB_NAME")
		if host != "" && user != "" && dbname != "" {
			port := os.Getenv("DB_PORT")
			if port == "" {
				port = "5432"
			}
			databaseURL = fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=disable",
				user, os.Getenv("DB_PASSWORD"), host, port, dbname)
		}
	}
	if databaseURL == "" {
		return nil, fmt.Errorf("no database configuration found (set DATABASE_URL, storePath, or DB_HOST/DB_USER/DB_NAME)")
	}

	pgCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	pgCfg.MaxConns = 10
	pgCfg.MinConns = 2
	pgCfg.MaxConnLifetime = time.Hour
	pgCfg.MaxConnIdleTime = 30 * time.Minute
	pgCfg.HealthCheckPeriod = time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := pool.Exec(connectCtx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	log.Printf("connection pool initialized and schema applied")
	return &PGStore{pool: pool}, nil
}

func (s *PGStore) Close() {
	s.pool.Close()
	log.Printf("connection pool closed")
}

// Pool exposes the underlying pool so the persistent Vector Index backend
// can share the same Postgres connection (two artifacts, the
// relational database and the vector-index directory — when both live in
// the same Postgres instance they are two artifacts by schema, not by file).
func (s *PGStore) Pool() *pgxpool.Pool { return s.pool }
