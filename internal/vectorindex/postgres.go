package vectorindex

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/localledger/receipt-backend/internal/logging"
)

var log = logging.New("vectorindex")

// Postgres is the persistent Vector Index backend: embeddings
// stored as a pgvector `vector` column against the pool shared with the
// Relational Store, so the relational database and the vector index are two
// artifacts by schema rather than by file. Ranks with the pgvector
// cosine-distance operator.
type Postgres struct {
	pool *pgxpool.Pool
	dim  int
}

// NewPostgres wraps an existing pool (normally store.PGStore.Pool()) and
// ensures the receipt_embeddings table exists for the configured dimension.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool, dim int) (*Postgres, error) {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS receipt_embeddings (
	receipt_id BIGINT PRIMARY KEY,
	document   TEXT NOT NULL,
	embedding  vector(%d) NOT NULL,
	vendor     TEXT NOT NULL DEFAULT '',
	category   TEXT NOT NULL DEFAULT ''
);`, dim)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("create receipt_embeddings table: %w", err)
	}
	log.Printf("persistent vector index ready (dim=%d)", dim)
	return &Postgres{pool: pool, dim: dim}, nil
}

func (p *Postgres) Add(ctx context.Context, doc Document) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO receipt_embeddings (receipt_id, document, embedding, vendor, category)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (receipt_id) DO UPDATE SET
	document = EXCLUDED.document,
	embedding = EXCLUDED.embedding,
	vendor = EXCLUDED.vendor,
	category = EXCLUDED.category`,
		doc.ReceiptID, doc.Text, pgvector.NewVector(doc.Embedding), doc.Metadata.Vendor, doc.Metadata.Category)
	if err != nil {
		return fmt.Errorf("upsert embedding for receipt %d: %w", doc.ReceiptID, err)
	}
	return nil
}

func (p *Postgres) Remove(ctx context.Context, receiptID int64) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM receipt_embeddings WHERE receipt_id = $1`, receiptID); err != nil {
		return fmt.Errorf("remove embedding for receipt %d: %w", receiptID, err)
	}
	return nil
}

// Search ranks by pgvector cosine distance (<=>), converting to the same
// similarity scale CosineSimilarity produces (1 - distance), and applies the
// equality filter in SQL before ranking.
func (p *Postgres) Search(ctx context.Context, queryEmbedding []float32, k int, filter Filter) ([]SearchResult, error) {
	q := pgvector.NewVector(queryEmbedding)

	query := `
SELECT receipt_id, 1 - (embedding <=> $1) AS similarity
FROM receipt_embeddings
WHERE ($2 = '' OR vendor = $2)
  AND ($3 = '' OR category = $3)
ORDER BY embedding <=> $1 ASC, receipt_id DESC
LIMIT $4`

	rows, err := p.pool.Query(ctx, query, q, filter.Vendor, filter.Category, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ReceiptID, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Postgres) Close() error { return nil }
