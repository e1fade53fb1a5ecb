package store

// schema is applied once at startup: the service owns and creates its own
// tables (no external migration tool is wired in), plus the pgvector
// extension used by the persistent Vector Index backend
// (internal/vectorindex/postgres.go).
const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS receipts (
	id                       BIGSERIAL PRIMARY KEY,
	vendor                   TEXT NOT NULL,
	vendor_normalized        TEXT NOT NULL,
	ts                       TIMESTAMPTZ NOT NULL,
	total_amount             NUMERIC(14,2) NOT NULL,
	tax_amount               NUMERIC(14,2) NOT NULL,
	currency                 TEXT NOT NULL,
	category                 TEXT NOT NULL DEFAULT '',
	payment_method           TEXT NOT NULL DEFAULT '',
	receipt_number           TEXT NOT NULL DEFAULT '',
	image_ref                TEXT NOT NULL DEFAULT '',
	flag_duplicate           BOOLEAN NOT NULL DEFAULT FALSE,
	flag_suspicious_category BOOLEAN NOT NULL DEFAULT FALSE,
	flag_missing_vat         BOOLEAN NOT NULL DEFAULT FALSE,
	flag_math_error          BOOLEAN NOT NULL DEFAULT FALSE,
	created_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
	modified_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_receipts_vendor_norm ON receipts (vendor_normalized);
CREATE INDEX IF NOT EXISTS idx_receipts_category ON receipts (category);
CREATE INDEX IF NOT EXISTS idx_receipts_ts ON receipts (ts DESC, id DESC);

CREATE TABLE IF NOT EXISTS line_items (
	id           BIGSERIAL PRIMARY KEY,
	receipt_id   BIGINT NOT NULL REFERENCES receipts(id) ON DELETE CASCADE,
	description  TEXT NOT NULL,
	quantity     INTEGER NOT NULL DEFAULT 1,
	unit_price   NUMERIC(14,2) NOT NULL,
	line_total   NUMERIC(14,2) NOT NULL,
	vat_percent  NUMERIC(5,2)
);

CREATE INDEX IF NOT EXISTS idx_line_items_receipt ON line_items (receipt_id);
`
