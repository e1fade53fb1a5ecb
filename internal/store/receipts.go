package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/localledger/receipt-backend/internal/models"
)

// InsertReceipt writes a receipt and its line items atomically — one
// transaction per receipt+line-items, the granularity the requires.
func (s *PGStore) InsertReceipt(ctx context.Context, r *models.Receipt) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	row := tx.QueryRow(ctx, `
		INSERT INTO receipts (
			vendor, vendor_normalized, ts, total_amount, tax_amount, currency,
			category, payment_method, receipt_number, image_ref,
			flag_duplicate, flag_suspicious_category, flag_missing_vat, flag_math_error,
			created_at, modified_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$15)
		RETURNING id`,
		r.Vendor, models.NormalizeVendor(r.Vendor), r.Timestamp, r.TotalAmount, r.TaxAmount, r.Currency,
		r.Category, r.PaymentMethod, r.ReceiptNumber, r.ImageRef,
		r.Flags.Duplicate, r.Flags.SuspiciousCategory, r.Flags.MissingVAT, r.Flags.MathError,
		now,
	)

	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("insert receipt: %w", err)
	}

	if err := insertLineItems(ctx, tx, id, r.Items); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	r.ID = id
	r.CreatedAt = now
	r.ModifiedAt = now
	return id, nil
}

// UpdateReceipt is a full-replacement update (the Lifecycle): line
// items are replaced wholesale rather than diffed.
func (s *PGStore) UpdateReceipt(ctx context.Context, r *models.Receipt) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	tag, err := tx.Exec(ctx, `
		UPDATE receipts SET
			vendor=$1, vendor_normalized=$2, ts=$3, total_amount=$4, tax_amount=$5, currency=$6,
			category=$7, payment_method=$8, receipt_number=$9, image_ref=$10,
			flag_duplicate=$11, flag_suspicious_category=$12, flag_missing_vat=$13, flag_math_error=$14,
			modified_at=$15
		WHERE id=$16`,
		r.Vendor, models.NormalizeVendor(r.Vendor), r.Timestamp, r.TotalAmount, r.TaxAmount, r.Currency,
		r.Category, r.PaymentMethod, r.ReceiptNumber, r.ImageRef,
		r.Flags.Duplicate, r.Flags.SuspiciousCategory, r.Flags.MissingVAT, r.Flags.MathError,
		now, r.ID,
	)
	if err != nil {
		return fmt.Errorf("update receipt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	if _, err := tx.Exec(ctx, `DELETE FROM line_items WHERE receipt_id=$1`, r.ID); err != nil {
		return fmt.Errorf("clear line items: %w", err)
	}
	if err := insertLineItems(ctx, tx, r.ID, r.Items); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	r.ModifiedAt = now
	return nil
}

// DeleteReceipt removes a receipt; ON DELETE CASCADE evicts its line items.
func (s *PGStore) DeleteReceipt(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM receipts WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete receipt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func insertLineItems(ctx context.Context, tx pgx.Tx, receiptID int64, items []models.LineItem) error {
	for _, item := range items {
		if item.Quantity == 0 {
			item.Quantity = 1
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO line_items (receipt_id, description, quantity, unit_price, line_total, vat_percent)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			receiptID, item.Description, item.Quantity, item.UnitPrice, item.LineTotal, item.VATPercent,
		)
		if err != nil {
			return fmt.Errorf("insert line item: %w", err)
		}
	}
	return nil
}

const receiptColumns = `
	id, vendor, ts, total_amount, tax_amount, currency, category, payment_method,
	receipt_number, image_ref, flag_duplicate, flag_suspicious_category,
	flag_missing_vat, flag_math_error, created_at, modified_at`

func scanReceipt(row pgx.Row) (*models.Receipt, error) {
	var r models.Receipt
	err := row.Scan(
		&r.ID, &r.Vendor, &r.Timestamp, &r.TotalAmount, &r.TaxAmount, &r.Currency, &r.Category, &r.PaymentMethod,
		&r.ReceiptNumber, &r.ImageRef, &r.Flags.Duplicate, &r.Flags.SuspiciousCategory,
		&r.Flags.MissingVAT, &r.Flags.MathError, &r.CreatedAt, &r.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PGStore) loadItems(ctx context.Context, receiptID int64) ([]models.LineItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, description, quantity, unit_price, line_total, vat_percent
		FROM line_items WHERE receipt_id=$1 ORDER BY id ASC`, receiptID)
	if err != nil {
		return nil, fmt.Errorf("query line items: %w", err)
	}
	defer rows.Close()

	var items []models.LineItem
	for rows.Next() {
		var it models.LineItem
		if err := rows.Scan(&it.ID, &it.Description, &it.Quantity, &it.UnitPrice, &it.LineTotal, &it.VATPercent); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetReceipt loads a single receipt with its line items.
func (s *PGStore) GetReceipt(ctx context.Context, id int64) (*models.Receipt, error) {
	row := s.pool.QueryRow(ctx, `SELECT`+receiptColumns+` FROM receipts WHERE id=$1`, id)
	r, err := scanReceipt(row)
	if err != nil {
		return nil, err
	}
	items, err := s.loadItems(ctx, id)
	if err != nil {
		return nil, err
	}
	r.Items = items
	return r, nil
}

// buildFilterClause renders a Filter to a SQL WHERE clause fragment and its
// positional arguments, starting argument numbering at startArg.
func buildFilterClause(f Filter, startArg int) (string, []any) {
	var clauses []string
	var args []any
	n := startArg

	if f.ReceiptID != nil {
		clauses = append(clauses, fmt.Sprintf("id = $%d", n))
		args = append(args, *f.ReceiptID)
		n++
	}
	if f.Vendor != "" {
		clauses = append(clauses, fmt.Sprintf("vendor_normalized = $%d", n))
		args = append(args, models.NormalizeVendor(f.Vendor))
		n++
	}
	if f.Category != "" {
		clauses = append(clauses, fmt.Sprintf("category = $%d", n))
		args = append(args, f.Category)
		n++
	}
	if f.StartDate != nil {
		clauses = append(clauses, fmt.Sprintf("ts >= $%d", n))
		args = append(args, *f.StartDate)
		n++
	}
	if f.EndDate != nil {
		clauses = append(clauses, fmt.Sprintf("ts <= $%d", n))
		args = append(args, *f.EndDate)
		n++
	}
	if f.MinAmount != nil {
		clauses = append(clauses, fmt.Sprintf("total_amount >= $%d", n))
		args = append(args, *f.MinAmount)
		n++
	}
	if f.MaxAmount != nil {
		clauses = append(clauses, fmt.Sprintf("total_amount <= $%d", n))
		args = append(args, *f.MaxAmount)
		n++
	}
	if f.FlaggedOnly {
		clauses = append(clauses, "(flag_duplicate OR flag_suspicious_category OR flag_missing_vat OR flag_math_error)")
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListReceipts defaults to descending timestamp, ties broken by descending
// identifier.
func (s *PGStore) ListReceipts(ctx context.Context, f Filter) ([]*models.Receipt, error) {
	where, args := buildFilterClause(f, 1)
	query := `SELECT` + receiptColumns + ` FROM receipts` + where + ` ORDER BY ts DESC, id DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	defer rows.Close()

	var out []*models.Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, r := range out {
		items, err := s.loadItems(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		r.Items = items
	}
	return out, nil
}

// FindDuplicateCandidates backs the Audit Engine's duplicate probe: same
// normalized vendor, same calendar day, total within one minor unit,
// self-match excluded by identifier.
func (s *PGStore) FindDuplicateCandidates(ctx context.Context, vendorNormalized string, day time.Time, total decimal.Decimal, excludeID int64) ([]*models.Receipt, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	rows, err := s.pool.Query(ctx, `SELECT`+receiptColumns+` FROM receipts
		WHERE vendor_normalized=$1 AND ts >= $2 AND ts < $3 AND id != $4
		AND ABS(total_amount - $5) <= $6`,
		vendorNormalized, dayStart, dayEnd, excludeID, total, models.MinorUnit,
	)
	if err != nil {
		return nil, fmt.Errorf("find duplicate candidates: %w", err)
	}
	defer rows.Close()

	var out []*models.Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MonthlyTotals buckets by YYYY-MM, descending amount, ties by name ascending.
func (s *PGStore) MonthlyTotals(ctx context.Context, f Filter) ([]models.MonthlyTotal, error) {
	where, args := buildFilterClause(f, 1)
	query := `SELECT to_char(ts, 'YYYY-MM') AS month, SUM(total_amount) AS total
		FROM receipts` + where + ` GROUP BY month ORDER BY total DESC, month ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("monthly totals: %w", err)
	}
	defer rows.Close()

	var out []models.MonthlyTotal
	for rows.Next() {
		var m models.MonthlyTotal
		if err := rows.Scan(&m.Month, &m.Total); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// VendorTotals: descending amount, ties by vendor name ascending.
func (s *PGStore) VendorTotals(ctx context.Context, f Filter) ([]models.VendorTotal, error) {
	where, args := buildFilterClause(f, 1)
	query := `SELECT vendor, SUM(total_amount) AS total
		FROM receipts` + where + ` GROUP BY vendor ORDER BY total DESC, vendor ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vendor totals: %w", err)
	}
	defer rows.Close()

	var out []models.VendorTotal
	for rows.Next() {
		var v models.VendorTotal
		if err := rows.Scan(&v.Vendor, &v.Total); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// CategoryTotals: descending amount, ties by category name ascending.
func (s *PGStore) CategoryTotals(ctx context.Context, f Filter) ([]models.CategoryTotal, error) {
	where, args := buildFilterClause(f, 1)
	query := `SELECT category, SUM(total_amount) AS total
		FROM receipts` + where + ` GROUP BY category ORDER BY total DESC, category ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("category totals: %w", err)
	}
	defer rows.Close()

	var out []models.CategoryTotal
	for rows.Next() {
		var c models.CategoryTotal
		if err := rows.Scan(&c.Category, &c.Total); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
