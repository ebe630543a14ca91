package dispatch

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"
)

// SupabaseDataProvider persists dispatch batches into per-sheet Postgres
// tables (one table per pattern name, columns discovered from the row
// data itself) via database/sql and lib/pq, the same driver pairing the
// teacher's Postgres-backed services use.
type SupabaseDataProvider struct {
	db *sql.DB
}

// NewSupabaseDataProvider wraps an already-opened *sql.DB (dsn parsing and
// connection-pool tuning are the caller's concern, per the teacher's own
// database bootstrap convention).
func NewSupabaseDataProvider(db *sql.DB) *SupabaseDataProvider {
	return &SupabaseDataProvider{db: db}
}

func (p *SupabaseDataProvider) IsConnected() bool {
	return p.db.Ping() == nil
}

// ProcessData inserts every item of the batch inside one transaction,
// grouped by sheet so each gets its own dynamically-built INSERT.
func (p *SupabaseDataProvider) ProcessData(ctx context.Context, batch []Item) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	grouped := make(map[string][]Item)
	for _, item := range batch {
		grouped[item.Sheet] = append(grouped[item.Sheet], item)
	}

	for sheet, items := range grouped {
		if err := insertItems(ctx, tx, sheet, items); err != nil {
			return fmt.Errorf("insert into %s: %w", sheet, err)
		}
	}
	return tx.Commit()
}

func insertItems(ctx context.Context, tx *sql.Tx, sheet string, items []Item) error {
	columns := sortedColumns(items)
	if len(columns) == 0 {
		return nil
	}

	table := pq.QuoteIdentifier(sheet)
	quotedCols := make([]string, len(columns))
	for i, c := range columns {
		quotedCols[i] = pq.QuoteIdentifier(c)
	}

	for _, item := range items {
		placeholders := make([]string, len(columns))
		values := make([]interface{}, len(columns))
		for i, c := range columns {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			values[i] = item.Data[c]
		}
		stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(quotedCols, ", "), strings.Join(placeholders, ", "))
		if _, err := tx.ExecContext(ctx, stmt, values...); err != nil {
			return err
		}
	}
	return nil
}

func sortedColumns(items []Item) []string {
	set := make(map[string]struct{})
	for _, item := range items {
		for k := range item.Data {
			set[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(set))
	for k := range set {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// FetchData selects every column from sheet, optionally filtered to rows
// whose "player" column matches username.
func (p *SupabaseDataProvider) FetchData(ctx context.Context, sheet, username string) ([]map[string]string, error) {
	table := pq.QuoteIdentifier(sheet)
	query := fmt.Sprintf("SELECT * FROM %s", table)
	args := []interface{}{}
	if username != "" {
		query += " WHERE player = $1"
		args = append(args, username)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", sheet, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]string
	for rows.Next() {
		raw := make([]sql.NullString, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]string, len(cols))
		for i, c := range cols {
			row[c] = raw[i].String
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Purge deletes every row from sheet.
func (p *SupabaseDataProvider) Purge(ctx context.Context, sheet string) error {
	table := pq.QuoteIdentifier(sheet)
	_, err := p.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", table))
	if err != nil {
		return fmt.Errorf("purge %s: %w", sheet, err)
	}
	return nil
}

// FetchRecordHashes returns an md5(row) digest per row, keyed by the row's
// id column, used by callers to detect rows already recorded without
// re-reading every column.
func (p *SupabaseDataProvider) FetchRecordHashes(ctx context.Context, sheet string) (map[string]string, error) {
	table := pq.QuoteIdentifier(sheet)
	query := fmt.Sprintf("SELECT id::text, md5(%s::text) FROM %s", table, table)

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("hash query %s: %w", sheet, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, err
		}
		out[id] = hash
	}
	return out, rows.Err()
}

// EnsureDynamicViews creates or replaces one view per name->query pair.
func (p *SupabaseDataProvider) EnsureDynamicViews(ctx context.Context, views map[string]string) error {
	for name, query := range views {
		stmt := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS %s", pq.QuoteIdentifier(name), query)
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create view %s: %w", name, err)
		}
	}
	return nil
}

// ViewExists checks information_schema.views for name.
func (p *SupabaseDataProvider) ViewExists(ctx context.Context, name string) (bool, error) {
	var count int
	err := p.db.QueryRowContext(ctx,
		"SELECT count(*) FROM information_schema.views WHERE table_name = $1", name,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check view %s: %w", name, err)
	}
	return count > 0, nil
}
