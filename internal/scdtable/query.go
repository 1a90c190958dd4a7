package scdtable

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scduck/scduck/internal/types"
)

// snapshot returns every row valid at date: valid_from <= date < valid_to,
// with NULL valid_to treated as +∞.
func snapshot(ctx context.Context, db *sql.DB, schema types.Schema, date string) ([]types.Row, error) {
	allCols := schema.AllCols()
	stmt := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE %s <= ? AND (%s > ? OR %s IS NULL)
		ORDER BY %s
	`,
		identList(allCols), ident(schema.TableName),
		ident("valid_from"), ident("valid_to"), ident("valid_to"),
		identList(schema.KeyCols),
	)
	rows, err := db.QueryContext(ctx, stmt, date, date)
	if err != nil {
		return nil, &EngineError{Op: "snapshot: query", Err: err}
	}
	defer rows.Close()

	var out []types.Row
	for rows.Next() {
		scanned := make([]sql.NullString, len(allCols))
		dest := make([]any, len(allCols))
		for i := range scanned {
			dest[i] = &scanned[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, &EngineError{Op: "snapshot: scan row", Err: err}
		}
		row := make(types.Row, len(allCols))
		for i, c := range allCols {
			if scanned[i].Valid {
				row[c] = types.Str(scanned[i].String)
			} else {
				row[c] = nil
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &EngineError{Op: "snapshot: iterate rows", Err: err}
	}
	return out, nil
}

// syncedDates returns every as_of_date recorded in sync metadata, ascending.
func syncedDates(ctx context.Context, db *sql.DB, schema types.Schema) ([]string, error) {
	stmt := fmt.Sprintf(`SELECT %s FROM %s ORDER BY %s`,
		ident("as_of_date"), ident(schema.MetadataTable()), ident("as_of_date"))
	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, &EngineError{Op: "syncedDates: query", Err: err}
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, &EngineError{Op: "syncedDates: scan", Err: err}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// recordCount returns the total row count of the versioned table.
func recordCount(ctx context.Context, db *sql.DB, schema types.Schema) (int, error) {
	var n int
	stmt := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, ident(schema.TableName))
	if err := db.QueryRowContext(ctx, stmt).Scan(&n); err != nil {
		return 0, &EngineError{Op: "recordCount: query", Err: err}
	}
	return n, nil
}

// recordMetadata upserts the sync-metadata row for this sync, using the
// teacher's INSERT ... ON CONFLICT DO UPDATE idiom in place of the
// source's DuckDB-specific INSERT OR REPLACE.
func recordMetadata(ctx context.Context, tx *sql.Tx, schema types.Schema, date, syncedAt string, rowCount int) error {
	stmt := fmt.Sprintf(`
		INSERT INTO %s (as_of_date, synced_at, row_count) VALUES (?, ?, ?)
		ON CONFLICT(as_of_date) DO UPDATE SET synced_at = excluded.synced_at, row_count = excluded.row_count
	`, ident(schema.MetadataTable()))
	if _, err := tx.ExecContext(ctx, stmt, date, syncedAt, rowCount); err != nil {
		return &EngineError{Op: "recordMetadata: upsert", Err: err}
	}
	return nil
}
