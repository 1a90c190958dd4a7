package scdtable

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scduck/scduck/internal/debug"
	"github.com/scduck/scduck/internal/types"
)

// ensureSchema creates the versioned table and its companion
// "<table>_sync_metadata" table if they do not exist, enforcing the
// composite primary key (key_cols…, valid_from). It is idempotent: a
// second call against an already-conforming table is a no-op.
//
// If the table already exists with a column set that disagrees with the
// declared schema, ensureSchema returns a *SchemaConflictError rather
// than silently operating on the wrong shape, using the same
// pragma_table_info probe-before-mutate pattern as the migration runner.
func ensureSchema(ctx context.Context, db *sql.DB, schema types.Schema) error {
	exists, err := tableExists(ctx, db, schema.TableName)
	if err != nil {
		return &EngineError{Op: "ensureSchema: check table existence", Err: err}
	}

	if exists {
		if err := checkColumnsMatch(ctx, db, schema); err != nil {
			return err
		}
		debug.Logf("schema: %s already exists and matches declared columns", schema.TableName)
	} else {
		if err := createVersionedTable(ctx, db, schema); err != nil {
			return &EngineError{Op: "ensureSchema: create versioned table", Err: err}
		}
		debug.Logf("schema: created %s", schema.TableName)
	}

	if err := createMetadataTable(ctx, db, schema.MetadataTable()); err != nil {
		return &EngineError{Op: "ensureSchema: create metadata table", Err: err}
	}

	return nil
}

func tableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var name string
	err := db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func createVersionedTable(ctx context.Context, db *sql.DB, schema types.Schema) error {
	var cols []string
	for _, k := range schema.KeyCols {
		cols = append(cols, ident(k)+" TEXT NOT NULL")
	}
	for _, v := range schema.ValueCols {
		cols = append(cols, ident(v)+" TEXT")
	}
	cols = append(cols, ident("valid_from")+" DATE NOT NULL")
	cols = append(cols, ident("valid_to")+" DATE")

	pk := append(append([]string{}, schema.KeyCols...), "valid_from")

	stmt := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (%s, PRIMARY KEY (%s))`,
		ident(schema.TableName),
		joinCols(cols),
		identList(pk),
	)
	_, err := db.ExecContext(ctx, stmt)
	return err
}

func createMetadataTable(ctx context.Context, db *sql.DB, table string) error {
	stmt := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			as_of_date DATE PRIMARY KEY,
			synced_at TIMESTAMP NOT NULL,
			row_count INTEGER NOT NULL
		)`, ident(table))
	_, err := db.ExecContext(ctx, stmt)
	return err
}

// checkColumnsMatch verifies that an existing versioned table declares
// exactly schema.AllCols() (in any order) plus valid_from/valid_to.
func checkColumnsMatch(ctx context.Context, db *sql.DB, schema types.Schema) error {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT name FROM pragma_table_info(%s)`, sqlQuote(schema.TableName)))
	if err != nil {
		return &EngineError{Op: "checkColumnsMatch: query pragma_table_info", Err: err}
	}
	defer rows.Close()

	existing := map[string]bool{}
	var existingNames []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return &EngineError{Op: "checkColumnsMatch: scan column name", Err: err}
		}
		existing[name] = true
		existingNames = append(existingNames, name)
	}
	if err := rows.Err(); err != nil {
		return &EngineError{Op: "checkColumnsMatch: iterate columns", Err: err}
	}

	want := append(append([]string{}, schema.AllCols()...), "valid_from", "valid_to")
	declared := make(map[string]bool, len(want))
	for _, col := range want {
		declared[col] = true
		if !existing[col] {
			return &SchemaConflictError{
				Table:  schema.TableName,
				Reason: fmt.Sprintf("declared column %q is missing from the existing table", col),
			}
		}
	}
	for _, name := range existingNames {
		if !declared[name] {
			return &SchemaConflictError{
				Table:  schema.TableName,
				Reason: fmt.Sprintf("existing table has column %q that is not declared", name),
			}
		}
	}
	return nil
}

// sqlQuote produces a single-quoted SQL string literal, doubling embedded
// quotes. Used only for the pragma_table_info(<literal>) table-valued
// function call, which does not accept a bound parameter.
func sqlQuote(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '\'')
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'', '\'')
		} else {
			out = append(out, s[i])
		}
	}
	out = append(out, '\'')
	return string(out)
}

func joinCols(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}
