package scdtable

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scduck/scduck/internal/types"
)

// deletionsQuery selects the class-6 deletion set: stored rows covering
// date whose key is absent from _incoming. Captured once, before any
// mutation, so the re-insertion step below can still see each row's
// pre-closure valid_to.
func deletionsQuery(schema types.Schema) string {
	return fmt.Sprintf(`
		SELECT %s
		FROM %s sm
		WHERE sm.%s <= ?
			AND (sm.%s > ? OR sm.%s IS NULL)
			AND (%s) NOT IN (SELECT %s FROM _incoming)
	`,
		joinCols(append(quoteAllAliased("sm", schema.AllCols()), "sm."+ident("valid_from"), "sm."+ident("valid_to"))),
		ident(schema.TableName),
		ident("valid_from"), ident("valid_to"), ident("valid_to"),
		prefixedCols("sm", schema.KeyCols), identList(schema.KeyCols),
	)
}

func quoteAllAliased(alias string, names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = alias + "." + ident(n)
	}
	return out
}

// reconcileDeletions implements the Deletion Reconciler: capture the
// deletion set, close each covering row at date, then for any
// deleted row whose original span extends past an already-synced later
// date, re-open a new interval starting at the earliest such date.
func reconcileDeletions(ctx context.Context, tx *sql.Tx, schema types.Schema, date string) (int, error) {
	count, err := countRows(ctx, tx, deletionsQueryNoProjection(schema), date, date)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}

	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS _deletions`); err != nil {
		return 0, &EngineError{Op: "reconcileDeletions: drop stale _deletions", Err: err}
	}
	createStmt := `CREATE TEMP TABLE _deletions AS ` + deletionsQuery(schema)
	if _, err := tx.ExecContext(ctx, createStmt, date, date); err != nil {
		return 0, &EngineError{Op: "reconcileDeletions: materialize deletion set", Err: err}
	}

	closeStmt := fmt.Sprintf(`
		UPDATE %s SET %s = ?
		WHERE %s <= ?
			AND (%s > ? OR %s IS NULL)
			AND (%s) NOT IN (SELECT %s FROM _incoming)
	`,
		ident(schema.TableName), ident("valid_to"),
		ident("valid_from"),
		ident("valid_to"), ident("valid_to"),
		identList(schema.KeyCols), identList(schema.KeyCols),
	)
	if _, err := tx.ExecContext(ctx, closeStmt, date, date, date); err != nil {
		return 0, &ConstraintViolationError{Op: "reconcileDeletions: close covering row", Err: err}
	}

	// Re-open: for each deleted row, find the earliest already-synced
	// date M > date still within the row's original [valid_from, valid_to)
	// span and, if no row currently starts at M for that key, insert a
	// fresh interval [M, original valid_to).
	reopenStmt := fmt.Sprintf(`
		INSERT INTO %s (%s)
		SELECT %s, sm.as_of_date, d.%s
		FROM _deletions d
		JOIN %s sm
			ON sm.as_of_date > ?
			AND (d.%s IS NULL OR sm.as_of_date < d.%s)
		WHERE NOT EXISTS (
			SELECT 1 FROM %s s
			WHERE %s AND s.%s = sm.as_of_date
		)
		AND sm.as_of_date = (
			SELECT MIN(sm2.as_of_date) FROM %s sm2
			WHERE sm2.as_of_date > ?
				AND (d.%s IS NULL OR sm2.as_of_date < d.%s)
		)
	`,
		ident(schema.TableName),
		joinCols(append(quoteAll(schema.AllCols()), ident("valid_from"), ident("valid_to"))),
		prefixedCols("d", schema.AllCols()),
		ident("valid_to"),
		ident(schema.MetadataTable()),
		ident("valid_to"), ident("valid_to"),
		ident(schema.TableName),
		eqJoinPrefixed("s", "d", schema.KeyCols, ""),
		ident("valid_from"),
		ident(schema.MetadataTable()),
		ident("valid_to"), ident("valid_to"),
	)
	if _, err := tx.ExecContext(ctx, reopenStmt, date, date); err != nil {
		return 0, &ConstraintViolationError{Op: "reconcileDeletions: re-insert after gap", Err: err}
	}

	return count, nil
}

// deletionsQueryNoProjection mirrors deletionsQuery but selects a
// constant, for use inside countRows' COUNT(*) FROM (...) wrapper without
// projecting every column.
func deletionsQueryNoProjection(schema types.Schema) string {
	return fmt.Sprintf(`
		SELECT 1
		FROM %s sm
		WHERE sm.%s <= ?
			AND (sm.%s > ? OR sm.%s IS NULL)
			AND (%s) NOT IN (SELECT %s FROM _incoming)
	`,
		ident(schema.TableName),
		ident("valid_from"), ident("valid_to"), ident("valid_to"),
		prefixedCols("sm", schema.KeyCols), identList(schema.KeyCols),
	)
}
