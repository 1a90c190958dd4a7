package scdtable

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scduck/scduck/internal/types"
)

// applyClass2 closes each covering row whose values changed and inserts
// its replacement, inheriting the pre-closure valid_to. Closing first and
// inserting second is safe because _covering already captured sm_valid_to
// before any UPDATE runs.
func applyClass2(ctx context.Context, tx *sql.Tx, schema types.Schema, date string) error {
	same := sameExpr("i_", "sm_", schema.ValueCols)

	updateStmt := fmt.Sprintf(`
		UPDATE %s SET %s = ?
		FROM _covering c
		WHERE %s
			AND %s.%s = c.sm_valid_from
			AND c.sm_valid_from IS NOT NULL
			AND NOT (%s)
	`,
		ident(schema.TableName), ident("valid_to"),
		eqJoinPrefixed(ident(schema.TableName), "c", schema.KeyCols, "i_"),
		ident(schema.TableName), ident("valid_from"),
		same,
	)
	if _, err := tx.ExecContext(ctx, updateStmt, date); err != nil {
		return &ConstraintViolationError{Op: "applyClass2: close covering row", Err: err}
	}

	insertStmt := fmt.Sprintf(`
		INSERT INTO %s (%s)
		SELECT %s, ?, sm_valid_to
		FROM _covering
		WHERE sm_valid_from IS NOT NULL AND NOT (%s)
	`,
		ident(schema.TableName),
		joinCols(append(append([]string{}, quoteAll(schema.AllCols())...), ident("valid_from"), ident("valid_to"))),
		identList(iCols("i_", schema.AllCols())),
		same,
	)
	if _, err := tx.ExecContext(ctx, insertStmt, date); err != nil {
		return &ConstraintViolationError{Op: "applyClass2: insert replacement row", Err: err}
	}
	return nil
}

// applyClass3a extends the next row's valid_from back to date, for keys
// whose incoming values match that next row exactly.
func applyClass3a(ctx context.Context, tx *sql.Tx, schema types.Schema, date string) error {
	same := sameExpr("i_", "sm_", schema.ValueCols)
	stmt := fmt.Sprintf(`
		UPDATE %s SET %s = ?
		FROM _next n
		WHERE %s
			AND %s.%s = n.sm_valid_from
			AND (%s)
	`,
		ident(schema.TableName), ident("valid_from"),
		eqJoinPrefixed(ident(schema.TableName), "n", schema.KeyCols, "i_"),
		ident(schema.TableName), ident("valid_from"),
		same,
	)
	_, err := tx.ExecContext(ctx, stmt, date)
	if err != nil {
		return &ConstraintViolationError{Op: "applyClass3a: extend-back", Err: err}
	}
	return nil
}

// applyClass3b inserts a new row [date, next.valid_from) for keys whose
// incoming values differ from the next row.
func applyClass3b(ctx context.Context, tx *sql.Tx, schema types.Schema, date string) error {
	same := sameExpr("i_", "sm_", schema.ValueCols)
	stmt := fmt.Sprintf(`
		INSERT INTO %s (%s)
		SELECT %s, ?, sm_valid_from
		FROM _next
		WHERE NOT (%s)
	`,
		ident(schema.TableName),
		joinCols(append(append([]string{}, quoteAll(schema.AllCols())...), ident("valid_from"), ident("valid_to"))),
		identList(iCols("i_", schema.AllCols())),
		same,
	)
	_, err := tx.ExecContext(ctx, stmt, date)
	if err != nil {
		return &ConstraintViolationError{Op: "applyClass3b: split before next", Err: err}
	}
	return nil
}

// tentativeValidToSubquery builds the tentative valid_to for a row that
// is reappearing or appearing for the first time: the smallest
// already-synced date strictly after date at which the
// versioned table (reflecting every write already applied this sync)
// has no row covering the key, or NULL if no such date exists. outerPrefix
// is the prefix under which outerAlias projects the key columns ("i_" for
// the scratch relations, "" for _incoming).
func tentativeValidToSubquery(schema types.Schema, outerAlias, outerPrefix string) string {
	return fmt.Sprintf(`(
		SELECT MIN(sm.as_of_date) FROM %s sm
		WHERE sm.as_of_date > ?
			AND NOT EXISTS (
				SELECT 1 FROM %s s
				WHERE %s
					AND s.%s <= sm.as_of_date
					AND (s.%s > sm.as_of_date OR s.%s IS NULL)
			)
	)`,
		ident(schema.MetadataTable()),
		ident(schema.TableName),
		eqJoinPrefixed("s", outerAlias, schema.KeyCols, outerPrefix),
		ident("valid_from"), ident("valid_to"), ident("valid_to"),
	)
}

// applyClass4 inserts the reappearance row for each key in _prev.
func applyClass4(ctx context.Context, tx *sql.Tx, schema types.Schema, date string) error {
	stmt := fmt.Sprintf(`
		INSERT INTO %s (%s)
		SELECT %s, ?, %s
		FROM _prev p
	`,
		ident(schema.TableName),
		joinCols(append(append([]string{}, quoteAll(schema.AllCols())...), ident("valid_from"), ident("valid_to"))),
		identList(iCols("i_", schema.AllCols())),
		tentativeValidToSubquery(schema, "p", "i_"),
	)
	_, err := tx.ExecContext(ctx, stmt, date, date)
	if err != nil {
		return &ConstraintViolationError{Op: "applyClass4: insert reappearance", Err: err}
	}
	return nil
}

// applyClass5 inserts brand-new keys: present in _incoming, absent from
// _covering (non-null), _next, and _prev.
func applyClass5(ctx context.Context, tx *sql.Tx, schema types.Schema, date string) (int, error) {
	count, err := countRows(ctx, tx, newRecordsQuery(schema))
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (%s)
		SELECT %s, ?, %s
		FROM _incoming i
		WHERE (%s) NOT IN (SELECT %s FROM _covering WHERE sm_valid_from IS NOT NULL)
			AND (%s) NOT IN (SELECT %s FROM _next)
			AND (%s) NOT IN (SELECT %s FROM _prev)
	`,
		ident(schema.TableName),
		joinCols(append(append([]string{}, quoteAll(schema.AllCols())...), ident("valid_from"), ident("valid_to"))),
		prefixedCols("i", schema.AllCols()),
		tentativeValidToSubquery(schema, "i", ""),
		prefixedCols("i", schema.KeyCols), identList(iCols("i_", schema.KeyCols)),
		prefixedCols("i", schema.KeyCols), identList(iCols("i_", schema.KeyCols)),
		prefixedCols("i", schema.KeyCols), identList(iCols("i_", schema.KeyCols)),
	)
	if _, err := tx.ExecContext(ctx, stmt, date, date); err != nil {
		return 0, &ConstraintViolationError{Op: "applyClass5: insert new", Err: err}
	}
	return count, nil
}

func newRecordsQuery(schema types.Schema) string {
	return fmt.Sprintf(`
		SELECT 1
		FROM _incoming i
		WHERE (%s) NOT IN (SELECT %s FROM _covering WHERE sm_valid_from IS NOT NULL)
			AND (%s) NOT IN (SELECT %s FROM _next)
			AND (%s) NOT IN (SELECT %s FROM _prev)
	`,
		prefixedCols("i", schema.KeyCols), identList(iCols("i_", schema.KeyCols)),
		prefixedCols("i", schema.KeyCols), identList(iCols("i_", schema.KeyCols)),
		prefixedCols("i", schema.KeyCols), identList(iCols("i_", schema.KeyCols)),
	)
}

// countChanged returns the class-2 (changed-in-place) count, needed for
// stats before the UPDATE runs (the UPDATE doesn't remove rows from
// _covering, but counting beforehand keeps the query shape identical to
// the other classes').
func countChanged(ctx context.Context, tx *sql.Tx, schema types.Schema) (int, error) {
	same := sameExpr("i_", "sm_", schema.ValueCols)
	return countRows(ctx, tx, fmt.Sprintf(`SELECT 1 FROM _covering WHERE sm_valid_from IS NOT NULL AND NOT (%s)`, same))
}

func quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = ident(n)
	}
	return out
}
