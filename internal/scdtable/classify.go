package scdtable

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scduck/scduck/internal/types"
)

// loadIncoming creates the _incoming scratch relation and populates it
// with the normalized rows for this sync. Duplicate keys within rows are
// resolved last-wins (see DESIGN.md's Open Question decision) before the
// INSERT, so _incoming itself never violates its own implicit key
// uniqueness.
func loadIncoming(ctx context.Context, tx *sql.Tx, schema types.Schema, rows []types.Row) error {
	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS _incoming`); err != nil {
		return &EngineError{Op: "loadIncoming: drop stale _incoming", Err: err}
	}

	allCols := schema.AllCols()
	var colDefs []string
	for _, k := range schema.KeyCols {
		colDefs = append(colDefs, ident(k)+" TEXT NOT NULL")
	}
	for _, v := range schema.ValueCols {
		colDefs = append(colDefs, ident(v)+" TEXT")
	}
	createStmt := fmt.Sprintf(`CREATE TEMP TABLE _incoming (%s, PRIMARY KEY (%s))`,
		joinCols(colDefs), identList(schema.KeyCols))
	if _, err := tx.ExecContext(ctx, createStmt); err != nil {
		return &EngineError{Op: "loadIncoming: create _incoming", Err: err}
	}

	deduped := dedupeLastWins(rows, schema.KeyCols)

	insertStmt := fmt.Sprintf(`INSERT INTO _incoming (%s) VALUES (%s)`,
		identList(allCols), placeholders(len(allCols)))
	stmt, err := tx.PrepareContext(ctx, insertStmt)
	if err != nil {
		return &EngineError{Op: "loadIncoming: prepare insert", Err: err}
	}
	defer stmt.Close()

	for _, row := range deduped {
		args := make([]any, len(allCols))
		for i, c := range allCols {
			args[i] = nullableArg(row[c])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return &ConstraintViolationError{Op: "loadIncoming: insert row", Err: err}
		}
	}
	return nil
}

// dedupeLastWins keeps only the last occurrence of each key tuple,
// preserving the last-seen row's values — the documented resolution for
// duplicate keys within a single incoming snapshot (see DESIGN.md).
func dedupeLastWins(rows []types.Row, keyCols []string) []types.Row {
	index := make(map[string]int, len(rows))
	order := make([]string, 0, len(rows))
	byKey := make(map[string]types.Row, len(rows))
	for _, row := range rows {
		k := row.Key(keyCols)
		if _, seen := index[k]; !seen {
			order = append(order, k)
		}
		index[k] = 1
		byKey[k] = row
	}
	out := make([]types.Row, 0, len(order))
	for _, k := range order {
		out = append(out, byKey[k])
	}
	return out
}

// buildCovering creates _covering: a left join of _incoming against the
// versioned table on the key tuple, restricted to stored intervals that
// cover date. A NULL sm_valid_from means no covering interval exists for
// that key.
func buildCovering(ctx context.Context, tx *sql.Tx, schema types.Schema, date string) error {
	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS _covering`); err != nil {
		return &EngineError{Op: "buildCovering: drop stale", Err: err}
	}
	stmt := fmt.Sprintf(`
		CREATE TEMP TABLE _covering AS
		SELECT %s, sm.%s AS sm_valid_from, sm.%s AS sm_valid_to, %s
		FROM _incoming i
		LEFT JOIN %s sm
			ON %s
			AND sm.%s <= ?
			AND (sm.%s > ? OR sm.%s IS NULL)
	`,
		prefixedList("i", schema.AllCols(), "i"),
		ident("valid_from"), ident("valid_to"),
		prefixedList("sm", schema.ValueCols, "sm"),
		ident(schema.TableName),
		eqJoin("i", "sm", schema.KeyCols),
		ident("valid_from"), ident("valid_to"), ident("valid_to"),
	)
	_, err := tx.ExecContext(ctx, stmt, date, date)
	if err != nil {
		return &EngineError{Op: "buildCovering: create", Err: err}
	}
	return nil
}

// buildNext creates _next: for keys without a covering row, the earliest
// stored interval with valid_from > date. SQLite lacks DISTINCT ON, so
// the "pick the earliest per key" tie-break is done with a correlated
// MIN subquery instead.
func buildNext(ctx context.Context, tx *sql.Tx, schema types.Schema, date string) error {
	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS _next`); err != nil {
		return &EngineError{Op: "buildNext: drop stale", Err: err}
	}
	stmt := fmt.Sprintf(`
		CREATE TEMP TABLE _next AS
		SELECT %s, sm.%s AS sm_valid_from, sm.%s AS sm_valid_to, %s
		FROM _incoming i
		JOIN %s sm
			ON %s
			AND sm.%s > ?
			AND sm.%s = (
				SELECT MIN(sm2.%s) FROM %s sm2
				WHERE %s AND sm2.%s > ?
			)
		WHERE (%s) NOT IN (
			SELECT %s FROM _covering WHERE sm_valid_from IS NOT NULL
		)
	`,
		prefixedList("i", schema.AllCols(), "i"),
		ident("valid_from"), ident("valid_to"),
		prefixedList("sm", schema.ValueCols, "sm"),
		ident(schema.TableName),
		eqJoin("i", "sm", schema.KeyCols),
		ident("valid_from"),
		ident("valid_from"), ident("valid_from"), ident(schema.TableName),
		eqJoin("i", "sm2", schema.KeyCols), ident("valid_from"),
		prefixedCols("i", schema.KeyCols),
		identList(iCols("i_", schema.KeyCols)),
	)
	_, err := tx.ExecContext(ctx, stmt, date, date)
	if err != nil {
		return &EngineError{Op: "buildNext: create", Err: err}
	}
	return nil
}

// buildPrev creates _prev: for keys without a covering or next row, the
// latest stored interval with valid_to <= date — a reappearance-after-gap
// candidate.
func buildPrev(ctx context.Context, tx *sql.Tx, schema types.Schema, date string) error {
	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS _prev`); err != nil {
		return &EngineError{Op: "buildPrev: drop stale", Err: err}
	}
	stmt := fmt.Sprintf(`
		CREATE TEMP TABLE _prev AS
		SELECT %s
		FROM _incoming i
		JOIN %s sm
			ON %s
			AND sm.%s <= ?
			AND sm.%s = (
				SELECT MAX(sm2.%s) FROM %s sm2
				WHERE %s AND sm2.%s <= ?
			)
		WHERE (%s) NOT IN (
			SELECT %s FROM _covering WHERE sm_valid_from IS NOT NULL
		)
		AND (%s) NOT IN (
			SELECT %s FROM _next
		)
	`,
		prefixedList("i", schema.AllCols(), "i"),
		ident(schema.TableName),
		eqJoin("i", "sm", schema.KeyCols),
		ident("valid_to"),
		ident("valid_to"),
		ident("valid_to"), ident(schema.TableName),
		eqJoin("i", "sm2", schema.KeyCols), ident("valid_to"),
		prefixedCols("i", schema.KeyCols),
		identList(iCols("i_", schema.KeyCols)),
		prefixedCols("i", schema.KeyCols),
		identList(iCols("i_", schema.KeyCols)),
	)
	_, err := tx.ExecContext(ctx, stmt, date, date)
	if err != nil {
		return &EngineError{Op: "buildPrev: create", Err: err}
	}
	return nil
}

// prefixedCols quotes and joins alias.col for each name, without aliasing
// the output — used inside NOT IN subquery column lists.
func prefixedCols(alias string, names []string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = alias + "." + ident(n)
	}
	return joinCols(parts)
}

// iCols returns "i_<col>" identifiers for the given columns, as they
// appear projected in _covering/_next/_prev.
func iCols(prefix string, names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = prefix + n
	}
	return out
}

func placeholders(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ", "
		}
		out += "?"
	}
	return out
}

func nullableArg(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// countRows runs SELECT COUNT(*) FROM (query) and returns the scalar.
func countRows(ctx context.Context, tx *sql.Tx, query string, args ...any) (int, error) {
	var n int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM ("+query+")", args...).Scan(&n); err != nil {
		return 0, &EngineError{Op: "countRows", Err: err}
	}
	return n, nil
}

// computeCounts runs the class-1/3a/3b/4 COUNT queries against the
// already-materialized scratch relations. The class 2 count comes from
// countChanged and the class 5 count from applyClass5 (both in mutate.go),
// and the class 6 (deletion) count from reconcileDeletions (reconcile.go).
func computeCounts(ctx context.Context, tx *sql.Tx, schema types.Schema) (unchanged, extendBack, splitBeforeNext, reappeared int, err error) {
	same := sameExpr("i_", "sm_", schema.ValueCols)

	unchanged, err = countRows(ctx, tx,
		fmt.Sprintf(`SELECT 1 FROM _covering WHERE sm_valid_from IS NOT NULL AND (%s)`, same))
	if err != nil {
		return
	}
	extendBack, err = countRows(ctx, tx, fmt.Sprintf(`SELECT 1 FROM _next WHERE %s`, same))
	if err != nil {
		return
	}
	splitBeforeNext, err = countRows(ctx, tx, fmt.Sprintf(`SELECT 1 FROM _next WHERE NOT (%s)`, same))
	if err != nil {
		return
	}
	reappeared, err = countRows(ctx, tx, `SELECT 1 FROM _prev`)
	return
}
