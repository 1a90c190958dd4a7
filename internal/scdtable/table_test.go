package scdtable

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/scduck/scduck/internal/types"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening in-memory database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func openTestTable(t *testing.T, schema types.Schema) *Table {
	t.Helper()
	tbl, err := Open(context.Background(), openTestDB(t), schema)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return tbl
}

func row(values ...string) types.Row {
	r := make(types.Row, len(values))
	for i := 0; i+1 < len(values); i += 2 {
		v := values[i+1]
		if v == "" {
			r[values[i]] = nil
			continue
		}
		r[values[i]] = types.Str(v)
	}
	return r
}

type staticFrame struct{ rows []types.Row }

func (f staticFrame) Records() ([]map[string]*string, error) {
	out := make([]map[string]*string, len(f.rows))
	for i, r := range f.rows {
		out[i] = r
	}
	return out, nil
}

func productSchema() types.Schema {
	return types.Schema{TableName: "products", KeyCols: []string{"id"}, ValueCols: []string{"name", "price"}}
}

func snapshotMap(t *testing.T, tbl *Table, date string) map[string]types.Row {
	t.Helper()
	rows, err := tbl.Snapshot(context.Background(), date)
	if err != nil {
		t.Fatalf("Snapshot(%s): %v", date, err)
	}
	out := make(map[string]types.Row, len(rows))
	for _, r := range rows {
		out[r.Key(tbl.Schema().KeyCols)] = r
	}
	return out
}

func strVal(r types.Row, col string) string {
	if v := r[col]; v != nil {
		return *v
	}
	return ""
}

func TestSyncBasicChange(t *testing.T) {
	ctx := context.Background()
	tbl := openTestTable(t, productSchema())

	if _, err := tbl.Sync(ctx, "2025-01-01", staticFrame{[]types.Row{row("id", "A", "name", "Widget", "price", "9.99")}}); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	stats, err := tbl.Sync(ctx, "2025-01-02", staticFrame{[]types.Row{row("id", "A", "name", "Widget", "price", "12.99")}})
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if stats.RowsChanged != 1 {
		t.Errorf("RowsChanged = %d, want 1", stats.RowsChanged)
	}

	n, err := tbl.RecordCount(ctx)
	if err != nil {
		t.Fatalf("RecordCount: %v", err)
	}
	if n != 2 {
		t.Errorf("RecordCount = %d, want 2", n)
	}

	before := snapshotMap(t, tbl, "2025-01-01")
	if got := strVal(before["A"], "price"); got != "9.99" {
		t.Errorf("snapshot(2025-01-01).price = %q, want 9.99", got)
	}
	after := snapshotMap(t, tbl, "2025-01-02")
	if got := strVal(after["A"], "price"); got != "12.99" {
		t.Errorf("snapshot(2025-01-02).price = %q, want 12.99", got)
	}
}

func TestSyncBackfillSameData(t *testing.T) {
	ctx := context.Background()
	tbl := openTestTable(t, productSchema())

	if _, err := tbl.Sync(ctx, "2025-01-10", staticFrame{[]types.Row{row("id", "A", "name", "Widget", "price", "9.99")}}); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	stats, err := tbl.Sync(ctx, "2025-01-01", staticFrame{[]types.Row{row("id", "A", "name", "Widget", "price", "9.99")}})
	if err != nil {
		t.Fatalf("backfill sync: %v", err)
	}
	if stats.RowsExtendedBack != 1 {
		t.Errorf("RowsExtendedBack = %d, want 1", stats.RowsExtendedBack)
	}

	n, err := tbl.RecordCount(ctx)
	if err != nil {
		t.Fatalf("RecordCount: %v", err)
	}
	if n != 1 {
		t.Errorf("RecordCount = %d, want 1 (merged into a single row)", n)
	}
}

func TestSyncBackfillDifferentDataSplitsBeforeNext(t *testing.T) {
	ctx := context.Background()
	tbl := openTestTable(t, productSchema())

	if _, err := tbl.Sync(ctx, "2025-01-10", staticFrame{[]types.Row{row("id", "A", "name", "Widget", "price", "12.99")}}); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	stats, err := tbl.Sync(ctx, "2025-01-01", staticFrame{[]types.Row{row("id", "A", "name", "Widget", "price", "9.99")}})
	if err != nil {
		t.Fatalf("backfill sync: %v", err)
	}
	if stats.RowsChanged != 1 {
		t.Errorf("RowsChanged = %d, want 1", stats.RowsChanged)
	}

	n, err := tbl.RecordCount(ctx)
	if err != nil {
		t.Fatalf("RecordCount: %v", err)
	}
	if n != 2 {
		t.Errorf("RecordCount = %d, want 2", n)
	}

	early := snapshotMap(t, tbl, "2025-01-01")
	if got := strVal(early["A"], "price"); got != "9.99" {
		t.Errorf("snapshot(2025-01-01).price = %q, want 9.99", got)
	}
	late := snapshotMap(t, tbl, "2025-01-10")
	if got := strVal(late["A"], "price"); got != "12.99" {
		t.Errorf("snapshot(2025-01-10).price = %q, want 12.99", got)
	}
}

func TestSyncReappearance(t *testing.T) {
	ctx := context.Background()
	tbl := openTestTable(t, productSchema())

	a := func() []types.Row { return []types.Row{row("id", "A", "name", "Widget", "price", "9.99")} }

	if _, err := tbl.Sync(ctx, "2025-01-01", staticFrame{a()}); err != nil {
		t.Fatalf("sync 01-01: %v", err)
	}
	if _, err := tbl.Sync(ctx, "2025-01-05", staticFrame{[]types.Row{row("id", "B", "name", "Gadget", "price", "1.00")}}); err != nil {
		t.Fatalf("sync 01-05: %v", err)
	}
	stats, err := tbl.Sync(ctx, "2025-01-10", staticFrame{a()})
	if err != nil {
		t.Fatalf("sync 01-10: %v", err)
	}
	if stats.RowsReappeared != 1 {
		t.Errorf("RowsReappeared = %d, want 1", stats.RowsReappeared)
	}

	gone := snapshotMap(t, tbl, "2025-01-05")
	if _, ok := gone["A"]; ok {
		t.Errorf("snapshot(2025-01-05) should not contain A")
	}
	back := snapshotMap(t, tbl, "2025-01-10")
	if _, ok := back["A"]; !ok {
		t.Errorf("snapshot(2025-01-10) should contain A")
	}
}

func TestSyncOutOfOrderGapCreation(t *testing.T) {
	ctx := context.Background()
	tbl := openTestTable(t, productSchema())
	x := func() []types.Row { return []types.Row{row("id", "X", "name", "Thing", "price", "5.00")} }

	if _, err := tbl.Sync(ctx, "2025-12-17", staticFrame{x()}); err != nil {
		t.Fatalf("sync 12-17: %v", err)
	}
	if _, err := tbl.Sync(ctx, "2025-12-01", staticFrame{x()}); err != nil {
		t.Fatalf("sync 12-01: %v", err)
	}
	if _, err := tbl.Sync(ctx, "2025-12-05", staticFrame{x()}); err != nil {
		t.Fatalf("sync 12-05: %v", err)
	}
	if _, err := tbl.Sync(ctx, "2025-12-03", staticFrame{[]types.Row{row("id", "Y", "name", "Other", "price", "2.00")}}); err != nil {
		t.Fatalf("sync 12-03: %v", err)
	}

	gap := snapshotMap(t, tbl, "2025-12-03")
	if _, ok := gap["X"]; ok {
		t.Errorf("snapshot(2025-12-03) should not contain X")
	}
	resumed := snapshotMap(t, tbl, "2025-12-05")
	if _, ok := resumed["X"]; !ok {
		t.Errorf("snapshot(2025-12-05) should contain X")
	}
}

func TestSyncNullSafeEquality(t *testing.T) {
	ctx := context.Background()
	tbl := openTestTable(t, productSchema())

	withNull := func() []types.Row { return []types.Row{row("id", "A", "name", "Widget", "price", "")} }

	if _, err := tbl.Sync(ctx, "2025-01-01", staticFrame{withNull()}); err != nil {
		t.Fatalf("sync 01-01: %v", err)
	}
	stats, err := tbl.Sync(ctx, "2025-01-02", staticFrame{withNull()})
	if err != nil {
		t.Fatalf("sync 01-02: %v", err)
	}
	if stats.RowsUnchanged != 1 {
		t.Errorf("RowsUnchanged = %d, want 1", stats.RowsUnchanged)
	}
	n, err := tbl.RecordCount(ctx)
	if err != nil {
		t.Fatalf("RecordCount: %v", err)
	}
	if n != 1 {
		t.Errorf("RecordCount = %d, want 1", n)
	}

	stats, err = tbl.Sync(ctx, "2025-01-03", staticFrame{[]types.Row{row("id", "A", "name", "Widget", "price", "9.99")}})
	if err != nil {
		t.Fatalf("sync 01-03: %v", err)
	}
	if stats.RowsChanged != 1 {
		t.Errorf("RowsChanged = %d, want 1", stats.RowsChanged)
	}
	n, err = tbl.RecordCount(ctx)
	if err != nil {
		t.Fatalf("RecordCount: %v", err)
	}
	if n != 2 {
		t.Errorf("RecordCount = %d, want 2 after merging the unchanged pair", n)
	}
}

func TestSyncIdempotence(t *testing.T) {
	ctx := context.Background()
	tbl := openTestTable(t, productSchema())
	snap := []types.Row{
		row("id", "A", "name", "Widget", "price", "9.99"),
		row("id", "B", "name", "Gadget", "price", "1.00"),
	}

	if _, err := tbl.Sync(ctx, "2025-01-01", staticFrame{snap}); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	stats, err := tbl.Sync(ctx, "2025-01-01", staticFrame{snap})
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if stats.RowsUnchanged != len(snap) {
		t.Errorf("RowsUnchanged = %d, want %d", stats.RowsUnchanged, len(snap))
	}
	if stats.RowsNew+stats.RowsChanged+stats.RowsDeleted+stats.RowsReappeared+stats.RowsExtendedBack != 0 {
		t.Errorf("expected every other counter to be zero on a repeated sync, got %+v", stats)
	}
}

func TestSyncCompression(t *testing.T) {
	ctx := context.Background()
	tbl := openTestTable(t, productSchema())
	snap := []types.Row{
		row("id", "A", "name", "Widget", "price", "9.99"),
		row("id", "B", "name", "Gadget", "price", "1.00"),
	}

	for _, date := range []string{"2025-01-01", "2025-01-02", "2025-01-03"} {
		if _, err := tbl.Sync(ctx, date, staticFrame{snap}); err != nil {
			t.Fatalf("sync %s: %v", date, err)
		}
	}

	n, err := tbl.RecordCount(ctx)
	if err != nil {
		t.Fatalf("RecordCount: %v", err)
	}
	if n != len(snap) {
		t.Errorf("RecordCount = %d, want %d (one row per key)", n, len(snap))
	}
}

func TestSyncEmptySnapshotDeletesEveryKey(t *testing.T) {
	ctx := context.Background()
	tbl := openTestTable(t, productSchema())

	if _, err := tbl.Sync(ctx, "2025-01-01", staticFrame{[]types.Row{row("id", "A", "name", "Widget", "price", "9.99")}}); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	stats, err := tbl.Sync(ctx, "2025-01-02", staticFrame{nil})
	if err != nil {
		t.Fatalf("empty sync: %v", err)
	}
	if stats.RowsDeleted != 1 {
		t.Errorf("RowsDeleted = %d, want 1", stats.RowsDeleted)
	}

	gone := snapshotMap(t, tbl, "2025-01-02")
	if len(gone) != 0 {
		t.Errorf("snapshot(2025-01-02) = %v, want empty", gone)
	}
}

func TestSyncCompositeKey(t *testing.T) {
	ctx := context.Background()
	schema := types.Schema{TableName: "positions", KeyCols: []string{"account", "security_id"}, ValueCols: []string{"shares"}}
	tbl := openTestTable(t, schema)

	r := func(shares string) types.Row {
		return row("account", "acct1", "security_id", "sec1", "shares", shares)
	}

	if _, err := tbl.Sync(ctx, "2025-01-01", staticFrame{[]types.Row{r("100")}}); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	stats, err := tbl.Sync(ctx, "2025-01-02", staticFrame{[]types.Row{r("150")}})
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if stats.RowsChanged != 1 {
		t.Errorf("RowsChanged = %d, want 1", stats.RowsChanged)
	}
}

func TestSyncInvalidDate(t *testing.T) {
	ctx := context.Background()
	tbl := openTestTable(t, productSchema())

	_, err := tbl.Sync(ctx, "01-01-2025", staticFrame{nil})
	var invalidDate *InvalidDateError
	if err == nil {
		t.Fatal("expected an error for a malformed date")
	}
	if !asInvalidDateError(err, &invalidDate) {
		t.Errorf("expected *InvalidDateError, got %T: %v", err, err)
	}
}

func asInvalidDateError(err error, target **InvalidDateError) bool {
	if e, ok := err.(*InvalidDateError); ok {
		*target = e
		return true
	}
	return false
}
