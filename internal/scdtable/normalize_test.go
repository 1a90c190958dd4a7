package scdtable

import (
	"testing"

	"github.com/scduck/scduck/internal/frame"
	"github.com/scduck/scduck/internal/types"
)

type recordsFrame struct{ records []map[string]*string }

func (f recordsFrame) Records() ([]map[string]*string, error) { return f.records, nil }

func TestNormalizeFoldsColumnNames(t *testing.T) {
	schema := types.Schema{TableName: "t", KeyCols: []string{"security_id"}, ValueCols: []string{"ticker_symbol"}}
	f := recordsFrame{records: []map[string]*string{
		{"Security-ID": types.Str("A"), "TickerSymbol": types.Str("WID")},
	}}

	rows, err := normalize(f, schema)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if got := rows[0]["security_id"]; got == nil || *got != "A" {
		t.Errorf("security_id = %v, want A", got)
	}
	if got := rows[0]["ticker_symbol"]; got == nil || *got != "WID" {
		t.Errorf("ticker_symbol = %v, want WID", got)
	}
}

func TestNormalizeFillsMissingColumnsWithNull(t *testing.T) {
	schema := types.Schema{TableName: "t", KeyCols: []string{"id"}, ValueCols: []string{"name", "price"}}
	f := recordsFrame{records: []map[string]*string{
		{"id": types.Str("A"), "name": types.Str("Widget")},
	}}

	rows, err := normalize(f, schema)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if rows[0]["price"] != nil {
		t.Errorf("price = %v, want nil", rows[0]["price"])
	}
}

func TestNormalizeDropsExtraColumns(t *testing.T) {
	schema := types.Schema{TableName: "t", KeyCols: []string{"id"}, ValueCols: []string{"name"}}
	f := recordsFrame{records: []map[string]*string{
		{"id": types.Str("A"), "name": types.Str("Widget"), "extra": types.Str("ignored")},
	}}

	rows, err := normalize(f, schema)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if _, ok := rows[0]["extra"]; ok {
		t.Errorf("expected extra column to be dropped, got %v", rows[0])
	}
}

func TestDedupeLastWins(t *testing.T) {
	keyCols := []string{"id"}
	rows := []types.Row{
		row("id", "A", "name", "first"),
		row("id", "A", "name", "second"),
	}
	deduped := dedupeLastWins(rows, keyCols)
	if len(deduped) != 1 {
		t.Fatalf("got %d rows, want 1", len(deduped))
	}
	if got := strVal(deduped[0], "name"); got != "second" {
		t.Errorf("name = %q, want second (last occurrence wins)", got)
	}
}

var _ frame.Frame = recordsFrame{}
