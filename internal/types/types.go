// Package types holds the data shapes shared across the scdtable packages:
// the row representation exchanged between the Frame Normalizer and the
// Classifier, the schema descriptor the Schema Manager enforces, and the
// per-sync statistics record returned to callers.
package types

import "fmt"

// Row is one entity's attributes, keyed by column name (case-sensitive,
// already normalized by the Frame Normalizer). A nil value means SQL NULL.
// Key columns are always non-nil, non-empty strings; value columns may be
// nil.
type Row map[string]*string

// Key extracts the row's key tuple, in the schema's declared key order, as
// a single comparable string for use as a map key during classification.
func (r Row) Key(keyCols []string) string {
	s := ""
	for i, k := range keyCols {
		if i > 0 {
			s += "\x1f"
		}
		if v := r[k]; v != nil {
			s += *v
		}
	}
	return s
}

// Str is a convenience constructor for a non-NULL string pointer, used by
// callers building Rows by hand (tests, CLI frame decoding).
func Str(s string) *string {
	return &s
}

// Schema describes one versioned table: its name and the ordered key and
// value columns declared at construction time. It is immutable after
// Table construction.
type Schema struct {
	TableName string
	KeyCols   []string
	ValueCols []string
}

// AllCols returns KeyCols followed by ValueCols, the column order used for
// INSERT ... SELECT statements throughout the Mutator.
func (s Schema) AllCols() []string {
	out := make([]string, 0, len(s.KeyCols)+len(s.ValueCols))
	out = append(out, s.KeyCols...)
	out = append(out, s.ValueCols...)
	return out
}

// MetadataTable returns the name of this schema's companion sync-metadata
// table, "<table>_sync_metadata".
func (s Schema) MetadataTable() string {
	return s.TableName + "_sync_metadata"
}

func (s Schema) String() string {
	return fmt.Sprintf("%s(keys=%v, values=%v)", s.TableName, s.KeyCols, s.ValueCols)
}

// SyncStats is the per-sync output record described in the external
// interface: one row per disposition class, plus the total snapshot size.
type SyncStats struct {
	Date             string `json:"date"`
	RowsTotal        int    `json:"rows_total"`
	RowsNew          int    `json:"rows_new"`
	RowsChanged      int    `json:"rows_changed"`
	RowsDeleted      int    `json:"rows_deleted"`
	RowsUnchanged    int    `json:"rows_unchanged"`
	RowsExtendedBack int    `json:"rows_extended_back"`
	RowsReappeared   int    `json:"rows_reappeared"`
}
