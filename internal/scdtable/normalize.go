package scdtable

import (
	"strings"

	"github.com/scduck/scduck/internal/frame"
	"github.com/scduck/scduck/internal/types"
)

// foldName lowercases a column name and strips '-' and '_', so that
// "Security-ID", "security_id", and "SecurityId" all compare equal for
// the purpose of matching input columns to declared schema columns.
func foldName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", "")
	name = strings.ReplaceAll(name, "_", "")
	return name
}

// normalize restricts f to exactly schema's declared key+value columns,
// in declared order, matching input column names case- and
// separator-insensitively. Extra input columns are dropped; declared
// columns absent from the input are filled with NULL (nil). normalize
// runs against an already-decoded Frame; format-detection failures
// (*frame.KindError) surface earlier, from frame.Decode.
func normalize(f frame.Frame, schema types.Schema) ([]types.Row, error) {
	raw, err := f.Records()
	if err != nil {
		return nil, &EngineError{Op: "normalize: read frame records", Err: err}
	}

	allCols := schema.AllCols()
	folded := make([]string, len(allCols))
	for i, c := range allCols {
		folded[i] = foldName(c)
	}

	rows := make([]types.Row, 0, len(raw))
	for _, rec := range raw {
		// Build a lookup from folded input column name to raw value,
		// so the declared column order (not the input's) drives output.
		byFolded := make(map[string]*string, len(rec))
		for k, v := range rec {
			byFolded[foldName(k)] = v
		}

		row := make(types.Row, len(allCols))
		for i, declared := range allCols {
			row[declared] = byFolded[folded[i]]
		}
		rows = append(rows, row)
	}
	return rows, nil
}
