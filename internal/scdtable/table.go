package scdtable

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scduck/scduck/internal/debug"
	"github.com/scduck/scduck/internal/frame"
	"github.com/scduck/scduck/internal/types"
)

const dateLayout = "2006-01-02"

// Table is one bitemporal versioned table over an embedded SQL engine: the
// public entry point wiring together the Schema Manager, Frame Normalizer,
// Classifier, Mutator, Deletion Reconciler, Transaction Driver, and Query
// Surface. A Table serializes its own Sync calls with an internal mutex;
// serializing access across separate processes sharing one database file
// remains the caller's responsibility.
type Table struct {
	db     *sql.DB
	schema types.Schema

	mu sync.Mutex
}

// Open validates schema and ensures the underlying tables exist, returning
// a ready-to-use Table backed by db.
func Open(ctx context.Context, db *sql.DB, schema types.Schema) (*Table, error) {
	if schema.TableName == "" {
		return nil, &SchemaConflictError{Table: schema.TableName, Reason: "table name must not be empty"}
	}
	if len(schema.KeyCols) == 0 {
		return nil, &SchemaConflictError{Table: schema.TableName, Reason: "at least one key column is required"}
	}
	if err := ensureSchema(ctx, db, schema); err != nil {
		return nil, err
	}
	return &Table{db: db, schema: schema}, nil
}

// Close releases the underlying database handle. A Table should not be
// used after Close returns.
func (t *Table) Close() error {
	return t.db.Close()
}

// Sync applies one incoming snapshot, as of date (YYYY-MM-DD), against the
// versioned table: classifying every key into its disposition, applying
// each class's writes, reconciling deletions, and recording sync metadata
// — all inside a single transaction. date need not be the latest date ever
// synced; syncing an earlier date re-derives history as if the snapshots
// had arrived in date order, and repeating a date already synced with
// identical input is a no-op against the stored state.
func (t *Table) Sync(ctx context.Context, date string, f frame.Frame) (types.SyncStats, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	runID := uuid.NewString()
	debug.Logft(runID, "sync %s/%s starting", t.schema.TableName, date)

	if _, err := time.Parse(dateLayout, date); err != nil {
		return types.SyncStats{}, &InvalidDateError{Value: date, Err: err}
	}

	rows, err := normalize(f, t.schema)
	if err != nil {
		return types.SyncStats{}, err
	}

	stats := types.SyncStats{Date: date, RowsTotal: len(rows)}

	err = runInTxn(ctx, t.db, func(tx *sql.Tx) error {
		if err := loadIncoming(ctx, tx, t.schema, rows); err != nil {
			return err
		}
		if err := buildCovering(ctx, tx, t.schema, date); err != nil {
			return err
		}
		if err := buildNext(ctx, tx, t.schema, date); err != nil {
			return err
		}
		if err := buildPrev(ctx, tx, t.schema, date); err != nil {
			return err
		}

		unchanged, extendBack, splitBeforeNext, reappeared, err := computeCounts(ctx, tx, t.schema)
		if err != nil {
			return err
		}
		changed, err := countChanged(ctx, tx, t.schema)
		if err != nil {
			return err
		}

		if err := applyClass2(ctx, tx, t.schema, date); err != nil {
			return err
		}
		if err := applyClass3a(ctx, tx, t.schema, date); err != nil {
			return err
		}
		if err := applyClass3b(ctx, tx, t.schema, date); err != nil {
			return err
		}
		if err := applyClass4(ctx, tx, t.schema, date); err != nil {
			return err
		}
		newCount, err := applyClass5(ctx, tx, t.schema, date)
		if err != nil {
			return err
		}

		deletedCount, err := reconcileDeletions(ctx, tx, t.schema, date)
		if err != nil {
			return err
		}

		stats.RowsUnchanged = unchanged
		stats.RowsChanged = changed + splitBeforeNext
		stats.RowsExtendedBack = extendBack
		stats.RowsReappeared = reappeared
		stats.RowsNew = newCount
		stats.RowsDeleted = deletedCount

		return recordMetadata(ctx, tx, t.schema, date, time.Now().UTC().Format(time.RFC3339), len(rows))
	})
	if err != nil {
		return types.SyncStats{}, err
	}

	debug.Logft(runID, "sync %s/%s complete: %+v", t.schema.TableName, date, stats)
	return stats, nil
}

// Snapshot returns every row valid as of date, ordered by key.
func (t *Table) Snapshot(ctx context.Context, date string) ([]types.Row, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, &InvalidDateError{Value: date, Err: err}
	}
	return snapshot(ctx, t.db, t.schema, date)
}

// SyncedDates returns every date this table has been synced for, ascending.
func (t *Table) SyncedDates(ctx context.Context) ([]string, error) {
	return syncedDates(ctx, t.db, t.schema)
}

// RecordCount returns the total number of stored rows (every version of
// every key, not just the current snapshot).
func (t *Table) RecordCount(ctx context.Context) (int, error) {
	return recordCount(ctx, t.db, t.schema)
}

// Schema returns the table's declared schema.
func (t *Table) Schema() types.Schema {
	return t.schema
}
