package scdtable

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scduck/scduck/internal/debug"
)

// runInTxn wraps fn in BEGIN/COMMIT/ROLLBACK: the whole sync happens
// inside one transaction, any error triggers ROLLBACK,
// and the scratch relations (created as TEMP tables, hence transactional
// DDL under SQLite) are dropped before COMMIT so a pooled connection
// never carries stale scratch state into a later sync. No nested
// transactions are ever opened.
func runInTxn(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return &EngineError{Op: "runInTxn: begin", Err: err}
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		debug.Logf("sync failed, rolling back: %v", err)
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}

	if err = dropScratchTables(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err = tx.Commit(); err != nil {
		return &EngineError{Op: "runInTxn: commit", Err: err}
	}
	return nil
}

func dropScratchTables(ctx context.Context, tx *sql.Tx) error {
	for _, name := range []string{"_incoming", "_covering", "_next", "_prev", "_deletions"} {
		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+name); err != nil {
			return &EngineError{Op: "dropScratchTables: drop " + name, Err: err}
		}
	}
	return nil
}
