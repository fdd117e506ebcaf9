package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// withTx runs fn as one unit of work. The transaction is committed when fn
// returns nil and rolled back otherwise; either happens exactly once.
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrTransactionFailed, err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrTransactionFailed, err)
	}
	return nil
}

// forUpdate returns a row-lock suffix for drivers that support it. SQLite runs
// with a single connection, so its transactions are already serialized.
func forUpdate(q sqlx.QueryerContext) string {
	if ext, ok := q.(interface{ DriverName() string }); ok && ext.DriverName() == "mysql" {
		return " FOR UPDATE"
	}
	return ""
}
