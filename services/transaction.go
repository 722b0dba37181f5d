package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/upb/maternal-assistant/repositories"
)

// WithTransaction runs fn inside a transaction opened by txMgr and hands it
// the transaction's context, so repository calls made with it join the
// transaction. It commits when fn returns nil and rolls back on error or
// panic. A failed rollback is joined to fn's error.
func WithTransaction(ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context, tx repositories.Transaction) error) (err error) {
	tx, err := txMgr.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	finished := false
	defer func() {
		if finished {
			return
		}
		p := recover()
		if rbErr := tx.Rollback(); rbErr != nil && p == nil {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		if p != nil {
			panic(p)
		}
	}()

	txCtx := tx.Context()
	if txCtx == nil {
		txCtx = ctx
	}

	if err = fn(txCtx, tx); err != nil {
		return err
	}

	finished = true
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
