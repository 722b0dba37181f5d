package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/maternal-assistant/repositories"
)

type txKey struct{}

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// conn returns the transaction bound to ctx, falling back to the pool
func conn(ctx context.Context, db *DB) queryer {
	if tx, ok := ctx.Value(txKey{}).(*Transaction); ok {
		return tx.tx
	}
	return db.DB
}

// TransactionManager opens read-committed transactions on the pool
type TransactionManager struct {
	db     *DB
	opts   *sql.TxOptions
	logger *zap.Logger
}

// NewTransactionManager creates a new transaction manager
func NewTransactionManager(db *DB, logger *zap.Logger) repositories.TransactionManager {
	return &TransactionManager{
		db:     db,
		opts:   &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		logger: logger,
	}
}

// Begin opens a transaction. Repository calls made with the returned
// transaction's Context join it.
func (tm *TransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	sqlTx, err := tm.db.BeginTx(ctx, tm.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	tx := &Transaction{tx: sqlTx, started: time.Now(), logger: tm.logger}
	tx.ctx = context.WithValue(ctx, txKey{}, tx)
	return tx, nil
}

// InTransaction commits when fn returns nil and rolls back otherwise
func (tm *TransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	tx, err := tm.Begin(ctx)
	if err != nil {
		return err
	}

	if err := fn(tx.Context(), tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			tm.logger.Error("failed to rollback transaction",
				zap.Error(rbErr),
				zap.NamedError("original_error", err),
			)
		}
		return err
	}
	return tx.Commit()
}

// Transaction is a *sql.Tx bound to the context it was opened with
type Transaction struct {
	tx      *sql.Tx
	ctx     context.Context
	started time.Time
	logger  *zap.Logger
}

func (t *Transaction) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	t.logger.Debug("transaction committed", zap.Duration("held", time.Since(t.started)))
	return nil
}

// Rollback is a no-op on a transaction that already finished
func (t *Transaction) Rollback() error {
	err := t.tx.Rollback()
	switch {
	case errors.Is(err, sql.ErrTxDone):
		return nil
	case err != nil:
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	t.logger.Debug("transaction rolled back", zap.Duration("held", time.Since(t.started)))
	return nil
}

func (t *Transaction) Context() context.Context {
	return t.ctx
}
