package repository

import (
	"context"

	"gorm.io/gorm"
)

type ctxKey int

const ledgerTxKey ctxKey = iota

// TransactionManager runs a function inside a database transaction that is
// carried through the context. Every multi-row ledger write (transaction
// insert + balance update + promotion usage) goes through RunInTx so a crash
// or a concurrent conflicting request cannot leave the balance and ledger
// out of sync.
type TransactionManager interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

type transactionManager struct {
	db *gorm.DB
}

func NewTransactionManager(db *gorm.DB) TransactionManager {
	return &transactionManager{db: db}
}

func (t *transactionManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, ledgerTxKey, tx))
	})
}

// GetDB returns the in-flight transaction handle when the context carries
// one, falling back to the root connection.
func GetDB(ctx context.Context, rootDB *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(ledgerTxKey).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return rootDB.WithContext(ctx)
}
