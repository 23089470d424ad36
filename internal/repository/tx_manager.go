package repository

import (
	"context"
	"errors"

	"prs/internal/database"

	"gorm.io/gorm"
)

type contextKey string

const txKey contextKey = "gorm_tx"

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a write breaks a unique index.
	ErrDuplicate = errors.New("duplicate key")
	// ErrInUse is returned when a delete is blocked by rows that still reference the target.
	ErrInUse = errors.New("record is still referenced")
	// ErrStaleVersion is returned when a conditional write finds a newer version of the row.
	ErrStaleVersion = errors.New("stale version")
)

// TransactionManager manages database transactions via context injection.
type TransactionManager interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

// maxTxAttempts bounds reruns of an outermost transaction lost to a deadlock or serialization failure.
const maxTxAttempts = 3

type transactionManager struct {
	db *gorm.DB
}

func NewTransactionManager(db *gorm.DB) TransactionManager {
	return &transactionManager{db: db}
}

// RunInTx joins an outer transaction already carried by ctx, otherwise starts a new one.
// fn may run more than once, so it must not keep state between calls.
func (t *transactionManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if _, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return fn(ctx)
	}

	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			txCtx := context.WithValue(ctx, txKey, tx)
			return fn(txCtx)
		})
		if err == nil || !database.IsRetryable(err) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

// GetDB extracts the transaction DB from context if present, otherwise returns root DB.
func GetDB(ctx context.Context, rootDB *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return rootDB.WithContext(ctx)
}

// translate maps gorm's translated errors onto the repository sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return ErrInUse
	}
	return err
}
