package repository

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// Transactor runs work inside a database transaction carried by the context.
// Repositories pick the transaction up from the context, so everything fn
// does commits or rolls back together. Nested calls become savepoints.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type gormTransactor struct {
	db *gorm.DB
}

func NewTransactor(db *gorm.DB) Transactor {
	return &gormTransactor{
		db: db,
	}
}

func (t *gormTransactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return conn(ctx, t.db).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// conn returns the transaction in ctx, or db bound to ctx.
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}
