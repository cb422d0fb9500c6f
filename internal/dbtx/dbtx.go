// Package dbtx propagates the active *gorm.DB transaction through a
// context.Context, so the publish middleware's event router can write to
// the outbox inside the same transaction the transaction middleware opened
// around the command handler, without either package importing the other.
package dbtx

import (
	"context"

	"gorm.io/gorm"
)

type ctxKey struct{}

// Into attaches tx to ctx.
func Into(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, ctxKey{}, tx)
}

// From returns the transaction attached by Into, or fallback if none is
// present — e.g. when a command isn't marked transactional and the publish
// middleware runs against the plain *gorm.DB handle.
func From(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(ctxKey{}).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return fallback
}
