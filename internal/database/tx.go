package database

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// TxFunc is executed inside a writer transaction.
type TxFunc func(ctx context.Context, tx bun.Tx) error

// RunInTx runs fn in a single writer transaction, rolling back on any error.
func (c *Connections) RunInTx(ctx context.Context, fn TxFunc) error {
	return c.Writer.RunInTx(ctx, nil, fn)
}

// ForUpdate adds an exclusive row lock to q. SQLite has no row locks and
// serialises writers at the database level, so the clause is skipped there.
func ForUpdate(db bun.IDB, q *bun.SelectQuery) *bun.SelectQuery {
	if db.Dialect().Name() == dialect.SQLite {
		return q
	}
	return q.For("UPDATE")
}
