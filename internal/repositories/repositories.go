// package repositories provides the persistence layer of the client-side
// mirror: local playlists, the track pool, link rows, and the durable sync
// queue.
//
// Local mutations write here first and enqueue an outbox row in the same
// transaction. Remote state is merged through the ApplyRemote methods, which
// gate on the stored updated_at so a stale event never overwrites newer local
// state.
package repositories

import (
	"context"
	"database/sql"
	"strings"
)

// DBTX is the subset of [sql.DB] and [sql.Tx] the repositories use. Holding
// the interface lets the same repository run standalone or inside a caller's
// transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// placeholders builds a "?, ?, ?" list for IN clauses.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
