package repositories

import (
	"context"
	"fmt"

	"github.com/desertthunder/synclist/internal/models"
	"github.com/desertthunder/synclist/internal/shared"
)

// QueueRepository handles the durable sync outbox. Rows are written in the
// same transaction as the local mutation they describe and move
// pending → syncing → done or failed.
type QueueRepository struct {
	db DBTX
}

// NewQueueRepository creates a new QueueRepository with the given database connection
func NewQueueRepository(db DBTX) *QueueRepository {
	return &QueueRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *QueueRepository) WithTx(tx DBTX) *QueueRepository {
	return &QueueRepository{db: tx}
}

// Enqueue inserts a new pending outbox row. A missing id is generated.
func (r *QueueRepository) Enqueue(ctx context.Context, row *models.QueueRow) error {
	if row.PlaylistID == "" {
		return fmt.Errorf("%w: queue row requires a playlist id", shared.ErrValidation)
	}
	if _, err := models.DecodePayload(row.Operation, row.Payload); err != nil {
		return err
	}
	if row.ID == "" {
		row.ID = shared.GenerateID()
	}
	if row.OperationAt == 0 {
		row.OperationAt = shared.NowMillis()
	}
	if row.CreatedAt == 0 {
		row.CreatedAt = row.OperationAt
	}
	row.Status = models.StatusPending

	query := `
		INSERT INTO sync_queue (id, playlist_id, operation, payload, operation_at, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		row.ID, row.PlaylistID, string(row.Operation), string(row.Payload),
		row.OperationAt, string(row.Status), row.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue operation: %w", err)
	}
	return nil
}

// Pending retrieves every pending row ordered by playlist then operation
// time, the order the sync worker consumes them in.
func (r *QueueRepository) Pending(ctx context.Context) ([]*models.QueueRow, error) {
	return r.list(ctx, `
		SELECT id, playlist_id, operation, payload, operation_at, status, created_at
		FROM sync_queue
		WHERE status = 'pending'
		ORDER BY playlist_id ASC, operation_at ASC, created_at ASC
	`)
}

// PendingForPlaylist retrieves the pending rows of one playlist in operation
// order.
func (r *QueueRepository) PendingForPlaylist(ctx context.Context, playlistID string) ([]*models.QueueRow, error) {
	return r.list(ctx, `
		SELECT id, playlist_id, operation, payload, operation_at, status, created_at
		FROM sync_queue
		WHERE status = 'pending' AND playlist_id = ?
		ORDER BY operation_at ASC, created_at ASC
	`, playlistID)
}

// MarkStatus transitions the given rows to a new status.
func (r *QueueRepository) MarkStatus(ctx context.Context, ids []string, status models.QueueStatus) error {
	if len(ids) == 0 {
		return nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, string(status))
	for _, id := range ids {
		args = append(args, id)
	}

	query := fmt.Sprintf("UPDATE sync_queue SET status = ? WHERE id IN (%s)", placeholders(len(ids)))
	_, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to mark queue rows %s: %w", status, err)
	}
	return nil
}

// RecoverStuck resets rows left in syncing by a crash back to pending, and
// returns how many were recovered. Run once at startup before any sync pass.
func (r *QueueRepository) RecoverStuck(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, "UPDATE sync_queue SET status = 'pending' WHERE status = 'syncing'")
	if err != nil {
		return 0, fmt.Errorf("failed to recover stuck queue rows: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows, nil
}

// Counts returns the number of rows per status, for status reporting.
func (r *QueueRepository) Counts(ctx context.Context) (map[models.QueueStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM sync_queue GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count queue rows: %w", err)
	}
	defer rows.Close()

	counts := map[models.QueueStatus]int{}
	for rows.Next() {
		var (
			status models.QueueStatus
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan queue count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return counts, nil
}

// DeleteForPlaylist drops every queue row of a playlist, used when the
// playlist is detached from its share.
func (r *QueueRepository) DeleteForPlaylist(ctx context.Context, playlistID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM sync_queue WHERE playlist_id = ?", playlistID)
	if err != nil {
		return fmt.Errorf("failed to delete queue rows: %w", err)
	}
	return nil
}

// Prune deletes finished rows, keeping the outbox small. Failed rows are kept
// for inspection.
func (r *QueueRepository) Prune(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM sync_queue WHERE status = 'done'")
	if err != nil {
		return 0, fmt.Errorf("failed to prune queue: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows, nil
}

func (r *QueueRepository) list(ctx context.Context, query string, args ...any) ([]*models.QueueRow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync queue: %w", err)
	}
	defer rows.Close()

	var queued []*models.QueueRow
	for rows.Next() {
		var (
			row     models.QueueRow
			payload string
		)
		err := rows.Scan(&row.ID, &row.PlaylistID, &row.Operation, &payload, &row.OperationAt, &row.Status, &row.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue row: %w", err)
		}
		row.Payload = []byte(payload)
		queued = append(queued, &row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return queued, nil
}
