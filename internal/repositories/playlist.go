package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/synclist/internal/models"
	"github.com/desertthunder/synclist/internal/shared"
)

// PlaylistRepository handles the local playlist mirror, including the share
// linkage and the per-playlist sync cursor.
type PlaylistRepository struct {
	db DBTX
}

// NewPlaylistRepository creates a new PlaylistRepository with the given database connection
func NewPlaylistRepository(db DBTX) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *PlaylistRepository) WithTx(tx DBTX) *PlaylistRepository {
	return &PlaylistRepository{db: tx}
}

// Create inserts a new local playlist. A missing id is generated; a missing
// created_at defaults to now.
func (r *PlaylistRepository) Create(ctx context.Context, playlist *models.LocalPlaylist) error {
	if playlist.Title == "" {
		return fmt.Errorf("%w: playlist title is required", shared.ErrValidation)
	}
	if playlist.ID == "" {
		playlist.ID = shared.GenerateID()
	}
	if playlist.CreatedAt == 0 {
		playlist.CreatedAt = shared.NowMillis()
	}
	if playlist.UpdatedAt == 0 {
		playlist.UpdatedAt = playlist.CreatedAt
	}

	query := `
		INSERT INTO playlists (id, share_id, role, title, description, cover_url, last_synced_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		playlist.ID,
		nullString(playlist.ShareID),
		nullString(string(playlist.Role)),
		playlist.Title,
		playlist.Description,
		playlist.CoverURL,
		playlist.LastSyncedAt,
		playlist.CreatedAt,
		playlist.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert playlist: %w", err)
	}

	return nil
}

// Get retrieves a live playlist by ID.
func (r *PlaylistRepository) Get(ctx context.Context, id string) (*models.LocalPlaylist, error) {
	query := `
		SELECT id, share_id, role, title, description, cover_url, last_synced_at, created_at, updated_at, deleted_at
		FROM playlists
		WHERE id = ? AND deleted_at IS NULL
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByShareID retrieves the local playlist linked to the given share.
func (r *PlaylistRepository) GetByShareID(ctx context.Context, shareID string) (*models.LocalPlaylist, error) {
	query := `
		SELECT id, share_id, role, title, description, cover_url, last_synced_at, created_at, updated_at, deleted_at
		FROM playlists
		WHERE share_id = ? AND deleted_at IS NULL
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, shareID))
}

// List retrieves all live local playlists in creation order.
func (r *PlaylistRepository) List(ctx context.Context) ([]*models.LocalPlaylist, error) {
	query := `
		SELECT id, share_id, role, title, description, cover_url, last_synced_at, created_at, updated_at, deleted_at
		FROM playlists
		WHERE deleted_at IS NULL
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists: %w", err)
	}
	defer rows.Close()

	var playlists []*models.LocalPlaylist
	for rows.Next() {
		playlist, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		playlists = append(playlists, playlist)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return playlists, nil
}

// ListShared retrieves every live playlist linked to a share, for the sync
// pull loop.
func (r *PlaylistRepository) ListShared(ctx context.Context) ([]*models.LocalPlaylist, error) {
	query := `
		SELECT id, share_id, role, title, description, cover_url, last_synced_at, created_at, updated_at, deleted_at
		FROM playlists
		WHERE share_id IS NOT NULL AND deleted_at IS NULL
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query shared playlists: %w", err)
	}
	defer rows.Close()

	var playlists []*models.LocalPlaylist
	for rows.Next() {
		playlist, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		playlists = append(playlists, playlist)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return playlists, nil
}

// UpdateMetadata records a local metadata edit. The caller supplies the
// operation timestamp, which becomes the playlist's LWW clock.
func (r *PlaylistRepository) UpdateMetadata(ctx context.Context, id, title, description, coverURL string, updatedAt int64) error {
	if title == "" {
		return fmt.Errorf("%w: playlist title is required", shared.ErrValidation)
	}

	query := `
		UPDATE playlists
		SET title = ?, description = ?, cover_url = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, title, description, coverURL, updatedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update playlist metadata: %w", err)
	}
	return requireRow(result, id)
}

// ApplyRemoteMetadata merges a pulled metadata tuple, accepting it only when
// it is newer than the stored one.
func (r *PlaylistRepository) ApplyRemoteMetadata(ctx context.Context, id string, metadata models.Metadata) error {
	query := `
		UPDATE playlists
		SET title = ?, description = ?, cover_url = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL AND updated_at < ?
	`

	_, err := r.db.ExecContext(ctx, query,
		metadata.Title, metadata.Description, metadata.CoverURL, metadata.UpdatedAt,
		id, metadata.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to apply remote metadata: %w", err)
	}
	return nil
}

// MarkShared links a local playlist to its server-side share and seeds the
// sync cursor.
func (r *PlaylistRepository) MarkShared(ctx context.Context, id, shareID string, role models.Role, cursor int64) error {
	query := `
		UPDATE playlists
		SET share_id = ?, role = ?, last_synced_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, shareID, string(role), cursor, id)
	if err != nil {
		return fmt.Errorf("failed to mark playlist shared: %w", err)
	}
	return requireRow(result, id)
}

// ClearShare detaches a playlist from its server-side share, demoting it back
// to a purely local playlist. Track data is untouched.
func (r *PlaylistRepository) ClearShare(ctx context.Context, id string) error {
	query := `
		UPDATE playlists
		SET share_id = NULL, role = NULL, last_synced_at = 0
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to clear share linkage: %w", err)
	}
	return requireRow(result, id)
}

// SetCursor advances the playlist's sync cursor. Callers must run this in the
// same transaction as the rows the cursor covers.
func (r *PlaylistRepository) SetCursor(ctx context.Context, id string, cursor int64) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE playlists SET last_synced_at = ? WHERE id = ? AND deleted_at IS NULL",
		cursor, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set sync cursor: %w", err)
	}
	return requireRow(result, id)
}

// Delete removes a local playlist outright. Link rows and queued operations
// go with it via cascade; the track pool is left alone since tracks may be
// referenced by other playlists.
func (r *PlaylistRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM playlists WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}
	return requireRow(result, id)
}

// scanOne scans a single row into a [models.LocalPlaylist]
func (r *PlaylistRepository) scanOne(row *sql.Row) (*models.LocalPlaylist, error) {
	var (
		playlist  models.LocalPlaylist
		shareID   sql.NullString
		role      sql.NullString
		deletedAt sql.NullInt64
	)

	err := row.Scan(
		&playlist.ID, &shareID, &role,
		&playlist.Title, &playlist.Description, &playlist.CoverURL,
		&playlist.LastSyncedAt, &playlist.CreatedAt, &playlist.UpdatedAt, &deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: playlist not found", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan playlist: %w", err)
	}

	playlist.ShareID = shareID.String
	playlist.Role = models.Role(role.String)
	if deletedAt.Valid {
		playlist.DeletedAt = &deletedAt.Int64
	}
	return &playlist, nil
}

// scanRow scans a row from [sql.Rows] into a [models.LocalPlaylist]
func (r *PlaylistRepository) scanRow(rows *sql.Rows) (*models.LocalPlaylist, error) {
	var (
		playlist  models.LocalPlaylist
		shareID   sql.NullString
		role      sql.NullString
		deletedAt sql.NullInt64
	)

	err := rows.Scan(
		&playlist.ID, &shareID, &role,
		&playlist.Title, &playlist.Description, &playlist.CoverURL,
		&playlist.LastSyncedAt, &playlist.CreatedAt, &playlist.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan playlist: %w", err)
	}

	playlist.ShareID = shareID.String
	playlist.Role = models.Role(role.String)
	if deletedAt.Valid {
		playlist.DeletedAt = &deletedAt.Int64
	}
	return &playlist, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// requireRow converts a zero-row update into NotFound.
func requireRow(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: playlist %s", shared.ErrNotFound, id)
	}
	return nil
}
