package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/synclist/internal/models"
	"github.com/desertthunder/synclist/internal/shared"
)

// TrackRepository handles the deduplicated track pool and the per-playlist
// link rows.
//
// Local mutations apply unconditionally; the ApplyRemote methods carry the
// LWW gate so pulled events never clobber newer local edits.
type TrackRepository struct {
	db DBTX
}

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db DBTX) *TrackRepository {
	return &TrackRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *TrackRepository) WithTx(tx DBTX) *TrackRepository {
	return &TrackRepository{db: tx}
}

// Upsert merges a track's display metadata into the pool. Latest write wins;
// the metadata is cosmetic and carries no timestamp gate.
func (r *TrackRepository) Upsert(ctx context.Context, track models.Track) error {
	if track.Key == "" {
		return fmt.Errorf("%w: track key is required", shared.ErrValidation)
	}

	query := `
		INSERT INTO tracks (key, title, artist, album, cover_url, duration_ms, source, source_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			title = excluded.title,
			artist = excluded.artist,
			album = excluded.album,
			cover_url = excluded.cover_url,
			duration_ms = excluded.duration_ms,
			source = excluded.source,
			source_id = excluded.source_id
	`

	_, err := r.db.ExecContext(ctx, query,
		track.Key, track.Title, track.Artist, track.Album,
		track.CoverURL, track.DurationMs, track.Source, track.SourceID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert track: %w", err)
	}
	return nil
}

// Get retrieves a track from the pool by content key.
func (r *TrackRepository) Get(ctx context.Context, key string) (*models.Track, error) {
	query := `
		SELECT key, title, artist, album, cover_url, duration_ms, source, source_id
		FROM tracks
		WHERE key = ?
	`

	var track models.Track
	err := r.db.QueryRowContext(ctx, query, key).Scan(
		&track.Key, &track.Title, &track.Artist, &track.Album,
		&track.CoverURL, &track.DurationMs, &track.Source, &track.SourceID,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: track %s", shared.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}
	return &track, nil
}

// SetLink writes a link row for a local add or reorder. The write is
// unconditional: local operations always apply locally.
func (r *TrackRepository) SetLink(ctx context.Context, playlistID, trackKey, sortKey string, updatedAt int64) error {
	query := `
		INSERT INTO playlist_tracks (playlist_id, track_key, sort_key, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, NULL)
		ON CONFLICT(playlist_id, track_key) DO UPDATE SET
			sort_key = excluded.sort_key,
			updated_at = excluded.updated_at,
			deleted_at = NULL
	`

	_, err := r.db.ExecContext(ctx, query, playlistID, trackKey, sortKey, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to set playlist track: %w", err)
	}
	return nil
}

// RemoveLink soft-deletes a link row for a local remove.
func (r *TrackRepository) RemoveLink(ctx context.Context, playlistID, trackKey string, removedAt int64) error {
	query := `
		UPDATE playlist_tracks
		SET deleted_at = ?, updated_at = ?
		WHERE playlist_id = ? AND track_key = ? AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, removedAt, removedAt, playlistID, trackKey)
	if err != nil {
		return fmt.Errorf("failed to remove playlist track: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: track %s is not in playlist %s", shared.ErrNotFound, trackKey, playlistID)
	}
	return nil
}

// GetLink retrieves a link row regardless of deletion state.
func (r *TrackRepository) GetLink(ctx context.Context, playlistID, trackKey string) (*models.PlaylistTrack, error) {
	query := `
		SELECT playlist_id, track_key, sort_key, updated_at, deleted_at
		FROM playlist_tracks
		WHERE playlist_id = ? AND track_key = ?
	`

	var (
		link      models.PlaylistTrack
		deletedAt sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, query, playlistID, trackKey).Scan(
		&link.PlaylistID, &link.TrackKey, &link.SortKey, &link.UpdatedAt, &deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: track %s is not in playlist %s", shared.ErrNotFound, trackKey, playlistID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan playlist track: %w", err)
	}
	if deletedAt.Valid {
		link.DeletedAt = &deletedAt.Int64
	}
	return &link, nil
}

// ListLinks retrieves the live link rows of a playlist in sort order.
func (r *TrackRepository) ListLinks(ctx context.Context, playlistID string) ([]*models.PlaylistTrack, error) {
	query := `
		SELECT playlist_id, track_key, sort_key, updated_at, deleted_at
		FROM playlist_tracks
		WHERE playlist_id = ? AND deleted_at IS NULL
		ORDER BY sort_key ASC
	`

	rows, err := r.db.QueryContext(ctx, query, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist tracks: %w", err)
	}
	defer rows.Close()

	var links []*models.PlaylistTrack
	for rows.Next() {
		var (
			link      models.PlaylistTrack
			deletedAt sql.NullInt64
		)
		err := rows.Scan(&link.PlaylistID, &link.TrackKey, &link.SortKey, &link.UpdatedAt, &deletedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan playlist track: %w", err)
		}
		if deletedAt.Valid {
			link.DeletedAt = &deletedAt.Int64
		}
		links = append(links, &link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return links, nil
}

// ListTracks retrieves the live tracks of a playlist with their display
// metadata, in sort order.
func (r *TrackRepository) ListTracks(ctx context.Context, playlistID string) ([]*models.Track, error) {
	query := `
		SELECT t.key, t.title, t.artist, t.album, t.cover_url, t.duration_ms, t.source, t.source_id
		FROM playlist_tracks pt
		JOIN tracks t ON t.key = pt.track_key
		WHERE pt.playlist_id = ? AND pt.deleted_at IS NULL
		ORDER BY pt.sort_key ASC
	`

	rows, err := r.db.QueryContext(ctx, query, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*models.Track
	for rows.Next() {
		var track models.Track
		err := rows.Scan(
			&track.Key, &track.Title, &track.Artist, &track.Album,
			&track.CoverURL, &track.DurationMs, &track.Source, &track.SourceID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		tracks = append(tracks, &track)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return tracks, nil
}

// LastSortKey returns the highest live sort key of a playlist, or an empty
// string for an empty playlist. Used to place appended tracks.
func (r *TrackRepository) LastSortKey(ctx context.Context, playlistID string) (string, error) {
	var sortKey string
	err := r.db.QueryRowContext(ctx, `
		SELECT sort_key FROM playlist_tracks
		WHERE playlist_id = ? AND deleted_at IS NULL
		ORDER BY sort_key DESC LIMIT 1
	`, playlistID).Scan(&sortKey)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query last sort key: %w", err)
	}
	return sortKey, nil
}

// ApplyRemoteUpsert merges a pulled upsert event into the mirror. The link
// write is gated on updated_at; the pool write is not.
func (r *TrackRepository) ApplyRemoteUpsert(ctx context.Context, playlistID string, track models.Track, sortKey string, updatedAt int64) error {
	if err := r.Upsert(ctx, track); err != nil {
		return err
	}

	query := `
		INSERT INTO playlist_tracks (playlist_id, track_key, sort_key, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, NULL)
		ON CONFLICT(playlist_id, track_key) DO UPDATE SET
			sort_key = excluded.sort_key,
			updated_at = excluded.updated_at,
			deleted_at = NULL
		WHERE playlist_tracks.updated_at < excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, query, playlistID, track.Key, sortKey, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to apply remote upsert: %w", err)
	}
	return nil
}

// ApplyRemoteDelete merges a pulled delete tombstone, gated on updated_at. A
// tombstone for an unknown link is a no-op.
func (r *TrackRepository) ApplyRemoteDelete(ctx context.Context, playlistID, trackKey string, deletedAt int64) error {
	query := `
		UPDATE playlist_tracks
		SET deleted_at = ?, updated_at = ?
		WHERE playlist_id = ? AND track_key = ? AND updated_at < ?
	`

	_, err := r.db.ExecContext(ctx, query, deletedAt, deletedAt, playlistID, trackKey, deletedAt)
	if err != nil {
		return fmt.Errorf("failed to apply remote delete: %w", err)
	}
	return nil
}
