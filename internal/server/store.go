package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/desertthunder/synclist/internal/models"
	"github.com/desertthunder/synclist/internal/shared"
)

// Store provides access to the server's authoritative database.
//
// Every mutation that participates in conflict resolution is gated on the
// stored updated_at inside a single transaction, so a stale operation is
// silently dropped rather than overwriting newer state.
type Store struct {
	db *sql.DB
}

// NewStore creates a new Store with the given database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureUser inserts or updates a user row, keyed by id. Used to provision
// bearer identities; the engine itself never creates users.
func (s *Store) EnsureUser(ctx context.Context, id, name, token string) error {
	query := `
		INSERT INTO users (id, name, token, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, token = excluded.token
	`
	if _, err := s.db.ExecContext(ctx, query, id, name, token, shared.NowMillis()); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// ResolveToken maps a bearer token to the stable actor identity it carries.
func (s *Store) ResolveToken(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, "SELECT id FROM users WHERE token = ?", token).Scan(&userID)
	if err == sql.ErrNoRows {
		return "", shared.ErrUnauthorized
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve token: %w", err)
	}
	return userID, nil
}

// memberRole returns the actor's role on a live playlist. A missing or
// soft-deleted playlist and a missing membership both surface as NotFound,
// which clients must treat as terminal.
func (s *Store) memberRole(ctx context.Context, playlistID, userID string) (models.Role, error) {
	var deletedAt sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT deleted_at FROM playlists WHERE id = ?", playlistID).Scan(&deletedAt)
	if err == sql.ErrNoRows {
		return "", shared.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to query playlist: %w", err)
	}
	if deletedAt.Valid {
		return "", shared.ErrNotFound
	}

	var role models.Role
	err = s.db.QueryRowContext(ctx,
		"SELECT role FROM members WHERE playlist_id = ? AND user_id = ?",
		playlistID, userID,
	).Scan(&role)
	if err == sql.ErrNoRows {
		return "", shared.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to query member: %w", err)
	}
	return role, nil
}

// CreatePlaylist creates a playlist with the caller as owner, optionally
// seeding the track pool and link rows from an initial snapshot. The whole
// creation is one transaction.
func (s *Store) CreatePlaylist(ctx context.Context, ownerID string, req models.CreatePlaylistRequest) (*models.CreatePlaylistResponse, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("%w: playlist title is required", shared.ErrValidation)
	}

	id := shared.GenerateID()
	now := shared.NowMillis()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO playlists (id, owner_id, title, description, cover_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, ownerID, req.Title, req.Description, req.CoverURL, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert playlist: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO members (playlist_id, user_id, role, created_at)
		VALUES (?, ?, ?, ?)
	`, id, ownerID, models.RoleOwner, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert owner membership: %w", err)
	}

	for _, placement := range req.Tracks {
		if placement.Track.Key == "" || placement.SortKey == "" {
			return nil, fmt.Errorf("%w: snapshot track requires a key and a sort key", shared.ErrValidation)
		}
		if err := upsertTrack(ctx, tx, placement.Track); err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO playlist_tracks (playlist_id, track_key, sort_key, updated_at)
			VALUES (?, ?, ?, ?)
		`, id, placement.Track.Key, placement.SortKey, now)
		if err != nil {
			return nil, fmt.Errorf("failed to insert playlist track: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit playlist creation: %w", err)
	}

	return &models.CreatePlaylistResponse{ID: id, Role: models.RoleOwner, ServerTime: now}, nil
}

// UpdateMetadata applies an owner's metadata tuple, gated on the stored
// updated_at. A stale tuple is dropped without error.
func (s *Store) UpdateMetadata(ctx context.Context, playlistID, actorID string, req models.UpdateMetadataRequest) error {
	if req.Title == "" {
		return fmt.Errorf("%w: playlist title is required", shared.ErrValidation)
	}
	if req.UpdatedAt <= 0 {
		return fmt.Errorf("%w: metadata update is missing updated_at", shared.ErrValidation)
	}

	role, err := s.memberRole(ctx, playlistID, actorID)
	if err != nil {
		return err
	}
	if !role.CanEditMetadata() {
		return shared.ErrForbidden
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE playlists
		SET title = ?, description = ?, cover_url = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL AND updated_at < ?
	`, req.Title, req.Description, req.CoverURL, req.UpdatedAt, playlistID, req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update playlist metadata: %w", err)
	}
	return nil
}

// ApplyChanges merges a batch of client operations into the playlist inside
// one transaction and returns the authoritative commit time in epoch millis.
//
// The batch is ordered by operation_at ascending before application, which
// defines intra-batch causal order even when the client enqueued operations
// out of order. Individually stale operations are dropped, not errored; the
// batch as a whole either commits or leaves no trace.
func (s *Store) ApplyChanges(ctx context.Context, playlistID, actorID string, changes []models.Change) (int64, error) {
	role, err := s.memberRole(ctx, playlistID, actorID)
	if err != nil {
		return 0, err
	}
	if !role.CanEditTracks() {
		return 0, shared.ErrForbidden
	}
	if len(changes) == 0 {
		return 0, fmt.Errorf("%w: change batch is empty", shared.ErrValidation)
	}
	for _, c := range changes {
		if err := c.Validate(); err != nil {
			return 0, err
		}
	}

	ordered := make([]models.Change, len(changes))
	copy(ordered, changes)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].OperationAt < ordered[j].OperationAt
	})

	appliedAt := shared.NowMillis()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, c := range ordered {
		switch c.Op {
		case models.OpUpsert:
			if err := upsertTrack(ctx, tx, *c.Track); err != nil {
				return 0, err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO playlist_tracks (playlist_id, track_key, sort_key, updated_at, deleted_at)
				VALUES (?, ?, ?, ?, NULL)
				ON CONFLICT(playlist_id, track_key) DO UPDATE SET
					sort_key = excluded.sort_key,
					updated_at = excluded.updated_at,
					deleted_at = NULL
				WHERE playlist_tracks.updated_at < excluded.updated_at
			`, playlistID, c.Track.Key, c.SortKey, c.OperationAt)
			if err != nil {
				return 0, fmt.Errorf("failed to upsert playlist track: %w", err)
			}
		case models.OpRemove:
			_, err = tx.ExecContext(ctx, `
				UPDATE playlist_tracks
				SET deleted_at = ?, updated_at = ?
				WHERE playlist_id = ? AND track_key = ? AND updated_at < ?
			`, c.OperationAt, c.OperationAt, playlistID, c.TrackKey, c.OperationAt)
			if err != nil {
				return 0, fmt.Errorf("failed to remove playlist track: %w", err)
			}
		case models.OpReorder:
			_, err = tx.ExecContext(ctx, `
				UPDATE playlist_tracks
				SET sort_key = ?, updated_at = ?
				WHERE playlist_id = ? AND track_key = ? AND updated_at < ?
			`, c.SortKey, c.OperationAt, playlistID, c.TrackKey, c.OperationAt)
			if err != nil {
				return 0, fmt.Errorf("failed to reorder playlist track: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit change batch: %w", err)
	}

	return appliedAt, nil
}

// Changes computes the incremental diff since the given cursor, or a full
// snapshot when since is zero. Any member may pull.
func (s *Store) Changes(ctx context.Context, playlistID, actorID string, since int64) (*models.Diff, error) {
	if _, err := s.memberRole(ctx, playlistID, actorID); err != nil {
		return nil, err
	}

	serverTime := shared.NowMillis()
	diff := &models.Diff{Tracks: []models.ChangeEvent{}, ServerTime: serverTime}

	var (
		title       string
		description string
		coverURL    string
		updatedAt   int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT title, description, cover_url, updated_at
		FROM playlists
		WHERE id = ? AND updated_at > ?
	`, playlistID, since).Scan(&title, &description, &coverURL, &updatedAt)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to query playlist metadata: %w", err)
	}
	if err == nil {
		diff.Metadata = &models.Metadata{
			Title:       title,
			Description: description,
			CoverURL:    coverURL,
			UpdatedAt:   updatedAt,
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT pt.track_key, pt.sort_key, pt.updated_at, pt.deleted_at,
			t.title, t.artist, t.album, t.cover_url, t.duration_ms, t.source, t.source_id
		FROM playlist_tracks pt
		JOIN tracks t ON t.key = pt.track_key
		WHERE pt.playlist_id = ?
			AND (pt.updated_at > ? OR (pt.deleted_at IS NOT NULL AND pt.deleted_at > ?))
		ORDER BY pt.sort_key ASC
	`, playlistID, since, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist changes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			trackKey   string
			sortKey    string
			linkUpdate int64
			deletedAt  sql.NullInt64
			track      models.Track
		)
		err := rows.Scan(
			&trackKey, &sortKey, &linkUpdate, &deletedAt,
			&track.Title, &track.Artist, &track.Album, &track.CoverURL,
			&track.DurationMs, &track.Source, &track.SourceID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan change row: %w", err)
		}
		track.Key = trackKey

		if deletedAt.Valid {
			diff.Tracks = append(diff.Tracks, models.ChangeEvent{
				Type:      models.EventDelete,
				TrackKey:  trackKey,
				DeletedAt: deletedAt.Int64,
			})
		} else {
			diff.Tracks = append(diff.Tracks, models.ChangeEvent{
				Type:      models.EventUpsert,
				Track:     &track,
				SortKey:   sortKey,
				UpdatedAt: linkUpdate,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return diff, nil
}

// Subscribe adds the actor as a subscriber of a live playlist. Subscribing
// twice is a no-op that returns the existing role.
func (s *Store) Subscribe(ctx context.Context, playlistID, actorID string) (*models.SubscribeResponse, error) {
	role, err := s.memberRole(ctx, playlistID, actorID)
	if err == nil {
		return &models.SubscribeResponse{PlaylistID: playlistID, Role: role}, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	// Distinguish "not a member" from "playlist gone".
	var deletedAt sql.NullInt64
	err = s.db.QueryRowContext(ctx, "SELECT deleted_at FROM playlists WHERE id = ?", playlistID).Scan(&deletedAt)
	if err == sql.ErrNoRows {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist: %w", err)
	}
	if deletedAt.Valid {
		return nil, shared.ErrNotFound
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO members (playlist_id, user_id, role, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(playlist_id, user_id) DO NOTHING
	`, playlistID, actorID, models.RoleSubscriber, shared.NowMillis())
	if err != nil {
		return nil, fmt.Errorf("failed to insert membership: %w", err)
	}

	return &models.SubscribeResponse{PlaylistID: playlistID, Role: models.RoleSubscriber}, nil
}

// ListUserPlaylists returns every live playlist the actor is a member of.
func (s *Store) ListUserPlaylists(ctx context.Context, actorID string) ([]models.RemotePlaylist, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, m.role, p.title, p.description, p.cover_url, p.updated_at
		FROM members m
		JOIN playlists p ON p.id = m.playlist_id
		WHERE m.user_id = ? AND p.deleted_at IS NULL
		ORDER BY p.created_at ASC
	`, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user playlists: %w", err)
	}
	defer rows.Close()

	playlists := []models.RemotePlaylist{}
	for rows.Next() {
		var pl models.RemotePlaylist
		err := rows.Scan(&pl.ID, &pl.Role, &pl.Metadata.Title, &pl.Metadata.Description, &pl.Metadata.CoverURL, &pl.Metadata.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan playlist row: %w", err)
		}
		playlists = append(playlists, pl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return playlists, nil
}

// GetPlaylist returns the metadata and live tracks of a playlist in sort
// order, for any member.
func (s *Store) GetPlaylist(ctx context.Context, playlistID, actorID string) (*models.Diff, error) {
	if _, err := s.memberRole(ctx, playlistID, actorID); err != nil {
		return nil, err
	}

	diff, err := s.Changes(ctx, playlistID, actorID, 0)
	if err != nil {
		return nil, err
	}

	live := diff.Tracks[:0]
	for _, event := range diff.Tracks {
		if event.Type == models.EventUpsert {
			live = append(live, event)
		}
	}
	diff.Tracks = live
	return diff, nil
}

// DeletePlaylist soft-deletes a playlist. Owner only. Members keep their
// rows, but every endpoint reports the playlist as NotFound afterwards, which
// subscribed clients treat as the signal to clean up locally.
func (s *Store) DeletePlaylist(ctx context.Context, playlistID, actorID string) error {
	role, err := s.memberRole(ctx, playlistID, actorID)
	if err != nil {
		return err
	}
	if role != models.RoleOwner {
		return shared.ErrForbidden
	}

	now := shared.NowMillis()
	_, err = s.db.ExecContext(ctx, `
		UPDATE playlists SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL
	`, now, now, playlistID)
	if err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}
	return nil
}

// upsertTrack merges display metadata into the dedup pool. Latest wins
// without a timestamp gate; the metadata is cosmetic.
func upsertTrack(ctx context.Context, tx *sql.Tx, track models.Track) error {
	_, err := tx.ExecContext(ctx, `
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
	`, track.Key, track.Title, track.Artist, track.Album, track.CoverURL, track.DurationMs, track.Source, track.SourceID)
	if err != nil {
		return fmt.Errorf("failed to upsert track: %w", err)
	}
	return nil
}
