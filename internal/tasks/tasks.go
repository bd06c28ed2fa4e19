// package tasks orchestrates the client side of playlist synchronization: the
// durable outbox worker, the pull coordinator, and the sharing lifecycle.
//
// Local mutations write the mirror and enqueue an outbox row in one
// transaction, so an edit either exists with its pending sync operation or
// not at all. Network calls never run inside a local transaction; only the
// application of their results is transactional.
package tasks

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/synclist/internal/models"
	"github.com/desertthunder/synclist/internal/ordering"
	"github.com/desertthunder/synclist/internal/repositories"
	"github.com/desertthunder/synclist/internal/services"
	"github.com/desertthunder/synclist/internal/shared"
)

// Engine owns the client-side sync machinery: the local mirror repositories,
// the API client, and the singleton sync worker. Construct one instance and
// hand it to callers; it is safe for concurrent use.
type Engine struct {
	db        *sql.DB
	api       services.SyncAPI
	playlists *repositories.PlaylistRepository
	tracks    *repositories.TrackRepository
	queue     *repositories.QueueRepository
	worker    *SyncWorker
	logger    *log.Logger
}

// NewEngine creates an Engine over the given client database and API client.
func NewEngine(db *sql.DB, api services.SyncAPI, logger *log.Logger) *Engine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	engine := &Engine{
		db:        db,
		api:       api,
		playlists: repositories.NewPlaylistRepository(db),
		tracks:    repositories.NewTrackRepository(db),
		queue:     repositories.NewQueueRepository(db),
		logger:    shared.WithLogger(logger, "component", "sync"),
	}
	engine.worker = newSyncWorker(engine)
	return engine
}

// Playlists exposes the local playlist mirror for read-side callers.
func (e *Engine) Playlists() *repositories.PlaylistRepository { return e.playlists }

// Tracks exposes the local track mirror for read-side callers.
func (e *Engine) Tracks() *repositories.TrackRepository { return e.tracks }

// Queue exposes the outbox for status reporting.
func (e *Engine) Queue() *repositories.QueueRepository { return e.queue }

// TriggerSync runs the outbox worker. A call arriving while a pass is in
// flight coalesces into one extra pass.
func (e *Engine) TriggerSync(ctx context.Context) error { return e.worker.TriggerSync(ctx) }

// RecoverStuckRows resets queue rows left in syncing by a crash back to
// pending. Run once at startup.
func (e *Engine) RecoverStuckRows(ctx context.Context) (int64, error) {
	return e.worker.RecoverStuckRows(ctx)
}

// withTx runs fn inside a transaction, committing on nil error.
func (e *Engine) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreatePlaylist creates a purely local playlist. It gains a share only
// through [Engine.EnableSharing].
func (e *Engine) CreatePlaylist(ctx context.Context, title, description string) (*models.LocalPlaylist, error) {
	playlist := &models.LocalPlaylist{Title: title, Description: description}
	if err := e.playlists.Create(ctx, playlist); err != nil {
		return nil, err
	}
	return playlist, nil
}

// AddTracks appends tracks to the end of a playlist and enqueues one
// add_tracks operation, all in one transaction.
func (e *Engine) AddTracks(ctx context.Context, playlistID string, tracks []models.Track) error {
	if len(tracks) == 0 {
		return fmt.Errorf("%w: no tracks to add", shared.ErrValidation)
	}
	if _, err := e.playlists.Get(ctx, playlistID); err != nil {
		return err
	}

	now := shared.NowMillis()
	return e.withTx(ctx, func(tx *sql.Tx) error {
		trackRepo := e.tracks.WithTx(tx)

		prev, err := trackRepo.LastSortKey(ctx, playlistID)
		if err != nil {
			return err
		}

		keys := make([]string, 0, len(tracks))
		for _, track := range tracks {
			sortKey, err := ordering.Between(prev, "")
			if err != nil {
				return fmt.Errorf("failed to place track %s: %w", track.Key, err)
			}
			if err := trackRepo.Upsert(ctx, track); err != nil {
				return err
			}
			if err := trackRepo.SetLink(ctx, playlistID, track.Key, sortKey, now); err != nil {
				return err
			}
			prev = sortKey
			keys = append(keys, track.Key)
		}

		payload, err := models.EncodePayload(models.AddTracksPayload{TrackKeys: keys})
		if err != nil {
			return err
		}
		return e.queue.WithTx(tx).Enqueue(ctx, &models.QueueRow{
			PlaylistID:  playlistID,
			Operation:   models.QueueAddTracks,
			Payload:     payload,
			OperationAt: now,
		})
	})
}

// RemoveTracks soft-deletes tracks from a playlist and enqueues one
// remove_tracks operation, all in one transaction.
func (e *Engine) RemoveTracks(ctx context.Context, playlistID string, trackKeys []string) error {
	if len(trackKeys) == 0 {
		return fmt.Errorf("%w: no tracks to remove", shared.ErrValidation)
	}
	if _, err := e.playlists.Get(ctx, playlistID); err != nil {
		return err
	}

	now := shared.NowMillis()
	return e.withTx(ctx, func(tx *sql.Tx) error {
		trackRepo := e.tracks.WithTx(tx)
		for _, key := range trackKeys {
			if err := trackRepo.RemoveLink(ctx, playlistID, key, now); err != nil {
				return err
			}
		}

		payload, err := models.EncodePayload(models.RemoveTracksPayload{TrackKeys: trackKeys})
		if err != nil {
			return err
		}
		return e.queue.WithTx(tx).Enqueue(ctx, &models.QueueRow{
			PlaylistID:  playlistID,
			Operation:   models.QueueRemoveTracks,
			Payload:     payload,
			OperationAt: now,
		})
	})
}

// MoveTrack places a track strictly between two sibling sort keys, writing
// exactly one link row, and enqueues one reorder_track operation. Empty
// bounds mean the start or end of the playlist.
func (e *Engine) MoveTrack(ctx context.Context, playlistID, trackKey, prevKey, nextKey string) error {
	if _, err := e.playlists.Get(ctx, playlistID); err != nil {
		return err
	}
	if _, err := e.tracks.GetLink(ctx, playlistID, trackKey); err != nil {
		return err
	}

	sortKey, err := ordering.Between(prevKey, nextKey)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}

	now := shared.NowMillis()
	return e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.tracks.WithTx(tx).SetLink(ctx, playlistID, trackKey, sortKey, now); err != nil {
			return err
		}

		payload, err := models.EncodePayload(models.ReorderTrackPayload{TrackKey: trackKey})
		if err != nil {
			return err
		}
		return e.queue.WithTx(tx).Enqueue(ctx, &models.QueueRow{
			PlaylistID:  playlistID,
			Operation:   models.QueueReorderTrack,
			Payload:     payload,
			OperationAt: now,
		})
	})
}

// UpdateMetadata records a local metadata edit and enqueues one
// update_metadata operation. The tuple itself travels from the mirror at push
// time, so only the latest values reach the server.
func (e *Engine) UpdateMetadata(ctx context.Context, playlistID, title, description, coverURL string) error {
	if _, err := e.playlists.Get(ctx, playlistID); err != nil {
		return err
	}

	now := shared.NowMillis()
	return e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.playlists.WithTx(tx).UpdateMetadata(ctx, playlistID, title, description, coverURL, now); err != nil {
			return err
		}

		payload, err := models.EncodePayload(models.UpdateMetadataPayload{})
		if err != nil {
			return err
		}
		return e.queue.WithTx(tx).Enqueue(ctx, &models.QueueRow{
			PlaylistID:  playlistID,
			Operation:   models.QueueUpdateMetadata,
			Payload:     payload,
			OperationAt: now,
		})
	})
}
