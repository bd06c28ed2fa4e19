package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/synclist/internal/models"
	"github.com/desertthunder/synclist/internal/repositories"
	"github.com/desertthunder/synclist/internal/shared"
)

// EnableSharing uploads a local playlist as a new share. The snapshot carries
// every live track with its current sort key; the returned share id, role,
// and cursor are stored in one local transaction.
func (e *Engine) EnableSharing(ctx context.Context, playlistID string) (*models.LocalPlaylist, error) {
	playlist, err := e.playlists.Get(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	if playlist.Shared() {
		return nil, fmt.Errorf("%w: playlist %s", shared.ErrAlreadyShared, playlistID)
	}

	links, err := e.tracks.ListLinks(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	placements := make([]models.TrackPlacement, 0, len(links))
	for _, link := range links {
		track, err := e.tracks.Get(ctx, link.TrackKey)
		if err != nil {
			return nil, err
		}
		placements = append(placements, models.TrackPlacement{Track: *track, SortKey: link.SortKey})
	}

	resp, err := e.api.CreatePlaylist(ctx, models.CreatePlaylistRequest{
		Title:       playlist.Title,
		Description: playlist.Description,
		CoverURL:    playlist.CoverURL,
		Tracks:      placements,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create share: %w", err)
	}

	err = e.withTx(ctx, func(tx *sql.Tx) error {
		return e.playlists.WithTx(tx).MarkShared(ctx, playlistID, resp.ID, resp.Role, resp.ServerTime)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("sharing enabled", "playlist", playlistID, "share", resp.ID)
	return e.playlists.Get(ctx, playlistID)
}

// Subscribe joins a share and materializes its full snapshot locally. If a
// mirror for the share already exists it is returned as is. The playlist row,
// the snapshot, and the cursor are written in one transaction, so a crash
// mid-subscribe leaves no partial playlist.
func (e *Engine) Subscribe(ctx context.Context, shareID string) (*models.LocalPlaylist, error) {
	if existing, err := e.playlists.GetByShareID(ctx, shareID); err == nil {
		return existing, nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	sub, err := e.api.Subscribe(ctx, shareID)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	diff, err := e.api.PullChanges(ctx, shareID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to pull snapshot: %w", err)
	}
	if diff.Metadata == nil {
		return nil, fmt.Errorf("%w: snapshot carries no metadata", shared.ErrInvalidPayload)
	}

	playlist := &models.LocalPlaylist{
		ShareID:      shareID,
		Role:         sub.Role,
		Title:        diff.Metadata.Title,
		Description:  diff.Metadata.Description,
		CoverURL:     diff.Metadata.CoverURL,
		LastSyncedAt: diff.ServerTime,
		UpdatedAt:    diff.Metadata.UpdatedAt,
	}

	err = e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.playlists.WithTx(tx).Create(ctx, playlist); err != nil {
			return err
		}
		return applyEvents(ctx, e.tracks.WithTx(tx), playlist.ID, diff.Tracks)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("subscribed", "share", shareID, "playlist", playlist.ID, "role", sub.Role)
	return playlist, nil
}

// RestoreFromCloud re-materializes every share the actor belongs to that has
// no local mirror, one transaction per playlist. One failing share does not
// abort the others.
func (e *Engine) RestoreFromCloud(ctx context.Context) ([]*models.LocalPlaylist, error) {
	remote, err := e.api.ListMyPlaylists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list remote playlists: %w", err)
	}

	var (
		restored []*models.LocalPlaylist
		errs     []error
	)
	for _, rp := range remote {
		if _, err := e.playlists.GetByShareID(ctx, rp.ID); err == nil {
			continue
		} else if !errors.Is(err, shared.ErrNotFound) {
			errs = append(errs, err)
			continue
		}

		playlist, err := e.Subscribe(ctx, rp.ID)
		if err != nil {
			e.logger.Error("restore failed for share", "share", rp.ID, "err", err)
			errs = append(errs, fmt.Errorf("share %s: %w", rp.ID, err))
			continue
		}
		restored = append(restored, playlist)
	}

	return restored, errors.Join(errs...)
}

// PullChanges fetches the diff since the playlist's cursor and applies it.
// Apply and cursor advance are one local transaction. A 404 from the server
// means the share was deleted; it surfaces as NotFound so the caller can
// clean up locally.
func (e *Engine) PullChanges(ctx context.Context, playlistID string) error {
	playlist, err := e.playlists.Get(ctx, playlistID)
	if err != nil {
		return err
	}
	if !playlist.Shared() {
		return fmt.Errorf("%w: playlist %s", shared.ErrNotShared, playlistID)
	}

	diff, err := e.api.PullChanges(ctx, playlist.ShareID, playlist.LastSyncedAt)
	if err != nil {
		return fmt.Errorf("pull failed: %w", err)
	}

	return e.withTx(ctx, func(tx *sql.Tx) error {
		playlistRepo := e.playlists.WithTx(tx)
		if diff.Metadata != nil {
			if err := playlistRepo.ApplyRemoteMetadata(ctx, playlistID, *diff.Metadata); err != nil {
				return err
			}
		}
		if err := applyEvents(ctx, e.tracks.WithTx(tx), playlistID, diff.Tracks); err != nil {
			return err
		}
		return playlistRepo.SetCursor(ctx, playlistID, diff.ServerTime)
	})
}

// RemoteSnapshot fetches the authoritative server-side state of a shared
// playlist without touching the local mirror or its cursor.
func (e *Engine) RemoteSnapshot(ctx context.Context, playlistID string) (*models.Diff, error) {
	playlist, err := e.playlists.Get(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	if !playlist.Shared() {
		return nil, fmt.Errorf("%w: playlist %s", shared.ErrNotShared, playlistID)
	}

	diff, err := e.api.GetPlaylist(ctx, playlist.ShareID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch remote playlist: %w", err)
	}
	return diff, nil
}

// DeleteShare deletes the share on the server and detaches the local
// playlist, which keeps its track data as a purely local playlist. The owner
// gate runs locally so non-owners never reach the network.
func (e *Engine) DeleteShare(ctx context.Context, playlistID string) error {
	playlist, err := e.playlists.Get(ctx, playlistID)
	if err != nil {
		return err
	}
	if !playlist.Shared() {
		return fmt.Errorf("%w: playlist %s", shared.ErrNotShared, playlistID)
	}
	if playlist.Role != models.RoleOwner {
		return fmt.Errorf("%w: only the owner may delete a share", shared.ErrForbidden)
	}

	if err := e.api.DeletePlaylist(ctx, playlist.ShareID); err != nil {
		return fmt.Errorf("failed to delete share: %w", err)
	}

	err = e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.queue.WithTx(tx).DeleteForPlaylist(ctx, playlistID); err != nil {
			return err
		}
		return e.playlists.WithTx(tx).ClearShare(ctx, playlistID)
	})
	if err != nil {
		return err
	}

	e.logger.Info("share deleted", "playlist", playlistID, "share", playlist.ShareID)
	return nil
}

// Unsubscribe detaches a playlist from its share. Subscribers lose the local
// mirror entirely; owners and editors keep their track data and fall back to
// a purely local playlist.
func (e *Engine) Unsubscribe(ctx context.Context, playlistID string) error {
	playlist, err := e.playlists.Get(ctx, playlistID)
	if err != nil {
		return err
	}
	if !playlist.Shared() {
		return fmt.Errorf("%w: playlist %s", shared.ErrNotShared, playlistID)
	}

	if playlist.Role == models.RoleSubscriber {
		return e.playlists.Delete(ctx, playlistID)
	}

	return e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.queue.WithTx(tx).DeleteForPlaylist(ctx, playlistID); err != nil {
			return err
		}
		return e.playlists.WithTx(tx).ClearShare(ctx, playlistID)
	})
}

// applyEvents merges pulled change events into the mirror through the LWW
// gate, so an unpushed newer local edit survives the pull.
func applyEvents(ctx context.Context, tracks *repositories.TrackRepository, playlistID string, events []models.ChangeEvent) error {
	for _, event := range events {
		switch event.Type {
		case models.EventUpsert:
			if event.Track == nil {
				return fmt.Errorf("%w: upsert event without a track", shared.ErrInvalidPayload)
			}
			if err := tracks.ApplyRemoteUpsert(ctx, playlistID, *event.Track, event.SortKey, event.UpdatedAt); err != nil {
				return err
			}
		case models.EventDelete:
			if err := tracks.ApplyRemoteDelete(ctx, playlistID, event.TrackKey, event.DeletedAt); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: unknown event type %q", shared.ErrInvalidPayload, event.Type)
		}
	}
	return nil
}
