package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/desertthunder/synclist/internal/models"
	"github.com/desertthunder/synclist/internal/shared"
)

// SyncWorker drains the outbox. It is a logical singleton: concurrent
// triggers never run two passes at once; a trigger arriving mid-pass sets
// runAgain so one more pass follows.
type SyncWorker struct {
	engine *Engine

	mu        sync.Mutex
	isRunning bool
	runAgain  bool
}

func newSyncWorker(engine *Engine) *SyncWorker {
	return &SyncWorker{engine: engine}
}

// RecoverStuckRows resets rows left in syncing by a crash back to pending.
func (w *SyncWorker) RecoverStuckRows(ctx context.Context) (int64, error) {
	recovered, err := w.engine.queue.RecoverStuck(ctx)
	if err != nil {
		return 0, err
	}
	if recovered > 0 {
		w.engine.logger.Info("recovered stuck queue rows", "count", recovered)
	}
	return recovered, nil
}

// TriggerSync runs a pass over every pending queue row. Re-entrant calls
// coalesce: the running pass finishes, then exactly one more runs.
func (w *SyncWorker) TriggerSync(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.runAgain = true
		w.mu.Unlock()
		return nil
	}
	w.isRunning = true
	w.mu.Unlock()

	var errs []error
	for {
		if err := w.runPass(ctx); err != nil {
			errs = append(errs, err)
		}

		w.mu.Lock()
		if w.runAgain {
			w.runAgain = false
			w.mu.Unlock()
			continue
		}
		w.isRunning = false
		w.mu.Unlock()
		return errors.Join(errs...)
	}
}

// runPass groups pending rows by playlist and pushes each playlist's batch
// strictly sequentially. One playlist failing does not stop the others.
func (w *SyncWorker) runPass(ctx context.Context) error {
	pending, err := w.engine.queue.Pending(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	grouped := map[string][]*models.QueueRow{}
	order := []string{}
	for _, row := range pending {
		if _, seen := grouped[row.PlaylistID]; !seen {
			order = append(order, row.PlaylistID)
		}
		grouped[row.PlaylistID] = append(grouped[row.PlaylistID], row)
	}

	var errs []error
	for _, playlistID := range order {
		if err := w.syncPlaylist(ctx, playlistID, grouped[playlistID]); err != nil {
			w.engine.logger.Error("playlist sync failed", "playlist", playlistID, "err", err)
			errs = append(errs, fmt.Errorf("playlist %s: %w", playlistID, err))
		}
	}
	return errors.Join(errs...)
}

// syncPlaylist pushes one playlist's batch: track mutations first, then the
// latest metadata edit.
func (w *SyncWorker) syncPlaylist(ctx context.Context, playlistID string, rows []*models.QueueRow) error {
	engine := w.engine

	playlist, err := engine.playlists.Get(ctx, playlistID)
	if errors.Is(err, shared.ErrNotFound) {
		return engine.queue.MarkStatus(ctx, rowIDs(rows), models.StatusFailed)
	}
	if err != nil {
		return err
	}

	// Unshared playlists and read-only roles fail without a network call.
	if !playlist.Shared() || !playlist.Role.CanEditTracks() {
		return engine.queue.MarkStatus(ctx, rowIDs(rows), models.StatusFailed)
	}

	if err := engine.queue.MarkStatus(ctx, rowIDs(rows), models.StatusSyncing); err != nil {
		return err
	}

	var trackRows, metadataRows []*models.QueueRow
	for _, row := range rows {
		if row.Operation == models.QueueUpdateMetadata {
			metadataRows = append(metadataRows, row)
		} else {
			trackRows = append(trackRows, row)
		}
	}

	if err := w.pushTrackRows(ctx, playlist, trackRows); err != nil {
		// The metadata rows are already syncing; a failed track batch fails
		// them with it, so no row is left stranded in syncing for recovery
		// to find.
		if markErr := engine.queue.MarkStatus(ctx, rowIDs(metadataRows), models.StatusFailed); markErr != nil {
			return errors.Join(err, markErr)
		}
		return err
	}

	return w.pushMetadataRows(ctx, playlist, metadataRows)
}

// pushTrackRows resolves the current mirror state for every queued track
// mutation and pushes one ordered batch. A row whose referenced track cannot
// be resolved fails alone; the rest of the batch still travels.
func (w *SyncWorker) pushTrackRows(ctx context.Context, playlist *models.LocalPlaylist, rows []*models.QueueRow) error {
	if len(rows) == 0 {
		return nil
	}
	engine := w.engine

	var (
		changes     []models.Change
		contributed []string
		failed      []string
	)
	for _, row := range rows {
		rowChanges, err := w.resolveRow(ctx, playlist.ID, row)
		if err != nil {
			engine.logger.Debug("queue row unresolvable", "row", row.ID, "err", err)
			failed = append(failed, row.ID)
			continue
		}
		changes = append(changes, rowChanges...)
		contributed = append(contributed, row.ID)
	}

	if err := engine.queue.MarkStatus(ctx, failed, models.StatusFailed); err != nil {
		return err
	}
	if len(changes) == 0 {
		return nil
	}

	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].OperationAt < changes[j].OperationAt
	})

	appliedAt, err := engine.api.PushChanges(ctx, playlist.ShareID, changes)
	if err != nil {
		if markErr := engine.queue.MarkStatus(ctx, contributed, models.StatusFailed); markErr != nil {
			return errors.Join(err, markErr)
		}
		return fmt.Errorf("push failed: %w", err)
	}

	// Row completion and cursor advance are one transaction so a crash here
	// cannot strand a cursor behind acknowledged rows.
	return engine.withTx(ctx, func(tx *sql.Tx) error {
		if err := engine.queue.WithTx(tx).MarkStatus(ctx, contributed, models.StatusDone); err != nil {
			return err
		}
		return engine.playlists.WithTx(tx).SetCursor(ctx, playlist.ID, appliedAt)
	})
}

// resolveRow turns a queue row into wire changes, reading the current sort
// key and display metadata from the mirror rather than the enqueued values.
func (w *SyncWorker) resolveRow(ctx context.Context, playlistID string, row *models.QueueRow) ([]models.Change, error) {
	payload, err := models.DecodePayload(row.Operation, row.Payload)
	if err != nil {
		return nil, err
	}
	engine := w.engine

	switch p := payload.(type) {
	case models.AddTracksPayload:
		changes := make([]models.Change, 0, len(p.TrackKeys))
		for _, key := range p.TrackKeys {
			track, err := engine.tracks.Get(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("%w: track %s", shared.ErrTrackUnresolved, key)
			}
			link, err := engine.tracks.GetLink(ctx, playlistID, key)
			if err != nil {
				return nil, fmt.Errorf("%w: track %s has no link row", shared.ErrTrackUnresolved, key)
			}
			changes = append(changes, models.Change{
				Op:          models.OpUpsert,
				Track:       track,
				SortKey:     link.SortKey,
				OperationAt: row.OperationAt,
			})
		}
		return changes, nil
	case models.RemoveTracksPayload:
		changes := make([]models.Change, 0, len(p.TrackKeys))
		for _, key := range p.TrackKeys {
			changes = append(changes, models.Change{
				Op:          models.OpRemove,
				TrackKey:    key,
				OperationAt: row.OperationAt,
			})
		}
		return changes, nil
	case models.ReorderTrackPayload:
		link, err := engine.tracks.GetLink(ctx, playlistID, p.TrackKey)
		if err != nil {
			return nil, fmt.Errorf("%w: track %s has no link row", shared.ErrTrackUnresolved, p.TrackKey)
		}
		if link.Deleted() {
			return nil, fmt.Errorf("%w: track %s was removed locally", shared.ErrTrackUnresolved, p.TrackKey)
		}
		return []models.Change{{
			Op:          models.OpReorder,
			TrackKey:    p.TrackKey,
			SortKey:     link.SortKey,
			OperationAt: row.OperationAt,
		}}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected payload %T", shared.ErrInvalidPayload, payload)
	}
}

// pushMetadataRows sends the playlist's current metadata tuple once. Earlier
// queued edits are superseded by the mirror state and complete with it.
func (w *SyncWorker) pushMetadataRows(ctx context.Context, playlist *models.LocalPlaylist, rows []*models.QueueRow) error {
	if len(rows) == 0 {
		return nil
	}
	engine := w.engine

	if !playlist.Role.CanEditMetadata() {
		return engine.queue.MarkStatus(ctx, rowIDs(rows), models.StatusFailed)
	}

	err := engine.api.UpdateMetadata(ctx, playlist.ShareID, models.UpdateMetadataRequest{
		Title:       playlist.Title,
		Description: playlist.Description,
		CoverURL:    playlist.CoverURL,
		UpdatedAt:   playlist.UpdatedAt,
	})
	if err != nil {
		if markErr := engine.queue.MarkStatus(ctx, rowIDs(rows), models.StatusFailed); markErr != nil {
			return errors.Join(err, markErr)
		}
		return fmt.Errorf("metadata push failed: %w", err)
	}

	return engine.queue.MarkStatus(ctx, rowIDs(rows), models.StatusDone)
}

func rowIDs(rows []*models.QueueRow) []string {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids
}
