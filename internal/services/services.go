// package services contains the typed HTTP client for the sync server.
//
// The client translates HTTP failures into the error taxonomy the sync layer
// keys on: NotFound is terminal for a share, Forbidden and Validation fail the
// offending batch, and everything transport-shaped is retried later as a
// network error.
package services

import (
	"context"

	"github.com/desertthunder/synclist/internal/models"
)

// SyncAPI is the server surface the sync layer depends on. The concrete
// implementation is [SyncClient]; tests substitute their own.
type SyncAPI interface {
	// CreatePlaylist uploads a full local snapshot and returns the assigned
	// share id plus the initial sync cursor.
	CreatePlaylist(ctx context.Context, req models.CreatePlaylistRequest) (*models.CreatePlaylistResponse, error)

	// PushChanges submits a batch of track operations for a share.
	PushChanges(ctx context.Context, shareID string, changes []models.Change) (int64, error)

	// PullChanges retrieves the diff since the given cursor.
	PullChanges(ctx context.Context, shareID string, since int64) (*models.Diff, error)

	// UpdateMetadata submits the latest metadata tuple for a share.
	UpdateMetadata(ctx context.Context, shareID string, req models.UpdateMetadataRequest) error

	// Subscribe registers the caller as a member of a share.
	Subscribe(ctx context.Context, shareID string) (*models.SubscribeResponse, error)

	// GetPlaylist retrieves metadata and the live track snapshot of a share.
	GetPlaylist(ctx context.Context, shareID string) (*models.Diff, error)

	// ListMyPlaylists retrieves every share the caller is a member of.
	ListMyPlaylists(ctx context.Context) ([]models.RemotePlaylist, error)

	// DeletePlaylist deletes a share the caller owns.
	DeletePlaylist(ctx context.Context, shareID string) error
}
