package models

import (
	"fmt"

	"github.com/desertthunder/synclist/internal/shared"
)

// ChangeOp tags the kind of a pushed operation.
type ChangeOp string

const (
	OpUpsert  ChangeOp = "upsert"
	OpRemove  ChangeOp = "remove"
	OpReorder ChangeOp = "reorder"
)

// Change is one operation in a push batch. The fields used depend on Op:
// upsert carries Track and SortKey, reorder carries TrackKey and SortKey,
// remove carries only TrackKey. OperationAt is the client-side LWW timestamp.
type Change struct {
	Op          ChangeOp `json:"op"`
	Track       *Track   `json:"track,omitempty"`
	TrackKey    string   `json:"track_key,omitempty"`
	SortKey     string   `json:"sort_key,omitempty"`
	OperationAt int64    `json:"operation_at"`
}

// Key returns the content key the change targets, regardless of kind.
func (c Change) Key() string {
	if c.Op == OpUpsert && c.Track != nil {
		return c.Track.Key
	}
	return c.TrackKey
}

// Validate checks the per-kind field requirements of the change.
func (c Change) Validate() error {
	if c.OperationAt <= 0 {
		return fmt.Errorf("%w: change is missing operation_at", shared.ErrValidation)
	}

	switch c.Op {
	case OpUpsert:
		if c.Track == nil || c.Track.Key == "" {
			return fmt.Errorf("%w: upsert requires a track with a key", shared.ErrValidation)
		}
		if c.SortKey == "" {
			return fmt.Errorf("%w: upsert requires a sort key", shared.ErrValidation)
		}
	case OpRemove:
		if c.TrackKey == "" {
			return fmt.Errorf("%w: remove requires a track key", shared.ErrValidation)
		}
	case OpReorder:
		if c.TrackKey == "" {
			return fmt.Errorf("%w: reorder requires a track key", shared.ErrValidation)
		}
		if c.SortKey == "" {
			return fmt.Errorf("%w: reorder requires a sort key", shared.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown change op %q", shared.ErrValidation, c.Op)
	}

	return nil
}

// PushRequest is the body of POST /playlists/{id}/changes.
type PushRequest struct {
	Changes []Change `json:"changes"`
}

// PushResponse returns the authoritative server time at which the batch was
// committed. Clients adopt it as their next cursor; it does not need to equal
// any operation_at in the batch.
type PushResponse struct {
	AppliedAt int64 `json:"applied_at"`
}

// EventType tags a pulled change event.
type EventType string

const (
	EventUpsert EventType = "upsert"
	EventDelete EventType = "delete"
)

// ChangeEvent is one entry in a pull diff: either an upsert carrying the full
// track plus its authoritative sort key, or a delete tombstone.
type ChangeEvent struct {
	Type      EventType `json:"type"`
	Track     *Track    `json:"track,omitempty"`
	TrackKey  string    `json:"track_key,omitempty"`
	SortKey   string    `json:"sort_key,omitempty"`
	UpdatedAt int64     `json:"updated_at,omitempty"`
	DeletedAt int64     `json:"deleted_at,omitempty"`
}

// Key returns the content key the event refers to.
func (e ChangeEvent) Key() string {
	if e.Type == EventUpsert && e.Track != nil {
		return e.Track.Key
	}
	return e.TrackKey
}

// Diff is the body of GET /playlists/{id}/changes. Metadata is nil when the
// playlist metadata has not changed since the requested cursor.
type Diff struct {
	Metadata   *Metadata     `json:"metadata"`
	Tracks     []ChangeEvent `json:"tracks"`
	ServerTime int64         `json:"server_time"`
}

// TrackPlacement pairs a track with the sort key it holds in a playlist,
// used in the initial snapshot of POST /playlists.
type TrackPlacement struct {
	Track   Track  `json:"track"`
	SortKey string `json:"sort_key"`
}

// CreatePlaylistRequest is the body of POST /playlists.
type CreatePlaylistRequest struct {
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	CoverURL    string           `json:"cover_url,omitempty"`
	Tracks      []TrackPlacement `json:"tracks,omitempty"`
}

// CreatePlaylistResponse carries the assigned share id, the caller's role,
// and the server time to adopt as the initial cursor.
type CreatePlaylistResponse struct {
	ID         string `json:"id"`
	Role       Role   `json:"role"`
	ServerTime int64  `json:"server_time"`
}

// UpdateMetadataRequest is the body of PATCH /playlists/{id}. UpdatedAt is
// the LWW stamp of the local edit; the server applies the tuple only when it
// is newer than the stored one.
type UpdateMetadataRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	CoverURL    string `json:"cover_url,omitempty"`
	UpdatedAt   int64  `json:"updated_at"`
}

// SubscribeResponse is the body of POST /playlists/{id}/subscribe.
type SubscribeResponse struct {
	PlaylistID string `json:"playlist_id"`
	Role       Role   `json:"role"`
}

// RemotePlaylist is one entry of GET /me/playlists.
type RemotePlaylist struct {
	ID       string   `json:"id"`
	Role     Role     `json:"role"`
	Metadata Metadata `json:"metadata"`
}
