package models

import (
	"encoding/json"
	"fmt"

	"github.com/desertthunder/synclist/internal/shared"
)

// QueueOperation is the kind of a local mutation waiting in the outbox.
type QueueOperation string

const (
	QueueAddTracks      QueueOperation = "add_tracks"
	QueueRemoveTracks   QueueOperation = "remove_tracks"
	QueueReorderTrack   QueueOperation = "reorder_track"
	QueueUpdateMetadata QueueOperation = "update_metadata"
)

// QueueStatus is the lifecycle state of an outbox row. Rows move
// pending → syncing → done or failed, and are never reused.
type QueueStatus string

const (
	StatusPending QueueStatus = "pending"
	StatusSyncing QueueStatus = "syncing"
	StatusDone    QueueStatus = "done"
	StatusFailed  QueueStatus = "failed"
)

// QueueRow is a durable outbox entry created at the moment of a local
// mutation. The payload stores identifiers only; authoritative sort keys and
// metadata are resolved from the mirror when the row is pushed.
type QueueRow struct {
	ID          string
	PlaylistID  string
	Operation   QueueOperation
	Payload     json.RawMessage
	OperationAt int64
	Status      QueueStatus
	CreatedAt   int64
}

// AddTracksPayload lists the content keys added to a playlist.
type AddTracksPayload struct {
	TrackKeys []string `json:"track_keys"`
}

// RemoveTracksPayload lists the content keys removed from a playlist.
type RemoveTracksPayload struct {
	TrackKeys []string `json:"track_keys"`
}

// ReorderTrackPayload names the single moved track. Its new sort key is read
// from the mirror at push time.
type ReorderTrackPayload struct {
	TrackKey string `json:"track_key"`
}

// UpdateMetadataPayload is intentionally empty: the metadata tuple is read
// from the mirror at push time so only the latest values travel.
type UpdateMetadataPayload struct{}

// DecodePayload parses and validates a queue row payload for the given
// operation. A corrupt or mismatched payload fails only the row that carries
// it, never the whole batch.
func DecodePayload(op QueueOperation, raw json.RawMessage) (any, error) {
	switch op {
	case QueueAddTracks:
		var p AddTracksPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrInvalidPayload, err)
		}
		if len(p.TrackKeys) == 0 {
			return nil, fmt.Errorf("%w: add_tracks payload has no track keys", shared.ErrInvalidPayload)
		}
		return p, nil
	case QueueRemoveTracks:
		var p RemoveTracksPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrInvalidPayload, err)
		}
		if len(p.TrackKeys) == 0 {
			return nil, fmt.Errorf("%w: remove_tracks payload has no track keys", shared.ErrInvalidPayload)
		}
		return p, nil
	case QueueReorderTrack:
		var p ReorderTrackPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrInvalidPayload, err)
		}
		if p.TrackKey == "" {
			return nil, fmt.Errorf("%w: reorder_track payload has no track key", shared.ErrInvalidPayload)
		}
		return p, nil
	case QueueUpdateMetadata:
		var p UpdateMetadataPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrInvalidPayload, err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown queue operation %q", shared.ErrInvalidPayload, op)
	}
}

// EncodePayload marshals a payload struct for storage in a queue row.
func EncodePayload(payload any) (json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal queue payload: %w", err)
	}
	return data, nil
}
