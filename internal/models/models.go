package models

// Role is a member's capability level on a shared playlist.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleEditor     Role = "editor"
	RoleSubscriber Role = "subscriber"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleEditor || r == RoleSubscriber
}

// CanEditTracks reports whether the role may add, remove, or reorder tracks.
func (r Role) CanEditTracks() bool {
	return r == RoleOwner || r == RoleEditor
}

// CanEditMetadata reports whether the role may change playlist metadata.
func (r Role) CanEditMetadata() bool {
	return r == RoleOwner
}

// Track is an entry in the deduplicated track pool, keyed by a globally
// unique content key (source plus external id). The display metadata is
// cosmetic and merged latest-wins without a timestamp gate.
type Track struct {
	Key        string `json:"key"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album,omitempty"`
	CoverURL   string `json:"cover_url,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Source     string `json:"source,omitempty"`
	SourceID   string `json:"source_id,omitempty"`
}

// Metadata is the playlist metadata tuple exchanged on the wire. UpdatedAt is
// the LWW clock for the tuple.
type Metadata struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	CoverURL    string `json:"cover_url,omitempty"`
	UpdatedAt   int64  `json:"updated_at"`
}

// LocalPlaylist is a row in the client's local mirror. ShareID and Role are
// empty while the playlist is purely local; LastSyncedAt is the sync cursor.
type LocalPlaylist struct {
	ID           string
	ShareID      string
	Role         Role
	Title        string
	Description  string
	CoverURL     string
	LastSyncedAt int64
	CreatedAt    int64
	UpdatedAt    int64
	DeletedAt    *int64
}

// Shared reports whether the playlist has been linked to a server-side share.
func (p *LocalPlaylist) Shared() bool {
	return p.ShareID != ""
}

// PlaylistTrack is a link row tying a track to a playlist. UpdatedAt is the
// LWW clock for the link: a write to SortKey or DeletedAt is accepted only
// when the incoming operation timestamp is strictly greater.
type PlaylistTrack struct {
	PlaylistID string
	TrackKey   string
	SortKey    string
	UpdatedAt  int64
	DeletedAt  *int64
}

// Deleted reports whether the link is soft-deleted.
func (pt *PlaylistTrack) Deleted() bool {
	return pt.DeletedAt != nil
}
