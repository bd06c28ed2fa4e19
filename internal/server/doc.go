// Package server implements the HTTP API of the shared-playlist sync engine.
//
// # Store
//
// [Store] owns the authoritative SQLite database. All conflict resolution
// happens here: the track pool is merged latest-wins, and playlist_tracks
// rows are guarded by a conditional upsert that only accepts a write when the
// incoming operation timestamp is strictly greater than the stored one. The
// comparison and the write happen in the same statement, so concurrent pushes
// from different devices race safely at the row level without explicit locks.
//
// # Handlers
//
// [Server] wires the store into a chi router. Handlers are stateless; the
// bearer-identity middleware resolves the Authorization header to a user id
// and stores it on the request context. Role checks run per endpoint against
// the members table.
//
// The pull endpoint returns full diffs without pagination. Collaborative
// playlists are small, so the diff is bounded by playlist size; this is a
// known scaling limit, not an oversight.
package server
