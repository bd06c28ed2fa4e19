// Package models defines the data model for the shared-playlist sync engine.
//
// Three groups of types live here:
//
//   - Domain rows: [Track], [LocalPlaylist], [PlaylistTrack], [QueueRow], the
//     shapes stored in the server's authoritative database and the client's
//     local mirror.
//   - Wire types: [Change], [ChangeEvent], [Diff] and the request/response
//     bodies of the sync API. Every timestamp on the wire is epoch
//     milliseconds.
//   - Queue payloads: the tagged-union payload carried by an outbox row,
//     decoded and validated by [DecodePayload]. Payloads hold identifiers
//     only; sort keys and display metadata are resolved from the local mirror
//     at push time so stale values are never sent.
package models
