// Package models defines the client-side data model: generic collection
// records, the pending-change queue entry, and the collection schemas.
package models

import "time"

// Record is a row in one of the tracked collections. IDs are assigned by the
// local store's auto-increment sequence and are not globally unique across
// devices until synchronized; the download merge reconciles by server id.
type Record struct {
	// ID is the local key (or the server id after a download merge).
	ID int64

	// Fields holds the entity payload (full_name, voter_number, ...).
	Fields map[string]any

	// CreatedAt / UpdatedAt are maintained by the store, in UTC.
	CreatedAt time.Time
	UpdatedAt time.Time

	// Synced reports whether the current state has been confirmed by the
	// server. Any local mutation resets it to false.
	Synced bool
}

// Snapshot flattens the record into a single map, the shape sent to the
// server and stored in queue entries: payload fields plus id and the
// bookkeeping columns.
func (r *Record) Snapshot() map[string]any {
	out := make(map[string]any, len(r.Fields)+4)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["id"] = r.ID
	out["created_at"] = r.CreatedAt.UTC().Format(time.RFC3339Nano)
	out["updated_at"] = r.UpdatedAt.UTC().Format(time.RFC3339Nano)
	out["synced"] = r.Synced
	return out
}
