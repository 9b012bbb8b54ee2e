package models

import "time"

// Action identifies the kind of local mutation a queue entry records.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Status is the lifecycle state of a queue entry.
//
// Entries start pending and move to synced on a confirmed upload, or to
// error (with Retries incremented) on a failed one. Error entries stay
// eligible for the next cycle; they are re-attempted, never re-enqueued.
type Status string

const (
	StatusPending Status = "pending"
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced"
	StatusError   Status = "error"
)

// QueueEntry is one pending local mutation awaiting server confirmation.
// Exactly one entry is created per committed mutation of a tracked
// collection, in the same transaction as the record write.
type QueueEntry struct {
	ID         int64
	OpID       string // client-generated uuid, stable across retries
	Action     Action
	Collection string
	RecordID   int64

	// Data is the full record snapshot at mutation time (nil for deletes).
	// Updates deliberately carry the whole merged record, not a delta.
	Data map[string]any

	CreatedAt time.Time
	Status    Status
	Retries   int
	LastError string
}
