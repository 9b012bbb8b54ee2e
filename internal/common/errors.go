// Package common defines shared constants and sentinel errors used across
// the fieldsync client and gateway layers. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Store-level errors.
	ErrNotFound   = errors.New("not found")
	ErrConstraint = errors.New("unique constraint violation")

	// Sync-level errors (whole-operation flow control).
	ErrOffline        = errors.New("no server connection")
	ErrSyncInProgress = errors.New("sync already in progress")

	// Transport-level errors (captured per queue item, never abort a batch).
	ErrServer    = errors.New("server returned an error")
	ErrTransport = errors.New("transport failure")
)
