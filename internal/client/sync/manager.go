// Package sync orchestrates bidirectional synchronization: draining the
// pending-mutation queue to the server, then pulling server deltas into the
// local store. Conflict policy is id-based upsert with server wins.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/electoral-office/fieldsync/internal/client/events"
	"github.com/electoral-office/fieldsync/internal/client/models"
	"github.com/electoral-office/fieldsync/internal/client/store"
	"github.com/electoral-office/fieldsync/internal/common"
	"github.com/electoral-office/fieldsync/internal/logging"
	"github.com/sethvargo/go-retry"
)

// Transport is the server-facing surface the manager needs; satisfied by
// *api.Client and stubbed in tests.
type Transport interface {
	FetchSince(ctx context.Context, collection, since string) ([]map[string]any, error)
	FetchAll(ctx context.Context, collection string) ([]map[string]any, error)
	Create(ctx context.Context, collection string, data map[string]any) error
	Update(ctx context.Context, collection string, id int64, data map[string]any) error
	Delete(ctx context.Context, collection string, id int64) error
}

// ConnectivityChecker reports the current connectivity mode; satisfied by
// *scheduler.Watcher. Sync operations invoked while offline fail fast
// without issuing a single request.
type ConnectivityChecker interface {
	Online() bool
}

// ItemError records one failed queue entry during upload.
type ItemError struct {
	EntryID    int64
	Collection string
	Action     models.Action
	Err        string
}

// UploadResult summarizes one upload pass. A failed item never aborts the
// batch; it is counted here and retried next cycle.
type UploadResult struct {
	Uploaded int
	Failed   int
	Errors   []ItemError
}

// CollectionError records one failed endpoint fetch or item merge.
type CollectionError struct {
	Collection string
	Err        string
}

// DownloadResult summarizes one download pass: merged item counts per
// collection plus any per-endpoint errors.
type DownloadResult struct {
	Counts map[string]int
	Errors []CollectionError
}

// Result is the outcome of one full sync cycle.
type Result struct {
	Success  bool
	Upload   *UploadResult
	Download *DownloadResult
	Message  string
}

// Options tunes the manager. TransportRetries is the number of in-cycle
// re-attempts for a queue item whose request failed at the transport level
// (server-side HTTP errors are never retried in-cycle).
type Options struct {
	TransportRetries uint64
}

type Manager struct {
	store  *store.Store
	api    Transport
	online ConnectivityChecker
	bus    *events.Bus
	log    logging.Logger
	opts   Options

	// guard serializes full syncs; a held slot means a cycle is in flight
	// and concurrent callers are rejected rather than queued.
	guard chan struct{}
}

func New(st *store.Store, t Transport, online ConnectivityChecker, bus *events.Bus, log logging.Logger, opts Options) *Manager {
	return &Manager{
		store:  st,
		api:    t,
		online: online,
		bus:    bus,
		log:    log.With("component", "sync"),
		opts:   opts,
		guard:  make(chan struct{}, 1),
	}
}

// Syncing reports whether a full sync cycle is currently in flight.
func (m *Manager) Syncing() bool {
	return len(m.guard) == 1
}

// Upload drains the pending queue: one request per entry, partial-failure
// tolerant. Fails fast with common.ErrOffline when the server is
// unreachable.
func (m *Manager) Upload(ctx context.Context) (*UploadResult, error) {
	if !m.online.Online() {
		return nil, common.ErrOffline
	}
	return m.upload(ctx)
}

// Download pulls server deltas for every collection and merges them
// server-wins by id. With forceRefresh the watermark is ignored and the
// full set is requested from the plain list endpoint.
func (m *Manager) Download(ctx context.Context, forceRefresh bool) (*DownloadResult, error) {
	if !m.online.Online() {
		return nil, common.ErrOffline
	}
	return m.download(ctx, forceRefresh)
}

// FullSync runs upload then download as one logical unit. Upload goes first
// so fresh local changes are on the server before its state is merged back.
// A cycle already in flight rejects the call with common.ErrSyncInProgress.
func (m *Manager) FullSync(ctx context.Context) (*Result, error) {
	select {
	case m.guard <- struct{}{}:
	default:
		return nil, common.ErrSyncInProgress
	}
	defer func() { <-m.guard }()

	if !m.online.Online() {
		return nil, common.ErrOffline
	}

	m.bus.Publish(events.SyncStarted, nil)
	m.log.Info(ctx, "full sync started")

	up, err := m.upload(ctx)
	if err != nil {
		return &Result{Message: fmt.Sprintf("upload failed: %v", err)}, err
	}

	down, err := m.download(ctx, false)
	if err != nil {
		return &Result{Upload: up, Message: fmt.Sprintf("download failed: %v", err)}, err
	}

	res := &Result{Success: true, Upload: up, Download: down, Message: "sync completed"}
	m.bus.Publish(events.SyncCompleted, res)
	m.log.Info(ctx, "full sync finished",
		"uploaded", up.Uploaded, "upload_failed", up.Failed, "download_errors", len(down.Errors))
	return res, nil
}

func (m *Manager) upload(ctx context.Context) (*UploadResult, error) {
	pending, err := m.store.PendingQueue(ctx)
	if err != nil {
		return nil, err
	}

	res := &UploadResult{}
	for _, entry := range pending {
		if err := m.pushEntry(ctx, entry); err != nil {
			if markErr := m.store.MarkQueueError(ctx, entry.ID, err.Error()); markErr != nil {
				return res, markErr
			}
			res.Failed++
			res.Errors = append(res.Errors, ItemError{
				EntryID:    entry.ID,
				Collection: entry.Collection,
				Action:     entry.Action,
				Err:        err.Error(),
			})
			m.log.Warn(ctx, "queue entry failed",
				"entry", entry.ID, "collection", entry.Collection, "action", entry.Action, "error", err)
			continue
		}

		if err := m.store.MarkQueueSynced(ctx, entry.ID); err != nil {
			return res, err
		}
		res.Uploaded++
	}
	return res, nil
}

// pushEntry sends one queue entry, retrying transport-level failures with a
// capped fibonacci backoff. HTTP-level rejections surface immediately.
func (m *Manager) pushEntry(ctx context.Context, entry *models.QueueEntry) error {
	backoff := retry.WithMaxRetries(m.opts.TransportRetries, retry.NewFibonacci(200*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		switch entry.Action {
		case models.ActionCreate:
			err = m.api.Create(ctx, entry.Collection, entry.Data)
		case models.ActionUpdate:
			err = m.api.Update(ctx, entry.Collection, entry.RecordID, entry.Data)
		case models.ActionDelete:
			err = m.api.Delete(ctx, entry.Collection, entry.RecordID)
		default:
			return fmt.Errorf("unknown queue action %q", entry.Action)
		}

		if errors.Is(err, common.ErrTransport) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (m *Manager) download(ctx context.Context, forceRefresh bool) (*DownloadResult, error) {
	started := time.Now().UTC()

	since := ""
	if !forceRefresh {
		var err error
		if since, err = m.store.LastSync(ctx); err != nil {
			return nil, err
		}
	}

	res := &DownloadResult{Counts: make(map[string]int)}
	for _, name := range models.CollectionNames() {
		var items []map[string]any
		var err error
		if forceRefresh {
			items, err = m.api.FetchAll(ctx, name)
		} else {
			items, err = m.api.FetchSince(ctx, name, since)
		}
		if err != nil {
			res.Errors = append(res.Errors, CollectionError{Collection: name, Err: err.Error()})
			m.log.Warn(ctx, "collection fetch failed", "collection", name, "error", err)
			continue
		}

		for _, item := range items {
			if err := m.store.ApplyServerRecord(ctx, name, item); err != nil {
				res.Errors = append(res.Errors, CollectionError{Collection: name, Err: err.Error()})
				continue
			}
			res.Counts[name]++
		}
	}

	// The watermark only advances when every endpoint delivered; otherwise
	// the next cycle re-requests from the old boundary and the merge's
	// idempotence absorbs the overlap.
	if len(res.Errors) == 0 {
		if err := m.store.SetLastSync(ctx, started); err != nil {
			return res, err
		}
	} else {
		m.log.Warn(ctx, "watermark not advanced", "errors", len(res.Errors))
	}

	return res, nil
}
