package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/electoral-office/fieldsync/internal/client/events"
	"github.com/electoral-office/fieldsync/internal/client/models"
	"github.com/electoral-office/fieldsync/internal/client/store"
	"github.com/electoral-office/fieldsync/internal/common"
	"github.com/electoral-office/fieldsync/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

type fakeTransport struct {
	requests atomic.Int64

	fetchFn    func(collection, since string) ([]map[string]any, error)
	fetchAllFn func(collection string) ([]map[string]any, error)
	createFn   func(collection string, data map[string]any) error
	updateFn   func(collection string, id int64, data map[string]any) error
	deleteFn   func(collection string, id int64) error
}

func (f *fakeTransport) FetchSince(_ context.Context, collection, since string) ([]map[string]any, error) {
	f.requests.Add(1)
	if f.fetchFn != nil {
		return f.fetchFn(collection, since)
	}
	return nil, nil
}

func (f *fakeTransport) FetchAll(_ context.Context, collection string) ([]map[string]any, error) {
	f.requests.Add(1)
	if f.fetchAllFn != nil {
		return f.fetchAllFn(collection)
	}
	return nil, nil
}

func (f *fakeTransport) Create(_ context.Context, collection string, data map[string]any) error {
	f.requests.Add(1)
	if f.createFn != nil {
		return f.createFn(collection, data)
	}
	return nil
}

func (f *fakeTransport) Update(_ context.Context, collection string, id int64, data map[string]any) error {
	f.requests.Add(1)
	if f.updateFn != nil {
		return f.updateFn(collection, id, data)
	}
	return nil
}

func (f *fakeTransport) Delete(_ context.Context, collection string, id int64) error {
	f.requests.Add(1)
	if f.deleteFn != nil {
		return f.deleteFn(collection, id)
	}
	return nil
}

type fakeChecker struct{ online bool }

func (f *fakeChecker) Online() bool { return f.online }

func setupManager(t *testing.T, transport *fakeTransport, online bool) (*Manager, *store.Store) {
	t.Helper()
	ctx := context.Background()

	db, err := store.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logging.NewTextLogger(io.Discard, slog.LevelError)
	st := store.New(db, log)
	m := New(st, transport, &fakeChecker{online: online}, events.NewBus(), log,
		Options{TransportRetries: 2})
	return m, st
}

func seedVoters(t *testing.T, st *store.Store, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		_, err := st.Add(context.Background(), "voters", map[string]any{
			"full_name":    fmt.Sprintf("Voter %d", i),
			"voter_number": fmt.Sprintf("V-%d", i),
		})
		require.NoError(t, err)
	}
}

func TestUpload_PartialFailureDoesNotAbortBatch(t *testing.T) {
	var calls int
	transport := &fakeTransport{
		createFn: func(collection string, data map[string]any) error {
			calls++
			if calls == 2 {
				return fmt.Errorf("%w: POST /api/voters/ -> 500", common.ErrServer)
			}
			return nil
		},
	}
	m, st := setupManager(t, transport, true)
	seedVoters(t, st, 3)

	res, err := m.Upload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Uploaded)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, models.ActionCreate, res.Errors[0].Action)

	// the failed entry stays queued with its retry counter bumped
	pending, err := st.PendingQueue(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.StatusError, pending[0].Status)
	assert.Equal(t, 1, pending[0].Retries)
	assert.Contains(t, pending[0].LastError, "500")
}

func TestUpload_OfflineFailsFastWithoutRequests(t *testing.T) {
	transport := &fakeTransport{}
	m, st := setupManager(t, transport, false)
	seedVoters(t, st, 2)

	_, err := m.Upload(context.Background())
	require.ErrorIs(t, err, common.ErrOffline)
	assert.Zero(t, transport.requests.Load())

	_, err = m.Download(context.Background(), false)
	require.ErrorIs(t, err, common.ErrOffline)
	assert.Zero(t, transport.requests.Load())

	_, err = m.FullSync(context.Background())
	require.ErrorIs(t, err, common.ErrOffline)
	assert.Zero(t, transport.requests.Load())
}

func TestUpload_RetriesTransportErrors(t *testing.T) {
	var attempts int
	transport := &fakeTransport{
		createFn: func(collection string, data map[string]any) error {
			attempts++
			if attempts < 3 {
				return fmt.Errorf("%w: connection refused", common.ErrTransport)
			}
			return nil
		},
	}
	m, st := setupManager(t, transport, true)
	seedVoters(t, st, 1)

	res, err := m.Upload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Uploaded)
	assert.Equal(t, 3, attempts, "two transport failures, then success")
}

func TestUpload_ServerErrorsAreNotRetriedInCycle(t *testing.T) {
	var attempts int
	transport := &fakeTransport{
		createFn: func(collection string, data map[string]any) error {
			attempts++
			return fmt.Errorf("%w: POST -> 400", common.ErrServer)
		},
	}
	m, st := setupManager(t, transport, true)
	seedVoters(t, st, 1)

	res, err := m.Upload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, attempts)
}

func TestUpload_DeleteEntryUsesRecordID(t *testing.T) {
	var deleted []int64
	transport := &fakeTransport{
		deleteFn: func(collection string, id int64) error {
			deleted = append(deleted, id)
			return nil
		},
	}
	m, st := setupManager(t, transport, true)
	seedVoters(t, st, 1)
	require.NoError(t, st.Delete(context.Background(), "voters", 1))

	res, err := m.Upload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Uploaded, "create then delete")
	assert.Equal(t, []int64{1}, deleted)
}

func TestDownload_MergesAndAdvancesWatermark(t *testing.T) {
	transport := &fakeTransport{
		fetchFn: func(collection, since string) ([]map[string]any, error) {
			if collection == "voters" {
				return []map[string]any{
					{"id": float64(10), "full_name": "Server Voter", "voter_number": "V-10"},
				}, nil
			}
			return nil, nil
		},
	}
	m, st := setupManager(t, transport, true)

	res, err := m.Download(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Counts["voters"])
	assert.Empty(t, res.Errors)

	rec, err := st.Get(context.Background(), "voters", 10)
	require.NoError(t, err)
	assert.True(t, rec.Synced)

	mark, err := st.LastSync(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, mark)
}

func TestDownload_EndpointFailureHoldsWatermark(t *testing.T) {
	transport := &fakeTransport{
		fetchFn: func(collection, since string) ([]map[string]any, error) {
			if collection == "candidates" {
				return nil, fmt.Errorf("%w: GET -> 502", common.ErrServer)
			}
			return []map[string]any{{"id": float64(1), "full_name": "X"}}, nil
		},
	}
	m, st := setupManager(t, transport, true)

	res, err := m.Download(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "candidates", res.Errors[0].Collection)
	// the healthy endpoints still merged
	assert.Equal(t, 1, res.Counts["voters"])

	mark, err := st.LastSync(context.Background())
	require.NoError(t, err)
	assert.Empty(t, mark, "watermark must not advance past a failed endpoint")
}

func TestDownload_SinceHeaderAndForceRefresh(t *testing.T) {
	var sinceSeen []string
	var fullFetches int
	transport := &fakeTransport{
		fetchFn: func(collection, since string) ([]map[string]any, error) {
			sinceSeen = append(sinceSeen, since)
			return nil, nil
		},
		fetchAllFn: func(collection string) ([]map[string]any, error) {
			fullFetches++
			return nil, nil
		},
	}
	m, st := setupManager(t, transport, true)
	require.NoError(t, st.SetLastSync(context.Background(), time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)))

	_, err := m.Download(context.Background(), false)
	require.NoError(t, err)
	require.NotEmpty(t, sinceSeen)
	for _, s := range sinceSeen {
		assert.Equal(t, "2026-08-01T00:00:00Z", s)
	}
	assert.Zero(t, fullFetches)

	// force refresh goes to the plain list endpoint instead
	sinceSeen = nil
	_, err = m.Download(context.Background(), true)
	require.NoError(t, err)
	assert.Empty(t, sinceSeen)
	assert.Equal(t, len(models.CollectionNames()), fullFetches)
}

func TestFullSync_RejectsConcurrentCycles(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	transport := &fakeTransport{
		createFn: func(collection string, data map[string]any) error {
			close(started)
			<-release
			return nil
		},
	}
	m, st := setupManager(t, transport, true)
	seedVoters(t, st, 1)

	done := make(chan error, 1)
	go func() {
		_, err := m.FullSync(context.Background())
		done <- err
	}()

	<-started
	assert.True(t, m.Syncing())

	_, err := m.FullSync(context.Background())
	require.ErrorIs(t, err, common.ErrSyncInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, m.Syncing())
}

func TestFullSync_UploadBeforeDownload(t *testing.T) {
	var order []string
	transport := &fakeTransport{
		createFn: func(collection string, data map[string]any) error {
			order = append(order, "upload")
			return nil
		},
		fetchFn: func(collection, since string) ([]map[string]any, error) {
			order = append(order, "download")
			return nil, nil
		},
	}
	m, st := setupManager(t, transport, true)
	seedVoters(t, st, 1)

	res, err := m.FullSync(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)

	require.NotEmpty(t, order)
	assert.Equal(t, "upload", order[0])
	assert.Equal(t, "download", order[len(order)-1])
}
