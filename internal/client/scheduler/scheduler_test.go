package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/electoral-office/fieldsync/internal/client/events"
	syncmgr "github.com/electoral-office/fieldsync/internal/client/sync"
	"github.com/electoral-office/fieldsync/internal/common"
	"github.com/stretchr/testify/assert"
)

type fakeSyncer struct {
	calls atomic.Int64
	err   error
}

func (f *fakeSyncer) FullSync(context.Context) (*syncmgr.Result, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &syncmgr.Result{Success: true, Upload: &syncmgr.UploadResult{}}, nil
}

type fixedChecker struct{ online bool }

func (f *fixedChecker) Online() bool { return f.online }

func runScheduler(t *testing.T, s *Scheduler) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("scheduler did not stop")
		}
	})
	return cancel
}

func waitCalls(t *testing.T, f *fakeSyncer, want int64) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for f.calls.Load() < want {
		if time.Now().After(deadline) {
			t.Fatalf("expected at least %d sync calls, saw %d", want, f.calls.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestScheduler_SyncsOnOnlineTransition(t *testing.T) {
	bus := events.NewBus()
	syncer := &fakeSyncer{}
	s := New(syncer, &fixedChecker{online: false}, bus, time.Hour, testLogger())
	runScheduler(t, s)

	// give Run a moment to subscribe
	time.Sleep(20 * time.Millisecond)
	bus.Publish(events.Online, nil)

	waitCalls(t, syncer, 1)
}

func TestScheduler_PeriodicSyncOnlyWhileOnline(t *testing.T) {
	bus := events.NewBus()
	syncer := &fakeSyncer{}
	checker := &fixedChecker{online: true}
	s := New(syncer, checker, bus, 10*time.Millisecond, testLogger())
	runScheduler(t, s)

	waitCalls(t, syncer, 2)
}

func TestScheduler_NoPeriodicSyncWhileOffline(t *testing.T) {
	bus := events.NewBus()
	syncer := &fakeSyncer{}
	s := New(syncer, &fixedChecker{online: false}, bus, 10*time.Millisecond, testLogger())
	runScheduler(t, s)

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, syncer.calls.Load())
}

func TestScheduler_ToleratesBusyAndOfflineSyncer(t *testing.T) {
	bus := events.NewBus()
	syncer := &fakeSyncer{err: common.ErrSyncInProgress}
	s := New(syncer, &fixedChecker{online: true}, bus, 10*time.Millisecond, testLogger())
	runScheduler(t, s)

	waitCalls(t, syncer, 2)

	syncer.err = common.ErrOffline
	waitCalls(t, syncer, 4)
}
