package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/electoral-office/fieldsync/internal/client/events"
	syncmgr "github.com/electoral-office/fieldsync/internal/client/sync"
	"github.com/electoral-office/fieldsync/internal/common"
	"github.com/electoral-office/fieldsync/internal/logging"
)

// Syncer runs one full sync cycle; satisfied by *sync.Manager.
type Syncer interface {
	FullSync(ctx context.Context) (*syncmgr.Result, error)
}

// Scheduler triggers full syncs on two signals: an offline-to-online
// transition (via the event bus), and a periodic timer while online. A sync
// already in flight makes a trigger a no-op; the next signal retries. There
// is no backoff here: failed queue entries are simply re-attempted on the
// following cycle.
type Scheduler struct {
	syncer   Syncer
	online   syncmgr.ConnectivityChecker
	bus      *events.Bus
	interval time.Duration
	log      logging.Logger
}

func New(s Syncer, online syncmgr.ConnectivityChecker, bus *events.Bus, interval time.Duration, log logging.Logger) *Scheduler {
	return &Scheduler{
		syncer:   s,
		online:   online,
		bus:      bus,
		interval: interval,
		log:      log.With("component", "scheduler"),
	}
}

// Run subscribes to connectivity transitions and starts the periodic timer,
// blocking until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	unsubscribe := s.bus.Subscribe(events.Online, func(events.Event) {
		s.log.Info(ctx, "back online, syncing")
		s.trigger(ctx)
	})
	defer unsubscribe()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.online.Online() {
				s.log.Debug(ctx, "periodic sync triggered")
				s.trigger(ctx)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context) {
	res, err := s.syncer.FullSync(ctx)
	switch {
	case errors.Is(err, common.ErrSyncInProgress):
		s.log.Debug(ctx, "sync already running, trigger ignored")
	case errors.Is(err, common.ErrOffline):
		s.log.Debug(ctx, "went offline before sync could start")
	case err != nil:
		s.log.Error(ctx, "sync failed", "error", err)
	default:
		s.log.Info(ctx, "sync completed",
			"uploaded", res.Upload.Uploaded, "failed", res.Upload.Failed)
	}
}
