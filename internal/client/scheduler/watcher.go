// Package scheduler reacts to connectivity transitions and timers: a
// Watcher that probes the server to maintain the online/offline mode, and a
// Scheduler that invokes full syncs when the mode flips back online or the
// periodic interval elapses.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/electoral-office/fieldsync/internal/client/events"
	"github.com/electoral-office/fieldsync/internal/logging"
)

// Pinger probes server reachability; satisfied by *api.Client.
type Pinger interface {
	Ping(ctx context.Context) error
}

const probeTimeout = 3 * time.Second

// Watcher maintains the connectivity mode by probing the server on a fixed
// interval and publishes Online/Offline events on transitions. There is no
// ambient connectivity signal available to a headless client, so the probe
// is the signal.
type Watcher struct {
	pinger   Pinger
	bus      *events.Bus
	interval time.Duration
	log      logging.Logger

	mu     sync.RWMutex
	online bool
}

func NewWatcher(p Pinger, bus *events.Bus, interval time.Duration, log logging.Logger) *Watcher {
	return &Watcher{
		pinger:   p,
		bus:      bus,
		interval: interval,
		log:      log.With("component", "watcher"),
	}
}

// Online reports the mode observed by the most recent probe.
func (w *Watcher) Online() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.online
}

// Run probes immediately, then on every tick, until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	w.probe(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	err := w.pinger.Ping(probeCtx)
	cancel()

	w.setOnline(ctx, err == nil)
}

func (w *Watcher) setOnline(ctx context.Context, online bool) {
	w.mu.Lock()
	changed := w.online != online
	w.online = online
	w.mu.Unlock()

	if !changed {
		return
	}

	if online {
		w.log.Info(ctx, "connection restored")
		w.bus.Publish(events.Online, nil)
	} else {
		w.log.Warn(ctx, "connection lost, switching to offline mode")
		w.bus.Publish(events.Offline, nil)
	}
}
