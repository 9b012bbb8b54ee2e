package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/electoral-office/fieldsync/internal/client/events"
	"github.com/electoral-office/fieldsync/internal/logging"
	"github.com/stretchr/testify/assert"
)

type fakePinger struct{ err error }

func (f *fakePinger) Ping(context.Context) error { return f.err }

func testLogger() logging.Logger {
	return logging.NewTextLogger(io.Discard, slog.LevelError)
}

func waitEvent(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return events.Event{}
	}
}

func TestWatcher_StartsOffline(t *testing.T) {
	w := NewWatcher(&fakePinger{}, events.NewBus(), time.Minute, testLogger())
	assert.False(t, w.Online())
}

func TestWatcher_TransitionsPublishOnce(t *testing.T) {
	bus := events.NewBus()
	pinger := &fakePinger{err: errors.New("unreachable")}
	w := NewWatcher(pinger, bus, time.Minute, testLogger())

	onlineCh := make(chan events.Event, 4)
	offlineCh := make(chan events.Event, 4)
	bus.Subscribe(events.Online, func(ev events.Event) { onlineCh <- ev })
	bus.Subscribe(events.Offline, func(ev events.Event) { offlineCh <- ev })

	ctx := context.Background()

	// still offline: no transition, no event
	w.probe(ctx)
	assert.False(t, w.Online())
	assert.Empty(t, onlineCh)

	// server comes up: exactly one Online event
	pinger.err = nil
	w.probe(ctx)
	w.probe(ctx)
	assert.True(t, w.Online())
	waitEvent(t, onlineCh)
	select {
	case <-onlineCh:
		t.Fatal("duplicate online event for a single transition")
	case <-time.After(50 * time.Millisecond):
	}

	// and back down: one Offline event
	pinger.err = errors.New("gone")
	w.probe(ctx)
	assert.False(t, w.Online())
	waitEvent(t, offlineCh)
}

func TestWatcher_RunStopsOnContextCancel(t *testing.T) {
	w := NewWatcher(&fakePinger{}, events.NewBus(), 5*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop after cancellation")
	}
	assert.True(t, w.Online())
}
