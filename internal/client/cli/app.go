// Package cli implements the interactive field client: a REPL over the
// local store and the sync core. All collaborators are constructed once
// here and passed by reference; there is no package-level shared state.
package cli

import (
	"bufio"
	"context"
	"os"

	"github.com/electoral-office/fieldsync/internal/client/api"
	"github.com/electoral-office/fieldsync/internal/client/config"
	"github.com/electoral-office/fieldsync/internal/client/events"
	"github.com/electoral-office/fieldsync/internal/client/scheduler"
	"github.com/electoral-office/fieldsync/internal/client/store"
	syncmgr "github.com/electoral-office/fieldsync/internal/client/sync"
	"github.com/electoral-office/fieldsync/internal/logging"

	_ "modernc.org/sqlite"
)

type App struct {
	config  *config.Config
	store   *store.Store
	api     *api.Client
	manager *syncmgr.Manager
	watcher *scheduler.Watcher
	sched   *scheduler.Scheduler
	bus     *events.Bus
	log     logging.Logger
	reader  *bufio.Reader
}

// NewApp wires the application: store, transport, connectivity watcher,
// sync manager, and scheduler, in dependency order.
func NewApp(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	db, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		log.Error(ctx, "database initialization failed", "path", cfg.DatabasePath, "error", err)
		return nil, err
	}

	st := store.New(db, log)
	bus := events.NewBus()

	apiClient, err := api.New(cfg.ServerBaseURL, log)
	if err != nil {
		return nil, err
	}

	watcher := scheduler.NewWatcher(apiClient, bus, cfg.OnlineCheckInterval, log)
	manager := syncmgr.New(st, apiClient, watcher, bus, log,
		syncmgr.Options{TransportRetries: cfg.TransportRetries})
	sched := scheduler.New(manager, watcher, bus, cfg.SyncInterval, log)

	bus.Publish(events.StoreReady, nil)
	log.Info(ctx, "local database ready", "path", cfg.DatabasePath)

	return &App{
		config:  cfg,
		store:   st,
		api:     apiClient,
		manager: manager,
		watcher: watcher,
		sched:   sched,
		bus:     bus,
		log:     log,
		reader:  bufio.NewReader(os.Stdin),
	}, nil
}

// Run starts the background watcher and scheduler, then enters the REPL.
func (a *App) Run(ctx context.Context) {
	defer a.store.DB().Close()

	go a.watcher.Run(ctx)
	go a.sched.Run(ctx)

	a.Root(ctx)
}
