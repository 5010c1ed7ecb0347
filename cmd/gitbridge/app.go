package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/aristath/gitbridge/internal/config"
	"github.com/aristath/gitbridge/internal/download"
	"github.com/aristath/gitbridge/internal/events"
	"github.com/aristath/gitbridge/internal/git"
	"github.com/aristath/gitbridge/internal/history"
	"github.com/aristath/gitbridge/internal/process"
	"github.com/aristath/gitbridge/internal/scheduler"
	"github.com/aristath/gitbridge/internal/task"
)

// app holds the long-lived services a command needs.
type app struct {
	cfg        *config.Config
	logger     *log.Logger
	bus        *events.EventBus
	procs      *process.ProcessManager
	manager    *task.Manager
	git        *git.Client
	downloader *download.Downloader

	store    history.Store
	recorder *history.Recorder
	stopRec  context.CancelFunc
	recDone  chan struct{}
}

// newApp wires the services. History recording starts when the config enables it
// and withHistory is set.
func newApp(ctx context.Context, cfg *config.Config, logger *log.Logger, withHistory bool) *app {
	a := &app{
		cfg:    cfg,
		logger: logger,
		bus:    events.NewEventBus(),
		procs:  process.NewProcessManager(),
	}
	a.manager = task.NewManager(ctx, task.Config{
		MaxConcurrency: cfg.Engine.MaxConcurrency,
		Logger:         logger,
		Bus:            a.bus,
	})

	wrapper := process.NewWrapper(a.procs, scheduler.NewPathLocks(), logger)
	a.git = git.NewClient(a.manager, wrapper, cfg.Git, a.bus)
	a.downloader = download.NewDownloader(cfg.Download, a.bus, logger)

	if withHistory && cfg.History.Enabled {
		store, err := openHistory(ctx, cfg)
		if err != nil {
			logger.Printf("WARNING: history disabled: %v", err)
		} else {
			a.startRecorder(store)
		}
	}
	return a
}

func openHistory(ctx context.Context, cfg *config.Config) (*history.SQLiteStore, error) {
	path, err := cfg.HistoryPath()
	if err != nil {
		return nil, err
	}
	return history.NewSQLiteStore(ctx, path)
}

func (a *app) startRecorder(store history.Store) {
	a.store = store
	a.recorder = history.NewRecorder(store, a.bus, a.logger)
	recCtx, cancel := context.WithCancel(context.Background())
	a.stopRec = cancel
	a.recDone = make(chan struct{})
	go func() {
		defer close(a.recDone)
		a.recorder.Run(recCtx)
	}()
}

// close stops work and flushes history. When the command was interrupted, tracked
// processes are killed first.
func (a *app) close() {
	if a.manager.Token().Err() != nil {
		if err := a.procs.KillAll(); err != nil {
			a.logger.Printf("Error killing subprocesses: %v", err)
		}
	}
	a.manager.Stop()

	if a.recorder != nil {
		a.stopRec()
		select {
		case <-a.recDone:
		case <-time.After(10 * time.Second):
			a.logger.Println("WARNING: history: timed out flushing")
		}
		if err := a.store.Close(); err != nil {
			a.logger.Printf("WARNING: history: %v", err)
		}
	}
	a.bus.Close()
}

// resolveRepo maps a --repo value to an absolute path. Names from the
// repositories config win over paths.
func resolveRepo(cfg *config.Config, repo string) (string, error) {
	if repo == "" {
		repo = "."
	}
	if path, ok := cfg.Repositories[repo]; ok {
		repo = path
	}
	abs, err := filepath.Abs(repo)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", repo, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("repository %s: %w", repo, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("repository %s is not a directory", repo)
	}
	return abs, nil
}

// await starts t and waits for it, returning its error.
func await(t task.Task) error {
	t.Start()
	return t.Wait()
}
