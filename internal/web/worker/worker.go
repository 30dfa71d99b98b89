package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/belkagoyda/orex-workspace/internal/docmerge"
)

// SessionPurger deletes expired sessions
type SessionPurger interface {
	DeleteExpired() (int64, error)
}

// Worker runs periodic housekeeping: expired sessions and abandoned merge workspaces
type Worker struct {
	sessions SessionPurger
	workDir  string
	logger   *slog.Logger

	interval     time.Duration
	workspaceTTL time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds worker configuration
type Config struct {
	Interval time.Duration
	// WorkspaceTTL is the age after which a merge workspace counts as abandoned
	WorkspaceTTL time.Duration
}

// DefaultConfig returns default worker configuration
func DefaultConfig() Config {
	return Config{
		Interval:     10 * time.Minute,
		WorkspaceTTL: time.Hour,
	}
}

// New creates a new worker. workDir is the merge workspace parent ("" for os.TempDir()).
func New(sessions SessionPurger, workDir string, logger *slog.Logger, cfg Config) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.WorkspaceTTL <= 0 {
		cfg.WorkspaceTTL = DefaultConfig().WorkspaceTTL
	}

	return &Worker{
		sessions:     sessions,
		workDir:      workDir,
		logger:       logger.With("component", "worker"),
		interval:     cfg.Interval,
		workspaceTTL: cfg.WorkspaceTTL,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start starts the worker
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.run()
	w.logger.Info("worker started", "interval", w.interval, "workspace_ttl", w.workspaceTTL)
}

// Stop stops the worker gracefully
func (w *Worker) Stop() {
	w.logger.Info("stopping worker...")
	w.cancel()
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

func (w *Worker) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce()
		}
	}
}

// RunOnce performs one housekeeping pass
func (w *Worker) RunOnce() {
	if n, err := w.sessions.DeleteExpired(); err != nil {
		w.logger.Error("failed to purge expired sessions", "error", err)
	} else if n > 0 {
		w.logger.Info("expired sessions purged", "count", n)
	}

	n, err := docmerge.SweepWorkspaces(w.workDir, time.Now().Add(-w.workspaceTTL))
	if err != nil {
		w.logger.Error("failed to sweep merge workspaces", "dir", w.workDir, "error", err)
	} else if n > 0 {
		w.logger.Warn("abandoned merge workspaces removed", "count", n)
	}
}
