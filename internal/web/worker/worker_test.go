package worker

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

type countingPurger struct {
	calls atomic.Int32
	err   error
}

func (p *countingPurger) DeleteExpired() (int64, error) {
	p.calls.Add(1)
	return 2, p.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunOnce(t *testing.T) {
	workDir := t.TempDir()
	stale := filepath.Join(workDir, "orex-merge-123")
	if err := os.Mkdir(stale, 0o700); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-3 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	purger := &countingPurger{}
	w := New(purger, workDir, testLogger(), DefaultConfig())
	w.RunOnce()

	if got := purger.calls.Load(); got != 1 {
		t.Errorf("DeleteExpired called %d times, want 1", got)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("abandoned workspace not removed")
	}
}

func TestRunOnceSurvivesErrors(t *testing.T) {
	purger := &countingPurger{err: errors.New("database is locked")}
	w := New(purger, filepath.Join(t.TempDir(), "missing"), testLogger(), Config{})
	w.RunOnce()

	if got := purger.calls.Load(); got != 1 {
		t.Errorf("DeleteExpired called %d times, want 1", got)
	}
}

func TestStartStop(t *testing.T) {
	purger := &countingPurger{}
	w := New(purger, t.TempDir(), testLogger(), Config{Interval: 10 * time.Millisecond})
	w.Start()

	deadline := time.Now().Add(2 * time.Second)
	for purger.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	w.Stop()

	if got := purger.calls.Load(); got < 2 {
		t.Errorf("DeleteExpired called %d times, want at least 2", got)
	}
}
