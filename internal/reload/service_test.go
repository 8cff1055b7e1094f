package reload

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

type countingSyncer struct {
	calls atomic.Int32
	err   error
}

func (c *countingSyncer) Sync(context.Context) ([]string, error) {
	c.calls.Add(1)
	return []string{"a_mod"}, c.err
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestService_SyncsOnChange(t *testing.T) {
	dir := t.TempDir()
	syncer := &countingSyncer{}
	svc := NewService(WatcherConfig{Paths: []string{dir}, Debounce: 20 * time.Millisecond, PollInterval: 50 * time.Millisecond}, syncer, discard())
	if err := svc.Start(); err != nil {
		t.Fatal(err)
	}
	if err := svc.Start(); err == nil {
		t.Error("second Start succeeded")
	}

	time.Sleep(100 * time.Millisecond)
	future := time.Now().Add(time.Minute)
	if err := os.WriteFile(filepath.Join(dir, "uninstalled_modules.json"), []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(dir, future, future); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for syncer.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Sync was never called")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := svc.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := svc.Stop(context.Background()); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestService_HandleLogsErrors(t *testing.T) {
	syncer := &countingSyncer{err: errors.New("boom")}
	svc := NewService(WatcherConfig{}, syncer, discard())
	svc.Handle(context.Background(), Event{Path: "x"})
	if syncer.calls.Load() != 1 {
		t.Errorf("calls = %d", syncer.calls.Load())
	}
}
