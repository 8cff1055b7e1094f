// Package reload keeps a running server in step with changes other
// processes make under the modules root, such as a CLI enabling a module
// or writing its settings.
package reload

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultDebounce     = 250 * time.Millisecond
)

// WatcherConfig configures the watcher.
type WatcherConfig struct {
	// Paths are the files or directories to watch. Directories are watched
	// for entries being created, renamed or removed, which is how atomic
	// writes show up.
	Paths []string

	// PollInterval is how often paths are checked when no native watcher
	// is available, or when Poll is set. Defaults to 5 seconds.
	PollInterval time.Duration

	// Debounce coalesces bursts of native events. Defaults to 250ms.
	Debounce time.Duration

	// Poll skips the native watcher.
	Poll bool
}

func (c WatcherConfig) pollIntervalOrDefault() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return defaultPollInterval
}

func (c WatcherConfig) debounceOrDefault() time.Duration {
	if c.Debounce > 0 {
		return c.Debounce
	}
	return defaultDebounce
}

// Event reports that something under Path changed.
type Event struct {
	Path string
}

// Watcher emits an Event when a watched path changes. Pending events are
// coalesced: a consumer that falls behind sees one event, not a backlog.
type Watcher struct {
	cfg     WatcherConfig
	events  chan Event
	stop    chan struct{}
	stopped chan struct{}
	native  atomic.Bool

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewWatcher creates a watcher.
func NewWatcher(cfg WatcherConfig) *Watcher {
	return &Watcher{
		cfg:     cfg,
		events:  make(chan Event, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start begins watching. Only the first call has an effect.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.started.Store(true)
		if !w.cfg.Poll {
			if fw, err := w.nativeWatcher(); err == nil {
				w.native.Store(true)
				go w.watch(ctx, fw)
				return
			}
		}
		go w.poll(ctx)
	})
}

// Native reports whether the platform watcher is in use rather than
// polling.
func (w *Watcher) Native() bool { return w.native.Load() }

// Events returns the channel of change events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Stop stops the watcher. It is safe to call more than once and before
// Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	if w.started.Load() {
		<-w.stopped
	}
}

func (w *Watcher) emit(path string) {
	select {
	case w.events <- Event{Path: path}:
	default:
	}
}

func (w *Watcher) nativeWatcher() (*fsnotify.Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	added := 0
	for _, p := range w.cfg.Paths {
		if err := fw.Add(p); err == nil {
			added++
		}
	}
	if added == 0 && len(w.cfg.Paths) > 0 {
		_ = fw.Close()
		return nil, os.ErrNotExist
	}
	return fw, nil
}

func (w *Watcher) watch(ctx context.Context, fw *fsnotify.Watcher) {
	defer close(w.stopped)
	defer fw.Close()

	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	var pending string

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			pending = ev.Name
			debounce.Reset(w.cfg.debounceOrDefault())
		case _, ok := <-fw.Errors:
			if !ok {
				return
			}
		case <-debounce.C:
			w.emit(pending)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	defer close(w.stopped)

	ticker := time.NewTicker(w.cfg.pollIntervalOrDefault())
	defer ticker.Stop()

	last := w.modTimes()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			current := w.modTimes()
			for i, t := range current {
				if !t.IsZero() && t.After(last[i]) {
					w.emit(w.cfg.Paths[i])
					break
				}
			}
			last = current
		}
	}
}

// modTimes returns the modification time of each path, zero for missing
// ones.
func (w *Watcher) modTimes() []time.Time {
	out := make([]time.Time, len(w.cfg.Paths))
	for i, p := range w.cfg.Paths {
		if info, err := os.Stat(p); err == nil {
			out[i] = info.ModTime()
		}
	}
	return out
}
