package reload

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Syncer reconciles in-memory state with what is on disk.
// *manager.Manager implements it.
type Syncer interface {
	Sync(ctx context.Context) ([]string, error)
}

// Service runs a Watcher and calls Sync on every change. It implements
// core.Service.
type Service struct {
	cfg    WatcherConfig
	syncer Syncer
	logger *slog.Logger

	mu      sync.Mutex
	watcher *Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewService creates a service syncing s whenever a path in cfg changes.
func NewService(cfg WatcherConfig, s Syncer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:    cfg,
		syncer: s,
		logger: logger.With("component", "reload"),
	}
}

// Start begins watching.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("reload: already started")
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.watcher = NewWatcher(s.cfg)

	s.watcher.Start(ctx)
	s.logger.Info("watching modules root", "native", s.watcher.Native(), "paths", s.cfg.Paths)
	go s.loop(ctx, s.watcher, s.done)
	return nil
}

func (s *Service) loop(ctx context.Context, w *Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-w.Events():
			s.Handle(ctx, ev)
		}
	}
}

// Handle syncs once for ev. Errors are logged.
func (s *Service) Handle(ctx context.Context, ev Event) {
	changed, err := s.syncer.Sync(ctx)
	if err != nil {
		s.logger.Warn("sync after change failed", "path", ev.Path, "error", err)
	}
	if len(changed) > 0 {
		s.logger.Info("picked up external changes", "path", ev.Path, "modules", changed)
	}
}

// Stop stops watching and waits for an in-flight sync.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done, w := s.cancel, s.done, s.watcher
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	w.Stop()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
