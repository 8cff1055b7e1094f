package core

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"
)

const shutdownTimeout = 30 * time.Second

// Service is a named long-running component of the host process, such as
// the HTTP gateway or the job scheduler.
type Service interface {
	// Start returns once the service runs in the background.
	Start() error

	// Stop is called in reverse order of Start during shutdown.
	Stop(ctx context.Context) error
}

// App runs the host services. They start in the order they were added
// and stop in reverse.
type App struct {
	logger  *slog.Logger
	names   []string
	svcs    []Service
	running int // svcs[:running] are started
}

// NewApp creates an empty App.
func NewApp(logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{logger: logger.With("component", "core")}
}

// Add appends a service.
func (a *App) Add(name string, s Service) {
	a.names = append(a.names, name)
	a.svcs = append(a.svcs, s)
}

// Start starts every service. When one fails, those already running are
// stopped before the error is returned.
func (a *App) Start() error {
	for i, s := range a.svcs {
		if err := s.Start(); err != nil {
			a.logger.Error("service start failed", "service", a.names[i], "error", err)
			a.Stop()
			return fmt.Errorf("starting service %s: %w", a.names[i], err)
		}
		a.running = i + 1
		a.logger.Info("service started", "service", a.names[i])
	}
	return nil
}

// Stop stops the running services, newest first, sharing one shutdown
// deadline.
func (a *App) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for ; a.running > 0; a.running-- {
		i := a.running - 1
		if err := a.svcs[i].Stop(ctx); err != nil {
			a.logger.Error("service stop failed", "service", a.names[i], "error", err)
			continue
		}
		a.logger.Info("service stopped", "service", a.names[i])
	}
}

// Run starts the services and stops them once ctx is done or the process
// receives SIGINT or SIGTERM.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	a.logger.Info("shutting down")
	a.Stop()
	return nil
}
