package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// parser accepts standard 5-field expressions and @-descriptors.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// JobStatus is the outcome of a job's most recent run.
type JobStatus struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	Runs     int       `json:"runs"`
	LastRun  time.Time `json:"last_run,omitzero"`
	LastErr  string    `json:"last_error,omitempty"`
}

// Scheduler manages periodic job execution using cron expressions.
// Each job is protected by a per-job mutex so that a tick never overlaps
// the previous run of the same job.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   []Job
	locks  map[string]*sync.Mutex
	status map[string]*JobStatus
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler. Jobs must be registered before Start().
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		locks:  make(map[string]*sync.Mutex),
		status: make(map[string]*JobStatus),
		logger: logger.With("component", "cron"),
	}
}

// RegisterJob adds a job to the scheduler. Must be called before Start().
// Returns an error if a job with the same name is already registered or
// its schedule does not parse.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := j.Name()
	if _, exists := s.locks[name]; exists {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}
	if _, err := parser.Parse(j.Schedule()); err != nil {
		return fmt.Errorf("cron: invalid schedule for job %q: %w", name, err)
	}

	s.locks[name] = &sync.Mutex{}
	s.status[name] = &JobStatus{Name: name, Schedule: j.Schedule()}
	s.jobs = append(s.jobs, j)
	return nil
}

// Start begins executing registered jobs.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron = cron.New(cron.WithParser(parser))

	for _, job := range s.jobs {
		if _, err := s.cron.AddFunc(job.Schedule(), func() { s.tick(job) }); err != nil {
			s.cancel()
			return fmt.Errorf("cron: invalid schedule for job %q: %w", job.Name(), err)
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
	return nil
}

func (s *Scheduler) tick(job Job) {
	if err := s.run(s.ctx, job); errors.Is(err, errBusy) {
		s.logger.Warn("job still running, skipping tick", "job", job.Name())
	}
}

var errBusy = errors.New("cron: job is already running")

// run executes job unless it is already running and records the outcome.
func (s *Scheduler) run(ctx context.Context, job Job) (err error) {
	lock := s.locks[job.Name()]
	if !lock.TryLock() {
		return errBusy
	}
	defer lock.Unlock()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("cron: job %q panicked: %v", job.Name(), p)
		}
		s.record(job.Name(), err)
	}()

	s.logger.Debug("job started", "job", job.Name())
	return job.Run(ctx)
}

func (s *Scheduler) record(name string, err error) {
	s.mu.Lock()
	st := s.status[name]
	st.Runs++
	st.LastRun = time.Now()
	st.LastErr = ""
	if err != nil {
		st.LastErr = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed", "job", name, "error", err)
		return
	}
	s.logger.Debug("job completed", "job", name)
}

// RunNow executes the named job immediately, outside its schedule. It
// fails if the job is unknown or already running.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	idx := slices.IndexFunc(s.jobs, func(j Job) bool { return j.Name() == name })
	s.mu.Unlock()
	if idx < 0 {
		return fmt.Errorf("cron: unknown job %q", name)
	}
	return s.run(ctx, s.jobs[idx])
}

// Status returns the status of every registered job in registration order.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *s.status[j.Name()])
	}
	return out
}

// Stop gracefully shuts down the scheduler, waiting for in-flight jobs.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.logger.Info("scheduler stopped")
	}
	return nil
}

// ValidateSchedule reports whether expr is a schedule the scheduler accepts.
func ValidateSchedule(expr string) error {
	_, err := parser.Parse(expr)
	return err
}
