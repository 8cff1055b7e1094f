// Package crontest has stand-ins for the jobs and the dependencies of the
// cron package.
package crontest

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flemzord/storemods/internal/cron"
)

// Job is a cron.Job assembled from its parts. A nil Fn succeeds.
type Job struct {
	ID   string
	Expr string
	Fn   func(ctx context.Context) error

	runs atomic.Int32
}

var _ cron.Job = (*Job)(nil)

func (j *Job) Name() string     { return j.ID }
func (j *Job) Schedule() string { return j.Expr }

func (j *Job) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.Fn == nil {
		return nil
	}
	return j.Fn(ctx)
}

// Runs reports how many times Run was called.
func (j *Job) Runs() int { return int(j.runs.Load()) }

// Rescanner answers every Rescan with Loaded and Err.
type Rescanner struct {
	Loaded []string
	Err    error

	calls atomic.Int32
}

var _ cron.Rescanner = (*Rescanner)(nil)

func (r *Rescanner) Rescan(context.Context) ([]string, error) {
	r.calls.Add(1)
	return r.Loaded, r.Err
}

// Calls reports how many times Rescan was called.
func (r *Rescanner) Calls() int { return int(r.calls.Load()) }

// Sweeper answers every Sweep with Removed and Err and remembers the ages
// it was asked to sweep.
type Sweeper struct {
	Removed int
	Err     error

	mu   sync.Mutex
	ages []time.Duration
}

var _ cron.Sweeper = (*Sweeper)(nil)

func (s *Sweeper) Sweep(age time.Duration) (int, error) {
	s.mu.Lock()
	s.ages = append(s.ages, age)
	s.mu.Unlock()
	return s.Removed, s.Err
}

// Ages returns the ages passed to Sweep, oldest call first.
func (s *Sweeper) Ages() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.ages)
}
