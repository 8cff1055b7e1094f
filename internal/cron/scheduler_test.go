package cron

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// funcJob adapts a func to Job.
type funcJob struct {
	name, schedule string
	fn             func(ctx context.Context) error
	runs           atomic.Int32
}

func (j *funcJob) Name() string     { return j.name }
func (j *funcJob) Schedule() string { return j.schedule }
func (j *funcJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.fn == nil {
		return nil
	}
	return j.fn(ctx)
}

func TestScheduler_RegisterJob(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		schedule string
		wantErr  bool
	}{
		{"module_rescan", "@every 10m", false},
		{"upload_sweep", "@hourly", false},
		{"five_field", "*/5 * * * *", false},
		{"module_rescan", "@every 1m", true}, // duplicate
		{"garbage", "whenever", true},
		{"seconds", "* * * * * *", true},
	}
	s := NewScheduler(quiet)
	accepted := 0
	for _, tt := range tests {
		err := s.RegisterJob(&funcJob{name: tt.name, schedule: tt.schedule})
		if (err != nil) != tt.wantErr {
			t.Errorf("RegisterJob(%s, %q) err = %v, wantErr %v", tt.name, tt.schedule, err, tt.wantErr)
		}
		if err == nil {
			accepted++
		}
	}
	if got := len(s.Status()); got != accepted {
		t.Errorf("Status has %d jobs, want %d", got, accepted)
	}
}

func TestScheduler_RunNowRecordsStatus(t *testing.T) {
	t.Parallel()
	s := NewScheduler(quiet)
	calls := 0
	job := &funcJob{name: "upload_sweep", schedule: "@hourly", fn: func(context.Context) error {
		calls++
		if calls == 2 {
			return errors.New("staging unreadable")
		}
		return nil
	}}
	if err := s.RegisterJob(job); err != nil {
		t.Fatal(err)
	}

	if err := s.RunNow(context.Background(), "upload_sweep"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := s.RunNow(context.Background(), "upload_sweep"); err == nil {
		t.Fatal("second run should report the job error")
	}
	st := s.Status()[0]
	if st.Runs != 2 || st.LastErr != "staging unreadable" || st.LastRun.IsZero() {
		t.Errorf("status = %+v", st)
	}
	if err := s.RunNow(context.Background(), "nope"); err == nil {
		t.Error("RunNow accepted an unknown job")
	}
}

func TestScheduler_NoParallelExecution(t *testing.T) {
	t.Parallel()
	started := make(chan struct{})
	release := make(chan struct{})
	s := NewScheduler(quiet)
	_ = s.RegisterJob(&funcJob{name: "module_rescan", schedule: "@hourly", fn: func(context.Context) error {
		close(started)
		<-release
		return nil
	}})

	done := make(chan error, 1)
	go func() { done <- s.RunNow(context.Background(), "module_rescan") }()
	<-started

	if err := s.RunNow(context.Background(), "module_rescan"); !errors.Is(err, errBusy) {
		t.Errorf("overlapping run = %v, want errBusy", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
	if st := s.Status(); st[0].Runs != 1 {
		t.Errorf("runs = %d, want 1", st[0].Runs)
	}
}

func TestScheduler_Lifecycle(t *testing.T) {
	t.Parallel()
	s := NewScheduler(nil)
	if s.logger == nil {
		t.Fatal("logger should default to slog.Default()")
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop before Start: %v", err)
	}

	_ = s.RegisterJob(&funcJob{name: "failing", schedule: "* * * * *", fn: func(context.Context) error {
		return errors.New("job failed")
	}})
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
