package deps

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

func TestCommandInstaller_NoRequirements(t *testing.T) {
	t.Parallel()

	inst := &CommandInstaller{Command: []string{"false"}}
	res, err := inst.Install(context.Background(), t.TempDir(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Packages) != 0 {
		t.Errorf("Packages = %v, want empty", res.Packages)
	}
}

func TestCommandInstaller_Success(t *testing.T) {
	t.Parallel()

	inst := &CommandInstaller{Command: []string{"sh", "-c", "exit 0"}}
	res, err := inst.Install(context.Background(), t.TempDir(), []string{"stripe-go", "uuid"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Packages) != 2 || !res.Packages[0].OK || !res.Packages[1].OK {
		t.Errorf("Packages = %+v", res.Packages)
	}
}

func TestCommandInstaller_ReportsEveryFailure(t *testing.T) {
	t.Parallel()

	// $0 is the requirement name; fail only for "bad".
	inst := &CommandInstaller{Command: []string{"sh", "-c", `test "$0" != bad`}}
	res, err := inst.Install(context.Background(), t.TempDir(), []string{"good", "bad", "also-good"})
	if !errors.Is(err, ErrInstall) {
		t.Fatalf("err = %v, want ErrInstall", err)
	}
	if got := res.Failed(); !slices.Equal(got, []string{"bad"}) {
		t.Errorf("Failed = %v, want [bad]", got)
	}
	if len(res.Packages) != 3 {
		t.Errorf("got %d results, want 3", len(res.Packages))
	}
}

func TestCommandInstaller_Timeout(t *testing.T) {
	t.Parallel()

	inst := &CommandInstaller{
		Command: []string{"sh", "-c", "exec sleep 5"},
		Timeout: 50 * time.Millisecond,
	}
	start := time.Now()
	res, err := inst.Install(context.Background(), t.TempDir(), []string{"x"})
	if !errors.Is(err, ErrInstall) {
		t.Fatalf("err = %v, want ErrInstall", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("timeout was not enforced")
	}
	if res.Packages[0].OK {
		t.Error("expected package to be marked failed")
	}
}

func TestNop(t *testing.T) {
	t.Parallel()

	if _, err := (Nop{}).Install(context.Background(), "", []string{"x"}); err != nil {
		t.Errorf("Nop.Install: %v", err)
	}
}
