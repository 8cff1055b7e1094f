package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
)

func TestStore_SnapshotMissingFiles(t *testing.T) {
	t.Parallel()

	s := NewStore(t.TempDir())
	st, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(st.Uninstalled) != 0 || len(st.Disabled) != 0 {
		t.Errorf("got %+v, want empty sets", st)
	}
}

func TestStore_UpdatePersists(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	s := NewStore(root)
	err := s.Update(context.Background(), func(st *State) error {
		st.Uninstalled.Add("stripe")
		st.Disabled.Add("bank_wire_payment")
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(root, UninstalledFile))
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "[\n  \"stripe\"\n]\n" {
		t.Errorf("uninstalled file = %q", raw)
	}

	st, _ := NewStore(root).Snapshot()
	if !st.Disabled.Has("bank_wire_payment") || !st.Uninstalled.Has("stripe") {
		t.Errorf("reloaded state = %+v", st)
	}
}

func TestStore_UpdateErrorWritesNothing(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	s := NewStore(root)
	boom := errors.New("boom")
	err := s.Update(context.Background(), func(st *State) error {
		st.Disabled.Add("x")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if _, err := os.Stat(filepath.Join(root, DisabledFile)); !errors.Is(err, os.ErrNotExist) {
		t.Error("disabled file should not have been written")
	}
}

func TestStore_RollbackOnSecondWriteFailure(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	s := NewStore(root)
	if err := s.Update(context.Background(), func(st *State) error {
		st.Uninstalled.Add("old")
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	// A directory where the disabled file should be makes its rename fail.
	if err := os.Mkdir(filepath.Join(root, DisabledFile), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, DisabledFile, "keep"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	err := s.Update(context.Background(), func(st *State) error {
		st.Uninstalled.Add("new")
		st.Disabled.Add("new")
		return nil
	})
	if err == nil {
		t.Fatal("expected error")
	}

	u, err := s.readSet(UninstalledFile)
	if err != nil {
		t.Fatal(err)
	}
	if got := u.Sorted(); !slices.Equal(got, []string{"old"}) {
		t.Errorf("uninstalled after rollback = %v, want [old]", got)
	}
}

func TestStore_ConcurrentUpdates(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	s := NewStore(root)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Update(context.Background(), func(st *State) error {
				st.Disabled.Add(fmt.Sprintf("mod%02d", i))
				return nil
			}); err != nil {
				t.Errorf("Update: %v", err)
			}
		}()
	}
	wg.Wait()

	st, _ := s.Snapshot()
	if len(st.Disabled) != 20 {
		t.Errorf("got %d disabled, want 20", len(st.Disabled))
	}
}

func TestLedger(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	l := NewLedger(root)

	a := filepath.Join(root, "a.zip")
	b := filepath.Join(root, "config", "b.json")
	if err := l.Record("stripe", a, b, a); err != nil {
		t.Fatalf("Record: %v", err)
	}
	got, err := l.Entries("stripe")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, []string{a, b}) {
		t.Errorf("Entries = %v", got)
	}

	if err := l.Forget("stripe"); err != nil {
		t.Fatal(err)
	}
	got, _ = l.Entries("stripe")
	if len(got) != 0 {
		t.Errorf("Entries after Forget = %v", got)
	}
	if err := l.Forget("stripe"); err != nil {
		t.Errorf("Forget twice: %v", err)
	}
}
