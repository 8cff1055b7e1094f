// Package state persists the module registry state that must survive a
// restart: which modules are uninstalled and which are disabled. It also
// keeps the per-module ledger of files created outside module folders.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// File names under the modules root.
const (
	UninstalledFile = "uninstalled_modules.json"
	DisabledFile    = "disabled_modules.json"
	lockFile        = ".modules_state.lock"
)

const lockRetry = 50 * time.Millisecond

// State is a snapshot of the persisted sets.
type State struct {
	Uninstalled Set
	Disabled    Set
}

// Store reads and writes the persisted sets. Updates are serialized across
// goroutines and processes with an exclusive file lock.
type Store struct {
	root string
	mu   sync.Mutex // flock does not exclude goroutines sharing one handle
	lock *flock.Flock
}

// NewStore creates a store rooted at the modules directory.
func NewStore(root string) *Store {
	return &Store{
		root: root,
		lock: flock.New(filepath.Join(root, lockFile)),
	}
}

// Snapshot reads both sets without taking the write lock. A missing file
// reads as an empty set.
func (s *Store) Snapshot() (State, error) {
	return s.read()
}

// Update applies fn to a freshly read state under the exclusive lock and
// persists whatever fn changed. If fn returns an error nothing is written.
// If the second file fails to write, the first is restored so the two
// files never disagree with the previous state.
func (s *Store) Update(ctx context.Context, fn func(*State) error) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("state: create root: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	locked, err := s.lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return fmt.Errorf("state: acquire lock: %w", err)
	}
	if !locked {
		return errors.New("state: lock not acquired")
	}
	defer func() { _ = s.lock.Unlock() }()

	before, err := s.read()
	if err != nil {
		return err
	}
	after := State{
		Uninstalled: before.Uninstalled.Clone(),
		Disabled:    before.Disabled.Clone(),
	}
	if err := fn(&after); err != nil {
		return err
	}

	uninstalledChanged := !after.Uninstalled.Equal(before.Uninstalled)
	disabledChanged := !after.Disabled.Equal(before.Disabled)

	if uninstalledChanged {
		if err := s.write(UninstalledFile, after.Uninstalled); err != nil {
			return err
		}
	}
	if disabledChanged {
		if err := s.write(DisabledFile, after.Disabled); err != nil {
			if uninstalledChanged {
				if rbErr := s.write(UninstalledFile, before.Uninstalled); rbErr != nil {
					return errors.Join(err, fmt.Errorf("state: rollback: %w", rbErr))
				}
			}
			return err
		}
	}
	return nil
}

func (s *Store) read() (State, error) {
	u, err := s.readSet(UninstalledFile)
	if err != nil {
		return State{}, err
	}
	d, err := s.readSet(DisabledFile)
	if err != nil {
		return State{}, err
	}
	return State{Uninstalled: u, Disabled: d}, nil
}

func (s *Store) readSet(name string) (Set, error) {
	raw, err := os.ReadFile(filepath.Join(s.root, name))
	if errors.Is(err, os.ErrNotExist) {
		return Set{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: read %s: %w", name, err)
	}
	set := Set{}
	if len(raw) == 0 {
		return set, nil
	}
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("state: decode %s: %w", name, err)
	}
	return set, nil
}

func (s *Store) write(name string, set Set) error {
	raw, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", name, err)
	}
	return WriteFileAtomic(filepath.Join(s.root, name), append(raw, '\n'), 0o644)
}

// WriteFileAtomic writes data to a temp file in the same directory and
// renames it over path.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("state: create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("state: write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("state: sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("state: close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("state: chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("state: rename %s: %w", path, err)
	}
	return nil
}
