package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

const ledgerDir = ".ledger"

// Ledger records, per module, every file the module's lifecycle created
// outside the module folder. Purge removes exactly these paths.
type Ledger struct {
	dir string
	mu  sync.Mutex
}

// NewLedger creates a ledger stored under <root>/.ledger.
func NewLedger(root string) *Ledger {
	return &Ledger{dir: filepath.Join(root, ledgerDir)}
}

func (l *Ledger) path(module string) string {
	return filepath.Join(l.dir, module+".json")
}

// Record adds absolute paths to the module's ledger. Duplicates are ignored.
func (l *Ledger) Record(module string, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.read(module)
	if err != nil {
		return err
	}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("ledger: resolve %s: %w", p, err)
		}
		if !slices.Contains(entries, abs) {
			entries = append(entries, abs)
		}
	}
	slices.Sort(entries)

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("ledger: create dir: %w", err)
	}
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("ledger: encode: %w", err)
	}
	return WriteFileAtomic(l.path(module), append(raw, '\n'), 0o644)
}

// Entries returns the recorded paths for module.
func (l *Ledger) Entries(module string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read(module)
}

// Forget deletes the module's ledger.
func (l *Ledger) Forget(module string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.Remove(l.path(module)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("ledger: remove %s: %w", module, err)
	}
	return nil
}

func (l *Ledger) read(module string) ([]string, error) {
	raw, err := os.ReadFile(l.path(module))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: read %s: %w", module, err)
	}
	var entries []string
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("ledger: decode %s: %w", module, err)
	}
	return entries, nil
}
