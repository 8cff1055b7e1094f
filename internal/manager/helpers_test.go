package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/flemzord/storemods/internal/core"
	"github.com/flemzord/storemods/internal/deps"
	"github.com/flemzord/storemods/internal/manifest"
	"github.com/flemzord/storemods/internal/store"
)

// calls records lifecycle hook invocations across module instances.
type calls struct {
	mu  sync.Mutex
	log []string
}

func (c *calls) add(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = append(c.log, s)
}

func (c *calls) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.log...)
}

type fakeModule struct {
	core.BaseModule
	id           string
	calls        *calls
	installErr   error
	uninstallErr error
	routes       []core.Route
	table        bool
}

func (f *fakeModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: core.ModuleID(f.id), New: func() core.Module { return f }}
}

func (f *fakeModule) Install(ctx context.Context) error {
	f.calls.add("install:" + f.id)
	if f.installErr != nil {
		return f.installErr
	}
	if f.table && f.Store() != nil {
		_, err := f.Store().DB().ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s_transactions" (id INTEGER)`, f.id))
		return err
	}
	return nil
}

func (f *fakeModule) Uninstall(context.Context) error {
	f.calls.add("uninstall:" + f.id)
	return f.uninstallErr
}

func (f *fakeModule) Enable(context.Context) error {
	f.calls.add("enable:" + f.id)
	return nil
}

func (f *fakeModule) Disable(context.Context) error {
	f.calls.add("disable:" + f.id)
	return nil
}

func (f *fakeModule) Routes() []core.Route { return f.routes }

// fakeLoader serves modules from a map.
type fakeLoader struct {
	mu      sync.Mutex
	mods    map[string]func() core.Module
	forgets []string
}

func (l *fakeLoader) Load(_ context.Context, name, _ string) (core.Module, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn, ok := l.mods[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoImplementation, name)
	}
	return fn(), nil
}

func (l *fakeLoader) Forget(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.forgets = append(l.forgets, name)
}

type failingInstaller struct{ calls int }

func (f *failingInstaller) Install(context.Context, string, []string) (deps.Result, error) {
	f.calls++
	return deps.Result{Packages: []deps.PackageResult{{Name: "x", Err: "boom"}}}, deps.ErrInstall
}

type env struct {
	root      string
	project   string
	downloads string
	loader    *fakeLoader
	calls     *calls
	store     *store.SQLStore
}

func newEnv(t *testing.T) *env {
	t.Helper()
	project := t.TempDir()
	e := &env{
		root:      filepath.Join(project, "modules"),
		project:   project,
		downloads: filepath.Join(project, "downloads"),
		loader:    &fakeLoader{mods: map[string]func() core.Module{}},
		calls:     &calls{},
	}
	st, err := store.OpenSQLite(context.Background(), filepath.Join(project, "db.sqlite3"), 0)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	e.store = st
	return e
}

func (e *env) config() Config {
	return Config{
		ModulesRoot:  e.root,
		DownloadsDir: e.downloads,
		TemplatesDir: filepath.Join(e.project, "templates"),
		StaticDir:    filepath.Join(e.project, "static"),
		MediaDir:     filepath.Join(e.project, "media"),
		ProjectRoot:  e.project,
	}
}

func (e *env) manager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithLoader(e.loader),
		WithInstaller(deps.Nop{}),
		WithStore(e.store),
	}
	m, err := New(e.config(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

// register makes the loader serve a fakeModule for name and returns the
// instance so tests can tweak it.
func (e *env) register(name string) *fakeModule {
	mod := &fakeModule{id: name, calls: e.calls}
	e.loader.mu.Lock()
	e.loader.mods[name] = func() core.Module { return mod }
	e.loader.mu.Unlock()
	return mod
}

// writeModule creates a valid module directory.
func (e *env) writeModule(t *testing.T, name string, typ manifest.Type, requires ...string) string {
	t.Helper()
	dir := filepath.Join(e.root, name)
	m := map[string]any{
		"name":             name,
		"version":          "1.0.0",
		"description":      "test module " + name,
		"author":           "tests",
		"type":             typ,
		"install_requires": requires,
		"settings":         map[string]any{"greeting": "hi"},
	}
	raw, _ := json.Marshal(m)
	files := map[string]string{
		manifest.FileName:       string(raw),
		manifest.DefinitionFile: "package " + name + "\n\ntype Module struct {\n\tcore.BaseModule\n}\n",
		manifest.PackageFile:    "module example.com/" + name + "\n",
		filepath.Join("templates", name, "admin", "config.html"): "<form></form>",
	}
	for rel, content := range files {
		p := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func mustErrIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("err = %v, want %v", err, target)
	}
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
