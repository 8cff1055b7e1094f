package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	goplugin "plugin"
	"sync"

	"github.com/flemzord/storemods/internal/core"
	"github.com/flemzord/storemods/internal/manifest"
)

// Loader resolves the implementation of a module found on disk.
type Loader interface {
	// Load returns a new, unprovisioned instance of the module. It returns
	// an error wrapping ErrNoImplementation when this loader has none.
	Load(ctx context.Context, name, dir string) (core.Module, error)

	// Forget drops anything cached for the module.
	Forget(name string)
}

// RegistryLoader resolves modules compiled into the binary through
// core.RegisterModule.
type RegistryLoader struct{}

// Load implements Loader.
func (RegistryLoader) Load(_ context.Context, name, _ string) (core.Module, error) {
	info, ok := core.GetModule(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not compiled in", ErrNoImplementation, name)
	}
	return info.New(), nil
}

// Forget implements Loader. Compiled-in modules have nothing to drop.
func (RegistryLoader) Forget(string) {}

// PluginLoader resolves modules shipped as a prebuilt Go plugin
// (module.so) exporting either a "New" func() core.Module or a "Module"
// core.Module variable.
//
// The Go runtime cannot unload a plugin. Forget only drops the cached
// handle; loading the same path again returns the already mapped code.
type PluginLoader struct {
	mu     sync.Mutex
	opened map[string]*goplugin.Plugin
}

// Load implements Loader.
func (l *PluginLoader) Load(_ context.Context, name, dir string) (core.Module, error) {
	path := filepath.Join(dir, manifest.PluginFile)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: no %s for %s", ErrNoImplementation, manifest.PluginFile, name)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.opened == nil {
		l.opened = make(map[string]*goplugin.Plugin)
	}
	so, ok := l.opened[name]
	if !ok {
		var err error
		so, err = goplugin.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening plugin %s: %w", path, err)
		}
		l.opened[name] = so
	}

	if sym, err := so.Lookup("New"); err == nil {
		if fn, ok := sym.(func() core.Module); ok {
			return fn(), nil
		}
		return nil, fmt.Errorf("plugin %s: New has type %T, want func() core.Module", name, sym)
	}
	sym, err := so.Lookup("Module")
	if err != nil {
		return nil, fmt.Errorf("plugin %s exports neither New nor Module: %w", name, err)
	}
	switch m := sym.(type) {
	case *core.Module:
		if m == nil || *m == nil {
			return nil, fmt.Errorf("plugin %s: Module symbol is nil", name)
		}
		return *m, nil
	case core.Module:
		return m, nil
	default:
		return nil, fmt.Errorf("plugin %s: Module has type %T, want core.Module", name, sym)
	}
}

// Forget implements Loader.
func (l *PluginLoader) Forget(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.opened, name)
}

// ChainLoader asks every loader and requires exactly one of them to have
// an implementation.
type ChainLoader []Loader

// DefaultLoader resolves compiled-in modules and Go plugins.
func DefaultLoader() ChainLoader {
	return ChainLoader{RegistryLoader{}, &PluginLoader{}}
}

// Load implements Loader.
func (c ChainLoader) Load(ctx context.Context, name, dir string) (core.Module, error) {
	var (
		found core.Module
		count int
		errs  []error
	)
	for _, l := range c {
		mod, err := l.Load(ctx, name, dir)
		switch {
		case err == nil:
			found = mod
			count++
		case errors.Is(err, ErrNoImplementation):
			continue
		default:
			errs = append(errs, err)
		}
	}
	switch {
	case len(errs) > 0:
		return nil, fmt.Errorf("%w: %w", ErrLoad, errors.Join(errs...))
	case count == 0:
		return nil, fmt.Errorf("%w: %s", ErrNoImplementation, name)
	case count > 1:
		return nil, fmt.Errorf("%w: %s is both compiled in and shipped as a plugin", ErrAmbiguous, name)
	}
	return found, nil
}

// Forget implements Loader.
func (c ChainLoader) Forget(name string) {
	for _, l := range c {
		l.Forget(name)
	}
}
