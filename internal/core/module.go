// Package core provides the module contract for storefront modules: the
// interfaces a module implements, the embeddable base types and the
// compile-time registry modules add themselves to from init().
package core

import (
	"context"
	"io/fs"
	"net/http"

	"github.com/flemzord/storemods/internal/manifest"
)

// ModuleID identifies a module. It is the manifest name and the name of the
// module's directory under the modules root.
type ModuleID string

// ModuleInfo describes a registered module and how to construct it.
type ModuleInfo struct {
	ID   ModuleID
	Type manifest.Type
	New  func() Module

	// Files holds the module directory (manifest, module.go, templates,
	// static) of a module compiled into the binary. Manager.Seed copies it
	// into the modules root. Nil for modules that only exist on disk.
	Files fs.FS
}

// Module is the contract every storefront module satisfies.
type Module interface {
	ModuleInfo() ModuleInfo

	// Presentation returns the labels shown in the admin and at checkout.
	Presentation() Presentation

	Install(ctx context.Context) error
	Uninstall(ctx context.Context) error
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error

	// Routes returns the module's HTTP routes with patterns relative to the
	// module. The manager prefixes them with the module name.
	Routes() []Route
}

// Presentation holds display metadata for a module.
type Presentation struct {
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	Color       string `json:"color"`
	Icon        string `json:"icon"`
}

// Route is a single HTTP route exposed by a module.
type Route struct {
	// Method restricts the route to one HTTP method. Empty matches any.
	Method  string
	Pattern string
	Name    string
	Handler http.Handler
}
