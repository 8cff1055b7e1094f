package manager

import "errors"

// Sentinel errors returned by Manager operations. Callers match them with
// errors.Is; the wrapped error carries the detail.
var (
	ErrNotFound         = errors.New("module not found")
	ErrNotInstalled     = errors.New("module not installed")
	ErrValidation       = errors.New("module validation failed")
	ErrLoad             = errors.New("module load failed")
	ErrNoImplementation = errors.New("no module implementation found")
	ErrAmbiguous        = errors.New("more than one module implementation found")
	ErrDependency       = errors.New("module dependencies could not be installed")
	ErrLifecycle        = errors.New("module lifecycle hook failed")
	ErrProtectedPath    = errors.New("refusing to delete protected path")
)
