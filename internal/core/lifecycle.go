package core

// Hooks the manager looks for while loading a module, called in this
// order before the module is registered. A failing hook aborts the load.

// Provisioner receives the module-scoped AppContext once the
// implementation has been resolved. BaseModule implements it.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator checks a provisioned module, typically its saved settings.
// It must not change anything.
type Validator interface {
	Validate() error
}
