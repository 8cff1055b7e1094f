package core

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"github.com/flemzord/storemods/internal/manifest"
)

// registry holds the implementations compiled into the binary, keyed by
// module name.
var registry = struct {
	sync.RWMutex
	byID map[string]ModuleInfo
}{byID: make(map[string]ModuleInfo)}

// RegisterModule makes a module implementation available to the manager's
// RegistryLoader. Call it from an init function. It panics on an empty or
// unsafe ID, a nil constructor or a second registration of the same ID.
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	switch {
	case info.ID == "":
		panic("core: module ID must not be empty")
	case !manifest.ValidName(string(info.ID)):
		panic(fmt.Sprintf("core: module ID %q must contain only letters, digits, '_' and '-'", info.ID))
	case info.New == nil:
		panic(fmt.Sprintf("core: module %s has no constructor", info.ID))
	}

	registry.Lock()
	defer registry.Unlock()
	if _, dup := registry.byID[string(info.ID)]; dup {
		panic(fmt.Sprintf("core: module %s registered twice", info.ID))
	}
	registry.byID[string(info.ID)] = info
}

// GetModule returns the registration for id.
func GetModule(id string) (ModuleInfo, bool) {
	registry.RLock()
	defer registry.RUnlock()
	info, ok := registry.byID[id]
	return info, ok
}

// GetModules returns every registration sorted by ID.
func GetModules() []ModuleInfo {
	return registered(func(ModuleInfo) bool { return true })
}

// GetModulesByType returns the registrations declaring t, sorted by ID.
func GetModulesByType(t manifest.Type) []ModuleInfo {
	return registered(func(info ModuleInfo) bool { return info.Type == t })
}

func registered(keep func(ModuleInfo) bool) []ModuleInfo {
	registry.RLock()
	out := make([]ModuleInfo, 0, len(registry.byID))
	for _, info := range registry.byID {
		if keep(info) {
			out = append(out, info)
		}
	}
	registry.RUnlock()
	slices.SortFunc(out, func(a, b ModuleInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// UnregisterModule removes a registration. Tests in other packages use it
// to drop throwaway modules.
func UnregisterModule(id string) {
	registry.Lock()
	defer registry.Unlock()
	delete(registry.byID, id)
}

func resetRegistry() {
	registry.Lock()
	defer registry.Unlock()
	registry.byID = make(map[string]ModuleInfo)
}
