package core

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

// registry holds the compiled-in modules, keyed by ID.
var registry = struct {
	sync.RWMutex
	infos map[ModuleID]ModuleInfo
}{infos: make(map[ModuleID]ModuleInfo)}

// RegisterModule records a module so configuration can refer to it by ID.
// It is meant for init functions and panics on an ID that is not of the
// form "namespace.name", on a nil constructor or on a duplicate ID.
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	if info.ID.Namespace() == "" || info.ID.Name() == "" || info.ID.Name() == string(info.ID) {
		panic(fmt.Sprintf("module ID %q must be namespace.name", info.ID))
	}
	if info.New == nil {
		panic(fmt.Sprintf("module %s: New function must not be nil", info.ID))
	}

	registry.Lock()
	defer registry.Unlock()
	if _, dup := registry.infos[info.ID]; dup {
		panic(fmt.Sprintf("module already registered: %s", info.ID))
	}
	registry.infos[info.ID] = info
}

// GetModule looks up a registered module.
func GetModule(id string) (ModuleInfo, bool) {
	registry.RLock()
	defer registry.RUnlock()
	info, ok := registry.infos[ModuleID(id)]
	return info, ok
}

// GetModules returns every registered module, sorted by ID.
func GetModules() []ModuleInfo {
	return collect(func(ModuleID) bool { return true })
}

// GetModulesByNamespace returns the modules of one namespace, sorted by
// ID. "store" yields store.memory and store.sqlite.
func GetModulesByNamespace(namespace string) []ModuleInfo {
	return collect(func(id ModuleID) bool { return id.Namespace() == namespace })
}

func collect(keep func(ModuleID) bool) []ModuleInfo {
	registry.RLock()
	out := make([]ModuleInfo, 0, len(registry.infos))
	for id, info := range registry.infos {
		if keep(id) {
			out = append(out, info)
		}
	}
	registry.RUnlock()

	slices.SortFunc(out, func(a, b ModuleInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// resetRegistry clears the registry. Only for testing.
func resetRegistry() {
	registry.Lock()
	defer registry.Unlock()
	registry.infos = make(map[ModuleID]ModuleInfo)
}
