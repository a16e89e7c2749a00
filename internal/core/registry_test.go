package core

import (
	"testing"
)

type namedModule struct{ id ModuleID }

func (m namedModule) ModuleInfo() ModuleInfo {
	return ModuleInfo{ID: m.id, New: func() Module { return m }}
}

type nilCtorModule struct{}

func (nilCtorModule) ModuleInfo() ModuleInfo { return ModuleInfo{ID: "test.nilctor"} }

func mustPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic", name)
		}
	}()
	fn()
}

func TestRegisterModule_RejectsBadInput(t *testing.T) {
	t.Cleanup(resetRegistry)

	for _, id := range []ModuleID{"", "store", ".sqlite", "store."} {
		mustPanic(t, string(id), func() { RegisterModule(namedModule{id: id}) })
	}
	mustPanic(t, "nil constructor", func() { RegisterModule(nilCtorModule{}) })

	RegisterModule(namedModule{id: "store.dup"})
	mustPanic(t, "duplicate", func() { RegisterModule(namedModule{id: "store.dup"}) })
}

func TestGetModulesByNamespace(t *testing.T) {
	t.Cleanup(resetRegistry)

	RegisterModule(namedModule{id: "store.sqlite"})
	RegisterModule(namedModule{id: "store.memory"})
	RegisterModule(namedModule{id: "storage.other"})
	RegisterModule(namedModule{id: "gateway.http"})

	got := GetModulesByNamespace("store")
	if len(got) != 2 || got[0].ID != "store.memory" || got[1].ID != "store.sqlite" {
		t.Errorf("store modules = %v", got)
	}

	all := GetModules()
	if len(all) != 4 || all[0].ID != "gateway.http" {
		t.Errorf("GetModules = %v", all)
	}

	if _, ok := GetModule("gateway.http"); !ok {
		t.Error("GetModule(gateway.http) not found")
	}
	if _, ok := GetModule("gateway.grpc"); ok {
		t.Error("GetModule(gateway.grpc) found")
	}
}
