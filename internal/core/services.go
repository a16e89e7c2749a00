package core

import "sync"

// services is a name → value registry shared by every AppContext derived
// from the same root. Modules publish what they provide during Provision
// and resolve what they need lazily, usually in Start.
type services struct {
	mu sync.RWMutex
	m  map[string]any
}

func newServices() *services {
	return &services{m: make(map[string]any)}
}

// RegisterService publishes a value under name, replacing any previous one.
func (ctx *AppContext) RegisterService(name string, svc any) {
	ctx.services.mu.Lock()
	defer ctx.services.mu.Unlock()
	ctx.services.m[name] = svc
}

// Service returns the value registered under name.
func (ctx *AppContext) Service(name string) (any, bool) {
	ctx.services.mu.RLock()
	defer ctx.services.mu.RUnlock()
	svc, ok := ctx.services.m[name]
	return svc, ok
}

// ServiceAs resolves a service and asserts its type. It returns false when
// the service is missing or has a different type.
func ServiceAs[T any](ctx *AppContext, name string) (T, bool) {
	var zero T
	svc, ok := ctx.Service(name)
	if !ok {
		return zero, false
	}
	typed, ok := svc.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
