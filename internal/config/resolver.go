package config

import (
	"cmp"
	"slices"

	"github.com/flemzord/expiry/internal/core"
)

// loadPriority orders namespaces: stores publish the services the pipeline
// resolves in Provision, and the gateway resolves the pipeline in Start.
// Unlisted namespaces load last.
var loadPriority = map[string]int{
	"store":   0,
	"expiry":  1,
	"gateway": 2,
}

// Resolve returns the module IDs from the configuration in load order:
// by namespace priority, then by ID. Stop runs in the reverse order.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		if c := cmp.Compare(priority(a), priority(b)); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return ids
}

func priority(id string) int {
	if p, ok := loadPriority[core.ModuleID(id).Namespace()]; ok {
		return p
	}
	return len(loadPriority)
}
