// Package gateway provides an HTTP server for the temporary-mark API,
// pipeline triggers, monitoring and CMS webhooks. It binds to loopback by
// default and follows the module system pattern.
package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"

	"github.com/flemzord/expiry/internal/config"
	"github.com/flemzord/expiry/internal/core"
)

// moduleJSON is a serializable module info snapshot.
type moduleJSON struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// secretPattern matches YAML keys that likely contain secrets.
var secretPattern = regexp.MustCompile(`(?i)(secret|token|password|pass|key)`)

// handleGetConfig returns the current config with secrets redacted.
func (g *Gateway) handleGetConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if g.configPath == "" {
			http.Error(w, "config path not set", http.StatusServiceUnavailable)
			return
		}

		cfg, err := config.Load(g.configPath)
		if err != nil {
			http.Error(w, "failed to load config", http.StatusInternalServerError)
			return
		}

		generic, err := configToMap(cfg)
		if err != nil {
			http.Error(w, "failed to serialize config", http.StatusInternalServerError)
			return
		}

		redactSecrets(generic)
		writeJSON(w, http.StatusOK, generic)
	}
}

// configToMap converts cfg into generic JSON values, decoding each raw
// module node so module settings are visible too.
func configToMap(cfg *config.Config) (map[string]any, error) {
	modules := make(map[string]any, len(cfg.Modules))
	for id, node := range cfg.Modules {
		var v any
		if err := node.Decode(&v); err != nil {
			return nil, err
		}
		modules[id] = v
	}

	raw, err := json.Marshal(struct {
		Version  string `json:"version"`
		Log      any    `json:"log"`
		Tracing  any    `json:"tracing"`
		Settings any    `json:"settings"`
		Modules  any    `json:"modules"`
	}{cfg.Version, cfg.Log, cfg.Tracing, cfg.Settings, modules})
	if err != nil {
		return nil, err
	}

	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return generic, nil
}

// redactSecrets walks a map and replaces values whose keys match the secret pattern.
func redactSecrets(m map[string]any) {
	for k, v := range m {
		if secretPattern.MatchString(k) {
			if s, ok := v.(string); ok && s != "" {
				m[k] = "***REDACTED***"
			}
			continue
		}
		switch val := v.(type) {
		case map[string]any:
			redactSecrets(val)
		case []any:
			for _, item := range val {
				if sub, ok := item.(map[string]any); ok {
					redactSecrets(sub)
				}
			}
		}
	}
}

// handleReloadConfig loads, validates and applies the configuration file.
func (g *Gateway) handleReloadConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.configPath == "" {
			http.Error(w, "config path not set", http.StatusServiceUnavailable)
			return
		}

		cfg, err := config.Load(g.configPath)
		if err != nil {
			g.logger.Error("config reload failed", "error", err)
			writeError(w, http.StatusBadRequest, err)
			return
		}

		if err := config.Validate(cfg); err != nil {
			g.logger.Error("config validation failed on reload", "error", err)
			writeError(w, http.StatusBadRequest, err)
			return
		}

		if g.reloader == nil {
			writeError(w, http.StatusServiceUnavailable, errors.New("reload handler not available"))
			return
		}
		if err := g.reloader.HandleReloadFromConfig(r.Context(), cfg); err != nil {
			g.logger.Error("config reload failed", "error", err)
			g.fail(w, r, http.StatusInternalServerError, err)
			return
		}

		g.logger.Info("configuration reloaded successfully")
		writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
	}
}

// handleGetAllModules lists all compiled modules (for /api/modules).
func (g *Gateway) handleGetAllModules() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		mods := core.GetModules()
		out := make([]moduleJSON, 0, len(mods))
		for _, m := range mods {
			out = append(out, moduleJSON{
				ID:        string(m.ID),
				Namespace: m.ID.Namespace(),
				Name:      m.ID.Name(),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}
