package reload

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/expiry/internal/config"
	"github.com/flemzord/expiry/internal/core"
	"github.com/flemzord/expiry/internal/security"
	"github.com/flemzord/expiry/internal/settings"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestHandler(t *testing.T, p HandlerParams) *Handler {
	t.Helper()
	if p.App == nil {
		p.App = core.NewApp(core.NewAppContext(testLogger(), t.TempDir()))
	}
	p.Logger = testLogger()
	return NewHandler(p)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "expiry.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	return path
}

// reloadModule records the config node it was reloaded with.
type reloadModule struct {
	id   string
	seen *[]string
}

func (m *reloadModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  core.ModuleID(m.id),
		New: func() core.Module { return &reloadModule{id: m.id, seen: m.seen} },
	}
}

func (m *reloadModule) Reload(ctx *core.AppContext) error {
	node, ok := ctx.ModuleConfig(m.id)
	if !ok {
		*m.seen = append(*m.seen, "<none>")
		return nil
	}
	var v struct {
		Value string `yaml:"value"`
	}
	if err := node.Decode(&v); err != nil {
		return err
	}
	*m.seen = append(*m.seen, v.Value)
	return nil
}

func TestHandler_HandleReload_FileNotFound(t *testing.T) {
	h := newTestHandler(t, HandlerParams{})

	err := h.HandleReload(context.Background(), "/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestHandler_HandleReload_InvalidConfig(t *testing.T) {
	h := newTestHandler(t, HandlerParams{})

	err := h.HandleReload(context.Background(), writeConfig(t, "modules: {}"))
	if err == nil {
		t.Error("expected validation error")
	}
}

func TestHandler_HandleReload_UnknownModule(t *testing.T) {
	h := newTestHandler(t, HandlerParams{})

	err := h.HandleReload(context.Background(), writeConfig(t, "version: \"1\"\nmodules:\n  fake.mod: {}\n"))
	if err == nil {
		t.Error("expected validation error for unknown module")
	}
}

func TestHandler_HandleReloadFromConfig_CancelledContext(t *testing.T) {
	h := newTestHandler(t, HandlerParams{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	cfg := &config.Config{Version: "1"}
	err := h.HandleReloadFromConfig(ctx, cfg)
	if err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestHandler_SwapsSettingsAndLevel(t *testing.T) {
	store := settings.NewStore(settings.Settings{})
	var level slog.LevelVar
	h := newTestHandler(t, HandlerParams{Settings: store, LogLevel: &level})

	cfg := &config.Config{
		Version:  "1",
		Log:      config.LogConfig{Level: "debug"},
		Settings: settings.Settings{Enabled: true, Bundles: map[string]settings.Bundle{"article": {Enabled: true, ExpireDays: 30}}},
	}
	if err := h.HandleReloadFromConfig(context.Background(), cfg); err != nil {
		t.Fatalf("reload: %v", err)
	}

	if !store.IsEnabled("article") || store.DefaultExpireDays("article") != 30 {
		t.Errorf("settings not swapped: %+v", store.Get())
	}
	if level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", level.Level())
	}
}

func TestHandler_ReloadsModulesWithNewConfig(t *testing.T) {
	var seen []string
	id := "reloadtest." + t.Name()
	core.RegisterModule(&reloadModule{id: id, seen: &seen})

	appCtx := core.NewAppContext(testLogger(), t.TempDir())
	appCtx.RegisterService("marker", 1)
	app := core.NewApp(appCtx)
	if err := app.LoadModules([]string{id}); err != nil {
		t.Fatalf("LoadModules: %v", err)
	}
	h := newTestHandler(t, HandlerParams{App: app})

	var node yaml.Node
	if err := yaml.Unmarshal([]byte("value: fresh\n"), &node); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	cfg := &config.Config{Version: "1", Modules: map[string]yaml.Node{id: *node.Content[0]}}

	if err := h.HandleReloadFromConfig(context.Background(), cfg); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(seen) != 1 || seen[0] != "fresh" {
		t.Errorf("module saw %v, want [fresh]", seen)
	}
	if _, ok := app.Context().Service("marker"); !ok {
		t.Error("service registry lost across reload")
	}
}

func TestHandler_UpdatesRedactorLiterals(t *testing.T) {
	redactor := security.NewRedactor()
	redactor.AddLiteral("stale-token-value")
	h := newTestHandler(t, HandlerParams{Redactor: redactor})

	var node yaml.Node
	if err := yaml.Unmarshal([]byte("auth:\n  bearer_token: fresh-token-value\n"), &node); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	cfg := &config.Config{Version: "1", Modules: map[string]yaml.Node{"gateway.http": *node.Content[0]}}

	if err := h.HandleReloadFromConfig(context.Background(), cfg); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := redactor.Redact("fresh-token-value"); got != security.RedactPlaceholder {
		t.Errorf("new secret not redacted: %q", got)
	}
	if got := redactor.Redact("stale-token-value"); got != "stale-token-value" {
		t.Errorf("stale secret still redacted: %q", got)
	}
}
