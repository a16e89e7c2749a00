package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/expiry/internal/settings"
	"github.com/flemzord/expiry/pkg/app"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(configCheckCmd(), configInitCmd())
	return cmd
}

func configCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration and provision every module",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := runParams(cmd)
			if len(args) == 1 {
				params.ConfigPath = args[0]
			}
			if params.LogLevel == "" {
				params.LogLevel = "warn"
			}

			ctx := context.Background()
			rt, err := app.Load(ctx, params, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			ids := rt.App.ModuleIDs()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK (%d modules)\n", len(ids))
			for _, id := range ids {
				fmt.Fprintf(out, "  %s\n", id)
			}
			return nil
		},
	}
}

// initAnswers collects what config init asks for.
type initAnswers struct {
	Store         string
	DBPath        string
	Bind          string
	Token         string
	Bundle        string
	ExpireDays    string
	WebhookSource string
	WebhookSecret string
}

func defaultAnswers() initAnswers {
	return initAnswers{
		Store:      "sqlite",
		Bind:       "127.0.0.1:8080",
		Token:      strings.ReplaceAll(uuid.NewString(), "-", ""),
		Bundle:     "article",
		ExpireDays: strconv.Itoa(settings.DefaultExpireDays),
	}
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			output, _ := cmd.Flags().GetString("output")
			yes, _ := cmd.Flags().GetBool("yes")
			force, _ := cmd.Flags().GetBool("force")

			if output == "" {
				output = app.ConfigCandidates()[0]
			}
			if _, err := os.Stat(output); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", output)
			}

			answers := defaultAnswers()
			if !yes {
				if err := askAnswers(&answers); err != nil {
					if errors.Is(err, huh.ErrUserAborted) {
						return errors.New("aborted")
					}
					return err
				}
			}

			data, err := renderConfig(answers)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(output, data, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "Destination file (defaults to the user config location)")
	cmd.Flags().BoolP("yes", "y", false, "Accept defaults without prompting")
	cmd.Flags().Bool("force", false, "Overwrite an existing file")
	return cmd
}

func askAnswers(a *initAnswers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Storage").
				Options(
					huh.NewOption("SQLite (durable)", "sqlite"),
					huh.NewOption("In-memory (testing only)", "memory"),
				).
				Value(&a.Store),
			huh.NewInput().
				Title("SQLite database path").
				Description("Leave empty to use the data directory.").
				Value(&a.DBPath),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Gateway bind address").
				Value(&a.Bind).
				Validate(notEmpty("bind address")),
			huh.NewInput().
				Title("API bearer token").
				EchoMode(huh.EchoModePassword).
				Value(&a.Token),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Content type allowed to be temporary").
				Value(&a.Bundle),
			huh.NewInput().
				Title("Default expiration (days)").
				Value(&a.ExpireDays).
				Validate(validDays),
			huh.NewInput().
				Title("Webhook source name").
				Description("Leave empty to disable CMS webhooks.").
				Value(&a.WebhookSource),
			huh.NewInput().
				Title("Webhook HMAC secret").
				Description("Leave empty to accept unsigned events.").
				EchoMode(huh.EchoModePassword).
				Value(&a.WebhookSecret),
		),
	)
	return form.Run()
}

func notEmpty(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}

func validDays(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return errors.New("enter a whole number of days")
	}
	if n < settings.MinExpireDays {
		return fmt.Errorf("must be at least %d", settings.MinExpireDays)
	}
	return nil
}

// initDocument mirrors config.Config with module sections rendered
// directly, so the generated file round-trips through config.Load.
type initDocument struct {
	Version  string            `yaml:"version"`
	Log      map[string]string `yaml:"log"`
	Settings settings.Settings `yaml:"settings"`
	Modules  map[string]any    `yaml:"modules"`
}

func renderConfig(a initAnswers) ([]byte, error) {
	if err := validDays(a.ExpireDays); err != nil {
		return nil, fmt.Errorf("expire days: %w", err)
	}
	days, _ := strconv.Atoi(strings.TrimSpace(a.ExpireDays))

	doc := initDocument{
		Version:  "1",
		Log:      map[string]string{"level": "info", "format": "text"},
		Settings: settings.Settings{Enabled: true},
		Modules:  map[string]any{},
	}
	if a.Bundle != "" {
		doc.Settings.Bundles = map[string]settings.Bundle{
			a.Bundle: {Enabled: true, ExpireDays: days},
		}
	}

	switch a.Store {
	case "memory":
		doc.Modules["store.memory"] = map[string]any{}
	case "sqlite", "":
		sq := map[string]any{}
		if a.DBPath != "" {
			sq["path"] = a.DBPath
		}
		doc.Modules["store.sqlite"] = sq
	default:
		return nil, fmt.Errorf("unknown store %q", a.Store)
	}

	doc.Modules["expiry.pipeline"] = map[string]any{
		"scan_schedule":  "@hourly",
		"drain_schedule": "*/15 * * * *",
	}

	gw := map[string]any{"bind": a.Bind}
	if a.Token != "" {
		gw["auth"] = map[string]any{"bearer_token": a.Token}
	}
	if a.WebhookSource != "" {
		src := map[string]any{"secret": a.WebhookSecret}
		if a.WebhookSecret == "" {
			src = map[string]any{"unsigned": true}
		}
		gw["webhooks"] = map[string]any{a.WebhookSource: src}
	}
	doc.Modules["gateway.http"] = gw

	return yaml.Marshal(doc)
}
