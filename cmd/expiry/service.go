package main

import (
	"fmt"
	"path/filepath"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/flemzord/expiry/pkg/app"
)

// program adapts app.Run to the service manager lifecycle.
type program struct {
	params app.RunParams
	stop   chan struct{}
	done   chan error
	logger service.Logger
}

func (p *program) Start(_ service.Service) error {
	p.stop = make(chan struct{})
	p.done = make(chan error, 1)
	params := p.params
	params.Stop = p.stop
	go func() {
		err := app.Run(params)
		if err != nil && p.logger != nil {
			_ = p.logger.Error(err)
		}
		p.done <- err
	}()
	return nil
}

func (p *program) Stop(_ service.Service) error {
	close(p.stop)
	return <-p.done
}

// newService builds the service definition. The installed unit runs
// "expiry service run" with the same config and data directory flags.
func newService(params app.RunParams) (service.Service, *program, error) {
	args := []string{"service", "run"}
	if params.ConfigPath != "" {
		abs, err := filepath.Abs(params.ConfigPath)
		if err != nil {
			return nil, nil, err
		}
		args = append(args, "--config", abs)
	}
	if params.DataDir != "" {
		abs, err := filepath.Abs(params.DataDir)
		if err != nil {
			return nil, nil, err
		}
		args = append(args, "--data-dir", abs)
	}

	prg := &program{params: params}
	svc, err := service.New(prg, &service.Config{
		Name:        "expiry",
		DisplayName: "expiry",
		Description: "Expires temporary content on schedule.",
		Arguments:   args,
	})
	if err != nil {
		return nil, nil, err
	}
	return svc, prg, nil
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Install and control expiry as a system service",
	}

	for _, action := range service.ControlAction {
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: fmt.Sprintf("%s the system service", action),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				svc, _, err := newService(runParams(cmd))
				if err != nil {
					return err
				}
				if err := service.Control(svc, action); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "service %s: ok\n", action)
				return nil
			},
		})
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show the system service status",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				svc, _, err := newService(runParams(cmd))
				if err != nil {
					return err
				}
				st, err := svc.Status()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), statusText(st))
				return nil
			},
		},
		&cobra.Command{
			Use:    "run",
			Short:  "Run under the service manager",
			Args:   cobra.NoArgs,
			Hidden: true,
			RunE: func(cmd *cobra.Command, _ []string) error {
				svc, prg, err := newService(runParams(cmd))
				if err != nil {
					return err
				}
				if logger, err := svc.Logger(nil); err == nil {
					prg.logger = logger
				}
				return svc.Run()
			},
		},
	)
	return cmd
}

func statusText(st service.Status) string {
	switch st {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
