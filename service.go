package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kardianos/service"

	"fluxrelay/core"
)

// program adapts the relay to the OS service manager (systemd, launchd,
// Windows SCM).
type program struct {
	app  *app
	done chan error
}

// Start must not block; the relay runs in its own goroutine.
func (p *program) Start(s service.Service) error {
	a, code := newApp()
	if a == nil {
		return fmt.Errorf("startup failed: %s", core.ExitCodeName(code))
	}
	p.app = a
	p.done = make(chan error, 1)

	go func() {
		p.done <- a.run()
	}()
	return nil
}

// Stop begins a graceful shutdown and waits for it a little longer than
// the shutdown timeout.
func (p *program) Stop(s service.Service) error {
	if p.app == nil {
		return nil
	}
	p.app.manager.Trigger()

	select {
	case err := <-p.done:
		return err
	case <-time.After(p.app.cfg.ShutdownTimeout + 5*time.Second):
		return fmt.Errorf("timeout waiting for service to stop")
	}
}

// ServiceConfig returns the service definition. The installed service
// runs "fluxrelay service run" from the current working directory so .env
// and the address list resolve the same way as in the foreground.
func ServiceConfig() *service.Config {
	wd, _ := os.Getwd()
	return &service.Config{
		Name:             "fluxrelay",
		DisplayName:      "Flux Relay",
		Description:      "Persian prompt to image relay with egress address rotation",
		Arguments:        []string{"service", "run"},
		WorkingDirectory: wd,
		Option: service.KeyValue{
			"StartType": "automatic",
			"Restart":   "on-failure",
		},
	}
}

// RunAsService runs under the service manager when the process was not
// started from a terminal. It reports false for interactive sessions.
func RunAsService() (bool, error) {
	if service.Interactive() {
		return false, nil
	}
	return true, runService()
}

func runService() error {
	s, err := service.New(&program{}, ServiceConfig())
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	if err := s.Run(); err != nil {
		return fmt.Errorf("service run failed: %w", err)
	}
	return nil
}

// controlAction runs one of service.ControlAction.
func controlAction(action string) error {
	s, err := service.New(&program{}, ServiceConfig())
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	if err := service.Control(s, action); err != nil {
		return fmt.Errorf("failed to %s service: %w", action, err)
	}
	return nil
}

func serviceStatus() (service.Status, error) {
	s, err := service.New(&program{}, ServiceConfig())
	if err != nil {
		return service.StatusUnknown, fmt.Errorf("failed to create service: %w", err)
	}
	return s.Status()
}

// PrintServiceUsage writes the service subcommand help to w.
func PrintServiceUsage(w io.Writer) {
	fmt.Fprintln(w, "fluxrelay service management")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: fluxrelay service <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  install    Install fluxrelay as an OS service")
	fmt.Fprintln(w, "  uninstall  Remove the OS service (alias: remove)")
	fmt.Fprintln(w, "  start      Start the OS service")
	fmt.Fprintln(w, "  stop       Stop the OS service")
	fmt.Fprintln(w, "  restart    Restart the OS service")
	fmt.Fprintln(w, "  status     Show the service status")
	fmt.Fprintln(w, "  run        Run under the service manager")
	fmt.Fprintln(w, "  help       Show this help message")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run without arguments to serve in the foreground.")
}

// HandleServiceCommand handles "fluxrelay service <command>". It returns
// false when args do not name the service subcommand, otherwise true and
// the exit code.
func HandleServiceCommand(args []string, out io.Writer) (bool, int) {
	if len(args) < 2 || args[1] != "service" {
		return false, 0
	}
	if len(args) < 3 {
		PrintServiceUsage(out)
		return true, core.ExitCodeError
	}

	var err error
	switch cmd := args[2]; cmd {
	case "help", "-h", "--help", "-help":
		PrintServiceUsage(out)
		return true, core.ExitCodeSuccess
	case "run":
		err = runService()
	case "install", "uninstall", "start", "stop", "restart":
		if err = controlAction(cmd); err == nil {
			fmt.Fprintf(out, "Service %s: ok\n", cmd)
		}
	case "remove":
		if err = controlAction("uninstall"); err == nil {
			fmt.Fprintln(out, "Service uninstall: ok")
		}
	case "status":
		var status service.Status
		status, err = serviceStatus()
		if err == nil {
			fmt.Fprintf(out, "Service is %s\n", statusName(status))
		}
	default:
		fmt.Fprintf(out, "Unknown service command %q\n\n", cmd)
		PrintServiceUsage(out)
		return true, core.ExitCodeError
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return true, core.ExitCodeError
	}
	return true, core.ExitCodeSuccess
}

func statusName(s service.Status) string {
	switch s {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "in an unknown state"
	}
}
