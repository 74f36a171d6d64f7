// Command taskmasterd is the supervisor daemon. It takes no positional
// arguments (spec §6): the config path and server address come from
// TASKMASTER_CONFIG_FILE_PATH and SERVER_ADDRESS.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/taskmaster/taskmaster/internal/ctlserver"
	"github.com/taskmaster/taskmaster/internal/daemonize"
	"github.com/taskmaster/taskmaster/internal/errs"
	"github.com/taskmaster/taskmaster/internal/lockfile"
	"github.com/taskmaster/taskmaster/internal/logging"
	"github.com/taskmaster/taskmaster/internal/registry"
	"github.com/taskmaster/taskmaster/internal/supervisor"
)

const defaultAddr = "127.0.0.1:4242"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "taskmasterd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	isParent, err := daemonize.Daemonize()
	if err != nil {
		return fmt.Errorf("daemonize: %w", err)
	}
	if isParent {
		return nil
	}

	configPath, err := resolveConfigPath()
	if err != nil {
		return err
	}
	addr := resolveServerAddress()

	log, logErr := logging.New()
	if logErr != nil {
		fmt.Fprintf(os.Stderr, "taskmasterd: warning: %v\n", logErr)
	}

	lock, err := lockfile.Acquire(lockfile.DefaultPath)
	if err != nil {
		return err
	}
	defer lock.Release()

	reg := registry.New(configPath, logging.Component(log, "registry"))
	if err := reg.LoadFromDisk(true); err != nil {
		return fmt.Errorf("initial config load: %w", err)
	}

	srv, err := ctlserver.Listen(addr)
	if err != nil {
		return err
	}

	log.WithField("addr", addr).WithField("config", configPath).Info("taskmasterd starting")

	loop := supervisor.New(reg, srv, logging.Component(log, "supervisor"))
	return loop.Run()
}

// resolveConfigPath reads TASKMASTER_CONFIG_FILE_PATH (spec §6). Whitespace
// in the value separates arguments; only the first whitespace-token is
// consumed as the filename, any remainder is a hard error.
func resolveConfigPath() (string, error) {
	raw, ok := os.LookupEnv("TASKMASTER_CONFIG_FILE_PATH")
	if !ok || raw == "" {
		return "", fmt.Errorf("%w: TASKMASTER_CONFIG_FILE_PATH", errs.ErrConfigEnvVarMissing)
	}
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: TASKMASTER_CONFIG_FILE_PATH is blank", errs.ErrConfigEnvVarMissing)
	}
	if len(fields) > 1 {
		return "", fmt.Errorf("TASKMASTER_CONFIG_FILE_PATH has trailing arguments: %q", raw)
	}
	return fields[0], nil
}

func resolveServerAddress() string {
	if v := os.Getenv("SERVER_ADDRESS"); v != "" {
		return v
	}
	return defaultAddr
}
