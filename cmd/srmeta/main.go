// Command srmeta inspects and maintains the metadata, journal and locks of a
// storage repository.
//
// Every mutating subcommand takes the SR lock ("sr" in the SR's namespace)
// for its whole duration, so it can run alongside other SR tooling on the
// host.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/subcommands"

	"github.com/marmos91/srmeta/internal/logger"
	"github.com/marmos91/srmeta/pkg/config"
)

var (
	configPath = flag.String("config", "", "path to the config file (default $XDG_CONFIG_HOME/srmeta/config.yaml)")
	logLevel   = flag.String("log-level", "", "override the configured log level (DEBUG, INFO, WARN, ERROR)")
	lockDir    = flag.String("lock-dir", "", "override the configured lock directory")
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")

	const metadataGroup = "metadata"
	subcommands.Register(new(initCmd), metadataGroup)
	subcommands.Register(new(dumpCmd), metadataGroup)
	subcommands.Register(new(addVDICmd), metadataGroup)
	subcommands.Register(new(deleteVDICmd), metadataGroup)
	subcommands.Register(new(updateSRCmd), metadataGroup)
	subcommands.Register(new(updateVDICmd), metadataGroup)
	subcommands.Register(new(checkSpaceCmd), metadataGroup)

	const maintenanceGroup = "maintenance"
	subcommands.Register(new(journalCmd), maintenanceGroup)
	subcommands.Register(new(lockCmd), maintenanceGroup)
	subcommands.Register(new(configCmd), maintenanceGroup)

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	status := run(ctx)
	stop()
	os.Exit(int(status))
}

func run(ctx context.Context) subcommands.ExitStatus {
	// config init must work before a config file exists
	if flag.Arg(0) == "config" {
		return subcommands.Execute(ctx, (*env)(nil))
	}

	e, err := newEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "srmeta: %v\n", err)
		return subcommands.ExitFailure
	}

	status := subcommands.Execute(ctx, e)

	if err := e.metrics.Flush(); err != nil {
		logger.Warn("%v", err)
	}
	return status
}

// newEnv loads configuration and applies the process-wide settings.
func newEnv(path string) (*env, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *lockDir != "" {
		cfg.Lock.BaseDir = *lockDir
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if err := config.ConfigureLogging(&cfg.Logging); err != nil {
		return nil, err
	}

	m := config.InitializeMetrics(cfg)
	config.ConfigureLocks(&cfg.Lock, m.Lock)

	return &env{cfg: cfg, metrics: m, out: os.Stdout}, nil
}
