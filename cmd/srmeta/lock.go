package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/google/subcommands"

	"github.com/marmos91/srmeta/pkg/config"
	"github.com/marmos91/srmeta/pkg/lock"
)

// lockCmd implements subcommands.Command for the "lock" command.
type lockCmd struct{}

func (*lockCmd) Name() string     { return "lock" }
func (*lockCmd) Synopsis() string { return "inspect or remove lock files" }
func (*lockCmd) Usage() string {
	return `lock <action> ...

Actions:
  status <namespace> [name]   report whether the lock is free (name defaults to "sr")
  cleanup <namespace> [name]  remove one lock file, or the whole namespace
`
}

func (*lockCmd) SetFlags(*flag.FlagSet) {}

func (c *lockCmd) Execute(_ context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	e := envFrom(args)
	if f.NArg() < 2 || f.NArg() > 3 {
		return usageError(f, "lock takes an action, a namespace and an optional name")
	}
	action, ns, name := f.Arg(0), f.Arg(1), f.Arg(2)

	switch action {
	case "status":
		if name == "" {
			name = srLockName
		}
		return c.status(e.out, name, ns)
	case "cleanup":
		var err error
		if name == "" {
			err = lock.CleanupAll(ns)
		} else {
			err = lock.Cleanup(name, ns)
		}
		if err != nil {
			return fail(c.Name(), err)
		}
		return subcommands.ExitSuccess
	default:
		return usageError(f, "unknown action %q", action)
	}
}

// status probes the lock without waiting. It exits 1 when the lock is held
// elsewhere.
func (c *lockCmd) status(out io.Writer, name, ns string) subcommands.ExitStatus {
	l, err := lock.New(name, ns)
	if err != nil {
		return fail(c.Name(), err)
	}

	ok, err := l.AcquireNoblock()
	if err != nil {
		return fail(c.Name(), err)
	}
	if !ok {
		if pid := l.Holder(); pid > 0 {
			fmt.Fprintf(out, "%s: held by pid %d\n", l.Path(), pid)
		} else {
			fmt.Fprintf(out, "%s: held\n", l.Path())
		}
		return subcommands.ExitFailure
	}
	if err := l.Release(); err != nil {
		return fail(c.Name(), err)
	}

	fmt.Fprintf(out, "%s: free\n", l.Path())
	return subcommands.ExitSuccess
}

// configCmd implements subcommands.Command for the "config" command.
type configCmd struct {
	force bool
	path  string
}

func (*configCmd) Name() string     { return "config" }
func (*configCmd) Synopsis() string { return "write a commented default config file" }
func (*configCmd) Usage() string {
	return `config init [-force] [-path <file>] - write the default configuration.
`
}

func (c *configCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.force, "force", false, "overwrite an existing file")
	f.StringVar(&c.path, "path", "", "destination (default $XDG_CONFIG_HOME/srmeta/config.yaml)")
}

func (c *configCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 || f.Arg(0) != "init" {
		return usageError(f, "the only config action is init")
	}

	path := c.path
	var err error
	if path == "" {
		path, err = config.InitConfig(c.force)
	} else {
		err = config.InitConfigToPath(path, c.force)
	}
	if err != nil {
		return fail(c.Name(), err)
	}

	fmt.Printf("wrote %s\n", path)
	return subcommands.ExitSuccess
}
