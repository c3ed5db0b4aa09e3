package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/google/subcommands"

	"github.com/marmos91/srmeta/pkg/store"
	"github.com/marmos91/srmeta/pkg/store/journal"
)

// journalCmd implements subcommands.Command for the "journal" command.
type journalCmd struct {
	sr string
}

func (*journalCmd) Name() string     { return "journal" }
func (*journalCmd) Synopsis() string { return "list, read, create or remove journal entries" }
func (*journalCmd) Usage() string {
	return `journal [-sr <uuid>] <action> ...

Actions:
  list <type>               print every entry of the type as id=value
  get <type> <id>           print the value of one entry
  has <id>                  exit 0 if any entry is keyed on id, 1 otherwise
  create <type> <id> <value>
  remove <type> <id>

create and remove hold the SR lock when -sr is given.
`
}

func (c *journalCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.sr, "sr", "", "SR uuid whose lock guards create and remove")
}

func (c *journalCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 1 {
		return usageError(f, "missing action")
	}
	action, rest := f.Arg(0), f.Args()[1:]

	want := map[string]int{"list": 1, "get": 2, "has": 1, "create": 3, "remove": 2}
	n, ok := want[action]
	if !ok {
		return usageError(f, "unknown action %q", action)
	}
	if len(rest) != n {
		return usageError(f, "%s takes %d arguments", action, n)
	}

	e := envFrom(args)
	j, err := e.openJournal(ctx)
	if err != nil {
		return fail(c.Name(), err)
	}
	defer j.Close()

	switch action {
	case "list":
		err = listJournals(ctx, e.out, j, rest[0])
	case "get":
		var value string
		var found bool
		value, found, err = j.Get(ctx, rest[0], rest[1])
		if err == nil && !found {
			err = store.NewError(store.ErrNotFound, "no %s journal for %s", rest[0], rest[1])
		}
		if err == nil {
			fmt.Fprintln(e.out, value)
		}
	case "has":
		var has bool
		if has, err = j.HasJournals(ctx, rest[0]); err == nil && !has {
			return subcommands.ExitFailure
		}
	case "create":
		err = c.locked(func() error { return j.Create(ctx, rest[0], rest[1], rest[2]) })
	case "remove":
		err = c.locked(func() error { return j.Remove(ctx, rest[0], rest[1]) })
	}

	if err != nil {
		if errors.Is(err, store.ErrInvalidArgument) {
			fmt.Fprintf(os.Stderr, "srmeta journal: %v\n", err)
			return subcommands.ExitUsageError
		}
		return fail(c.Name(), err)
	}
	return subcommands.ExitSuccess
}

func (c *journalCmd) locked(fn func() error) error {
	if c.sr == "" {
		return fn()
	}
	return withSRLock(c.sr, fn)
}

func listJournals(ctx context.Context, out io.Writer, j *journal.Journal, typ string) error {
	entries, err := j.GetAll(ctx, typ)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(out, "%s=%s\n", id, entries[id])
	}
	return nil
}
