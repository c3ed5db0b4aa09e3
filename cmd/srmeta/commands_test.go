package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/google/subcommands"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/srmeta/pkg/config"
	"github.com/marmos91/srmeta/pkg/lock"
)

const testSR = "0f7b5a8e-3c36-4f3e-9d55-8e7fb3b4a1c2"

// newTestEnv builds an env over a temp metadata file, filesystem journal and
// lock directory. The process-wide lock registry is pointed at the temp
// directory for the duration of the test.
func newTestEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()

	cfg := config.GetDefaultConfig()
	cfg.Metadata.Path = filepath.Join(dir, "sr-metadata")
	cfg.Metadata.CapacityBytes = 1 << 20
	cfg.Metadata.Create = true
	cfg.Journal.Type = "filesystem"
	cfg.Journal.Filesystem = map[string]any{"path": filepath.Join(dir, "journal")}
	cfg.Lock.BaseDir = filepath.Join(dir, "lock")
	require.NoError(t, config.Validate(cfg))

	m := config.InitializeMetrics(cfg)
	config.ConfigureLocks(&cfg.Lock, m.Lock)
	t.Cleanup(func() {
		// handles keep their paths, so drop them before the next test
		_ = lock.CleanupAll(testSR)
		lock.Default.Configure(lock.DefaultBaseDir, nil)
	})

	return &env{cfg: cfg, metrics: m, out: io.Discard}
}

// execute parses args for cmd and runs it, returning its status and output.
func execute(t *testing.T, e *env, cmd subcommands.Command, args ...string) (subcommands.ExitStatus, string) {
	t.Helper()
	f := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	f.SetOutput(io.Discard)
	cmd.SetFlags(f)
	require.NoError(t, f.Parse(args))

	var out bytes.Buffer
	e.out = &out
	status := cmd.Execute(context.Background(), f, e)
	return status, out.String()
}

func mustExecute(t *testing.T, e *env, cmd subcommands.Command, args ...string) string {
	t.Helper()
	status, out := execute(t, e, cmd, args...)
	require.Equal(t, subcommands.ExitSuccess, status, "%s %v", cmd.Name(), args)
	return out
}

func dumpJSON(t *testing.T, e *env) dump {
	t.Helper()
	var d dump
	require.NoError(t, json.Unmarshal([]byte(mustExecute(t, e, new(dumpCmd), "-format", "json")), &d))
	return d
}

func TestMetadataCommands(t *testing.T) {
	e := newTestEnv(t)

	status, _ := execute(t, e, new(addVDICmd), "-uuid", "vdi-a")
	assert.Equal(t, subcommands.ExitFailure, status, "add-vdi before init")

	out := mustExecute(t, e, new(initCmd), "-uuid", testSR, "-label", "pool0")
	assert.Equal(t, testSR+"\n", out)

	status, _ = execute(t, e, new(initCmd), "-uuid", testSR)
	assert.Equal(t, subcommands.ExitFailure, status, "second init")

	assert.Equal(t, "vdi-a 2048\n", mustExecute(t, e, new(addVDICmd), "-uuid", "vdi-a", "-label", "disk-A"))
	assert.Equal(t, "vdi-b 3072\n", mustExecute(t, e, new(addVDICmd), "-uuid", "vdi-b"))
	mustExecute(t, e, new(deleteVDICmd), "vdi-a")
	assert.Equal(t, "vdi-c 2048\n", mustExecute(t, e, new(addVDICmd), "-uuid", "vdi-c"))

	mustExecute(t, e, new(updateVDICmd), "-label", "renamed", "vdi-c")
	mustExecute(t, e, new(updateSRCmd), "-description", "primary pool")

	d := dumpJSON(t, e)
	assert.Equal(t, testSR, d.SR.UUID)
	assert.Equal(t, "pool0", d.SR.NameLabel)
	assert.Equal(t, "primary pool", d.SR.NameDescription)
	assert.Equal(t, int64(4096), d.UsedLength)
	require.Len(t, d.VDIs, 2)
	assert.Equal(t, "vdi-c", d.VDIs[0].UUID)
	assert.Equal(t, "renamed", d.VDIs[0].NameLabel)
	assert.Equal(t, "user", d.VDIs[0].Type)
	assert.True(t, d.VDIs[0].Managed)
	assert.Equal(t, "vdi-b", d.VDIs[1].UUID)

	text := mustExecute(t, e, new(dumpCmd))
	assert.Contains(t, text, "SR "+testSR)
	assert.Contains(t, text, "renamed")

	assert.Contains(t, mustExecute(t, e, new(dumpCmd), "-format", "yaml"), "name_label: renamed")

	assert.Contains(t, mustExecute(t, e, new(checkSpaceCmd), "3"), "room for 3 more VDIs")

	_, err := os.Stat(filepath.Join(e.cfg.Lock.BaseDir, testSR, srLockName))
	assert.NoError(t, err, "mutations take the SR lock")
}

func TestMetadataCommandUsage(t *testing.T) {
	e := newTestEnv(t)
	mustExecute(t, e, new(initCmd), "-uuid", testSR)

	for _, tc := range []struct {
		name string
		cmd  subcommands.Command
		args []string
	}{
		{"InitBadUUID", new(initCmd), []string{"-uuid", "not-a-uuid"}},
		{"DeleteNoUUID", new(deleteVDICmd), nil},
		{"UpdateSRNoFields", new(updateSRCmd), nil},
		{"UpdateVDINoFields", new(updateVDICmd), []string{"vdi-a"}},
		{"CheckSpaceBadCount", new(checkSpaceCmd), []string{"many"}},
		{"DumpBadFormat", new(dumpCmd), []string{"-format", "xml"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			status, _ := execute(t, e, tc.cmd, tc.args...)
			assert.Equal(t, subcommands.ExitUsageError, status)
		})
	}

	status, _ := execute(t, e, new(deleteVDICmd), "missing")
	assert.Equal(t, subcommands.ExitFailure, status)
}

func TestJournalCommands(t *testing.T) {
	e := newTestEnv(t)

	mustExecute(t, e, new(journalCmd), "create", "clone", "vdi1", "parent")
	mustExecute(t, e, new(journalCmd), "-sr", testSR, "create", "clone", "vdi2", "needs a payload")

	status, _ := execute(t, e, new(journalCmd), "create", "clone", "vdi1", "other")
	assert.Equal(t, subcommands.ExitFailure, status, "duplicate create")

	assert.Equal(t, "parent\n", mustExecute(t, e, new(journalCmd), "get", "clone", "vdi1"))
	assert.Equal(t, "vdi1=parent\nvdi2=needs a payload\n", mustExecute(t, e, new(journalCmd), "list", "clone"))

	mustExecute(t, e, new(journalCmd), "has", "vdi2")
	status, _ = execute(t, e, new(journalCmd), "has", "vdi9")
	assert.Equal(t, subcommands.ExitFailure, status)

	status, _ = execute(t, e, new(journalCmd), "create", "bad_type", "vdi1", "x")
	assert.Equal(t, subcommands.ExitUsageError, status)

	status, _ = execute(t, e, new(journalCmd), "get", "clone")
	assert.Equal(t, subcommands.ExitUsageError, status)

	mustExecute(t, e, new(journalCmd), "remove", "clone", "vdi1")
	status, _ = execute(t, e, new(journalCmd), "get", "clone", "vdi1")
	assert.Equal(t, subcommands.ExitFailure, status)

	_, err := os.Stat(filepath.Join(e.cfg.Lock.BaseDir, testSR, srLockName))
	assert.NoError(t, err, "-sr takes the SR lock")
}

func TestLockCommands(t *testing.T) {
	e := newTestEnv(t)

	assert.Contains(t, mustExecute(t, e, new(lockCmd), "status", testSR), "free")

	// A second registry over the same directory holds the lock as another
	// process would.
	other, err := lock.NewRegistry(e.cfg.Lock.BaseDir, nil).Get(srLockName, testSR)
	require.NoError(t, err)
	require.NoError(t, other.Acquire())

	status, out := execute(t, e, new(lockCmd), "status", testSR)
	assert.Equal(t, subcommands.ExitFailure, status)
	assert.Contains(t, out, "held by pid "+strconv.Itoa(os.Getpid()))

	require.NoError(t, other.Release())

	mustExecute(t, e, new(lockCmd), "cleanup", testSR)
	_, err = os.Stat(filepath.Join(e.cfg.Lock.BaseDir, testSR))
	assert.True(t, os.IsNotExist(err))

	status, _ = execute(t, e, new(lockCmd), "status")
	assert.Equal(t, subcommands.ExitUsageError, status)
}
