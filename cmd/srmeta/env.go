package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"

	"github.com/marmos91/srmeta/internal/logger"
	"github.com/marmos91/srmeta/pkg/backing"
	"github.com/marmos91/srmeta/pkg/config"
	"github.com/marmos91/srmeta/pkg/lock"
	"github.com/marmos91/srmeta/pkg/store/journal"
	"github.com/marmos91/srmeta/pkg/store/metadata/volume"
)

// srLockName is the lock every SR mutation holds, in the SR's namespace.
const srLockName = "sr"

// env is passed to every subcommand through subcommands.Execute.
type env struct {
	cfg     *config.Config
	metrics *config.MetricsResult

	// out receives command output.
	out io.Writer
}

func envFrom(args []interface{}) *env {
	return args[0].(*env)
}

// metadataStore is an open metadata store together with its volume.
type metadataStore struct {
	*volume.VolumeMetadataStore
	vol *backing.File
}

func (e *env) openMetadata(ctx context.Context) (*metadataStore, error) {
	vol, err := config.CreateVolume(&e.cfg.Metadata)
	if err != nil {
		return nil, err
	}
	s, err := volume.New(ctx, vol, volume.Config{BlockSize: e.cfg.Metadata.BlockSize}, e.metrics.Metadata)
	if err != nil {
		_ = vol.Close()
		return nil, fmt.Errorf("failed to create metadata store: %w", err)
	}
	return &metadataStore{VolumeMetadataStore: s, vol: vol}, nil
}

func (e *env) openJournal(ctx context.Context) (*journal.Journal, error) {
	return config.CreateJournal(ctx, &e.cfg.Journal, e.metrics.Journal)
}

// withSRLock runs fn while holding the SR lock of srUUID.
func withSRLock(srUUID string, fn func() error) error {
	l, err := lock.New(srLockName, srUUID)
	if err != nil {
		return err
	}
	if err := l.Acquire(); err != nil {
		return err
	}
	defer func() {
		if err := l.Release(); err != nil {
			logger.Warn("failed to release %s: %v", l.Path(), err)
		}
	}()
	return fn()
}

// mutateMetadata opens the store, reads the SR uuid and runs fn under that
// SR's lock.
func (e *env) mutateMetadata(ctx context.Context, fn func(s *metadataStore) error) error {
	s, err := e.openMetadata(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	sr, _, err := s.GetMetadata(ctx)
	if err != nil {
		return err
	}
	if sr.IsZero() {
		return fmt.Errorf("%s carries no SR metadata (run init first)", e.cfg.Metadata.Path)
	}

	return withSRLock(sr.UUID, func() error { return fn(s) })
}

// fail reports err and returns the failure status.
func fail(name string, err error) subcommands.ExitStatus {
	logger.Error("%s: %v", name, err)
	fmt.Fprintf(os.Stderr, "srmeta %s: %v\n", name, err)
	return subcommands.ExitFailure
}

// usageError prints the command usage and returns the usage status.
func usageError(f *flag.FlagSet, format string, args ...interface{}) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	f.Usage()
	return subcommands.ExitUsageError
}

// setFlags returns the names of the flags given on the command line.
func setFlags(f *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	f.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return set
}
