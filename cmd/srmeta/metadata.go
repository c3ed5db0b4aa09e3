package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/google/subcommands"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/srmeta/internal/logger"
	"github.com/marmos91/srmeta/pkg/store/metadata"
)

// initCmd implements subcommands.Command for the "init" command.
type initCmd struct {
	uuid        string
	label       string
	description string
	allocation  string
}

func (*initCmd) Name() string     { return "init" }
func (*initCmd) Synopsis() string { return "write the SR record to an empty metadata volume" }
func (*initCmd) Usage() string {
	return `init [flags] - initialize the metadata volume with a new SR record.
`
}

func (c *initCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.uuid, "uuid", "", "SR uuid (generated when empty)")
	f.StringVar(&c.label, "label", "", "SR name label")
	f.StringVar(&c.description, "description", "", "SR name description")
	f.StringVar(&c.allocation, "allocation", "thick", "SR allocation policy")
}

func (c *initCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 0 {
		return usageError(f, "init takes no arguments")
	}
	e := envFrom(args)

	sr := metadata.SRInfo{
		UUID:            c.uuid,
		NameLabel:       c.label,
		NameDescription: c.description,
		Allocation:      c.allocation,
	}
	if sr.UUID == "" {
		sr.UUID = uuid.NewString()
	} else if _, err := uuid.Parse(sr.UUID); err != nil {
		return usageError(f, "invalid SR uuid %q: %v", sr.UUID, err)
	}

	s, err := e.openMetadata(ctx)
	if err != nil {
		return fail(c.Name(), err)
	}
	defer s.Close()

	err = withSRLock(sr.UUID, func() error {
		return s.WriteMetadata(ctx, sr, nil)
	})
	if err != nil {
		return fail(c.Name(), err)
	}

	logger.Info("initialized SR %s on %s", sr.UUID, e.cfg.Metadata.Path)
	fmt.Fprintln(e.out, sr.UUID)
	return subcommands.ExitSuccess
}

// dumpCmd implements subcommands.Command for the "dump" command.
type dumpCmd struct {
	format string
}

func (*dumpCmd) Name() string     { return "dump" }
func (*dumpCmd) Synopsis() string { return "print the SR record and all live VDI records" }
func (*dumpCmd) Usage() string {
	return `dump [-format text|json|yaml] - print the metadata volume contents.
`
}

func (c *dumpCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.format, "format", "text", "output format: text, json or yaml")
}

// dump is the machine-readable form of the store contents.
type dump struct {
	SR         metadata.SRInfo    `json:"sr" yaml:"sr"`
	VDIs       []metadata.VDIInfo `json:"vdis" yaml:"vdis"`
	UsedLength int64              `json:"used_length" yaml:"used_length"`
}

func (c *dumpCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	e := envFrom(args)

	s, err := e.openMetadata(ctx)
	if err != nil {
		return fail(c.Name(), err)
	}
	defer s.Close()

	sr, vdis, err := s.GetMetadata(ctx)
	if err != nil {
		return fail(c.Name(), err)
	}
	used, err := s.UsedLength(ctx)
	if err != nil {
		return fail(c.Name(), err)
	}

	d := dump{SR: sr, UsedLength: used, VDIs: make([]metadata.VDIInfo, 0, len(vdis))}
	for _, vdi := range vdis {
		d.VDIs = append(d.VDIs, vdi)
	}
	sort.Slice(d.VDIs, func(i, j int) bool { return d.VDIs[i].Offset < d.VDIs[j].Offset })

	switch c.format {
	case "json":
		enc := json.NewEncoder(e.out)
		enc.SetIndent("", "  ")
		err = enc.Encode(d)
	case "yaml":
		enc := yaml.NewEncoder(e.out)
		enc.SetIndent(2)
		if err = enc.Encode(d); err == nil {
			err = enc.Close()
		}
	case "text":
		err = printText(e.out, d)
	default:
		return usageError(f, "unknown format %q", c.format)
	}
	if err != nil {
		return fail(c.Name(), err)
	}
	return subcommands.ExitSuccess
}

func printText(out io.Writer, d dump) error {
	if d.SR.IsZero() {
		fmt.Fprintln(out, "no SR metadata")
		return nil
	}

	fmt.Fprintf(out, "SR %s (%s)\n", d.SR.UUID, d.SR.Allocation)
	fmt.Fprintf(out, "  label:       %s\n", d.SR.NameLabel)
	fmt.Fprintf(out, "  description: %s\n", d.SR.NameDescription)
	fmt.Fprintf(out, "  used:        %s\n", humanize.IBytes(uint64(d.UsedLength)))
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "OFFSET\tUUID\tLABEL\tTYPE\tVDI TYPE\tSNAPSHOT OF\tMANAGED\tREAD ONLY")
	for _, vdi := range d.VDIs {
		snapshotOf := "-"
		if vdi.IsASnapshot {
			snapshotOf = vdi.SnapshotOf
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%t\t%t\n",
			vdi.Offset, vdi.UUID, vdi.NameLabel, vdi.Type, vdi.VDIType, snapshotOf, vdi.Managed, vdi.ReadOnly)
	}
	return w.Flush()
}

// vdiFlags are the VDI fields settable from the command line.
type vdiFlags struct {
	label          string
	description    string
	isASnapshot    bool
	snapshotOf     string
	snapshotTime   string
	typ            string
	vdiType        string
	readOnly       bool
	managed        bool
	metadataOfPool string
}

func (v *vdiFlags) register(f *flag.FlagSet) {
	f.StringVar(&v.label, "label", "", "VDI name label")
	f.StringVar(&v.description, "description", "", "VDI name description")
	f.BoolVar(&v.isASnapshot, "snapshot", false, "the VDI is a snapshot")
	f.StringVar(&v.snapshotOf, "snapshot-of", "", "uuid of the snapshotted VDI")
	f.StringVar(&v.snapshotTime, "snapshot-time", "", "snapshot timestamp")
	f.StringVar(&v.typ, "type", "user", "VDI type (user, system, metadata, ...)")
	f.StringVar(&v.vdiType, "vdi-type", "vhd", "on-disk format of the VDI")
	f.BoolVar(&v.readOnly, "read-only", false, "the VDI is read-only")
	f.BoolVar(&v.managed, "managed", true, "the VDI is managed")
	f.StringVar(&v.metadataOfPool, "metadata-of-pool", "", "pool uuid for a metadata VDI")
}

// update builds a VDIUpdate carrying only the flags that were set.
func (v *vdiFlags) update(vdiUUID string, set map[string]bool) metadata.VDIUpdate {
	u := metadata.VDIUpdate{UUID: vdiUUID}
	if set["label"] {
		u.NameLabel = metadata.String(v.label)
	}
	if set["description"] {
		u.NameDescription = metadata.String(v.description)
	}
	if set["snapshot"] {
		u.IsASnapshot = metadata.Bool(v.isASnapshot)
	}
	if set["snapshot-of"] {
		u.SnapshotOf = metadata.String(v.snapshotOf)
	}
	if set["snapshot-time"] {
		u.SnapshotTime = metadata.String(v.snapshotTime)
	}
	if set["type"] {
		u.Type = metadata.String(v.typ)
	}
	if set["vdi-type"] {
		u.VDIType = metadata.String(v.vdiType)
	}
	if set["read-only"] {
		u.ReadOnly = metadata.Bool(v.readOnly)
	}
	if set["managed"] {
		u.Managed = metadata.Bool(v.managed)
	}
	if set["metadata-of-pool"] {
		u.MetadataOfPool = metadata.String(v.metadataOfPool)
	}
	return u
}

// addVDICmd implements subcommands.Command for the "add-vdi" command.
type addVDICmd struct {
	uuid string
	vdiFlags
}

func (*addVDICmd) Name() string     { return "add-vdi" }
func (*addVDICmd) Synopsis() string { return "add a VDI record and print its offset" }
func (*addVDICmd) Usage() string {
	return `add-vdi [flags] - store a new VDI record, reusing the first deleted slot.
`
}

func (c *addVDICmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.uuid, "uuid", "", "VDI uuid (generated when empty)")
	c.vdiFlags.register(f)
}

func (c *addVDICmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 0 {
		return usageError(f, "add-vdi takes no arguments")
	}
	e := envFrom(args)

	vdi := metadata.VDIInfo{
		UUID:            c.uuid,
		NameLabel:       c.label,
		NameDescription: c.description,
		IsASnapshot:     c.isASnapshot,
		SnapshotOf:      c.snapshotOf,
		SnapshotTime:    c.snapshotTime,
		Type:            c.typ,
		VDIType:         c.vdiType,
		ReadOnly:        c.readOnly,
		Managed:         c.managed,
		MetadataOfPool:  c.metadataOfPool,
	}
	if vdi.UUID == "" {
		vdi.UUID = uuid.NewString()
	}

	var offset int64
	err := e.mutateMetadata(ctx, func(s *metadataStore) error {
		var err error
		offset, err = s.AddVDI(ctx, vdi)
		return err
	})
	if err != nil {
		return fail(c.Name(), err)
	}

	fmt.Fprintf(e.out, "%s %d\n", vdi.UUID, offset)
	return subcommands.ExitSuccess
}

// deleteVDICmd implements subcommands.Command for the "delete-vdi" command.
type deleteVDICmd struct{}

func (*deleteVDICmd) Name() string     { return "delete-vdi" }
func (*deleteVDICmd) Synopsis() string { return "soft-delete a VDI record" }
func (*deleteVDICmd) Usage() string {
	return `delete-vdi <vdi uuid> - mark the VDI record deleted.
`
}

func (*deleteVDICmd) SetFlags(*flag.FlagSet) {}

func (c *deleteVDICmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return usageError(f, "delete-vdi takes exactly one VDI uuid")
	}
	e := envFrom(args)

	err := e.mutateMetadata(ctx, func(s *metadataStore) error {
		return s.DeleteVDIFromMetadata(ctx, f.Arg(0))
	})
	if err != nil {
		return fail(c.Name(), err)
	}
	return subcommands.ExitSuccess
}

// updateSRCmd implements subcommands.Command for the "update-sr" command.
type updateSRCmd struct {
	label       string
	description string
}

func (*updateSRCmd) Name() string     { return "update-sr" }
func (*updateSRCmd) Synopsis() string { return "change the SR name label or description" }
func (*updateSRCmd) Usage() string {
	return `update-sr [-label <label>] [-description <description>] - update the SR record.
`
}

func (c *updateSRCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.label, "label", "", "new SR name label")
	f.StringVar(&c.description, "description", "", "new SR name description")
}

func (c *updateSRCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	set := setFlags(f)
	if f.NArg() != 0 || len(set) == 0 {
		return usageError(f, "update-sr needs -label and/or -description")
	}
	e := envFrom(args)

	var u metadata.SRUpdate
	if set["label"] {
		u.NameLabel = metadata.String(c.label)
	}
	if set["description"] {
		u.NameDescription = metadata.String(c.description)
	}

	err := e.mutateMetadata(ctx, func(s *metadataStore) error {
		return s.UpdateMetadata(ctx, u)
	})
	if err != nil {
		return fail(c.Name(), err)
	}
	return subcommands.ExitSuccess
}

// updateVDICmd implements subcommands.Command for the "update-vdi" command.
type updateVDICmd struct {
	vdiFlags
}

func (*updateVDICmd) Name() string     { return "update-vdi" }
func (*updateVDICmd) Synopsis() string { return "change fields of a VDI record" }
func (*updateVDICmd) Usage() string {
	return `update-vdi [flags] <vdi uuid> - update the given fields of a VDI record.
Only flags given on the command line are changed.
`
}

func (c *updateVDICmd) SetFlags(f *flag.FlagSet) {
	c.vdiFlags.register(f)
}

func (c *updateVDICmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	set := setFlags(f)
	if f.NArg() != 1 {
		return usageError(f, "update-vdi takes exactly one VDI uuid")
	}
	if len(set) == 0 {
		return usageError(f, "update-vdi needs at least one field flag")
	}
	e := envFrom(args)

	err := e.mutateMetadata(ctx, func(s *metadataStore) error {
		return s.UpdateMetadata(ctx, c.update(f.Arg(0), set))
	})
	if err != nil {
		return fail(c.Name(), err)
	}
	return subcommands.ExitSuccess
}

// checkSpaceCmd implements subcommands.Command for the "check-space" command.
type checkSpaceCmd struct{}

func (*checkSpaceCmd) Name() string     { return "check-space" }
func (*checkSpaceCmd) Synopsis() string { return "check that the volume can hold more VDI records" }
func (*checkSpaceCmd) Usage() string {
	return `check-space <count> - prove there is room for count more VDI records.
`
}

func (*checkSpaceCmd) SetFlags(*flag.FlagSet) {}

func (c *checkSpaceCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return usageError(f, "check-space takes exactly one count")
	}
	count, err := strconv.Atoi(f.Arg(0))
	if err != nil || count < 0 {
		return usageError(f, "invalid count %q", f.Arg(0))
	}
	e := envFrom(args)

	var used, capacity int64
	err = e.mutateMetadata(ctx, func(s *metadataStore) error {
		if err := s.EnsureSpaceIsAvailableForVDIs(ctx, count); err != nil {
			return err
		}
		var err error
		if used, err = s.UsedLength(ctx); err != nil {
			return err
		}
		capacity, err = s.vol.Capacity()
		return err
	})
	if err != nil {
		return fail(c.Name(), err)
	}

	fmt.Fprintf(e.out, "room for %d more VDIs (%s used of %s)\n",
		count, humanize.IBytes(uint64(used)), humanize.IBytes(uint64(capacity)))
	return subcommands.ExitSuccess
}
