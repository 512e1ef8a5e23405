package main

import (
	"context"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/twylie/merge-fastq/rename"
	"github.com/twylie/merge-fastq/samplemap"
	"github.com/twylie/merge-fastq/scheduler"
	"v.io/x/lib/cmdline"
)

func newCmdPrepRename() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "prep-rename",
		Short: "Write a rename file mapping every Samplemap library name to itself",
	}
	samplemaps := cmd.Flags.String("samplemap", "", "Comma-separated Samplemap.csv files, one per batch")
	out := cmd.Flags.String("rename-out", "", "Rename file to write. It must not exist")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 0 {
			return env.UsageErrorf("prep-rename takes no arguments, but got %v", argv)
		}
		return prepRename(vcontext.Background(), scheduler.SplitList(*samplemaps, ","), *out)
	})
	return cmd
}

func prepRename(ctx context.Context, samplemaps []string, out string) error {
	if len(samplemaps) == 0 || out == "" {
		return errors.E(errors.Invalid, "prep-rename: -samplemap and -rename-out are required")
	}
	table, err := samplemap.Load(ctx, samplemaps)
	if err != nil {
		return err
	}
	entries := rename.Prepare(table.SampleIDs())
	if err = rename.Write(ctx, out, entries); err != nil {
		return err
	}
	log.Printf("prep-rename: wrote %d sample ids to %s", len(entries), out)
	return nil
}

func newCmdPrepSamplemap() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "prep-samplemap",
		Short: "Replace white space in the library names of a Samplemap",
	}
	in := cmd.Flags.String("samplemap", "", "Samplemap.csv to normalize")
	out := cmd.Flags.String("out", "", "Normalized Samplemap to write. It must not exist")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 0 {
			return env.UsageErrorf("prep-samplemap takes no arguments, but got %v", argv)
		}
		return prepSamplemap(vcontext.Background(), *in, *out)
	})
	return cmd
}

func prepSamplemap(ctx context.Context, in, out string) error {
	if in == "" || out == "" {
		return errors.E(errors.Invalid, "prep-samplemap: -samplemap and -out are required")
	}
	changes, err := samplemap.NormalizeLibraryNames(ctx, in, out)
	if err != nil {
		return err
	}
	for _, c := range changes {
		log.Printf("prep-samplemap: row %d: %q -> %q", c.Row, c.Old, c.New)
	}
	log.Printf("prep-samplemap: wrote %s, %d library names changed", out, len(changes))
	return nil
}
