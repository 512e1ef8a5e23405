package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/twylie/merge-fastq/ledger"
	"github.com/twylie/merge-fastq/mergeplan"
	"github.com/twylie/merge-fastq/readcount"
	"github.com/twylie/merge-fastq/rename"
	"github.com/twylie/merge-fastq/samplemap"
	"github.com/twylie/merge-fastq/scheduler"
	"v.io/x/lib/cmdline"
)

type mergeOpts struct {
	samplemaps  []string
	renamePath  string
	outDir      string
	project     string
	volumes     []string
	execute     bool
	runner      string
	image       string
	group       string
	queue       string
	memory      string
	configPath  string
	sqlite      bool
	checkFastqs bool
	parallelism int
	clock       scheduler.Clock
}

func newCmdMerge() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "merge",
		Short: "Plan, and optionally run, one FASTQ merge job per sample",
		Long: `
merge reads the Samplemaps of one or more sequencing batches and a rename
file, groups the FASTQ files of every canonical sample by read end, and
writes one job per sample under <outdir>/jobs. With -execute the jobs are
submitted. The ledger, the provenance copies of the inputs and the
core-reported read count matrix are written to <outdir>.`,
	}
	var (
		samplemaps = cmd.Flags.String("samplemap", "", "Comma-separated Samplemap.csv files, one per batch")
		volumes    = cmd.Flags.String("volume", "", "Comma-separated host paths to mount in the job container, in addition to the configured ones")
		opts       mergeOpts
	)
	cmd.Flags.StringVar(&opts.renamePath, "rename", "", "Rename file mapping Samplemap library names to canonical sample ids")
	cmd.Flags.StringVar(&opts.outDir, "outdir", "", "Output directory")
	cmd.Flags.StringVar(&opts.project, "project", string(mergeplan.Other), fmt.Sprintf("Project type, one of %v", mergeplan.Projects))
	cmd.Flags.BoolVar(&opts.execute, "execute", false, "Submit the jobs. By default only their artifacts are written")
	cmd.Flags.StringVar(&opts.runner, "runner", "lsf", "Where -execute runs jobs: lsf or local")
	cmd.Flags.StringVar(&opts.image, "image", "", "Docker image of the jobs")
	cmd.Flags.StringVar(&opts.group, "group", "", "LSF job group")
	cmd.Flags.StringVar(&opts.queue, "queue", "", "LSF queue")
	cmd.Flags.StringVar(&opts.memory, "memory", "", "Memory limit and reservation of each job, e.g. 8G")
	cmd.Flags.StringVar(&opts.configPath, "config", "", "Configuration file. Defaults to $HOME/.mergefastq when present")
	cmd.Flags.BoolVar(&opts.sqlite, "sqlite", false, "Also write the ledger as a SQLite database")
	cmd.Flags.BoolVar(&opts.checkFastqs, "check-fastqs", true, "Fail unless every FASTQ named by the Samplemaps exists")
	cmd.Flags.IntVar(&opts.parallelism, "parallelism", 1, "Number of jobs submitted or run at once")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 0 {
			return env.UsageErrorf("merge takes no arguments, but got %v", argv)
		}
		opts.samplemaps = scheduler.SplitList(*samplemaps, ",")
		opts.volumes = scheduler.SplitList(*volumes, ",")
		return runMerge(vcontext.Background(), opts)
	})
	return cmd
}

// newRunner returns the runner selected by opts.
func newRunner(opts mergeOpts) (scheduler.Runner, error) {
	if !opts.execute {
		return &scheduler.DryRunner{OutDir: opts.outDir, Clock: opts.clock}, nil
	}
	switch opts.runner {
	case "lsf":
		return &scheduler.LSFRunner{OutDir: opts.outDir, Clock: opts.clock}, nil
	case "local":
		return &scheduler.LocalRunner{OutDir: opts.outDir, Clock: opts.clock}, nil
	}
	return nil, errors.E(errors.Invalid, "merge: unknown runner", opts.runner)
}

// submissionParams returns the configured job parameters, overridden by
// the flags of opts.
func submissionParams(ctx context.Context, opts mergeOpts) (scheduler.Config, error) {
	path, mustExist := opts.configPath, true
	if path == "" {
		path, mustExist = scheduler.DefaultConfigPath(), false
	}
	cfg, err := scheduler.LoadConfig(ctx, path, mustExist)
	if err != nil {
		return cfg, err
	}
	p := &cfg.Params
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&p.Image, opts.image)
	set(&p.Group, opts.group)
	set(&p.Queue, opts.queue)
	set(&p.MemoryMax, opts.memory)
	set(&p.ResourceMemory, opts.memory)
	p.Volumes = append(append([]string(nil), p.Volumes...), opts.volumes...)
	return cfg, nil
}

func runMerge(ctx context.Context, opts mergeOpts) error {
	if len(opts.samplemaps) == 0 {
		return errors.E(errors.Invalid, "merge: -samplemap is required")
	}
	if opts.renamePath == "" {
		return errors.E(errors.Invalid, "merge: -rename is required")
	}
	if opts.outDir == "" {
		return errors.E(errors.Invalid, "merge: -outdir is required")
	}
	outDir, err := filepath.Abs(opts.outDir)
	if err != nil {
		return errors.E(err, "merge: -outdir", opts.outDir)
	}
	opts.outDir = outDir
	samplemaps := make([]string, len(opts.samplemaps))
	for i, path := range opts.samplemaps {
		if samplemaps[i], err = filepath.Abs(path); err != nil {
			return errors.E(err, "merge: -samplemap", path)
		}
	}
	project, err := mergeplan.ParseProject(opts.project)
	if err != nil {
		return err
	}
	cfg, err := submissionParams(ctx, opts)
	if err != nil {
		return err
	}
	parser, err := mergeplan.NewReadEndParser(cfg.ReadEndPatterns)
	if err != nil {
		return err
	}
	runner, err := newRunner(opts)
	if err != nil {
		return err
	}

	table, err := samplemap.Load(ctx, samplemaps)
	if err != nil {
		return err
	}
	log.Printf("merge: loaded %d FASTQ records from %d Samplemaps", len(table.Records), len(table.Paths))
	if opts.checkFastqs {
		if err = samplemap.LocateFastqs(ctx, table); err != nil {
			return err
		}
	}
	entries, err := rename.Read(ctx, opts.renamePath)
	if err != nil {
		return err
	}
	mapping, err := rename.Resolve(table.SampleIDs(), entries)
	if err != nil {
		return err
	}
	units, err := mergeplan.Group(table, mapping, parser)
	if err != nil {
		return err
	}
	jobs, err := mergeplan.Build(units, mergeplan.BuildOptions{
		OutDir:  outDir,
		Project: project,
		Params:  cfg.Params,
		DryRun:  !opts.execute,
	})
	if err != nil {
		return err
	}
	log.Printf("merge: planned %d jobs for %d canonical samples", len(jobs), mapping.Len())

	handles, err := scheduler.SubmitAll(ctx, runner, jobs, opts.parallelism)
	if err != nil {
		return err
	}
	for _, h := range handles {
		if h.JobID != "" {
			log.Printf("merge: job %d submitted as LSF job %s", h.Index, h.JobID)
		}
	}

	rows, err := ledger.Build(ctx, table, mapping, units, jobs)
	if err != nil {
		return err
	}
	if err = ledger.WriteTSV(ctx, filepath.Join(outDir, ledger.TSVName), rows); err != nil {
		return err
	}
	snapshot := &ledger.Snapshot{Project: string(project), Rows: rows}
	if err = ledger.WriteSnapshot(ctx, filepath.Join(outDir, ledger.SnapshotName), snapshot); err != nil {
		return err
	}
	if opts.sqlite {
		if err = ledger.WriteSQLite(ctx, filepath.Join(outDir, ledger.SQLiteName), rows); err != nil {
			return err
		}
	}
	if _, err = ledger.CopyProvenance(ctx, outDir, table.Paths, opts.renamePath); err != nil {
		return err
	}
	matrix := readcount.Evaluate(readcount.CoreCounts(rows), readcount.DefaultTargets)
	if err = matrix.WriteTSV(ctx, filepath.Join(outDir, readcount.CoreCountsName)); err != nil {
		return err
	}
	log.Printf("merge: run %s wrote %d ledger rows to %s", snapshot.RunID, len(rows), outDir)
	return nil
}
