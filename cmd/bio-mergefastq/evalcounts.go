package main

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/twylie/merge-fastq/ledger"
	"github.com/twylie/merge-fastq/readcount"
	"v.io/x/lib/cmdline"
)

type evalOpts struct {
	ledgerPath     string
	reportedCounts string
	outDir         string
	finalize       bool
}

func newCmdEvalCounts() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "eval-counts",
		Short: "Compare core-reported read counts with the merged outputs",
		Long: `
eval-counts reads a ledger written by merge, recounts each sample from the
".counts" sidecars of its merged outputs and writes the recomputed count
matrix and every sample and read end whose counts disagree with the
reported ones. Reported counts come from -reported-counts, a count matrix
such as gtac_read_counts.tsv, or from the ledger itself.

A ledger written while jobs were still queued has null merged counts and
checksums. Once the jobs have finished, eval-counts fills them from the
sidecars of the merged outputs and rewrites ` + ledger.TSVName + ` and
` + ledger.SnapshotName + ` next to the given ledger. The SQLite ledger is
not rewritten. Pass -finalize=false to leave the ledger untouched.`,
	}
	var opts evalOpts
	cmd.Flags.StringVar(&opts.ledgerPath, "ledger", "", "Ledger written by merge, either "+ledger.TSVName+" or "+ledger.SnapshotName)
	cmd.Flags.StringVar(&opts.reportedCounts, "reported-counts", "", "Count matrix of the reported read counts. Defaults to the core counts in the ledger")
	cmd.Flags.StringVar(&opts.outDir, "outdir", "", "Output directory. Defaults to the ledger's directory")
	cmd.Flags.BoolVar(&opts.finalize, "finalize", true, "Rewrite the ledger with the counts and checksums of outputs merged since it was written")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 0 {
			return env.UsageErrorf("eval-counts takes no arguments, but got %v", argv)
		}
		return runEvalCounts(vcontext.Background(), opts)
	})
	return cmd
}

// readLedger reads a TSV or recordio ledger. The run id and project are
// only known for a recordio ledger.
func readLedger(ctx context.Context, path string) (*ledger.Snapshot, error) {
	if strings.HasSuffix(path, ".rio") {
		s, err := ledger.ReadSnapshot(ctx, path)
		if err != nil {
			return nil, err
		}
		log.Printf("eval-counts: ledger of run %s, project %s", s.RunID, s.Project)
		return s, nil
	}
	rows, err := ledger.ReadTSV(ctx, path)
	if err != nil {
		return nil, err
	}
	return &ledger.Snapshot{Rows: rows}, nil
}

// finalizeLedger rewrites the TSV and recordio ledgers that sit next to
// path with the rows of s. When path is a TSV the run id and project are
// taken from the recordio ledger beside it, if there is one.
func finalizeLedger(ctx context.Context, path string, s *ledger.Snapshot) error {
	dir := filepath.Dir(path)
	tsvPath, rioPath := path, filepath.Join(dir, ledger.SnapshotName)
	if strings.HasSuffix(path, ".rio") {
		tsvPath, rioPath = filepath.Join(dir, ledger.TSVName), path
	} else if old, err := ledger.ReadSnapshot(ctx, rioPath); err == nil {
		s.RunID, s.Project = old.RunID, old.Project
	} else {
		log.Printf("eval-counts: %s: %v; writing it under a new run id", rioPath, err)
	}
	if err := ledger.WriteTSV(ctx, tsvPath, s.Rows); err != nil {
		return err
	}
	if err := ledger.WriteSnapshot(ctx, rioPath, s); err != nil {
		return err
	}
	log.Printf("eval-counts: rewrote %s and %s", tsvPath, rioPath)
	return nil
}

func runEvalCounts(ctx context.Context, opts evalOpts) error {
	if opts.ledgerPath == "" {
		return errors.E(errors.Invalid, "eval-counts: -ledger is required")
	}
	if opts.outDir == "" {
		opts.outDir = filepath.Dir(opts.ledgerPath)
	}
	snapshot, err := readLedger(ctx, opts.ledgerPath)
	if err != nil {
		return err
	}
	rows := snapshot.Rows
	n := ledger.FillSidecars(ctx, rows)
	log.Printf("eval-counts: %d ledger rows completed from merged output sidecars", n)
	if n > 0 && opts.finalize {
		if err = finalizeLedger(ctx, opts.ledgerPath, snapshot); err != nil {
			return err
		}
	}

	recomputed := readcount.RecomputedCounts(rows)
	matrix := readcount.Evaluate(recomputed, readcount.DefaultTargets)
	if err = matrix.WriteTSV(ctx, filepath.Join(opts.outDir, readcount.SourceCountsName)); err != nil {
		return err
	}
	reported := readcount.CoreCounts(rows)
	if opts.reportedCounts != "" {
		if reported, err = readcount.ReadCountTable(ctx, opts.reportedCounts); err != nil {
			return err
		}
	}
	ds := readcount.Compare(reported, recomputed)
	if err = readcount.WriteDiscrepancies(ctx, filepath.Join(opts.outDir, readcount.DiscrepanciesName), ds); err != nil {
		return err
	}
	for _, d := range ds {
		log.Printf("eval-counts: %s %s: reported %v, recomputed %v", d.Sample, d.End, d.Reported, d.Recomputed)
	}
	log.Printf("eval-counts: %d samples recounted, %d discrepancies", len(recomputed), len(ds))
	return nil
}
