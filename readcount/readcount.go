// Package readcount evaluates merged samples against target sequencing
// depths and cross-checks the read counts reported by the sequencing core
// against counts recomputed from the merged outputs.
package readcount

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/twylie/merge-fastq/ledger"
	"github.com/twylie/merge-fastq/mergeplan"
)

// File names written by the merge and eval-counts commands.
const (
	CoreCountsName    = "gtac_read_counts.tsv"
	SourceCountsName  = "src_read_counts.tsv"
	DiscrepanciesName = "count_discrepancies.tsv"
)

// MinPercent is the share of a target, in percent, a sample must reach to
// pass it.
const MinPercent = 80

// DefaultTargets are the target read-pair counts, ascending.
var DefaultTargets = []int64{
	100000, 200000, 300000, 400000, 500000,
	1000000, 1500000, 2000000, 2500000, 3000000,
	3500000, 4000000, 4500000, 5000000,
	10000000, 20000000, 30000000, 40000000, 50000000,
}

// Pass reports whether observed read pairs reach MinPercent of target.
func Pass(observed, target int64) bool {
	return observed*100 >= target*MinPercent
}

// SampleCounts are the read counts of one canonical sample, per end.
type SampleCounts struct {
	Sample string
	R1, R2 int64
}

// Total is R1+R2.
func (c SampleCounts) Total() int64 { return c.R1 + c.R2 }

// Get returns the count for end.
func (c SampleCounts) Get(end mergeplan.ReadEnd) int64 {
	if end == mergeplan.R1 {
		return c.R1
	}
	return c.R2
}

func (c *SampleCounts) add(end mergeplan.ReadEnd, n int64) {
	if end == mergeplan.R1 {
		c.R1 += n
	} else {
		c.R2 += n
	}
}

// CoreCounts sums the core-reported reads of each sample's files per end.
// Samples are returned in ledger order of first appearance.
func CoreCounts(rows []ledger.Row) []SampleCounts {
	var (
		out   []SampleCounts
		index = map[string]int{}
	)
	for _, r := range rows {
		i, ok := index[r.RevisedSampleName]
		if !ok {
			i = len(out)
			index[r.RevisedSampleName] = i
			out = append(out, SampleCounts{Sample: r.RevisedSampleName})
		}
		out[i].add(mergeplan.ReadEnd(r.ReadNumber), r.GTACFastqReads)
	}
	return out
}

// RecomputedCounts returns the record count of each sample's merged
// outputs. Samples missing a count for either end, because their job has
// not run or failed, are skipped with a warning.
func RecomputedCounts(rows []ledger.Row) []SampleCounts {
	type entry struct {
		counts SampleCounts
		seen   [3]bool
		bad    bool
	}
	var (
		order   []string
		samples = map[string]*entry{}
	)
	for _, r := range rows {
		e, ok := samples[r.RevisedSampleName]
		if !ok {
			e = &entry{counts: SampleCounts{Sample: r.RevisedSampleName}}
			samples[r.RevisedSampleName] = e
			order = append(order, r.RevisedSampleName)
		}
		end := mergeplan.ReadEnd(r.ReadNumber)
		if !r.SrcEndPairReads.Valid {
			e.bad = true
			continue
		}
		if end != mergeplan.R1 && end != mergeplan.R2 {
			e.bad = true
			continue
		}
		if !e.seen[end] {
			// Every row of an end names the same merged output.
			e.counts.add(end, r.SrcEndPairReads.Int64)
			e.seen[end] = true
		}
	}
	var out []SampleCounts
	for _, s := range order {
		e := samples[s]
		if e.bad || !e.seen[mergeplan.R1] || !e.seen[mergeplan.R2] {
			log.Printf("readcount: warning: no merged read counts for %s, skipping", s)
			continue
		}
		out = append(out, e.counts)
	}
	return out
}

// MatrixRow is the evaluation of one sample.
type MatrixRow struct {
	SampleCounts
	// PairsMatch is false when the R1 and R2 counts differ.
	PairsMatch bool
	// Percent[i] is the observed read pairs as a percentage of target i.
	Percent []float64
	// Passed[i] is Pass(observed, target i).
	Passed []bool
}

// Matrix is the evaluation of a set of samples against a list of targets.
type Matrix struct {
	Targets []int64
	Rows    []MatrixRow
}

// Evaluate scores each sample against targets. The observed read-pair
// count is the R1 count. Samples whose R1 and R2 counts differ are flagged
// and logged.
func Evaluate(samples []SampleCounts, targets []int64) Matrix {
	m := Matrix{Targets: append([]int64(nil), targets...)}
	for _, s := range samples {
		row := MatrixRow{
			SampleCounts: s,
			PairsMatch:   s.R1 == s.R2,
			Percent:      make([]float64, len(targets)),
			Passed:       make([]bool, len(targets)),
		}
		if !row.PairsMatch {
			log.Printf("readcount: %s: R1 count %d differs from R2 count %d", s.Sample, s.R1, s.R2)
		}
		for i, t := range targets {
			row.Percent[i] = float64(s.R1) * 100 / float64(t)
			row.Passed[i] = Pass(s.R1, t)
		}
		m.Rows = append(m.Rows, row)
	}
	return m
}

// Header returns the column names of the matrix.
func (m Matrix) Header() []string {
	h := []string{"sample_name", "R1_read_counts", "R2_read_counts", "sample_read_counts", "min_target_perct_cov", "pair_counts_match"}
	for _, t := range m.Targets {
		h = append(h, fmt.Sprintf("perct_of_%d", t), fmt.Sprintf("is_pased_%d", t))
	}
	return h
}

func boolText(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// WriteTSV writes the matrix to path, one row per sample.
func (m Matrix) WriteTSV(ctx context.Context, path string) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "readcount: create", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := tsv.NewWriter(out.Writer(ctx))
	for _, h := range m.Header() {
		w.WriteString(h)
	}
	if err = w.EndLine(); err != nil {
		return err
	}
	for _, r := range m.Rows {
		w.WriteString(r.Sample)
		w.WriteString(strconv.FormatInt(r.R1, 10))
		w.WriteString(strconv.FormatInt(r.R2, 10))
		w.WriteString(strconv.FormatInt(r.Total(), 10))
		w.WriteString(strconv.Itoa(MinPercent))
		w.WriteString(boolText(r.PairsMatch))
		for i := range m.Targets {
			w.WriteString(strconv.FormatFloat(r.Percent[i], 'f', 2, 64))
			w.WriteString(boolText(r.Passed[i]))
		}
		if err = w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

// SortSamples orders counts by sample name.
func SortSamples(counts []SampleCounts) {
	sort.SliceStable(counts, func(i, j int) bool { return counts[i].Sample < counts[j].Sample })
}
