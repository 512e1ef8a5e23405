package readcount

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/twylie/merge-fastq/ledger"
	"github.com/twylie/merge-fastq/mergeplan"
)

// ReadCountTable reads the sample_name, R1_read_counts and R2_read_counts
// columns of a count matrix. Other columns are ignored.
func ReadCountTable(ctx context.Context, path string) (counts []SampleCounts, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "readcount: open", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	counts, err = parseCountTable(in.Reader(ctx))
	if err != nil {
		return nil, errors.E(err, path)
	}
	return counts, nil
}

func parseCountTable(in io.Reader) ([]SampleCounts, error) {
	r := tsv.NewReader(in)
	r.LazyQuotes = true
	header, err := r.Reader.Read()
	if err != nil {
		return nil, errors.E(errors.Invalid, "readcount: read header", err)
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	var idx [3]int
	for i, name := range []string{"sample_name", "R1_read_counts", "R2_read_counts"} {
		c, ok := col[name]
		if !ok {
			return nil, errors.E(errors.Invalid, "readcount: missing column", name)
		}
		idx[i] = c
	}
	var (
		counts []SampleCounts
		seen   = map[string]bool{}
	)
	for line := 2; ; line++ {
		v, err := r.Reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("readcount: line %d", line), err)
		}
		c := SampleCounts{Sample: v[idx[0]]}
		if c.Sample == "" {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("readcount: line %d: empty sample name", line))
		}
		if seen[c.Sample] {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("readcount: line %d: duplicate sample %s", line, c.Sample))
		}
		seen[c.Sample] = true
		if c.R1, err = strconv.ParseInt(v[idx[1]], 10, 64); err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("readcount: line %d: R1_read_counts", line), err)
		}
		if c.R2, err = strconv.ParseInt(v[idx[2]], 10, 64); err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("readcount: line %d: R2_read_counts", line), err)
		}
		counts = append(counts, c)
	}
	return counts, nil
}

// Discrepancy is a (sample, end) whose reported and recomputed counts
// differ. A side without a count for the sample is null.
type Discrepancy struct {
	Sample     string
	End        mergeplan.ReadEnd
	Reported   ledger.NullInt64
	Recomputed ledger.NullInt64
}

// Compare returns every (sample, end) whose counts differ, including
// samples present on one side only, ordered by sample then end. Counts must
// match exactly.
func Compare(reported, recomputed []SampleCounts) []Discrepancy {
	index := func(counts []SampleCounts) map[string]SampleCounts {
		m := map[string]SampleCounts{}
		for _, c := range counts {
			m[c.Sample] = c
		}
		return m
	}
	rep, rec := index(reported), index(recomputed)
	var samples []string
	for s := range rep {
		samples = append(samples, s)
	}
	for s := range rec {
		if _, ok := rep[s]; !ok {
			samples = append(samples, s)
		}
	}
	sort.Strings(samples)

	var out []Discrepancy
	for _, s := range samples {
		a, aok := rep[s]
		b, bok := rec[s]
		for _, end := range mergeplan.ReadEnds {
			d := Discrepancy{Sample: s, End: end}
			if aok {
				d.Reported = ledger.NullInt64{Int64: a.Get(end), Valid: true}
			}
			if bok {
				d.Recomputed = ledger.NullInt64{Int64: b.Get(end), Valid: true}
			}
			if d.Reported == d.Recomputed {
				continue
			}
			out = append(out, d)
		}
	}
	if len(out) > 0 {
		log.Printf("readcount: warning: %d sample ends disagree between reported and recomputed counts", len(out))
	}
	return out
}

// WriteDiscrepancies writes ds to path as a TSV with the columns
// sample_name, read_number, reported_read_counts, recomputed_read_counts
// and difference. The header is written even when ds is empty.
func WriteDiscrepancies(ctx context.Context, path string, ds []Discrepancy) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "readcount: create", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := tsv.NewWriter(out.Writer(ctx))
	for _, h := range []string{"sample_name", "read_number", "reported_read_counts", "recomputed_read_counts", "difference"} {
		w.WriteString(h)
	}
	if err = w.EndLine(); err != nil {
		return err
	}
	for _, d := range ds {
		diff := ledger.NullInt64{
			Int64: d.Reported.Int64 - d.Recomputed.Int64,
			Valid: d.Reported.Valid && d.Recomputed.Valid,
		}
		w.WriteString(d.Sample)
		w.WriteString(d.End.String())
		w.WriteString(d.Reported.String())
		w.WriteString(d.Recomputed.String())
		w.WriteString(diff.String())
		if err = w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}
