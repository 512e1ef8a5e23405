package mergeplan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/twylie/merge-fastq/rename"
	"github.com/twylie/merge-fastq/samplemap"
)

// MergeUnit is one read end of one canonical sample: the records whose
// files are concatenated, in concatenation order.
type MergeUnit struct {
	Canonical string
	End       ReadEnd
	Records   []samplemap.Record
}

// CopyOnly reports whether the unit has a single constituent, so that the
// merge is a renaming copy.
func (u *MergeUnit) CopyOnly() bool { return len(u.Records) == 1 }

// UnrecognizedFastqNameError lists the FASTQ files that carry no read end
// tag.
type UnrecognizedFastqNameError struct {
	// Names are "<samplemap>: <fastq>" strings in table order.
	Names []string
}

func (e *UnrecognizedFastqNameError) Error() string {
	return fmt.Sprintf("%d FASTQ file name(s) without a recognized R1/R2 tag: %s",
		len(e.Names), strings.Join(e.Names, ", "))
}

// Imbalance is a canonical sample with unequal R1 and R2 file counts.
type Imbalance struct {
	Canonical string
	R1, R2    int
}

// PairImbalanceError lists every canonical sample whose R1 and R2 file
// counts differ.
type PairImbalanceError struct {
	// Imbalances is sorted by canonical id.
	Imbalances []Imbalance
}

func (e *PairImbalanceError) Error() string {
	parts := make([]string, len(e.Imbalances))
	for i, im := range e.Imbalances {
		parts[i] = fmt.Sprintf("%s (R1: %d, R2: %d)", im.Canonical, im.R1, im.R2)
	}
	return fmt.Sprintf("%d sample(s) with unequal R1 and R2 file counts: %s",
		len(e.Imbalances), strings.Join(parts, ", "))
}

type unitKey struct {
	canonical string
	end       ReadEnd
}

// Group partitions the table's records by canonical sample and read end.
// The returned units are sorted by canonical id, then end, and the records
// of each unit by (flow cell, lane, file name, batch). The result does not
// depend on the row order of the table.
//
// All file names without a read end tag are reported together in an
// *UnrecognizedFastqNameError; all samples with unequal R1 and R2 counts in
// a *PairImbalanceError. Both carry errors.Invalid.
func Group(table *samplemap.Table, mapping rename.Mapping, parser *ReadEndParser) ([]*MergeUnit, error) {
	var (
		units        = map[unitKey]*MergeUnit{}
		unrecognized = &UnrecognizedFastqNameError{}
		unmapped     []string
	)
	for _, r := range table.Records {
		end, ok := parser.Parse(r.Fastq)
		if !ok {
			unrecognized.Names = append(unrecognized.Names, r.SamplemapPath+": "+r.Fastq)
			continue
		}
		canonical, ok := mapping.Canonical(r.SampleID)
		if !ok {
			unmapped = append(unmapped, r.SampleID)
			continue
		}
		k := unitKey{canonical, end}
		u := units[k]
		if u == nil {
			u = &MergeUnit{Canonical: canonical, End: end}
			units[k] = u
		}
		u.Records = append(u.Records, r)
	}
	if len(unrecognized.Names) > 0 {
		return nil, errors.E(errors.Invalid, unrecognized)
	}
	if len(unmapped) > 0 {
		sort.Strings(unmapped)
		return nil, errors.E(errors.Invalid, "mergeplan: sample ids without a canonical id:", strings.Join(unmapped, ", "))
	}

	counts := map[string][2]int{}
	for k, u := range units {
		c := counts[k.canonical]
		c[k.end-1] = len(u.Records)
		counts[k.canonical] = c
	}
	imbalance := &PairImbalanceError{}
	for canonical, c := range counts {
		if c[0] != c[1] {
			imbalance.Imbalances = append(imbalance.Imbalances, Imbalance{canonical, c[0], c[1]})
		}
	}
	if len(imbalance.Imbalances) > 0 {
		sort.Slice(imbalance.Imbalances, func(i, j int) bool {
			return imbalance.Imbalances[i].Canonical < imbalance.Imbalances[j].Canonical
		})
		return nil, errors.E(errors.Invalid, imbalance)
	}

	list := make([]*MergeUnit, 0, len(units))
	for _, u := range units {
		sort.SliceStable(u.Records, func(i, j int) bool { return recordLess(&u.Records[i], &u.Records[j]) })
		list = append(list, u)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Canonical != list[j].Canonical {
			return list[i].Canonical < list[j].Canonical
		}
		return list[i].End < list[j].End
	})
	log.Printf("mergeplan: %d records in %d merge units for %d samples", len(table.Records), len(list), len(counts))
	return list, nil
}

// recordLess orders the constituents of a merge unit.
func recordLess(a, b *samplemap.Record) bool {
	if a.FlowcellID != b.FlowcellID {
		return a.FlowcellID < b.FlowcellID
	}
	if a.Lane != b.Lane {
		return a.Lane < b.Lane
	}
	if a.Fastq != b.Fastq {
		return a.Fastq < b.Fastq
	}
	return a.BatchID < b.BatchID
}
