// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package ledger records, for every original FASTQ of a merge run, where it
// came from and what it was merged into. The ledger is the durable output
// of a run. It is written as a TSV for people and spreadsheets, as a
// recordio snapshot that keeps list fields structured, and optionally as a
// SQLite database.
package ledger

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/twylie/merge-fastq/mergeplan"
	"github.com/twylie/merge-fastq/rename"
	"github.com/twylie/merge-fastq/samplemap"
)

// File names of the ledger under the run's output directory.
const (
	TSVName      = "merged_samplemap.tsv"
	SnapshotName = "merged_samplemap.rio"
	SQLiteName   = "merged_samplemap.db"
)

// Fields are the ledger columns, in order.
var Fields = []string{
	"batch_id",
	"samplemap_path",
	"fastq",
	"fastq_path",
	"flow_cell_id",
	"index_sequence",
	"lane_number",
	"read_number",
	"sample_name",
	"revised_sample_name",
	"library_type",
	"esp_id",
	"pool_name",
	"total_bases",
	"gtac_fastq_reads",
	"sample_index",
	"merged_fastq_path",
	"merge_commands",
	"src_end_pair_reads",
	"merged_fastq_md5",
}

// NullInt64 is an int64 that may be absent.
type NullInt64 struct {
	Int64 int64
	Valid bool
}

func (n NullInt64) String() string {
	if !n.Valid {
		return "NA"
	}
	return fmt.Sprint(n.Int64)
}

// Row is one ledger entry: one original FASTQ file.
type Row struct {
	BatchID       int
	SamplemapPath string
	Fastq         string
	FastqPath     string
	FlowcellID    string
	IndexSequence string
	LaneNumber    int
	// ReadNumber is 1 or 2.
	ReadNumber int
	// SampleName is the on-file sample id.
	SampleName string
	// RevisedSampleName is the canonical id.
	RevisedSampleName string
	LibraryType       string
	ESPID             string
	PoolName          string
	TotalBases        int64
	// GTACFastqReads is the read count reported by the sequencing core.
	GTACFastqReads int64
	// SampleIndex is the index of the job that merged this file.
	SampleIndex     int
	MergedFastqPath string
	// MergeCommands are the actions of the job, in order.
	MergeCommands []string
	// SrcEndPairReads is the record count of the merged output, once the
	// job has run.
	SrcEndPairReads NullInt64
	// MergedFastqMD5 is the digest of the merged output, or "" before the
	// job has run.
	MergedFastqMD5 string
}

// Build returns one row per table record, in table order. The merged
// output's record count and digest are read from its sidecars; they are
// null for outputs that do not exist yet and for jobs that have not run
// (see FillSidecars).
func Build(ctx context.Context, table *samplemap.Table, mapping rename.Mapping, units []*mergeplan.MergeUnit, jobs []*mergeplan.JobDescriptor) ([]Row, error) {
	type fileKey struct {
		batch int
		fastq string
	}
	ends := map[fileKey]mergeplan.ReadEnd{}
	for _, u := range units {
		for _, r := range u.Records {
			ends[fileKey{r.BatchID, r.Fastq}] = u.End
		}
	}
	byCanonical := map[string]*mergeplan.JobDescriptor{}
	for _, d := range jobs {
		byCanonical[d.Canonical] = d
	}

	outputs := map[string]sidecars{}
	for _, d := range jobs {
		if !sidecarsReady(d) {
			log.Debug.Printf("ledger: job %d (%s) is %v, not reading its sidecars", d.Index, d.Canonical, d.Status)
			continue
		}
		for _, o := range d.Outputs {
			outputs[o.Path] = readSidecars(ctx, o.Path)
		}
	}

	rows := make([]Row, 0, len(table.Records))
	for _, r := range table.Records {
		canonical, ok := mapping.Canonical(r.SampleID)
		if !ok {
			return nil, errors.E(errors.Invalid, "ledger: no canonical id for sample", r.SampleID)
		}
		end, ok := ends[fileKey{r.BatchID, r.Fastq}]
		if !ok {
			return nil, errors.E(errors.Invalid, "ledger: file not in any merge unit:", r.FastqPath)
		}
		d, ok := byCanonical[canonical]
		if !ok {
			return nil, errors.E(errors.Invalid, "ledger: no job for sample", canonical)
		}
		out := d.Output(end)
		rows = append(rows, Row{
			BatchID:           r.BatchID,
			SamplemapPath:     r.SamplemapPath,
			Fastq:             r.Fastq,
			FastqPath:         r.FastqPath,
			FlowcellID:        r.FlowcellID,
			IndexSequence:     r.IndexSequence,
			LaneNumber:        r.Lane,
			ReadNumber:        int(end),
			SampleName:        r.SampleID,
			RevisedSampleName: canonical,
			LibraryType:       r.LibraryType,
			ESPID:             r.ESPID,
			PoolName:          r.PoolName,
			TotalBases:        r.TotalBases,
			GTACFastqReads:    r.TotalReads,
			SampleIndex:       d.Index,
			MergedFastqPath:   out.Path,
			MergeCommands:     append([]string(nil), d.Actions...),
			SrcEndPairReads:   outputs[out.Path].counts,
			MergedFastqMD5:    outputs[out.Path].md5,
		})
	}
	return rows, nil
}
