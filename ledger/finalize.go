package ledger

import (
	"context"

	"github.com/grailbio/base/log"
	"github.com/twylie/merge-fastq/checksum"
	"github.com/twylie/merge-fastq/fastqmerge"
	"github.com/twylie/merge-fastq/mergeplan"
)

// sidecars are the record count and digest of one merged output.
type sidecars struct {
	counts NullInt64
	md5    string
}

func readSidecars(ctx context.Context, path string) sidecars {
	var s sidecars
	if n, err := fastqmerge.ReadCounts(ctx, path); err == nil {
		s.counts = NullInt64{n, true}
	} else {
		log.Debug.Printf("ledger: no record count for %s: %v", path, err)
	}
	if digest, err := checksum.ReadSidecar(ctx, path); err == nil {
		s.md5 = digest
	} else {
		log.Debug.Printf("ledger: no checksum for %s: %v", path, err)
	}
	return s
}

// sidecarsReady reports whether the outputs of d, if present, were written
// by d. A job handed to the cluster, or only written to disk, has not run
// yet, so whatever sidecars sit at its output paths belong to an earlier run.
func sidecarsReady(d *mergeplan.JobDescriptor) bool {
	switch d.Status {
	case mergeplan.Submitted, mergeplan.Written, mergeplan.Failed:
		return false
	}
	return true
}

// FillSidecars completes rows whose merged output has been produced since
// the ledger was written: a null SrcEndPairReads is set from the output's
// ".counts" sidecar and an empty MergedFastqMD5 from its ".md5" sidecar.
// Values already present are kept. FillSidecars returns the number of rows
// that changed.
func FillSidecars(ctx context.Context, rows []Row) int {
	cache := map[string]sidecars{}
	filled := 0
	for i := range rows {
		r := &rows[i]
		if r.MergedFastqPath == "" || (r.SrcEndPairReads.Valid && r.MergedFastqMD5 != "") {
			continue
		}
		s, ok := cache[r.MergedFastqPath]
		if !ok {
			s = readSidecars(ctx, r.MergedFastqPath)
			cache[r.MergedFastqPath] = s
		}
		changed := false
		if !r.SrcEndPairReads.Valid && s.counts.Valid {
			r.SrcEndPairReads = s.counts
			changed = true
		}
		if r.MergedFastqMD5 == "" && s.md5 != "" {
			r.MergedFastqMD5 = s.md5
			changed = true
		}
		if changed {
			filled++
		}
	}
	return filled
}
