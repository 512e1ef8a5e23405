package samplemap

import (
	"context"
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

// MissingFastqError lists FASTQ files named by Samplemaps that exist in
// neither their compressed nor their uncompressed form.
type MissingFastqError struct {
	Paths []string
}

func (e *MissingFastqError) Error() string {
	return fmt.Sprintf("samplemap: %d FASTQ files not found: %s", len(e.Paths), strings.Join(e.Paths, ", "))
}

// LocateFastqs checks that the FASTQ of every record is readable. A record
// whose ".gz" file is gone but whose uncompressed file is present is
// pointed at the uncompressed file, and a record naming an uncompressed
// file that has since been compressed is pointed at the ".gz" file. All
// missing files are reported together.
func LocateFastqs(ctx context.Context, t *Table) error {
	var missing []string
	for i := range t.Records {
		r := &t.Records[i]
		if _, err := file.Stat(ctx, r.FastqPath); err == nil {
			continue
		}
		alt := strings.TrimSuffix(r.FastqPath, ".gz")
		if alt == r.FastqPath {
			alt += ".gz"
		}
		if _, err := file.Stat(ctx, alt); err == nil {
			log.Printf("samplemap: %s not found, using %s", r.FastqPath, alt)
			r.FastqPath = alt
			continue
		}
		missing = append(missing, r.FastqPath)
	}
	if len(missing) > 0 {
		return errors.E(errors.NotExist, &MissingFastqError{Paths: missing})
	}
	return nil
}
