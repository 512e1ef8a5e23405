package samplemap

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"regexp"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

var whitespace = regexp.MustCompile(`\s+`)

// Change records one sample id rewritten by NormalizeLibraryNames.
type Change struct {
	Row      int
	Old, New string
}

// NormalizeSampleID replaces each run of whitespace in id with a single
// underscore. Leading and trailing whitespace is dropped.
func NormalizeSampleID(id string) string {
	return whitespace.ReplaceAllString(strings.TrimSpace(id), "_")
}

// NormalizeLibraryNames copies the Samplemap at in to out, rewriting the
// Library Name column with NormalizeSampleID. All other cells are copied
// unchanged. The input must satisfy the Samplemap schema. An existing out is
// never overwritten.
func NormalizeLibraryNames(ctx context.Context, in, out string) (changes []Change, err error) {
	if _, err := file.Stat(ctx, out); err == nil {
		return nil, errors.E(errors.Exists, "samplemap: refusing to overwrite", out)
	}
	data, err := file.ReadFile(ctx, in)
	if err != nil {
		return nil, errors.E(err, "samplemap: read", in)
	}
	// Validate first so that a malformed file is never copied.
	if _, err := parse(bytes.NewReader(data), in, 1); err != nil {
		return nil, invalid(err)
	}
	cr := csv.NewReader(bytes.NewReader(data))
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, errors.E(err, "samplemap: read header", in)
	}
	col := -1
	for i, c := range header {
		if strings.TrimSpace(strings.TrimPrefix(c, "\ufeff")) == ColLibraryName {
			col = i
		}
	}

	f, err := file.Create(ctx, out)
	if err != nil {
		return nil, errors.E(err, "samplemap: create", out)
	}
	defer file.CloseAndReport(ctx, f, &err)
	w := csv.NewWriter(f.Writer(ctx))
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for row := 1; ; row++ {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.E(err, "samplemap: read", in)
		}
		if col < len(fields) {
			if id := NormalizeSampleID(fields[col]); id != fields[col] {
				changes = append(changes, Change{Row: row, Old: fields[col], New: id})
				log.Printf("samplemap: row %d: %q -> %q", row, fields[col], id)
				fields[col] = id
			}
		}
		if err := w.Write(fields); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return changes, w.Error()
}
