// Package fastqmerge concatenates FASTQ files into gzip-compressed merged
// outputs in-process, writing the same ".counts" and ".md5" sidecars as the
// cluster job scripts.
package fastqmerge

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/klauspost/pgzip"
	"github.com/twylie/merge-fastq/checksum"
	"github.com/twylie/merge-fastq/encoding/fastq"
	"github.com/twylie/merge-fastq/mergeplan"
)

// Result describes one merged output.
type Result struct {
	Path string
	// Records is the number of FASTQ records in the output.
	Records int64
	// MD5 is the hex digest of the compressed output.
	MD5 string
}

// Run builds every output of d.
func Run(ctx context.Context, d *mergeplan.JobDescriptor) ([]Result, error) {
	var results []Result
	for _, o := range d.Outputs {
		r, err := Merge(ctx, o.Path, o.Inputs)
		if err != nil {
			return nil, errors.E(err, fmt.Sprintf("job %d (%s)", d.Index, d.Canonical))
		}
		results = append(results, r)
	}
	return results, nil
}

// Merge concatenates inputs, in order, into the gzip file out. Inputs
// whose names end in ".gz" are copied as gzip members; others are
// compressed on the fly. It then counts the records of out, validating
// their structure, and writes the out.counts and out.md5 sidecars.
func Merge(ctx context.Context, out string, inputs []string) (Result, error) {
	if len(inputs) == 0 {
		return Result{}, errors.E(errors.Invalid, "fastqmerge: no inputs for", out)
	}
	if err := concat(ctx, out, inputs); err != nil {
		return Result{}, err
	}
	n, err := CountFile(ctx, out)
	if err != nil {
		return Result{}, err
	}
	if err := WriteCounts(ctx, out, n); err != nil {
		return Result{}, err
	}
	digest, err := checksum.WriteSidecar(ctx, out)
	if err != nil {
		return Result{}, err
	}
	log.Printf("fastqmerge: %s: %d inputs, %d records, md5 %s", out, len(inputs), n, digest)
	return Result{Path: out, Records: n, MD5: digest}, nil
}

func concat(ctx context.Context, out string, inputs []string) (err error) {
	f, err := file.Create(ctx, out)
	if err != nil {
		return errors.E(err, "fastqmerge: create", out)
	}
	defer file.CloseAndReport(ctx, f, &err)
	w := f.Writer(ctx)
	for _, in := range inputs {
		if err = appendFile(ctx, w, in); err != nil {
			return err
		}
	}
	return nil
}

func appendFile(ctx context.Context, w io.Writer, path string) (err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return errors.E(err, "fastqmerge: open", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	if mergeplan.IsCompressed(path) {
		_, err = io.Copy(w, in.Reader(ctx))
		if err != nil {
			return errors.E(err, "fastqmerge: copy", path)
		}
		return nil
	}
	gz := pgzip.NewWriter(w)
	if _, err = io.Copy(gz, in.Reader(ctx)); err != nil {
		return errors.E(err, "fastqmerge: compress", path)
	}
	return gz.Close()
}

// CountFile returns the number of FASTQ records in path, which may be
// compressed.
func CountFile(ctx context.Context, path string) (n int64, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return 0, errors.E(err, "fastqmerge: open", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	var r io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(r, path); u != nil {
		defer func() {
			if e := u.Close(); e != nil && err == nil {
				err = e
			}
		}()
		r = u
	}
	n, err = fastq.Count(r)
	if err != nil {
		return 0, errors.E(err, "fastqmerge: count", path)
	}
	return n, nil
}

// WriteCounts writes the record count sidecar of path.
func WriteCounts(ctx context.Context, path string, n int64) error {
	return file.WriteFile(ctx, path+mergeplan.CountsSuffix, []byte(strconv.FormatInt(n, 10)+"\n"))
}

// ReadCounts returns the record count stored in the sidecar of path.
func ReadCounts(ctx context.Context, path string) (int64, error) {
	data, err := file.ReadFile(ctx, path+mergeplan.CountsSuffix)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(data))
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.E(errors.Invalid, "fastqmerge: malformed counts sidecar", path+mergeplan.CountsSuffix, err)
	}
	return n, nil
}
