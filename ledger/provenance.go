package ledger

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

// ProvenanceDir returns the directory holding copies of a run's inputs.
func ProvenanceDir(outDir string) string { return filepath.Join(outDir, "provenance") }

// CopyProvenance copies each Samplemap to
// provenance/batch_<i>/Samplemap.csv, where i is its 1-based batch id, and
// the rename file to provenance/<name>. It returns the copies' paths.
func CopyProvenance(ctx context.Context, outDir string, samplemaps []string, renamePath string) ([]string, error) {
	dir := ProvenanceDir(outDir)
	var copies []string
	for i, src := range samplemaps {
		dst := filepath.Join(dir, fmt.Sprintf("batch_%d", i+1), "Samplemap.csv")
		if err := copyFile(ctx, dst, src); err != nil {
			return nil, err
		}
		copies = append(copies, dst)
	}
	if renamePath != "" {
		dst := filepath.Join(dir, file.Base(renamePath))
		if err := copyFile(ctx, dst, renamePath); err != nil {
			return nil, err
		}
		copies = append(copies, dst)
	}
	return copies, nil
}

func copyFile(ctx context.Context, dstPath, srcPath string) (err error) {
	log.Debug.Printf("ledger: copying %s -> %s", srcPath, dstPath)
	in, err := file.Open(ctx, srcPath)
	if err != nil {
		return errors.E(err, "ledger: open", srcPath)
	}
	defer file.CloseAndReport(ctx, in, &err)
	out, err := file.Create(ctx, dstPath)
	if err != nil {
		return errors.E(err, "ledger: create", dstPath)
	}
	defer file.CloseAndReport(ctx, out, &err)
	if _, err = io.Copy(out.Writer(ctx), in.Reader(ctx)); err != nil {
		return errors.E(err, "ledger: copy", srcPath)
	}
	return nil
}
