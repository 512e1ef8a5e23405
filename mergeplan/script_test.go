package mergeplan

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/file"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/klauspost/compress/gzip"
	"github.com/twylie/merge-fastq/checksum"
	"github.com/twylie/merge-fastq/rename"
	"github.com/twylie/merge-fastq/samplemap"
	"v.io/x/lib/gosh"
)

func fastqData(name string, n int) []byte {
	var b bytes.Buffer
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "@%s:%d\nACGT\n+\nIIII\n", name, i)
	}
	return b.Bytes()
}

// The job script, run by sh as the bsub command does, merges a gzip lane
// and a plain lane and records the summed record count and the digest of
// the output.
func TestScriptRunsUnderSh(t *testing.T) {
	for _, tool := range []string{"sh", "gzip", "zcat", "md5sum", "wc"} {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not found: %v", tool, err)
		}
	}
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	var recs []samplemap.Record
	for _, end := range []string{"R1", "R2"} {
		gz := filepath.Join(tempDir, "in", "S_L001_"+end+"_001.fastq.gz")
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		_, err := w.Write(fastqData(gz, 3))
		assert.NoError(t, err)
		assert.NoError(t, w.Close())
		assert.NoError(t, file.WriteFile(ctx, gz, buf.Bytes()))

		plain := filepath.Join(tempDir, "in", "S_L002_"+end+"_001.fastq")
		assert.NoError(t, file.WriteFile(ctx, plain, fastqData(plain, 2)))

		recs = append(recs,
			samplemap.Record{BatchID: 1, FlowcellID: "FC1", Lane: 1, Fastq: filepath.Base(gz), FastqPath: gz, SampleID: "S"},
			samplemap.Record{BatchID: 1, FlowcellID: "FC1", Lane: 2, Fastq: filepath.Base(plain), FastqPath: plain, SampleID: "S"})
	}
	table := &samplemap.Table{Records: recs}
	mapping, err := rename.Resolve(table.SampleIDs(), []rename.Entry{{OnFileID: "S", Canonical: "S"}})
	assert.NoError(t, err)
	units, err := Group(table, mapping, DefaultReadEndParser())
	assert.NoError(t, err)
	jobs, err := Build(units, BuildOptions{OutDir: filepath.Join(tempDir, "out"), Project: WGS})
	assert.NoError(t, err)
	assert.EQ(t, len(jobs), 1)

	script := filepath.Join(tempDir, "1_cmd.sh")
	assert.NoError(t, file.WriteFile(ctx, script, []byte(jobs[0].Script())))
	sh := gosh.NewShell(nil)
	sh.ContinueOnError = true
	defer sh.Cleanup()
	cmd := sh.Cmd("sh", script)
	out := cmd.CombinedOutput()
	assert.NoError(t, cmd.Err, "output: %s", out)

	for _, o := range jobs[0].Outputs {
		counts, err := file.ReadFile(ctx, o.CountsPath())
		assert.NoError(t, err)
		expect.EQ(t, strings.TrimSpace(string(counts)), "5")

		recorded, err := checksum.ReadSidecar(ctx, o.Path)
		assert.NoError(t, err)
		digest, err := checksum.File(ctx, o.Path)
		assert.NoError(t, err)
		expect.EQ(t, recorded, digest)
	}

	// A rerun replaces the outputs rather than appending to them.
	cmd = sh.Cmd("sh", script)
	out = cmd.CombinedOutput()
	assert.NoError(t, cmd.Err, "output: %s", out)
	counts, err := file.ReadFile(ctx, jobs[0].Output(R2).CountsPath())
	assert.NoError(t, err)
	expect.EQ(t, strings.TrimSpace(string(counts)), "5")
}
