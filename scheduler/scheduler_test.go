package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twylie/merge-fastq/mergeplan"
	"github.com/twylie/merge-fastq/samplemap"
	"gopkg.in/yaml.v3"
)

func recordFor(path string, end mergeplan.ReadEnd) samplemap.Record {
	path = strings.Replace(path, "_R1_", "_"+end.String()+"_", 1)
	return samplemap.Record{Fastq: filepath.Base(path), FastqPath: path, SampleID: "S1"}
}

func testJob(outDir string, inputs ...string) *mergeplan.JobDescriptor {
	unit := func(end mergeplan.ReadEnd) *mergeplan.MergeUnit {
		u := &mergeplan.MergeUnit{Canonical: "S1", End: end}
		for _, in := range inputs {
			u.Records = append(u.Records, recordFor(in, end))
		}
		return u
	}
	jobs, err := mergeplan.Build([]*mergeplan.MergeUnit{unit(mergeplan.R1), unit(mergeplan.R2)}, mergeplan.BuildOptions{
		OutDir:  outDir,
		Project: mergeplan.WGS,
		Params: mergeplan.Params{
			Queue:          "general",
			Group:          "compute-lab",
			Image:          "example/bfx_toolbox",
			MemoryMax:      "8G",
			ResourceMemory: "8G",
			SpanHosts:      1,
			Volumes:        []string{"/storage1/lab"},
		},
		DryRun: true,
	})
	if err != nil {
		panic(err)
	}
	return jobs[0]
}

func TestParseConfig(t *testing.T) {
	c, err := ParseConfig(strings.NewReader(`[scheduler]
queue = general
group = compute-lab
image = example/bfx_toolbox
memory-max = 16G
span-hosts = 2
volumes = /a, /b ,

[fastq]
read-end-patterns = _([12])\.fq\.gz$   _R([12])\.fastq$
`))
	require.NoError(t, err)
	assert.Equal(t, "general", c.Params.Queue)
	assert.Equal(t, "compute-lab", c.Params.Group)
	assert.Equal(t, "example/bfx_toolbox", c.Params.Image)
	assert.Equal(t, "16G", c.Params.MemoryMax)
	assert.Equal(t, "8G", c.Params.ResourceMemory)
	assert.Equal(t, 2, c.Params.SpanHosts)
	assert.Equal(t, []string{"/a", "/b"}, c.Params.Volumes)
	assert.Equal(t, []string{`_([12])\.fq\.gz$`, `_R([12])\.fastq$`}, c.ReadEndPatterns)

	_, err = ParseConfig(strings.NewReader("[scheduler]\nspan-hosts = many\n"))
	assert.True(t, errors.Is(errors.Invalid, err))
}

func TestLoadConfigMissing(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	c, err := LoadConfig(ctx, filepath.Join(tempDir, ConfigFileName), false)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), c)
	_, err = LoadConfig(ctx, filepath.Join(tempDir, ConfigFileName), true)
	assert.Error(t, err)
}

func TestBsubCommand(t *testing.T) {
	d := testJob("/out", "/in/a_R1_001.fastq.gz")
	a := ArtifactPaths("/out", d.Index)
	assert.Equal(t, "/out/jobs/1_cmd.sh", a.Command)
	assert.Equal(t,
		`LSF_DOCKER_PRESERVE_ENVIRONMENT=false LSF_DOCKER_VOLUMES="/storage1/lab:/storage1/lab /out:/out" bsub `+
			`-J "wgs_S1" -R "select[mem>8G] span[hosts=1] rusage[mem=8G]" -M 8G -G compute-lab -q general `+
			`-o /out/jobs/1_bsub.out -e /out/jobs/1_bsub.err -a 'docker(example/bfx_toolbox)' sh /out/jobs/1_cmd.sh`,
		BsubCommand(d, "/out", a))
}

func readArtifacts(t *testing.T, a Artifacts) (cmd, bsub string, doc configDoc) {
	ctx := context.Background()
	c, err := file.ReadFile(ctx, a.Command)
	require.NoError(t, err)
	b, err := file.ReadFile(ctx, a.BsubCommand)
	require.NoError(t, err)
	y, err := file.ReadFile(ctx, a.Config)
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(y, &doc))
	return string(c), string(b), doc
}

// Two dry runs of the same plan write identical artifacts, apart from the
// planned time.
func TestDryRunIdempotent(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	t0 := time.Date(2024, 9, 17, 14, 30, 0, 0, time.UTC)
	r := &DryRunner{OutDir: tempDir, Clock: func() time.Time { return t0 }}
	d := testJob(tempDir, "/in/a_R1_001.fastq.gz", "/in/b_R1_001.fastq")
	h, err := r.Submit(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, mergeplan.Written, d.Status)
	cmd1, bsub1, doc1 := readArtifacts(t, h.Artifacts)
	assert.Equal(t, d.Script(), cmd1)
	assert.Equal(t, "2024-09-17T14:30:00Z", doc1.Planned)
	assert.Equal(t, "S1", doc1.Sample)
	assert.Equal(t, d.Actions, doc1.Command)

	r.Clock = func() time.Time { return t0.Add(time.Hour) }
	h2, err := r.Submit(ctx, testJob(tempDir, "/in/a_R1_001.fastq.gz", "/in/b_R1_001.fastq"))
	require.NoError(t, err)
	assert.Equal(t, h.Artifacts, h2.Artifacts)
	cmd2, bsub2, doc2 := readArtifacts(t, h2.Artifacts)
	assert.Equal(t, cmd1, cmd2)
	assert.Equal(t, bsub1, bsub2)
	assert.NotEqual(t, doc1.Planned, doc2.Planned)
	doc1.Planned, doc2.Planned = "", ""
	assert.Equal(t, doc1, doc2)
}

func TestDryRunMissingParams(t *testing.T) {
	d := testJob("/out", "/in/a_R1_001.fastq.gz")
	d.Params.Image = ""
	d.Params.Queue = ""
	_, err := (&DryRunner{OutDir: "/out"}).Submit(context.Background(), d)
	require.Error(t, err)
	assert.True(t, errors.Is(errors.Invalid, err))
	assert.Contains(t, err.Error(), "image, queue")
	assert.Equal(t, mergeplan.Failed, d.Status)
}

// The LSF runner submits through the bsub found on PATH; a stand-in records
// its arguments.
func TestLSFRunner(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	bin := filepath.Join(tempDir, "bin")
	argsFile := filepath.Join(tempDir, "bsub.args")
	require.NoError(t, os.MkdirAll(bin, 0755))
	require.NoError(t, file.WriteFile(ctx, filepath.Join(bin, "bsub"),
		[]byte("#!/bin/sh\necho \"$LSF_DOCKER_VOLUMES|$@\" > "+argsFile+"\necho 'Job <4242> is submitted to queue <general>.'\n")))
	require.NoError(t, os.Chmod(filepath.Join(bin, "bsub"), 0755))

	outDir := filepath.Join(tempDir, "out")
	r := &LSFRunner{OutDir: outDir, Vars: map[string]string{"PATH": bin + ":" + os.Getenv("PATH")}}
	d := testJob(outDir, "/in/a_R1_001.fastq.gz")
	h, err := r.Submit(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, "4242", h.JobID)
	assert.Equal(t, mergeplan.Submitted, d.Status)

	args, err := file.ReadFile(ctx, argsFile)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(args), "/storage1/lab:/storage1/lab "+outDir+":"+outDir+"|-J wgs_S1 "), string(args))
	assert.Contains(t, string(args), "-a docker(example/bfx_toolbox) sh "+h.Artifacts.Command)
}

func TestLocalRunner(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	fq := "@r\nACGT\n+\nIIII\n"
	var jobs []*mergeplan.JobDescriptor
	for _, name := range []string{"a", "b", "c"} {
		for _, end := range []string{"R1", "R2"} {
			in := filepath.Join(tempDir, "in", name+"_"+end+"_001.fastq")
			require.NoError(t, file.WriteFile(ctx, in, []byte(strings.Repeat(fq, 3))))
		}
		d := testJob(filepath.Join(tempDir, "out", name), filepath.Join(tempDir, "in", name+"_R1_001.fastq"))
		d.Index = len(jobs) + 1
		jobs = append(jobs, d)
	}
	handles, err := SubmitAll(ctx, &LocalRunner{OutDir: filepath.Join(tempDir, "out")}, jobs, 2)
	require.NoError(t, err)
	require.Len(t, handles, 3)
	for i, h := range handles {
		assert.Equal(t, i+1, h.Index)
		assert.Equal(t, mergeplan.Done, jobs[i].Status)
		require.Len(t, h.Results, 2)
		assert.Equal(t, int64(3), h.Results[0].Records)
		_, err := file.Stat(ctx, h.Artifacts.Command)
		assert.NoError(t, err)
	}
}
