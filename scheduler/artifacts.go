// Package scheduler writes the per-job artifacts of a merge plan and hands
// jobs to a runner: LSF through bsub, in-process, or nowhere (dry run).
package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/twylie/merge-fastq/mergeplan"
	"gopkg.in/yaml.v3"
)

// JobsDir returns the directory holding job artifacts.
func JobsDir(outDir string) string { return filepath.Join(outDir, "jobs") }

// Artifacts are the files that describe one submitted job.
type Artifacts struct {
	// Command is the job script, <i>_cmd.sh.
	Command string
	// BsubCommand is the submission script, <i>_bsub_cmd.sh.
	BsubCommand string
	// Config is the submission metadata document, <i>_config.yaml.
	Config string
	// Out and Err are the scheduler's log files for the job.
	Out, Err string
}

// ArtifactPaths returns the artifact paths of job index under outDir.
func ArtifactPaths(outDir string, index int) Artifacts {
	dir := JobsDir(outDir)
	name := func(suffix string) string { return filepath.Join(dir, fmt.Sprintf("%d_%s", index, suffix)) }
	return Artifacts{
		Command:     name("cmd.sh"),
		BsubCommand: name("bsub_cmd.sh"),
		Config:      name("config.yaml"),
		Out:         name("bsub.out"),
		Err:         name("bsub.err"),
	}
}

// Volumes returns the container volume list of a job: the configured
// volumes followed by outDir, without duplicates.
func Volumes(p mergeplan.Params, outDir string) []string {
	var (
		seen = map[string]bool{}
		list []string
	)
	for _, v := range append(append([]string(nil), p.Volumes...), outDir) {
		v = filepath.Clean(v)
		if !seen[v] {
			seen[v] = true
			list = append(list, v)
		}
	}
	return list
}

// BsubCommand returns the bsub invocation that runs the job script of d in
// the configured container.
func BsubCommand(d *mergeplan.JobDescriptor, outDir string, a Artifacts) string {
	p := d.Params
	pairs := make([]string, 0, len(p.Volumes)+1)
	for _, v := range Volumes(p, outDir) {
		pairs = append(pairs, v+":"+v)
	}
	resources := fmt.Sprintf("select[mem>%s] span[hosts=%d] rusage[mem=%s]", p.ResourceMemory, p.SpanHosts, p.ResourceMemory)
	return strings.Join([]string{
		"LSF_DOCKER_PRESERVE_ENVIRONMENT=false",
		fmt.Sprintf("LSF_DOCKER_VOLUMES=%q", strings.Join(pairs, " ")),
		"bsub",
		fmt.Sprintf("-J %q", p.JobName),
		fmt.Sprintf("-R %q", resources),
		"-M " + p.MemoryMax,
		"-G " + p.Group,
		"-q " + p.Queue,
		"-o " + a.Out,
		"-e " + a.Err,
		fmt.Sprintf("-a 'docker(%s)'", p.Image),
		"sh " + a.Command,
	}, " ")
}

// Validate checks that d carries the parameters bsub requires.
func Validate(d *mergeplan.JobDescriptor) error {
	p := d.Params
	var missing []string
	for _, f := range []struct{ name, val string }{
		{"image", p.Image},
		{"group", p.Group},
		{"queue", p.Queue},
		{"memory-max", p.MemoryMax},
		{"resource-memory", p.ResourceMemory},
	} {
		if f.val == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("scheduler: job %d (%s): missing submission parameters: %s",
			d.Index, d.Canonical, strings.Join(missing, ", ")))
	}
	return nil
}

type outputDoc struct {
	End    string   `yaml:"end"`
	Path   string   `yaml:"path"`
	Inputs []string `yaml:"inputs"`
}

// configDoc is the layout of <i>_config.yaml.
type configDoc struct {
	Index          int         `yaml:"index"`
	Sample         string      `yaml:"sample"`
	JobName        string      `yaml:"job_name"`
	Queue          string      `yaml:"queue"`
	Group          string      `yaml:"group"`
	Image          string      `yaml:"docker_image"`
	MemoryMax      string      `yaml:"memory_max"`
	ResourceMemory string      `yaml:"resource_memory"`
	SpanHosts      int         `yaml:"resource_span_hosts"`
	Volumes        []string    `yaml:"docker_volumes"`
	DryRun         bool        `yaml:"dry"`
	Fingerprint    string      `yaml:"fingerprint"`
	CommandFile    string      `yaml:"command_file"`
	BsubFile       string      `yaml:"bsub_command_file"`
	OutputLog      string      `yaml:"output_log"`
	ErrorLog       string      `yaml:"error_log"`
	BsubCommand    string      `yaml:"full_bsub_command"`
	Outputs        []outputDoc `yaml:"outputs"`
	Command        []string    `yaml:"command"`
	Planned        string      `yaml:"planned"`
}

// WriteArtifacts writes the job script, the bsub script and the submission
// metadata of d under JobsDir(outDir). The files depend only on d and
// outDir, except for the planned time recorded in the metadata.
func WriteArtifacts(ctx context.Context, outDir string, d *mergeplan.JobDescriptor, planned time.Time) (Artifacts, error) {
	a := ArtifactPaths(outDir, d.Index)
	bsub := BsubCommand(d, outDir, a)
	doc := configDoc{
		Index:          d.Index,
		Sample:         d.Canonical,
		JobName:        d.Params.JobName,
		Queue:          d.Params.Queue,
		Group:          d.Params.Group,
		Image:          d.Params.Image,
		MemoryMax:      d.Params.MemoryMax,
		ResourceMemory: d.Params.ResourceMemory,
		SpanHosts:      d.Params.SpanHosts,
		Volumes:        Volumes(d.Params, outDir),
		DryRun:         d.DryRun,
		Fingerprint:    d.Fingerprint,
		CommandFile:    a.Command,
		BsubFile:       a.BsubCommand,
		OutputLog:      a.Out,
		ErrorLog:       a.Err,
		BsubCommand:    bsub,
		Command:        d.Actions,
		Planned:        planned.UTC().Format(time.RFC3339),
	}
	for _, o := range d.Outputs {
		doc.Outputs = append(doc.Outputs, outputDoc{End: o.End.String(), Path: o.Path, Inputs: o.Inputs})
	}
	y, err := yaml.Marshal(&doc)
	if err != nil {
		return a, errors.E(err, "scheduler: encode", a.Config)
	}
	for _, f := range []struct {
		path string
		data []byte
	}{
		{a.Command, []byte(d.Script())},
		{a.BsubCommand, []byte(bsub + "\n")},
		{a.Config, y},
	} {
		if err := file.WriteFile(ctx, f.path, f.data); err != nil {
			return a, errors.E(err, "scheduler: write", f.path)
		}
	}
	return a, nil
}
