package mergeplan

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/base/errors"
	"github.com/twylie/merge-fastq/checksum"
)

// CountsSuffix names the sidecar holding the record count of a merged
// output.
const CountsSuffix = ".counts"

// Params are the cluster submission parameters of one job.
type Params struct {
	JobName string
	Queue   string
	Group   string
	Image   string
	// MemoryMax is the hard memory limit (bsub -M).
	MemoryMax string
	// ResourceMemory is the memory requested for host selection and
	// reservation (bsub -R select[mem>..] rusage[mem=..]).
	ResourceMemory string
	// SpanHosts is the number of hosts the job may span.
	SpanHosts int
	// Volumes are host paths mounted into the container at the same path.
	Volumes []string
}

// DefaultParams are used for fields that are not configured.
var DefaultParams = Params{
	MemoryMax:      "8G",
	ResourceMemory: "8G",
	SpanHosts:      1,
}

// Status is the completion status of a job.
type Status int

const (
	// Planned jobs have not been handed to a runner.
	Planned Status = iota
	// Written jobs have their artifacts on disk but were not submitted.
	Written
	// Submitted jobs were accepted by the cluster scheduler.
	Submitted
	// Done jobs ran to completion in-process.
	Done
	// Failed jobs could not be submitted or run.
	Failed
)

var statusNames = [...]string{"planned", "written", "submitted", "done", "failed"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Output is one merged FASTQ produced by a job.
type Output struct {
	End ReadEnd
	// Path is the gzip-compressed merged file.
	Path string
	// Inputs are the constituent files in concatenation order.
	Inputs []string
}

// CountsPath returns the path of the output's record count sidecar.
func (o Output) CountsPath() string { return o.Path + CountsSuffix }

// MD5Path returns the path of the output's checksum sidecar.
func (o Output) MD5Path() string { return o.Path + checksum.Suffix }

// JobDescriptor describes the work for one canonical sample.
type JobDescriptor struct {
	// Index is the 1-based ordinal of the job, in canonical id order.
	Index     int
	Canonical string
	// Dir is the sample's output directory.
	Dir string
	// Outputs holds the R1 output followed by the R2 output.
	Outputs []Output
	// Actions are the shell commands that perform the merge, in order.
	Actions []string
	Params  Params
	DryRun  bool
	// Fingerprint identifies the actions and outputs; two plans of the same
	// inputs have equal fingerprints.
	Fingerprint string
	// Status is updated by runners. It is the only field that changes after
	// Build.
	Status Status
}

// Output returns the job's output for end.
func (d *JobDescriptor) Output(end ReadEnd) Output {
	for _, o := range d.Outputs {
		if o.End == end {
			return o
		}
	}
	panic(fmt.Sprintf("job %d: no output for %v", d.Index, end))
}

// Script returns the job's shell script.
func (d *JobDescriptor) Script() string {
	return strings.Join(d.Actions, "\n") + "\n"
}

// BuildOptions configure Build.
type BuildOptions struct {
	// OutDir is the root of the merge output.
	OutDir  string
	Project Project
	// Params are copied into every job; JobName is set per job.
	Params Params
	DryRun bool
}

// SampleDir returns the output directory of a canonical sample.
func SampleDir(outDir, canonical string) string {
	return filepath.Join(outDir, "samples", canonical)
}

// OutputPath returns the merged FASTQ path of one read end of a canonical
// sample.
func OutputPath(outDir, canonical string, end ReadEnd) string {
	return filepath.Join(SampleDir(outDir, canonical), fmt.Sprintf("%s_%s.fastq.gz", canonical, end))
}

// Build turns merge units, as returned by Group, into one job per canonical
// sample. Jobs are numbered from 1 in canonical id order.
func Build(units []*MergeUnit, opts BuildOptions) ([]*JobDescriptor, error) {
	if opts.OutDir == "" {
		return nil, errors.E(errors.Invalid, "mergeplan: no output directory")
	}
	if opts.Project == "" {
		opts.Project = Other
	}
	if _, err := ParseProject(string(opts.Project)); err != nil {
		return nil, err
	}
	byID := map[string][]*MergeUnit{}
	var ids []string
	for _, u := range units {
		if _, ok := byID[u.Canonical]; !ok {
			ids = append(ids, u.Canonical)
		}
		byID[u.Canonical] = append(byID[u.Canonical], u)
	}
	sort.Strings(ids)

	jobs := make([]*JobDescriptor, 0, len(ids))
	for i, id := range ids {
		d := &JobDescriptor{
			Index:     i + 1,
			Canonical: id,
			Dir:       SampleDir(opts.OutDir, id),
			Params:    opts.Params,
			DryRun:    opts.DryRun,
		}
		d.Params.Volumes = append([]string(nil), opts.Params.Volumes...)
		d.Params.JobName = fmt.Sprintf("%s_%s", opts.Project, id)
		for _, end := range ReadEnds {
			o := Output{End: end, Path: OutputPath(opts.OutDir, id, end)}
			for _, u := range byID[id] {
				if u.End != end {
					continue
				}
				for _, r := range u.Records {
					o.Inputs = append(o.Inputs, r.FastqPath)
				}
			}
			if len(o.Inputs) == 0 {
				return nil, errors.E(errors.Invalid, "mergeplan: sample", id, "has no", end.String(), "files")
			}
			d.Outputs = append(d.Outputs, o)
		}
		d.Actions = actions(d)
		d.Fingerprint = fingerprint(d)
		jobs = append(jobs, d)
	}
	return jobs, nil
}

// actions returns the shell commands that build d's outputs. The script is
// run by a POSIX sh, which has no pipefail, so every output is tested with
// gzip -t before it is counted through a pipe.
func actions(d *JobDescriptor) []string {
	a := []string{
		"set -eu",
		"mkdir -p " + shellQuote(d.Dir),
	}
	rm := []string{"rm -f"}
	for _, o := range d.Outputs {
		rm = append(rm, shellQuote(o.Path), shellQuote(o.CountsPath()), shellQuote(o.MD5Path()))
	}
	a = append(a, strings.Join(rm, " "))
	for _, o := range d.Outputs {
		out := shellQuote(o.Path)
		if len(o.Inputs) == 1 {
			in := o.Inputs[0]
			if IsCompressed(in) {
				a = append(a, fmt.Sprintf("cp %s %s", shellQuote(in), out))
			} else {
				a = append(a, fmt.Sprintf("gzip -c %s > %s", shellQuote(in), out))
			}
			continue
		}
		for _, in := range o.Inputs {
			if IsCompressed(in) {
				a = append(a, fmt.Sprintf("cat %s >> %s", shellQuote(in), out))
			} else {
				a = append(a, fmt.Sprintf("gzip -c %s >> %s", shellQuote(in), out))
			}
		}
	}
	for _, o := range d.Outputs {
		out := shellQuote(o.Path)
		a = append(a,
			"gzip -t "+out,
			fmt.Sprintf("echo $(( $(zcat %s | wc -l) / 4 )) > %s", out, shellQuote(o.CountsPath())),
			fmt.Sprintf("md5sum %s > %s", out, shellQuote(o.MD5Path())))
	}
	return a
}

// IsCompressed reports whether a FASTQ is gzip-compressed, judging by its
// name.
func IsCompressed(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".gz")
}

func fingerprint(d *JobDescriptor) string {
	var b strings.Builder
	for _, a := range d.Actions {
		b.WriteString(a)
		b.WriteByte(0)
	}
	for _, o := range d.Outputs {
		b.WriteString(o.Path)
		b.WriteByte(0)
	}
	return fmt.Sprintf("%016x", farm.Fingerprint64([]byte(b.String())))
}

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9_./=:+,@%-]+$`)

// shellQuote quotes s for sh when it contains characters outside a safe set.
func shellQuote(s string) string {
	if shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.Replace(s, "'", `'\''`, -1) + "'"
}
