package scheduler

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/twylie/merge-fastq/fastqmerge"
	"github.com/twylie/merge-fastq/mergeplan"
	"v.io/x/lib/gosh"
)

// Handle identifies a job handed to a Runner.
type Handle struct {
	Index     int
	Artifacts Artifacts
	// JobID is the scheduler's id for the job, when known.
	JobID string
	// Results are set by runners that build the outputs themselves.
	Results []fastqmerge.Result
}

// Runner submits jobs. Submit updates d.Status.
type Runner interface {
	Submit(ctx context.Context, d *mergeplan.JobDescriptor) (Handle, error)
}

// Clock returns the planned time recorded in artifacts.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// DryRunner writes job artifacts without submitting anything.
type DryRunner struct {
	OutDir string
	Clock  Clock
}

// Submit implements Runner.
func (r *DryRunner) Submit(ctx context.Context, d *mergeplan.JobDescriptor) (Handle, error) {
	h := Handle{Index: d.Index}
	if err := Validate(d); err != nil {
		d.Status = mergeplan.Failed
		return h, err
	}
	a, err := WriteArtifacts(ctx, r.OutDir, d, r.Clock.now())
	h.Artifacts = a
	if err != nil {
		d.Status = mergeplan.Failed
		return h, err
	}
	d.Status = mergeplan.Written
	log.Printf("scheduler: job %d (%s): wrote %s", d.Index, d.Canonical, a.BsubCommand)
	return h, nil
}

var jobIDPattern = regexp.MustCompile(`Job <(\d+)>`)

// LSFRunner writes job artifacts and submits each job by running its bsub
// script with sh.
type LSFRunner struct {
	OutDir string
	Clock  Clock
	// Vars are added to the environment of the submission shell.
	Vars map[string]string
}

// Submit implements Runner.
func (r *LSFRunner) Submit(ctx context.Context, d *mergeplan.JobDescriptor) (Handle, error) {
	dry := DryRunner{OutDir: r.OutDir, Clock: r.Clock}
	h, err := dry.Submit(ctx, d)
	if err != nil {
		return h, err
	}
	sh := gosh.NewShell(nil)
	sh.ContinueOnError = true
	defer sh.Cleanup()
	for k, v := range r.Vars {
		sh.Vars[k] = v
	}
	cmd := sh.Cmd("sh", h.Artifacts.BsubCommand)
	out := cmd.CombinedOutput()
	if cmd.Err != nil {
		d.Status = mergeplan.Failed
		return h, errors.E(cmd.Err, "scheduler: submit job", d.Canonical, strings.TrimSpace(out))
	}
	if m := jobIDPattern.FindStringSubmatch(out); m != nil {
		h.JobID = m[1]
	}
	d.Status = mergeplan.Submitted
	log.Printf("scheduler: job %d (%s): submitted %s", d.Index, d.Canonical, strings.TrimSpace(out))
	return h, nil
}

// LocalRunner writes job artifacts and then builds the outputs in-process.
type LocalRunner struct {
	OutDir string
	Clock  Clock
}

// Submit implements Runner.
func (r *LocalRunner) Submit(ctx context.Context, d *mergeplan.JobDescriptor) (Handle, error) {
	h := Handle{Index: d.Index}
	a, err := WriteArtifacts(ctx, r.OutDir, d, r.Clock.now())
	h.Artifacts = a
	if err != nil {
		d.Status = mergeplan.Failed
		return h, err
	}
	h.Results, err = fastqmerge.Run(ctx, d)
	if err != nil {
		d.Status = mergeplan.Failed
		return h, err
	}
	d.Status = mergeplan.Done
	return h, nil
}

// SubmitAll hands every job to r using up to parallelism concurrent
// submissions. Jobs are split into contiguous ranges, one per worker.
// Handles are returned in job order. All jobs are attempted; the first
// error is returned.
func SubmitAll(ctx context.Context, r Runner, jobs []*mergeplan.JobDescriptor, parallelism int) ([]Handle, error) {
	if parallelism < 1 {
		parallelism = 1
	}
	if parallelism > len(jobs) {
		parallelism = len(jobs)
	}
	handles := make([]Handle, len(jobs))
	var once errors.Once
	err := traverse.Each(parallelism, func(worker int) error {
		start := worker * len(jobs) / parallelism
		end := (worker + 1) * len(jobs) / parallelism
		for i := start; i < end; i++ {
			h, err := r.Submit(ctx, jobs[i])
			handles[i] = h
			if err != nil {
				log.Error.Printf("scheduler: job %d (%s): %v", jobs[i].Index, jobs[i].Canonical, err)
				once.Set(err)
			}
		}
		return nil
	})
	if err != nil {
		return handles, err
	}
	return handles, once.Err()
}
