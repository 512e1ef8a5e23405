package scheduler

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	ini "github.com/lars-t-hansen/ini"
	"github.com/twylie/merge-fastq/mergeplan"
)

// ConfigFileName is the name of the per-user configuration file in $HOME.
const ConfigFileName = ".mergefastq"

var (
	parser               = ini.NewParser()
	schedulerSection     = parser.AddSection("scheduler")
	fieldQueue           = schedulerSection.AddString("queue")
	fieldGroup           = schedulerSection.AddString("group")
	fieldImage           = schedulerSection.AddString("image")
	fieldMemoryMax       = schedulerSection.AddString("memory-max")
	fieldResourceMem     = schedulerSection.AddString("resource-memory")
	fieldSpanHosts       = schedulerSection.AddString("span-hosts")
	fieldVolumes         = schedulerSection.AddString("volumes")
	fastqSection         = parser.AddSection("fastq")
	fieldReadEndPatterns = fastqSection.AddString("read-end-patterns")
)

// Config holds defaults for a merge run. Command line flags take
// precedence.
//
//   [scheduler]
//   queue = general
//   group = compute-lab
//   image = example/bfx_toolbox
//   memory-max = 8G
//   resource-memory = 8G
//   span-hosts = 1
//   volumes = /storage1/fs1/lab/Active,/scratch1/fs1/lab
//
//   [fastq]
//   read-end-patterns = _R([12])_\d+\.fastq\.gz$ _([12])\.fq\.gz$
type Config struct {
	Params mergeplan.Params
	// ReadEndPatterns replace mergeplan.DefaultPatterns when non-empty. In
	// the file they are separated by white space.
	ReadEndPatterns []string
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{Params: mergeplan.DefaultParams, ReadEndPatterns: mergeplan.DefaultPatterns}
}

// DefaultConfigPath returns $HOME/.mergefastq, or "" when HOME is unset.
func DefaultConfigPath() string {
	home := os.Getenv("HOME")
	if home == "" {
		return ""
	}
	return filepath.Join(filepath.Clean(home), ConfigFileName)
}

// LoadConfig reads the configuration file at path on top of DefaultConfig.
// A missing file is an error only if mustExist is set.
func LoadConfig(ctx context.Context, path string, mustExist bool) (c Config, err error) {
	c = DefaultConfig()
	if path == "" {
		return c, nil
	}
	if _, err := file.Stat(ctx, path); err != nil {
		if mustExist {
			return c, errors.E(err, "scheduler: config", path)
		}
		log.Debug.Printf("scheduler: no config file %s", path)
		return c, nil
	}
	in, err := file.Open(ctx, path)
	if err != nil {
		return c, errors.E(err, "scheduler: open config", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	c, err = ParseConfig(in.Reader(ctx))
	if err != nil {
		return c, errors.E(err, path)
	}
	log.Printf("scheduler: read defaults from %s", path)
	return c, nil
}

// ParseConfig parses an INI configuration on top of DefaultConfig.
func ParseConfig(r io.Reader) (Config, error) {
	c := DefaultConfig()
	store, err := parser.Parse(r)
	if err != nil {
		return c, errors.E(errors.Invalid, "scheduler: config", err)
	}
	str := func(dst *string, f *ini.Field) {
		if f.Present(store) {
			*dst = os.ExpandEnv(strings.TrimSpace(f.StringVal(store)))
		}
	}
	str(&c.Params.Queue, fieldQueue)
	str(&c.Params.Group, fieldGroup)
	str(&c.Params.Image, fieldImage)
	str(&c.Params.MemoryMax, fieldMemoryMax)
	str(&c.Params.ResourceMemory, fieldResourceMem)
	if fieldSpanHosts.Present(store) {
		s := strings.TrimSpace(fieldSpanHosts.StringVal(store))
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return c, errors.E(errors.Invalid, "scheduler: config: span-hosts must be a positive integer, got", s)
		}
		c.Params.SpanHosts = n
	}
	if fieldVolumes.Present(store) {
		c.Params.Volumes = SplitList(os.ExpandEnv(fieldVolumes.StringVal(store)), ",")
	}
	if fieldReadEndPatterns.Present(store) {
		if p := strings.Fields(fieldReadEndPatterns.StringVal(store)); len(p) > 0 {
			c.ReadEndPatterns = p
		}
	}
	return c, nil
}

// SplitList splits s at sep, dropping empty elements and surrounding
// space.
func SplitList(s, sep string) []string {
	var list []string
	for _, e := range strings.Split(s, sep) {
		if e = strings.TrimSpace(e); e != "" {
			list = append(list, e)
		}
	}
	return list
}
