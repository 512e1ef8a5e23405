package mergeplan

import (
	"fmt"
	"path"
	"regexp"

	"github.com/grailbio/base/errors"
)

// ReadEnd identifies one side of a paired-end read.
type ReadEnd int

const (
	// R1 is the first read of a pair.
	R1 ReadEnd = 1
	// R2 is the second read of a pair.
	R2 ReadEnd = 2
)

// ReadEnds lists both ends in output order.
var ReadEnds = []ReadEnd{R1, R2}

func (e ReadEnd) String() string {
	switch e {
	case R1:
		return "R1"
	case R2:
		return "R2"
	}
	return fmt.Sprintf("ReadEnd(%d)", int(e))
}

// DefaultPatterns are the read end patterns used when none are configured.
// The first matches Illumina names such as S1_L001_R1_001.fastq.gz. The
// second admits "." separators and a missing extension.
var DefaultPatterns = []string{
	`_R([12])_\d+\.(fastq|fq)(\.gz)?$`,
	`[._]R([12])[._]\d+(\.(fastq|fq)(\.gz)?)?$`,
}

// ReadEndParser finds the read end tag in a FASTQ file name.
type ReadEndParser struct {
	patterns []*regexp.Regexp
}

// NewReadEndParser compiles patterns, which are tried in order. Matching is
// case insensitive. The first capture group of each pattern must match the
// end digit, "1" or "2".
func NewReadEndParser(patterns []string) (*ReadEndParser, error) {
	if len(patterns) == 0 {
		return nil, errors.E(errors.Invalid, "mergeplan: no read end patterns")
	}
	p := &ReadEndParser{}
	for _, s := range patterns {
		re, err := regexp.Compile("(?i)" + s)
		if err != nil {
			return nil, errors.E(errors.Invalid, "mergeplan: read end pattern", s, err)
		}
		if re.NumSubexp() < 1 {
			return nil, errors.E(errors.Invalid, "mergeplan: read end pattern has no capture group:", s)
		}
		p.patterns = append(p.patterns, re)
	}
	return p, nil
}

// DefaultReadEndParser returns a parser for DefaultPatterns.
func DefaultReadEndParser() *ReadEndParser {
	p, err := NewReadEndParser(DefaultPatterns)
	if err != nil {
		panic(err)
	}
	return p
}

// Parse returns the read end of the file named name. Only the last path
// element of name is examined.
func (p *ReadEndParser) Parse(name string) (ReadEnd, bool) {
	base := path.Base(name)
	for _, re := range p.patterns {
		m := re.FindStringSubmatch(base)
		if m == nil {
			continue
		}
		switch m[1] {
		case "1":
			return R1, true
		case "2":
			return R2, true
		}
	}
	return 0, false
}
