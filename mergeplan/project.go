package mergeplan

import (
	"strings"

	"github.com/grailbio/base/errors"
)

// Project tags a merge run with the kind of sequencing it combines. The tag
// prefixes cluster job names and is recorded with the ledger.
type Project string

// The recognized projects.
const (
	WGS         Project = "wgs"
	WES         Project = "wes"
	RNASeq      Project = "rnaseq"
	Amplicon    Project = "amplicon"
	Metagenomic Project = "metagenomic"
	Other       Project = "other"
)

// Projects lists every recognized project.
var Projects = []Project{WGS, WES, RNASeq, Amplicon, Metagenomic, Other}

// ParseProject parses a project tag, ignoring case.
func ParseProject(s string) (Project, error) {
	p := Project(strings.ToLower(strings.TrimSpace(s)))
	for _, q := range Projects {
		if p == q {
			return p, nil
		}
	}
	names := make([]string, len(Projects))
	for i, q := range Projects {
		names[i] = string(q)
	}
	return "", errors.E(errors.Invalid, "mergeplan: unknown project", s, "(want one of "+strings.Join(names, ", ")+")")
}
