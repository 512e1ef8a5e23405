package samplemap

import (
	"context"
	"encoding/csv"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

// NullFloat is a float64 that may be absent from the Samplemap.
type NullFloat struct {
	Float64 float64
	Valid   bool
}

// Record is one Samplemap row: a single FASTQ file as reported by the core.
type Record struct {
	// Fastq is the FASTQ file name, relative to the Samplemap directory.
	Fastq              string
	FlowcellID         string
	IndexSequence      string
	Lane               int
	ESPID              string
	PoolName           string
	Species            string
	IlluminaSampleType string
	LibraryType        string
	// SampleID is the on-file sample id (the "Library Name" column).
	SampleID     string
	DateComplete string
	TotalReads   int64
	TotalBases   int64
	PhiXError    NullFloat
	PassFilter   NullFloat
	Q30          NullFloat
	AvgQScore    NullFloat

	// BatchID is the 1-based position of the Samplemap in the load order.
	BatchID int
	// SamplemapPath is the Samplemap this row was read from.
	SamplemapPath string
	// FastqPath is the Samplemap directory joined with Fastq.
	FastqPath string
}

// Table is the concatenation of one or more Samplemaps.
type Table struct {
	// Paths lists the loaded Samplemaps; Paths[i] has BatchID i+1.
	Paths   []string
	Records []Record
}

// SampleIDs returns the distinct on-file sample ids in first-seen order.
func (t *Table) SampleIDs() []string {
	seen := map[string]bool{}
	var ids []string
	for _, r := range t.Records {
		if !seen[r.SampleID] {
			seen[r.SampleID] = true
			ids = append(ids, r.SampleID)
		}
	}
	return ids
}

// Load reads the Samplemaps at paths, in the given order, into one Table.
// Any problem with the content of any file is reported as a *FormatError of
// kind errors.Invalid; no partial table is returned.
func Load(ctx context.Context, paths []string) (*Table, error) {
	if len(paths) == 0 {
		return nil, errors.E(errors.Invalid, "samplemap: no files given")
	}
	t := &Table{}
	for i, path := range paths {
		recs, err := loadFile(ctx, path, i+1)
		if err != nil {
			return nil, invalid(err)
		}
		log.Printf("samplemap: batch %d: %d records from %s", i+1, len(recs), path)
		t.Paths = append(t.Paths, path)
		t.Records = append(t.Records, recs...)
	}
	if err := checkIndexSequences(t); err != nil {
		return nil, invalid(err)
	}
	return t, nil
}

// invalid marks format errors with errors.Invalid so that callers can test
// for validation failures with errors.Is. The *FormatError remains available
// through errors.Recover(err).Err.
func invalid(err error) error {
	if _, ok := err.(*FormatError); ok {
		return errors.E(errors.Invalid, err)
	}
	return err
}

func loadFile(ctx context.Context, path string, batchID int) (recs []Record, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "samplemap: open", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	return parse(in.Reader(ctx), path, batchID)
}

// parse reads one Samplemap from r. Path is used for FastqPath and in
// errors.
func parse(r io.Reader, path string, batchID int) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err == io.EOF {
		return nil, &FormatError{Path: path, Msg: "file is empty"}
	}
	if err != nil {
		return nil, &FormatError{Path: path, Msg: err.Error()}
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	if missing, unexpected := checkHeader(header); len(missing) > 0 || len(unexpected) > 0 {
		return nil, &FormatError{
			Path:       path,
			Msg:        "header does not match Samplemap schema " + SchemaVersion,
			Missing:    missing,
			Unexpected: unexpected,
		}
	}
	col := map[string]int{}
	for i, c := range header {
		col[c] = i
	}

	var (
		dir   = filepath.Dir(path)
		recs  []Record
		names = map[string]int{}
	)
	for row := 1; ; row++ {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &FormatError{Path: path, Row: row, Msg: err.Error()}
		}
		if blank(fields) {
			continue
		}
		c := cells{path: path, row: row, col: col, fields: fields}
		rec := Record{
			Fastq:              c.text(ColFastq),
			FlowcellID:         c.text(ColFlowcellID),
			IndexSequence:      c.text(ColIndexSequence),
			Lane:               int(c.integer(ColFlowcellLane)),
			ESPID:              c.text(ColESPID),
			PoolName:           c.text(ColPoolName),
			Species:            c.text(ColSpecies),
			IlluminaSampleType: c.text(ColIlluminaSampleType),
			LibraryType:        c.text(ColLibraryType),
			SampleID:           c.text(ColLibraryName),
			DateComplete:       c.text(ColDateComplete),
			TotalReads:         c.integer(ColTotalReads),
			TotalBases:         c.integer(ColTotalBases),
			PhiXError:          c.float(ColPhiXErrorRate),
			PassFilter:         c.float(ColPassFilter),
			Q30:                c.float(ColQ30),
			AvgQScore:          c.float(ColAvgQScore),
			BatchID:            batchID,
			SamplemapPath:      path,
		}
		if c.err == nil {
			switch {
			case rec.Fastq == "":
				c.err = &FormatError{Path: path, Row: row, Column: ColFastq, Msg: "FASTQ file name is empty"}
			case rec.SampleID == "":
				c.err = &FormatError{Path: path, Row: row, Column: ColLibraryName, Msg: "sample id is empty"}
			}
		}
		if c.err != nil {
			return nil, c.err
		}
		if prev, ok := names[rec.Fastq]; ok {
			return nil, &FormatError{Path: path, Row: row, Column: ColFastq, Value: rec.Fastq,
				Msg: "duplicate FASTQ file name, first seen in row " + strconv.Itoa(prev)}
		}
		names[rec.Fastq] = row
		rec.FastqPath = filepath.Join(dir, rec.Fastq)
		recs = append(recs, rec)
	}
	if len(recs) == 0 {
		return nil, &FormatError{Path: path, Msg: "file has a header but no records"}
	}
	return recs, nil
}

// checkIndexSequences requires each on-file sample id to carry a single
// index sequence across the whole table.
func checkIndexSequences(t *Table) error {
	first := map[string]*Record{}
	for i := range t.Records {
		r := &t.Records[i]
		f, ok := first[r.SampleID]
		if !ok {
			first[r.SampleID] = r
			continue
		}
		if f.IndexSequence != r.IndexSequence {
			return &FormatError{
				Path:   r.SamplemapPath,
				Column: ColIndexSequence,
				Value:  r.IndexSequence,
				Msg: "sample " + strconv.Quote(r.SampleID) + " has more than one index sequence (" +
					f.IndexSequence + " in " + f.Fastq + ", " + r.IndexSequence + " in " + r.Fastq + ")",
			}
		}
	}
	return nil
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// cells converts the fields of one row, remembering the first error.
type cells struct {
	path   string
	row    int
	col    map[string]int
	fields []string
	err    error
}

func (c *cells) raw(name string) string {
	i := c.col[name]
	if i >= len(c.fields) {
		return ""
	}
	return strings.TrimSpace(c.fields[i])
}

// text returns a nullable text cell; pandas-style "nan" markers read as
// empty.
func (c *cells) text(name string) string {
	s := c.raw(name)
	switch strings.ToLower(s) {
	case "nan", "na", "n/a", "null", "none":
		return ""
	}
	return s
}

// integer parses a required integer that may carry thousands separators.
func (c *cells) integer(name string) int64 {
	if c.err != nil {
		return 0
	}
	s := c.raw(name)
	v, err := ParseInt(s)
	if err != nil {
		c.err = &FormatError{Path: c.path, Row: c.row, Column: name, Value: s, Msg: err.Error()}
	}
	return v
}

func (c *cells) float(name string) NullFloat {
	if c.err != nil {
		return NullFloat{}
	}
	s := c.text(name)
	if s == "" {
		return NullFloat{}
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(strings.Replace(s, ",", "", -1), "%"), 64)
	if err != nil {
		c.err = &FormatError{Path: c.path, Row: c.row, Column: name, Value: s, Msg: "not a number"}
		return NullFloat{}
	}
	return NullFloat{Float64: v, Valid: true}
}

// ParseInt parses a decimal integer such as "75,191,910". Commas are
// accepted only as thousands separators. A whole-valued decimal ("12.0"),
// as written by spreadsheet exports, is accepted.
func ParseInt(s string) (int64, error) {
	if s == "" {
		return 0, errors.E(errors.Invalid, "empty value where an integer is required")
	}
	digits, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		digits, frac = s[:i], s[i+1:]
	}
	if strings.Trim(frac, "0") != "" {
		return 0, errors.E(errors.Invalid, "not a whole number")
	}
	if strings.Contains(digits, ",") {
		groups := strings.Split(strings.TrimPrefix(digits, "-"), ",")
		for i, g := range groups {
			if (i == 0 && (len(g) == 0 || len(g) > 3)) || (i > 0 && len(g) != 3) {
				return 0, errors.E(errors.Invalid, "misplaced thousands separator")
			}
		}
		digits = strings.Replace(digits, ",", "", -1)
	}
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, errors.E(errors.Invalid, "not an integer")
	}
	return v, nil
}
