package ledger

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/twylie/merge-fastq/checksum"
)

// NA marks a null value in the TSV.
const NA = "NA"

// CommandSeparator joins MergeCommands in the TSV. Within a command, ";"
// is written as "\;" and "\" as "\\", so a command that contains the
// separator, such as one naming a file with " ; " in its path, reads back
// unchanged.
const CommandSeparator = " ; "

var commandEscaper = strings.NewReplacer(`\`, `\\`, `;`, `\;`)

func joinCommands(cmds []string) string {
	escaped := make([]string, len(cmds))
	for i, c := range cmds {
		escaped[i] = commandEscaper.Replace(c)
	}
	return strings.Join(escaped, CommandSeparator)
}

// splitCommands inverts joinCommands.
func splitCommands(s string) []string {
	var (
		cmds []string
		b    strings.Builder
	)
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '\\' && i+1 < len(s):
			i++
			b.WriteByte(s[i])
		case strings.HasPrefix(s[i:], CommandSeparator):
			cmds = append(cmds, b.String())
			b.Reset()
			i += len(CommandSeparator) - 1
		default:
			b.WriteByte(s[i])
		}
	}
	return append(cmds, b.String())
}

func text(s string) string {
	if s == "" {
		return NA
	}
	return s
}

func (r *Row) values() []string {
	cmds := NA
	if len(r.MergeCommands) > 0 {
		cmds = joinCommands(r.MergeCommands)
	}
	return []string{
		strconv.Itoa(r.BatchID),
		text(r.SamplemapPath),
		text(r.Fastq),
		text(r.FastqPath),
		text(r.FlowcellID),
		text(r.IndexSequence),
		strconv.Itoa(r.LaneNumber),
		strconv.Itoa(r.ReadNumber),
		text(r.SampleName),
		text(r.RevisedSampleName),
		text(r.LibraryType),
		text(r.ESPID),
		text(r.PoolName),
		strconv.FormatInt(r.TotalBases, 10),
		strconv.FormatInt(r.GTACFastqReads, 10),
		strconv.Itoa(r.SampleIndex),
		text(r.MergedFastqPath),
		cmds,
		r.SrcEndPairReads.String(),
		text(r.MergedFastqMD5),
	}
}

// WriteTSV writes rows to path as a tab-separated table with a header row,
// then writes path's checksum sidecar.
func WriteTSV(ctx context.Context, path string, rows []Row) error {
	if err := writeTSV(ctx, path, rows); err != nil {
		return err
	}
	_, err := checksum.WriteSidecar(ctx, path)
	return err
}

func writeTSV(ctx context.Context, path string, rows []Row) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "ledger: create", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := tsv.NewWriter(out.Writer(ctx))
	for _, f := range Fields {
		w.WriteString(f)
	}
	if err = w.EndLine(); err != nil {
		return err
	}
	for i := range rows {
		for _, v := range rows[i].values() {
			w.WriteString(v)
		}
		if err = w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

// ReadTSV reads a ledger written by WriteTSV.
func ReadTSV(ctx context.Context, path string) (rows []Row, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "ledger: open", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	rows, err = parseTSV(in.Reader(ctx))
	if err != nil {
		return nil, errors.E(err, path)
	}
	return rows, nil
}

func parseTSV(in io.Reader) ([]Row, error) {
	r := tsv.NewReader(in)
	r.LazyQuotes = true
	header, err := r.Reader.Read()
	if err != nil {
		return nil, errors.E(errors.Invalid, "ledger: read header", err)
	}
	if strings.Join(header, "\t") != strings.Join(Fields, "\t") {
		return nil, errors.E(errors.Invalid, "ledger: unexpected header", strings.Join(header, " "))
	}
	var rows []Row
	for line := 2; ; line++ {
		v, err := r.Reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("ledger: line %d", line), err)
		}
		row, err := parseRow(v)
		if err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("ledger: line %d", line), err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// fieldParser converts the cells of one row, keeping the first error.
type fieldParser struct {
	v   []string
	err error
}

func (p *fieldParser) text(i int) string {
	if p.v[i] == NA {
		return ""
	}
	return p.v[i]
}

func (p *fieldParser) int64(i int) int64 {
	n, err := strconv.ParseInt(p.v[i], 10, 64)
	if err != nil && p.err == nil {
		p.err = errors.E(errors.Invalid, fmt.Sprintf("column %s: %q is not an integer", Fields[i], p.v[i]))
	}
	return n
}

func (p *fieldParser) null(i int) NullInt64 {
	if p.v[i] == NA {
		return NullInt64{}
	}
	return NullInt64{p.int64(i), true}
}

func parseRow(v []string) (Row, error) {
	p := fieldParser{v: v}
	r := Row{
		BatchID:           int(p.int64(0)),
		SamplemapPath:     p.text(1),
		Fastq:             p.text(2),
		FastqPath:         p.text(3),
		FlowcellID:        p.text(4),
		IndexSequence:     p.text(5),
		LaneNumber:        int(p.int64(6)),
		ReadNumber:        int(p.int64(7)),
		SampleName:        p.text(8),
		RevisedSampleName: p.text(9),
		LibraryType:       p.text(10),
		ESPID:             p.text(11),
		PoolName:          p.text(12),
		TotalBases:        p.int64(13),
		GTACFastqReads:    p.int64(14),
		SampleIndex:       int(p.int64(15)),
		MergedFastqPath:   p.text(16),
		SrcEndPairReads:   p.null(18),
		MergedFastqMD5:    p.text(19),
	}
	if cmds := p.text(17); cmds != "" {
		r.MergeCommands = splitCommands(cmds)
	}
	return r, p.err
}
