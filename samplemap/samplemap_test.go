package samplemap

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

const header = `FASTQ,Flowcell ID,Index Sequence,Flowcell Lane,ESP ID,Pool Name,Species,Illumina Sample Type,Library Type,Library Name,Date Complete,Total Reads,Total Bases,PhiX Error Rate,% Pass Filter Clusters,% >Q30,Avg Q Score`

func writeSamplemap(t *testing.T, dir string, rows ...string) string {
	path := filepath.Join(dir, "Samplemap.csv")
	data := header + "\n" + strings.Join(rows, "\n") + "\n"
	assert.NoError(t, file.WriteFile(context.Background(), path, []byte(data)))
	return path
}

func formatError(t *testing.T, err error) *FormatError {
	t.Helper()
	assert.True(t, errors.Is(errors.Invalid, err), "got %v", err)
	fe, ok := errors.Recover(err).Err.(*FormatError)
	assert.True(t, ok, "got %T: %v", errors.Recover(err).Err, err)
	return fe
}

func TestLoad(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	b1 := filepath.Join(tempDir, "b1")
	b2 := filepath.Join(tempDir, "b2")
	p1 := writeSamplemap(t, b1,
		`H_1_R1_001.fastq.gz,HXXX,ACGT-TTGA,1,ESP1,pool1,human,DNA,WGS,H214_1,2024-06-01,"75,191,910","11,354,978,410",0.21,91.5,93.2,38.5`,
		`H_1_R2_001.fastq.gz,HXXX,ACGT-TTGA,1,ESP1,pool1,human,DNA,WGS,H214_1,2024-06-01,"75,191,910","11,354,978,410",,,,`)
	p2 := writeSamplemap(t, b2,
		`H_2_R1_001.fastq.gz,HYYY,ACGT-TTGA,2,ESP2,pool2,human,DNA,WGS,H214_1,2024-07-01,100,15100,0.3,90,90,37`,
		`H_2_R2_001.fastq.gz,HYYY,ACGT-TTGA,2,ESP2,pool2,human,DNA,WGS,H214_1,2024-07-01,100,15100,0.3,90,90,37`,
		`G_2_R1_001.fastq.gz,HYYY,GGGG-CCCC,2,ESP2,pool2,human,DNA,WGS,G7,2024-07-01,5,755,nan,nan,nan,nan`)

	table, err := Load(ctx, []string{p1, p2})
	assert.NoError(t, err)
	assert.EQ(t, len(table.Records), 5)
	expect.EQ(t, table.Paths, []string{p1, p2})
	expect.EQ(t, table.SampleIDs(), []string{"H214_1", "G7"})

	r := table.Records[0]
	expect.EQ(t, r.BatchID, 1)
	expect.EQ(t, r.TotalReads, int64(75191910))
	expect.EQ(t, r.TotalBases, int64(11354978410))
	expect.EQ(t, r.Lane, 1)
	expect.EQ(t, r.FastqPath, filepath.Join(b1, "H_1_R1_001.fastq.gz"))
	expect.EQ(t, r.SamplemapPath, p1)
	expect.EQ(t, r.PhiXError, NullFloat{Float64: 0.21, Valid: true})
	expect.False(t, table.Records[1].Q30.Valid)

	g := table.Records[4]
	expect.EQ(t, g.BatchID, 2)
	expect.EQ(t, g.SampleID, "G7")
	expect.False(t, g.AvgQScore.Valid)
}

func TestLoadErrors(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()
	row := `A_R1_001.fastq.gz,F1,AAAA,1,E,P,human,DNA,WGS,S1,2024-06-01,10,1510,,,,`

	t.Run("empty", func(t *testing.T) {
		path := filepath.Join(tempDir, "empty.csv")
		assert.NoError(t, file.WriteFile(ctx, path, nil))
		_, err := Load(ctx, []string{path})
		fe := formatError(t, err)
		expect.EQ(t, fe.Path, path)
	})
	t.Run("header-only", func(t *testing.T) {
		path := writeSamplemap(t, filepath.Join(tempDir, "header"))
		_, err := Load(ctx, []string{path})
		formatError(t, err)
	})
	t.Run("schema", func(t *testing.T) {
		path := filepath.Join(tempDir, "schema.csv")
		old := strings.Replace(header, "Library Name", "Sample Name", 1)
		assert.NoError(t, file.WriteFile(ctx, path, []byte(old+"\n"+row+"\n")))
		_, err := Load(ctx, []string{path})
		fe := formatError(t, err)
		expect.EQ(t, fe.Missing, []string{"Library Name"})
		expect.EQ(t, fe.Unexpected, []string{"Sample Name"})
	})
	t.Run("number", func(t *testing.T) {
		bad := strings.Replace(row, ",10,1510,", ",1x0,1510,", 1)
		path := writeSamplemap(t, filepath.Join(tempDir, "number"), row, bad)
		_, err := Load(ctx, []string{path})
		fe := formatError(t, err)
		expect.EQ(t, fe.Row, 2)
		expect.EQ(t, fe.Column, ColTotalReads)
		expect.EQ(t, fe.Value, "1x0")
	})
	t.Run("duplicate", func(t *testing.T) {
		path := writeSamplemap(t, filepath.Join(tempDir, "duplicate"), row, row)
		_, err := Load(ctx, []string{path})
		fe := formatError(t, err)
		expect.EQ(t, fe.Row, 2)
		expect.EQ(t, fe.Value, "A_R1_001.fastq.gz")
	})
	t.Run("duplicate-across-batches", func(t *testing.T) {
		p1 := writeSamplemap(t, filepath.Join(tempDir, "x1"), row)
		p2 := writeSamplemap(t, filepath.Join(tempDir, "x2"), row)
		_, err := Load(ctx, []string{p1, p2})
		assert.NoError(t, err)
	})
	t.Run("index-sequence", func(t *testing.T) {
		other := strings.Replace(strings.Replace(row, "AAAA", "CCCC", 1), "A_R1", "A_R2", 1)
		path := writeSamplemap(t, filepath.Join(tempDir, "index"), row, other)
		_, err := Load(ctx, []string{path})
		fe := formatError(t, err)
		expect.EQ(t, fe.Column, ColIndexSequence)
	})
	t.Run("missing-file", func(t *testing.T) {
		_, err := Load(ctx, []string{filepath.Join(tempDir, "nonexistent.csv")})
		expect.NotNil(t, err)
		expect.False(t, errors.Is(errors.Invalid, err))
	})
}

func TestParseInt(t *testing.T) {
	for _, test := range []struct {
		in   string
		want int64
		ok   bool
	}{
		{"0", 0, true},
		{"42", 42, true},
		{"75,191,910", 75191910, true},
		{"1,000", 1000, true},
		{"12.0", 12, true},
		{"-1,234", -1234, true},
		{"", 0, false},
		{"1,00", 0, false},
		{",100", 0, false},
		{"1234,567", 0, false},
		{"12.5", 0, false},
		{"abc", 0, false},
	} {
		got, err := ParseInt(test.in)
		if test.ok {
			expect.NoError(t, err, test.in)
			expect.EQ(t, got, test.want, test.in)
		} else {
			expect.True(t, err != nil, test.in)
		}
	}
}

func TestNormalizeLibraryNames(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	in := writeSamplemap(t, tempDir,
		`A_R1_001.fastq.gz,F1,AAAA,1,E,P,human,DNA,WGS,Patient 7  day 3,2024-06-01,10,1510,,,,`,
		`B_R1_001.fastq.gz,F1,CCCC,1,E,P,human,DNA,WGS,S2,2024-06-01,10,1510,,,,`)
	out := filepath.Join(tempDir, "normalized.csv")
	changes, err := NormalizeLibraryNames(ctx, in, out)
	assert.NoError(t, err)
	expect.EQ(t, changes, []Change{{Row: 1, Old: "Patient 7  day 3", New: "Patient_7_day_3"}})

	table, err := Load(ctx, []string{out})
	assert.NoError(t, err)
	expect.EQ(t, table.SampleIDs(), []string{"Patient_7_day_3", "S2"})

	_, err = NormalizeLibraryNames(ctx, in, out)
	expect.True(t, errors.Is(errors.Exists, err), "got %v", err)
}

func TestNormalizeSampleID(t *testing.T) {
	expect.EQ(t, NormalizeSampleID(" a b\tc "), "a_b_c")
	expect.EQ(t, NormalizeSampleID("abc"), "abc")
}

func TestLocateFastqs(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	gz := filepath.Join(tempDir, "A_R1_001.fastq.gz")
	assert.NoError(t, file.WriteFile(ctx, gz, []byte("x")))
	plain := filepath.Join(tempDir, "B_R1_001.fastq")
	assert.NoError(t, file.WriteFile(ctx, plain, []byte("x")))
	compressed := filepath.Join(tempDir, "D_R1_001.fastq.gz")
	assert.NoError(t, file.WriteFile(ctx, compressed, []byte("x")))
	table := &Table{Records: []Record{
		{FastqPath: gz},
		{FastqPath: plain + ".gz"},
		{FastqPath: strings.TrimSuffix(compressed, ".gz")},
	}}
	assert.NoError(t, LocateFastqs(ctx, table))
	expect.EQ(t, table.Records[0].FastqPath, gz)
	expect.EQ(t, table.Records[1].FastqPath, plain)
	expect.EQ(t, table.Records[2].FastqPath, compressed)

	missing := filepath.Join(tempDir, "C_R1_001.fastq.gz")
	missingPlain := filepath.Join(tempDir, "E_R1_001.fastq")
	table.Records = append(table.Records, Record{FastqPath: missing}, Record{FastqPath: missingPlain})
	err := LocateFastqs(ctx, table)
	expect.True(t, errors.Is(errors.NotExist, err), "got %v", err)
	me, ok := errors.Recover(err).Err.(*MissingFastqError)
	assert.True(t, ok)
	expect.EQ(t, me.Paths, []string{missing, missingPlain})
}
