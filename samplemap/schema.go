package samplemap

import "sort"

// Column names of the mid-2024 Samplemap layout.
const (
	ColFastq              = "FASTQ"
	ColFlowcellID         = "Flowcell ID"
	ColIndexSequence      = "Index Sequence"
	ColFlowcellLane       = "Flowcell Lane"
	ColESPID              = "ESP ID"
	ColPoolName           = "Pool Name"
	ColSpecies            = "Species"
	ColIlluminaSampleType = "Illumina Sample Type"
	ColLibraryType        = "Library Type"
	ColLibraryName        = "Library Name"
	ColDateComplete       = "Date Complete"
	ColTotalReads         = "Total Reads"
	ColTotalBases         = "Total Bases"
	ColPhiXErrorRate      = "PhiX Error Rate"
	ColPassFilter         = "% Pass Filter Clusters"
	ColQ30                = "% >Q30"
	ColAvgQScore          = "Avg Q Score"
)

// SchemaVersion names the only Samplemap layout this package reads.
const SchemaVersion = "mid-2024"

// Schema lists the columns of SchemaVersion. Column order in a file is
// irrelevant, but the set must match exactly.
var Schema = []string{
	ColFastq,
	ColFlowcellID,
	ColIndexSequence,
	ColFlowcellLane,
	ColESPID,
	ColPoolName,
	ColSpecies,
	ColIlluminaSampleType,
	ColLibraryType,
	ColLibraryName,
	ColDateComplete,
	ColTotalReads,
	ColTotalBases,
	ColPhiXErrorRate,
	ColPassFilter,
	ColQ30,
	ColAvgQScore,
}

// checkHeader compares a header row against Schema. It returns the schema
// columns absent from the header and the header columns unknown to the
// schema, both sorted. Duplicate header columns are reported as unexpected.
func checkHeader(header []string) (missing, unexpected []string) {
	want := map[string]bool{}
	for _, c := range Schema {
		want[c] = true
	}
	seen := map[string]bool{}
	for _, c := range header {
		if !want[c] || seen[c] {
			unexpected = append(unexpected, c)
		}
		seen[c] = true
	}
	for _, c := range Schema {
		if !seen[c] {
			missing = append(missing, c)
		}
	}
	sort.Strings(missing)
	sort.Strings(unexpected)
	return
}
