package samplemap

import (
	"fmt"
	"strings"
)

// FormatError reports a Samplemap that cannot be loaded: a header that does
// not match Schema, an empty file, a duplicate file name, or a cell that
// cannot be converted to its column's type.
type FormatError struct {
	// Path is the offending Samplemap.
	Path string
	// Row is the 1-based data row (the header is row 0). Zero when the
	// problem concerns the file as a whole.
	Row int
	// Column and Value identify the offending cell, if any.
	Column, Value string
	// Missing and Unexpected list header columns for schema mismatches.
	Missing, Unexpected []string
	// Msg describes the problem.
	Msg string
}

func (e *FormatError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "samplemap %s", e.Path)
	if e.Row > 0 {
		fmt.Fprintf(&b, ": row %d", e.Row)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, ": column %q", e.Column)
	}
	if e.Value != "" {
		fmt.Fprintf(&b, ": value %q", e.Value)
	}
	fmt.Fprintf(&b, ": %s", e.Msg)
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, "; missing columns [%s]", strings.Join(e.Missing, ", "))
	}
	if len(e.Unexpected) > 0 {
		fmt.Fprintf(&b, "; unexpected columns [%s]", strings.Join(e.Unexpected, ", "))
	}
	return b.String()
}
