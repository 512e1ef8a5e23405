// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package rename maps the sample ids found in Samplemaps (on-file ids) to
// the canonical ids under which their FASTQs are merged.
//
// A rename file is tab-separated with the header
//
//   samplemap_sample_id	revised_sample_id	comments
//
// Several on-file ids may share a canonical id; that is how samples are
// combined. An on-file id must never map to more than one canonical id.
package rename

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
)

// Header is the header row of a rename file.
var Header = []string{"samplemap_sample_id", "revised_sample_id", "comments"}

// Entry is one row of a rename file.
type Entry struct {
	// OnFileID is the id as it appears in the Samplemap.
	OnFileID string
	// Canonical is the id the sample is merged under.
	Canonical string
	// Comment is free text; it is carried but never interpreted.
	Comment string
}

// Read parses the rename file at path.
func Read(ctx context.Context, path string) (entries []Entry, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "rename: open", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	entries, err = parse(in.Reader(ctx))
	if err != nil {
		return nil, errors.E(err, path)
	}
	return entries, nil
}

func parse(in io.Reader) ([]Entry, error) {
	r := tsv.NewReader(in)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	header, err := r.Reader.Read()
	if err == io.EOF {
		return nil, errors.E(errors.Invalid, "rename: file is empty")
	}
	if err != nil {
		return nil, errors.E(errors.Invalid, "rename: read header", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if strings.Join(header, "\t") != strings.Join(Header, "\t") {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("rename: header must be %q, got %q", Header, header))
	}
	var entries []Entry
	for line := 2; ; line++ {
		fields, err := r.Reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("rename: line %d", line), err)
		}
		if len(fields) < 2 || len(fields) > 3 {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("rename: line %d: expected 2 or 3 columns, got %d", line, len(fields)))
		}
		e := Entry{OnFileID: strings.TrimSpace(fields[0]), Canonical: strings.TrimSpace(fields[1])}
		if len(fields) == 3 {
			e.Comment = fields[2]
		}
		switch {
		case e.OnFileID == "":
			return nil, errors.E(errors.Invalid, fmt.Sprintf("rename: line %d: empty samplemap_sample_id", line))
		case e.Canonical == "":
			return nil, errors.E(errors.Invalid, fmt.Sprintf("rename: line %d: empty revised_sample_id for %s", line, e.OnFileID))
		}
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return nil, errors.E(errors.Invalid, "rename: file contains no entries")
	}
	return entries, nil
}

// Prepare returns an identity rename table for ids: one entry per distinct
// id, sorted, mapping the id to itself. It is the starting point users edit
// to combine samples.
func Prepare(ids []string) []Entry {
	seen := map[string]bool{}
	var entries []Entry
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		entries = append(entries, Entry{OnFileID: id, Canonical: id})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].OnFileID < entries[j].OnFileID })
	return entries
}

// Write stores entries as a rename file at path. An existing file is never
// overwritten.
func Write(ctx context.Context, path string, entries []Entry) (err error) {
	if _, err := file.Stat(ctx, path); err == nil {
		return errors.E(errors.Exists, "rename: refusing to overwrite", path)
	}
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "rename: create", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := tsv.NewWriter(out.Writer(ctx))
	for _, h := range Header {
		w.WriteString(h)
	}
	if err = w.EndLine(); err != nil {
		return err
	}
	for _, e := range entries {
		w.WriteString(e.OnFileID)
		w.WriteString(e.Canonical)
		w.WriteString(e.Comment)
		if err = w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}
