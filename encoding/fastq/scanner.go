// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package fastq reads FASTQ records. It is used to validate and count the
// records of merged outputs; it does not interpret sequence content.
package fastq

import (
	"bufio"
	"io"

	"github.com/pkg/errors"
)

// LinesPerRecord is the fixed number of lines in one FASTQ record.
const LinesPerRecord = 4

var (
	// ErrShort is returned when a truncated FASTQ file is encountered.
	ErrShort = errors.New("short FASTQ file")
	// ErrInvalid is returned when an invalid FASTQ file is encountered.
	ErrInvalid = errors.New("invalid FASTQ file")
)

// A Read is a FASTQ read, comprising an ID, sequence, line 3
// ("unknown"), and a quality string.
type Read struct {
	ID, Seq, Unk, Qual string
}

// Field enumerates FASTQ fields. It is used to specify fields to read in
// NewScanner.
type Field uint

const (
	// ID causes the Read.ID field to be filled
	ID Field = 1 << iota
	// Seq causes the Read.Seq field to be filled
	Seq
	// Unk causes the Read.Unk field to be filled
	Unk
	// Qual causes the Read.Qual field to be filled
	Qual
	// None fills nothing; records are only validated and counted.
	None Field = 0
	// All equals ID|Seq|Unk|Qual.
	All = ID | Seq | Unk | Qual
)

var errEOF = errors.New("eof")

// Scanner reads FASTQ records one at a time. Scanners are not threadsafe.
//
// Scanner requires ID lines to begin with "@" and line 3 to begin with "+",
// but does not validate sequence or quality content.
type Scanner struct {
	b      *bufio.Scanner
	err    error
	fields Field
	n      int64
}

// NewScanner constructs a new Scanner that reads raw FASTQ data from the
// provided reader. Fields is a bitset of the fields to read.
func NewScanner(r io.Reader, fields Field) *Scanner {
	b := bufio.NewScanner(r)
	// Long reads (e.g. PacBio) exceed bufio's 64KiB default line limit.
	b.Buffer(make([]byte, 0, 64<<10), 16<<20)
	return &Scanner{b: b, fields: fields}
}

// Scan the next record into read. Scan returns false at the end of the
// stream or on error; the caller must then check Err.
func (f *Scanner) Scan(read *Read) bool {
	if f.err != nil {
		return false
	}
	if !f.b.Scan() {
		if f.err = f.b.Err(); f.err == nil {
			f.err = errEOF
		}
		return false
	}
	id := f.b.Bytes()
	if len(id) == 0 || id[0] != '@' {
		f.err = errors.Wrapf(ErrInvalid, "record %d: ID line does not start with '@'", f.n+1)
		return false
	}
	if f.fields&ID != 0 {
		read.ID = string(id)
	}
	if !f.scan() {
		return false
	}
	if f.fields&Seq != 0 {
		read.Seq = f.b.Text()
	}
	if !f.scan() {
		return false
	}
	unk := f.b.Bytes()
	if len(unk) == 0 || unk[0] != '+' {
		f.err = errors.Wrapf(ErrInvalid, "record %d: separator line does not start with '+'", f.n+1)
		return false
	}
	if f.fields&Unk != 0 {
		read.Unk = string(unk)
	}
	if !f.scan() {
		return false
	}
	if f.fields&Qual != 0 {
		read.Qual = f.b.Text()
	}
	f.n++
	return true
}

func (f *Scanner) scan() bool {
	ok := f.b.Scan()
	if !ok {
		if f.err = f.b.Err(); f.err == nil {
			f.err = errors.Wrapf(ErrShort, "record %d", f.n+1)
		}
	}
	return ok
}

// N returns the number of complete records scanned so far.
func (f *Scanner) N() int64 { return f.n }

// Err returns the scanning error, if any.
func (f *Scanner) Err() error {
	if f.err == errEOF {
		return nil
	}
	return f.err
}
