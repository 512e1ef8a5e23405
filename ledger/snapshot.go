package ledger

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"github.com/google/uuid"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"
)

const (
	// <snapshotVersionHeader, snapshotVersion> is stored in the recordio
	// header.
	snapshotVersionHeader = "mergefastq_ledger_version"
	snapshotVersion       = "LEDGER_V1"
	runIDHeader           = "run_id"
	projectHeader         = "project"
)

// snapshotTrailer is stored in the trailer of the recordio file.
type snapshotTrailer struct {
	Rows  int
	RunID string
}

// Snapshot is the content of a recordio ledger.
type Snapshot struct {
	// RunID identifies the merge run that wrote the snapshot.
	RunID   string
	Project string
	Rows    []Row
}

// NewRunID returns a fresh run id.
func NewRunID() string { return uuid.New().String() }

// WriteSnapshot writes s to path as a zstd-compressed recordio file with one
// gob-encoded Row per record. An empty s.RunID is replaced by a new one.
func WriteSnapshot(ctx context.Context, path string, s *Snapshot) (err error) {
	if s.RunID == "" {
		s.RunID = NewRunID()
	}
	recordiozstd.Init()
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "ledger: create", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := recordio.NewWriter(out.Writer(ctx), recordio.WriterOpts{
		Transformers: []string{recordiozstd.Name},
	})
	w.AddHeader(snapshotVersionHeader, snapshotVersion)
	w.AddHeader(runIDHeader, s.RunID)
	w.AddHeader(projectHeader, s.Project)
	w.AddHeader(recordio.KeyTrailer, true)
	for i := range s.Rows {
		var b bytes.Buffer
		if err = gob.NewEncoder(&b).Encode(&s.Rows[i]); err != nil {
			return errors.E(err, "ledger: encode row", fmt.Sprint(i))
		}
		w.Append(b.Bytes())
	}
	var b bytes.Buffer
	if err = gob.NewEncoder(&b).Encode(snapshotTrailer{Rows: len(s.Rows), RunID: s.RunID}); err != nil {
		return errors.E(err, "ledger: encode trailer")
	}
	w.SetTrailer(b.Bytes())
	if err = w.Finish(); err != nil {
		return errors.E(err, "ledger: write", path)
	}
	return nil
}

// ReadSnapshot reads a ledger written by WriteSnapshot. The row count is
// checked against the trailer.
func ReadSnapshot(ctx context.Context, path string) (s *Snapshot, err error) {
	recordiozstd.Init()
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "ledger: open", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	r := recordio.NewScanner(in.Reader(ctx), recordio.ScannerOpts{})
	s = &Snapshot{}
	versionFound := false
	for _, kv := range r.Header() {
		switch kv.Key {
		case snapshotVersionHeader:
			if v, _ := kv.Value.(string); v != snapshotVersion {
				return nil, errors.E(errors.Invalid, "ledger: snapshot version mismatch, got", fmt.Sprint(kv.Value), "want", snapshotVersion)
			}
			versionFound = true
		case runIDHeader:
			s.RunID, _ = kv.Value.(string)
		case projectHeader:
			s.Project, _ = kv.Value.(string)
		}
	}
	if !versionFound {
		return nil, errors.E(errors.Invalid, "ledger:", path, "is not a ledger snapshot")
	}
	for r.Scan() {
		var row Row
		if err = gob.NewDecoder(bytes.NewReader(r.Get().([]byte))).Decode(&row); err != nil {
			return nil, errors.E(err, "ledger: decode row")
		}
		s.Rows = append(s.Rows, row)
	}
	if err = r.Err(); err != nil {
		return nil, errors.E(err, "ledger: read", path)
	}
	var t snapshotTrailer
	if err = gob.NewDecoder(bytes.NewReader(r.Trailer())).Decode(&t); err != nil {
		return nil, errors.E(err, "ledger: decode trailer")
	}
	if t.Rows != len(s.Rows) {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("ledger: %s: trailer records %d rows, read %d", path, t.Rows, len(s.Rows)))
	}
	return s, nil
}
