package ledger

import (
	"context"
	"database/sql"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

// ledgerDDL creates one table column per ledger field. merge_commands is
// kept in a child table, one row per action.
var ledgerDDL = []string{
	`CREATE TABLE ledger (
		row_id INTEGER PRIMARY KEY,
		batch_id INTEGER NOT NULL,
		samplemap_path TEXT,
		fastq TEXT,
		fastq_path TEXT,
		flow_cell_id TEXT,
		index_sequence TEXT,
		lane_number INTEGER,
		read_number INTEGER,
		sample_name TEXT,
		revised_sample_name TEXT,
		library_type TEXT,
		esp_id TEXT,
		pool_name TEXT,
		total_bases INTEGER,
		gtac_fastq_reads INTEGER,
		sample_index INTEGER,
		merged_fastq_path TEXT,
		src_end_pair_reads INTEGER,
		merged_fastq_md5 TEXT
	)`,
	`CREATE TABLE merge_commands (
		sample_index INTEGER NOT NULL,
		step INTEGER NOT NULL,
		command TEXT NOT NULL,
		PRIMARY KEY (sample_index, step)
	)`,
	`CREATE INDEX ledger_sample ON ledger(revised_sample_name, read_number)`,
}

func nullText(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// WriteSQLite stores rows in a new SQLite database at path, a local file.
// An existing file is never overwritten.
func WriteSQLite(ctx context.Context, path string, rows []Row) (err error) {
	if _, err := file.Stat(ctx, path); err == nil {
		return errors.E(errors.Exists, "ledger: refusing to overwrite", path)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return errors.E(err, "ledger: open sqlite", path)
	}
	defer func() {
		if e := db.Close(); e != nil && err == nil {
			err = e
		}
	}()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.E(err, "ledger: begin", path)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, stmt := range ledgerDDL {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return errors.E(err, "ledger: create tables")
		}
	}
	insert, err := tx.PrepareContext(ctx, `INSERT INTO ledger (row_id, `+strings.Join(sqlColumns, ", ")+
		`) VALUES (?`+strings.Repeat(", ?", len(sqlColumns))+`)`)
	if err != nil {
		return errors.E(err, "ledger: prepare insert")
	}
	defer insert.Close()
	cmds := map[int][]string{}
	for i, r := range rows {
		var reads interface{}
		if r.SrcEndPairReads.Valid {
			reads = r.SrcEndPairReads.Int64
		}
		if _, err = insert.ExecContext(ctx, i+1,
			r.BatchID, nullText(r.SamplemapPath), nullText(r.Fastq), nullText(r.FastqPath),
			nullText(r.FlowcellID), nullText(r.IndexSequence), r.LaneNumber, r.ReadNumber,
			nullText(r.SampleName), nullText(r.RevisedSampleName), nullText(r.LibraryType),
			nullText(r.ESPID), nullText(r.PoolName), r.TotalBases, r.GTACFastqReads,
			r.SampleIndex, nullText(r.MergedFastqPath), reads, nullText(r.MergedFastqMD5)); err != nil {
			return errors.E(err, "ledger: insert row", r.FastqPath)
		}
		cmds[r.SampleIndex] = r.MergeCommands
	}
	for index, list := range cmds {
		for step, c := range list {
			if _, err = tx.ExecContext(ctx, `INSERT INTO merge_commands (sample_index, step, command) VALUES (?, ?, ?)`,
				index, step+1, c); err != nil {
				return errors.E(err, "ledger: insert merge command")
			}
		}
	}
	if err = tx.Commit(); err != nil {
		return errors.E(err, "ledger: commit", path)
	}
	log.Printf("ledger: wrote %d rows to %s", len(rows), path)
	return nil
}

// sqlColumns are the ledger table's field columns; merge_commands lives in
// its own table.
var sqlColumns = func() []string {
	var cols []string
	for _, f := range Fields {
		if f != "merge_commands" {
			cols = append(cols, f)
		}
	}
	return cols
}()
