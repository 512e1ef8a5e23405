// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
bio-mergefastq merges FASTQ files that a sequencing core split across lanes
and flow cells into one gzip-compressed file per sample and read end.

A run starts from the Samplemap.csv files delivered with each sequencing
batch and a rename file that maps the Library Name of every Samplemap row to
the canonical sample id under which it is merged:

  bio-mergefastq prep-rename -samplemap b1/Samplemap.csv,b2/Samplemap.csv -rename-out rename.tsv

writes a rename file in which every id maps to itself; edit its second
column to merge ids. Library names that contain white space can be
normalized first with prep-samplemap.

  bio-mergefastq merge -samplemap b1/Samplemap.csv,b2/Samplemap.csv -rename rename.tsv \
    -outdir out -project wgs -volume /storage1/fs1/lab/Active

plans one job per canonical sample and writes its artifacts under out/jobs.
Nothing runs unless -execute is given, in which case the jobs are submitted
to LSF (-runner lsf, the default) or run on this machine (-runner local).
Each merge writes out/merged_samplemap.tsv and out/merged_samplemap.rio,
the ledger mapping every source FASTQ to its merged output, and
out/gtac_read_counts.tsv, the core-reported counts of each sample against
the target depths.

Once the jobs are done,

  bio-mergefastq eval-counts -ledger out/merged_samplemap.tsv -outdir out

recounts the merged outputs and writes src_read_counts.tsv and
count_discrepancies.tsv. Jobs submitted to LSF have not run when merge
writes the ledger, so its merged read counts and checksums are NA. eval-counts
fills them from the .counts and .md5 files that each job leaves beside its
outputs and rewrites merged_samplemap.tsv and merged_samplemap.rio in place
(-finalize=false leaves them alone). merged_samplemap.db keeps the state
recorded by merge.

Cluster defaults (queue, group, image, memory, volumes) and the read end
patterns are read from $HOME/.mergefastq, an INI file, or the file named by
-config. Flags override the file.
*/
package main
