// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package samplemap loads the per-batch metadata tables ("Samplemap.csv")
// delivered by the sequencing core with each batch of FASTQ files.
//
// A Samplemap has one row per FASTQ file. Rows of several batches are
// concatenated into a single Table in the order the files were given; each
// row carries the 1-based BatchID of the file it came from. The FASTQ files of
// a batch live next to its Samplemap, so a record's FastqPath is the
// Samplemap directory joined with the FASTQ file name.
//
// The core has changed the Samplemap layout over time. Only the column set
// described by Schema is accepted; a file with any other header is rejected
// with a *FormatError rather than being read with guessed columns.
package samplemap
