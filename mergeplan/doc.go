// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
Package mergeplan groups the FASTQ files of a sample table into merge units
and turns each canonical sample into a job descriptor.

A merge unit is the ordered list of files whose concatenation forms one read
end (R1 or R2) of one canonical sample. Files are ordered by flow cell, lane,
file name and batch, so the plan does not depend on the order of rows in the
Samplemaps. Each canonical sample becomes one job that writes

  <outdir>/samples/<id>/<id>_R1.fastq.gz
  <outdir>/samples/<id>/<id>_R2.fastq.gz

together with a ".counts" (records per output) and a ".md5" sidecar per
output. The job is described by an ordered list of shell actions; the same
list is the body of the script submitted to the cluster.
*/
package mergeplan
