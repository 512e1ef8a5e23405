// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package fastq

import "io"

// Count returns the number of FASTQ records in r, validating the structure
// of every record.
func Count(r io.Reader) (int64, error) {
	sc := NewScanner(r, None)
	var read Read
	for sc.Scan(&read) {
	}
	return sc.N(), sc.Err()
}
