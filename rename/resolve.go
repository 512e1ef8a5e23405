package rename

import (
	"fmt"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// UnresolvedSampleError lists on-file ids that have no rename entry.
type UnresolvedSampleError struct {
	// IDs are the unresolved on-file ids, sorted.
	IDs []string
	// Suggestions maps an unresolved id to the closest id in the rename
	// table, when the table is not empty.
	Suggestions map[string]string
}

func (e *UnresolvedSampleError) Error() string {
	parts := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		parts[i] = id
		if s, ok := e.Suggestions[id]; ok {
			parts[i] += fmt.Sprintf(" (did you mean %s?)", s)
		}
	}
	return fmt.Sprintf("%d sample id(s) missing from the rename file: %s", len(e.IDs), strings.Join(parts, ", "))
}

// DuplicateMappingError lists on-file ids that appear in more than one
// rename entry.
type DuplicateMappingError struct {
	// IDs are the duplicated on-file ids, sorted.
	IDs []string
	// Canonical lists, for each duplicated id, the canonical ids it was
	// mapped to, in file order.
	Canonical map[string][]string
}

func (e *DuplicateMappingError) Error() string {
	parts := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		parts[i] = fmt.Sprintf("%s -> [%s]", id, strings.Join(e.Canonical[id], ", "))
	}
	return fmt.Sprintf("%d sample id(s) mapped more than once in the rename file: %s", len(e.IDs), strings.Join(parts, "; "))
}

// Mapping is a validated on-file id to canonical id map.
type Mapping struct {
	canonical map[string]string
	onFile    map[string][]string
	unused    []string
}

// Canonical returns the canonical id for an on-file id.
func (m Mapping) Canonical(id string) (string, bool) {
	c, ok := m.canonical[id]
	return c, ok
}

// OnFileIDs returns the on-file ids merged under a canonical id, sorted.
func (m Mapping) OnFileIDs(canonical string) []string {
	return m.onFile[canonical]
}

// CanonicalIDs returns every canonical id, sorted.
func (m Mapping) CanonicalIDs() []string {
	ids := make([]string, 0, len(m.onFile))
	for c := range m.onFile {
		ids = append(ids, c)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of on-file ids in the mapping.
func (m Mapping) Len() int { return len(m.canonical) }

// Unused returns the on-file ids of rename entries that matched no id of
// the sample table, sorted. They usually point at a typo in the rename
// file or a Samplemap left out of the run.
func (m Mapping) Unused() []string { return m.unused }

// Resolve validates entries against the on-file ids of a sample table and
// returns the mapping restricted to those ids. Duplicate entries are
// reported before unresolved ids. Both errors carry errors.Invalid and list
// every offending id. Entries that match no id are dropped from the mapping
// with a warning; see Mapping.Unused.
func Resolve(ids []string, entries []Entry) (Mapping, error) {
	byID := map[string][]string{}
	for _, e := range entries {
		byID[e.OnFileID] = append(byID[e.OnFileID], e.Canonical)
	}
	dup := &DuplicateMappingError{Canonical: map[string][]string{}}
	for id, cs := range byID {
		if len(cs) > 1 {
			dup.IDs = append(dup.IDs, id)
			dup.Canonical[id] = cs
		}
	}
	if len(dup.IDs) > 0 {
		sort.Strings(dup.IDs)
		return Mapping{}, errors.E(errors.Invalid, dup)
	}

	m := Mapping{canonical: map[string]string{}, onFile: map[string][]string{}}
	unresolved := &UnresolvedSampleError{Suggestions: map[string]string{}}
	for _, id := range ids {
		if _, ok := m.canonical[id]; ok {
			continue
		}
		cs, ok := byID[id]
		if !ok {
			if !contains(unresolved.IDs, id) {
				unresolved.IDs = append(unresolved.IDs, id)
				if s := closest(id, entries); s != "" {
					unresolved.Suggestions[id] = s
				}
			}
			continue
		}
		m.canonical[id] = cs[0]
		m.onFile[cs[0]] = append(m.onFile[cs[0]], id)
	}
	if len(unresolved.IDs) > 0 {
		sort.Strings(unresolved.IDs)
		return Mapping{}, errors.E(errors.Invalid, unresolved)
	}
	for _, v := range m.onFile {
		sort.Strings(v)
	}
	for id := range byID {
		if _, ok := m.canonical[id]; !ok {
			m.unused = append(m.unused, id)
		}
	}
	if len(m.unused) > 0 {
		sort.Strings(m.unused)
		log.Printf("rename: warning: %d rename file id(s) match no sample: %s", len(m.unused), strings.Join(m.unused, ", "))
	}
	return m, nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// closest returns the entry id with the smallest edit distance to id. Ties
// go to the lexically smallest id.
func closest(id string, entries []Entry) string {
	var (
		best  string
		bestD = -1
	)
	for _, e := range entries {
		d := matchr.Levenshtein(id, e.OnFileID)
		if bestD < 0 || d < bestD || (d == bestD && e.OnFileID < best) {
			best, bestD = e.OnFileID, d
		}
	}
	return best
}
