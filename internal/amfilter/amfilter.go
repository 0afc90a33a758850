// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package amfilter implements the approximate-membership filter (spec.md
// §4.G): a cuckoo filter seeded from a snapshot's Write records, used by
// the dedup planner to cheaply prune candidates before the expensive
// cross-snapshot merge. False positives are expected and handled by exact
// verification downstream; the filter itself is query-only once built.
package amfilter

import (
	"encoding/binary"

	cuckoo "github.com/seiflotfy/cuckoofilter"
	"github.com/zeebo/blake3"

	"github.com/strongdm/biu/internal/logstream"
)

// Filter wraps a cuckoo filter keyed by a fixed rehash of each file's
// xxh3 content hash. blake3 is used here purely as a second, independent
// hash function over the xxh3 digest — not as a content hash in its own
// right — so the filter's internal fingerprinting doesn't correlate with
// collisions in the primary xxh3 hash (spec.md §9).
type Filter struct {
	cf *cuckoo.Filter
}

// Build seeds a new Filter from view, sized to capacity (normally the
// snapshot's num_writes stat). Callers pass a NewFilesView so only Write
// records are inserted, per spec.md §4.G.
func Build(view *logstream.Peekable, capacity uint) (*Filter, error) {
	cf := cuckoo.NewFilter(capacity)
	for {
		e, ok := view.Next()
		if !ok {
			break
		}
		cf.InsertUnique(key(e.File.Xxh3))
	}
	if err := view.Err(); err != nil {
		return nil, err
	}
	return &Filter{cf: cf}, nil
}

// Lookup reports whether hash might have been inserted. A false return is
// definitive; a true return must still be verified against real file
// content before acting on it.
func (f *Filter) Lookup(hash uint64) bool {
	return f.cf.Lookup(key(hash))
}

// Count returns the number of items currently tracked by the filter.
func (f *Filter) Count() uint {
	return f.cf.Count()
}

func key(hash uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], hash)
	sum := blake3.Sum256(buf[:])
	return sum[:]
}
