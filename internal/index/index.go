// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package index maintains a small derived cache of per-snapshot summary
// data for a repository, so that listing a large repository's snapshots
// doesn't require re-reading every snapshot's stats sidecar on every
// invocation. This is not part of the core's repository-ordering
// semantics (internal/repo remains the source of truth); the cache is
// read-through and disposable, rebuilt transparently whenever it is
// missing, unreadable, or its set of snapshot names and creation times no
// longer matches the repository's.
//
// The on-disk encoding follows the teacher's fstree/capture.go approach
// to serializing its tree objects: msgpack with sorted map keys, so the
// file diffs cleanly byte-for-byte between runs that didn't actually
// change anything.
package index

import (
	"bytes"
	"os"

	"github.com/strongdm/biu/internal/snapshot"
	"github.com/vmihailenco/msgpack/v5"
)

// FileName is the cache file's name, rooted directly under the
// repository directory alongside the snapshot subdirectories.
const FileName = ".biu-index.msgpack"

// Entry summarizes one snapshot for listing purposes.
type Entry struct {
	CreationUnix int64 `msgpack:"creation_unix"`
	HasStats     bool  `msgpack:"has_stats"`
}

// Index maps snapshot directory name to its cached Entry.
type Index map[string]Entry

// Load reads the cache file at path. A missing file is not an error: it
// returns an empty Index so callers can rebuild unconditionally.
func Load(path string) (Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Index{}, nil
		}
		return nil, err
	}

	var idx Index
	if err := msgpack.Unmarshal(data, &idx); err != nil {
		// A corrupt cache is treated the same as a missing one: it is
		// purely derived data, never authoritative.
		return Index{}, nil
	}
	return idx, nil
}

// Save writes idx to path with sorted map keys, so unrelated reorderings
// of the same data never show up as a diff.
func Save(path string, idx Index) error {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(idx); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// BuildOrLoad is the read-through entry point: it loads the existing
// cache, reuses every cached entry whose name and creation time match a
// current snapshot, computes entries only for the snapshots that have no
// such match, and writes the result back out if anything changed. The
// HasStats of a reused entry is not re-read. cachePath is always
// `<repo-root>/` + FileName.
func BuildOrLoad(cachePath string, snaps []*snapshot.Handle) (Index, error) {
	cached, err := Load(cachePath)
	if err != nil {
		return nil, err
	}

	fresh := make(Index, len(snaps))
	stale := len(cached) != len(snaps)
	for _, s := range snaps {
		name := baseName(s.Path())
		if existing, ok := cached[name]; ok && existing.CreationUnix == s.CreationTime().Unix() {
			fresh[name] = existing
			continue
		}
		stale = true
		fresh[name] = Entry{
			CreationUnix: s.CreationTime().Unix(),
			HasStats:     s.HasStats(),
		}
	}

	if !stale {
		return cached, nil
	}
	if err := Save(cachePath, fresh); err != nil {
		// The cache is an optimization; a failed write shouldn't fail
		// the caller's listing.
		return fresh, nil
	}
	return fresh, nil
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
