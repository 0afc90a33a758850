// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package repo implements the repository (spec.md §4.E): an ordered
// sequence of snapshots plus the absolute root path.
package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/strongdm/biu/internal/snapshot"
)

// ErrAlreadyExists is returned by Initialize when the target path already
// exists.
var ErrAlreadyExists = errors.New("repo: path already exists")

// ErrNotInitialized is returned by OpenExisting when the target path is
// not an existing directory.
var ErrNotInitialized = errors.New("repo: not an existing directory")

// Repo is the repository: a root directory and its snapshots in ascending
// creation-time order (ties broken by directory name).
type Repo struct {
	path      string
	snapshots []*snapshot.Handle
}

// Path returns the repository's root directory.
func (r *Repo) Path() string { return r.path }

// Snapshots returns all snapshots, oldest first.
func (r *Repo) Snapshots() []*snapshot.Handle { return r.snapshots }

// Latest returns the most recent snapshot, or nil if there are none.
func (r *Repo) Latest() *snapshot.Handle {
	if len(r.snapshots) == 0 {
		return nil
	}
	return r.snapshots[len(r.snapshots)-1]
}

// Initialize creates a brand-new repository at path. It fails if path
// already exists.
func Initialize(path string) (*Repo, error) {
	if pathExists(path) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, path)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	return &Repo{path: path}, nil
}

// OpenExisting opens a repository at path. It fails if path is not an
// existing directory. Subdirectories that don't parse as snapshot names
// are silently ignored (spec.md §4.E).
func OpenExisting(path string) (*Repo, error) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotInitialized, path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("list repo dir: %w", err)
	}

	var snaps []*snapshot.Handle
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		h, err := snapshot.FromExisting(filepath.Join(path, e.Name()))
		if err != nil {
			continue // unparseable entries are silently ignored
		}
		snaps = append(snaps, h)
	}

	sort.SliceStable(snaps, func(i, j int) bool {
		ti, tj := snaps[i].CreationTime(), snaps[j].CreationTime()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return filepath.Base(snaps[i].Path()) < filepath.Base(snaps[j].Path())
	})

	return &Repo{path: path, snapshots: snaps}, nil
}

// Refresh re-lists the repository's snapshots from disk, used after the
// incremental copier has written a new one.
func (r *Repo) Refresh() error {
	fresh, err := OpenExisting(r.path)
	if err != nil {
		return err
	}
	r.snapshots = fresh.snapshots
	return nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
