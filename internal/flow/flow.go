// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package flow orchestrates the two end-to-end operations the CLI
// exposes (spec.md §4.J): the backup flow (copy then dedup) and the
// cleanup flow (retention).
package flow

import (
	"errors"
	"fmt"
	"time"

	"github.com/strongdm/biu/internal/copier"
	"github.com/strongdm/biu/internal/dedup"
	"github.com/strongdm/biu/internal/effects"
	"github.com/strongdm/biu/internal/repo"
	"github.com/strongdm/biu/internal/retention"
	"github.com/strongdm/biu/internal/snapshot"
	"github.com/strongdm/biu/internal/stats"
)

// BackupOptions configures one backup flow invocation.
type BackupOptions struct {
	BackupPath  string
	SourcePaths []string
	Initialize  bool
	Dedup       dedup.Options
}

// ErrMissingRepository is returned when BackupPath does not already hold
// a repository and Initialize was not requested.
var ErrMissingRepository = errors.New("flow: repository does not exist; rerun with --initialize")

// Backup opens (or initializes) the repository at opts.BackupPath, runs
// the incremental copier against opts.SourcePaths, then runs the dedup
// planner against the snapshot it just produced.
func Backup(fx effects.Port, opts BackupOptions) (*stats.Stats, error) {
	r, err := openOrInitialize(opts.BackupPath, opts.Initialize)
	if err != nil {
		return nil, err
	}

	prev := r.Latest()
	dest, err := snapshot.NewAtNow(r.Path())
	if err != nil {
		return nil, fmt.Errorf("flow: build new snapshot handle: %w", err)
	}

	st, err := copier.Run(fx, opts.SourcePaths, prev, dest)
	if err != nil {
		return nil, fmt.Errorf("flow: backup: %w", err)
	}

	if err := r.Refresh(); err != nil {
		return nil, fmt.Errorf("flow: reopen repository after backup: %w", err)
	}

	if err := dedup.Run(fx, r.Snapshots(), dest, opts.Dedup); err != nil {
		return nil, fmt.Errorf("flow: dedup: %w", err)
	}

	return st, nil
}

func openOrInitialize(path string, initialize bool) (*repo.Repo, error) {
	if initialize {
		r, err := repo.Initialize(path)
		if err != nil {
			return nil, fmt.Errorf("flow: initialize repository: %w", err)
		}
		return r, nil
	}

	r, err := repo.OpenExisting(path)
	if err != nil {
		if errors.Is(err, repo.ErrNotInitialized) {
			return nil, ErrMissingRepository
		}
		return nil, fmt.Errorf("flow: open repository: %w", err)
	}
	return r, nil
}

// CleanupOptions configures one cleanup flow invocation.
type CleanupOptions struct {
	BackupPath       string
	Plan             retention.Plan
	ForceDeleteFloor int
}

// Cleanup opens the repository at opts.BackupPath and runs the retention
// engine against it.
func Cleanup(fx effects.Port, opts CleanupOptions) error {
	r, err := repo.OpenExisting(opts.BackupPath)
	if err != nil {
		if errors.Is(err, repo.ErrNotInitialized) {
			return ErrMissingRepository
		}
		return fmt.Errorf("flow: open repository: %w", err)
	}

	if err := retention.Run(fx, r.Snapshots(), opts.Plan, opts.ForceDeleteFloor, time.Now()); err != nil {
		return fmt.Errorf("flow: cleanup: %w", err)
	}
	return nil
}
