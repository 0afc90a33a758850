// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package retention

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/strongdm/biu/internal/effects"
	"github.com/strongdm/biu/internal/snapshot"
)

func makeSnapshot(t *testing.T, repoRoot string, at time.Time) *snapshot.Handle {
	t.Helper()
	name := at.Format("2006-01-02_15-04")
	path := filepath.Join(repoRoot, name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}
	h, err := snapshot.FromExisting(path)
	if err != nil {
		t.Fatalf("FromExisting(%s): %v", path, err)
	}
	return h
}

func TestRunNoopUnderTwoSnapshots(t *testing.T) {
	repoRoot := t.TempDir()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.Local)
	only := makeSnapshot(t, repoRoot, now)

	if err := Run(effects.NewOSFS(false), []*snapshot.Handle{only}, Plan{{Count: 1, Interval: time.Hour}}, 0, now); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(only.Path()); err != nil {
		t.Fatal("sole snapshot should never be removed by a no-op retention run")
	}
}

func TestRunKeepsNewestAndPlanTargets(t *testing.T) {
	repoRoot := t.TempDir()
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.Local)

	var snaps []*snapshot.Handle
	for daysAgo := 9; daysAgo >= 0; daysAgo-- {
		snaps = append(snaps, makeSnapshot(t, repoRoot, now.AddDate(0, 0, -daysAgo)))
	}

	plan := Plan{{Count: 4, Interval: 24 * time.Hour}}
	if err := Run(effects.NewOSFS(false), snaps, plan, 0, now); err != nil {
		t.Fatal(err)
	}

	remaining := 0
	for _, s := range snaps {
		if _, err := os.Stat(s.Path()); err == nil {
			remaining++
		}
	}
	// Newest is always kept, plus up to 3 more targets (k=1,2,3 days ago).
	if remaining < 1 || remaining > 4 {
		t.Fatalf("remaining = %d, want between 1 and 4", remaining)
	}
	if _, err := os.Stat(snaps[len(snaps)-1].Path()); err != nil {
		t.Fatal("newest snapshot must always be kept")
	}
}
