// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package dedup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/strongdm/biu/internal/copier"
	"github.com/strongdm/biu/internal/effects"
	"github.com/strongdm/biu/internal/snapshot"
)

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestRunLinksContentEqualFileAcrossSnapshots(t *testing.T) {
	fx := effects.NewOSFS(false)
	repoRoot := t.TempDir()
	srcRoot := t.TempDir()

	src1 := filepath.Join(srcRoot, "one")
	src2 := filepath.Join(srcRoot, "two")
	if err := os.MkdirAll(src1, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(src2, 0o755); err != nil {
		t.Fatal(err)
	}
	mustWriteFile(t, filepath.Join(src1, "payload.bin"), "identical content here")
	mustWriteFile(t, filepath.Join(src2, "payload.bin"), "identical content here")

	snap1, err := snapshot.NewAtNow(repoRoot)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := copier.Run(fx, []string{src1}, nil, snap1); err != nil {
		t.Fatalf("copier.Run snap1: %v", err)
	}

	snap2, err := snapshot.NewAtNow(repoRoot)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := copier.Run(fx, []string{src2}, nil, snap2); err != nil {
		t.Fatalf("copier.Run snap2: %v", err)
	}

	if err := Run(fx, []*snapshot.Handle{snap1, snap2}, snap2, Options{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	info1, err := os.Stat(filepath.Join(snap1.Path(), "one", "payload.bin"))
	if err != nil {
		t.Fatal(err)
	}
	info2, err := os.Stat(filepath.Join(snap2.Path(), "two", "payload.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if !os.SameFile(info1, info2) {
		t.Fatal("expected payload.bin in snap2 to be hard-linked to snap1's copy")
	}
}

func TestRunSkipsWhenBelowMinBytes(t *testing.T) {
	fx := effects.NewOSFS(false)
	repoRoot := t.TempDir()
	srcRoot := t.TempDir()

	src1 := filepath.Join(srcRoot, "one")
	src2 := filepath.Join(srcRoot, "two")
	if err := os.MkdirAll(src1, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(src2, 0o755); err != nil {
		t.Fatal(err)
	}
	mustWriteFile(t, filepath.Join(src1, "payload.bin"), "same")
	mustWriteFile(t, filepath.Join(src2, "payload.bin"), "same")

	snap1, err := snapshot.NewAtNow(repoRoot)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := copier.Run(fx, []string{src1}, nil, snap1); err != nil {
		t.Fatal(err)
	}
	snap2, err := snapshot.NewAtNow(repoRoot)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := copier.Run(fx, []string{src2}, nil, snap2); err != nil {
		t.Fatal(err)
	}

	if err := Run(fx, []*snapshot.Handle{snap1, snap2}, snap2, Options{MinBytesForDedup: 1 << 20}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	info1, _ := os.Stat(filepath.Join(snap1.Path(), "one", "payload.bin"))
	info2, _ := os.Stat(filepath.Join(snap2.Path(), "two", "payload.bin"))
	if os.SameFile(info1, info2) {
		t.Fatal("expected dedup to be skipped below min_bytes_for_dedup")
	}
}
