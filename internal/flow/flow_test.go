// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package flow

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/strongdm/biu/internal/effects"
)

func TestBackupFailsWithoutInitialize(t *testing.T) {
	fx := effects.NewOSFS(false)
	repoRoot := filepath.Join(t.TempDir(), "does-not-exist-yet")

	_, err := Backup(fx, BackupOptions{BackupPath: repoRoot, SourcePaths: []string{t.TempDir()}})
	if !errors.Is(err, ErrMissingRepository) {
		t.Fatalf("err = %v, want ErrMissingRepository", err)
	}
}

func TestBackupInitializeThenRerunFailsToDoubleInitialize(t *testing.T) {
	fx := effects.NewOSFS(false)
	repoRoot := filepath.Join(t.TempDir(), "repo")
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Backup(fx, BackupOptions{BackupPath: repoRoot, SourcePaths: []string{src}, Initialize: true}); err != nil {
		t.Fatalf("first backup: %v", err)
	}

	_, err := Backup(fx, BackupOptions{BackupPath: repoRoot, SourcePaths: []string{src}, Initialize: true})
	if err == nil {
		t.Fatal("expected second --initialize against an existing repo to fail")
	}
}

func TestBackupTwiceThenCleanupSucceeds(t *testing.T) {
	fx := effects.NewOSFS(false)
	repoRoot := filepath.Join(t.TempDir(), "repo")
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Backup(fx, BackupOptions{BackupPath: repoRoot, SourcePaths: []string{src}, Initialize: true}); err != nil {
		t.Fatalf("first backup: %v", err)
	}
	if _, err := Backup(fx, BackupOptions{BackupPath: repoRoot, SourcePaths: []string{src}}); err != nil {
		t.Fatalf("second backup: %v", err)
	}

	if err := Cleanup(fx, CleanupOptions{BackupPath: repoRoot, ForceDeleteFloor: 0}); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
}
