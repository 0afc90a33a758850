// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package effects

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOSFSCreateFileWriteReadRoundTrip(t *testing.T) {
	fx := NewOSFS(false)
	path := filepath.Join(t.TempDir(), "a.txt")

	w, err := fx.CreateFile(path)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	meta, err := fx.SymlinkMetadata(path)
	if err != nil {
		t.Fatalf("SymlinkMetadata: %v", err)
	}
	if meta.Kind != KindRegular {
		t.Errorf("Kind = %v, want KindRegular", meta.Kind)
	}
	if meta.Size != 5 {
		t.Errorf("Size = %d, want 5", meta.Size)
	}
}

func TestOSFSHardLinkSharesInode(t *testing.T) {
	fx := NewOSFS(false)
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")

	if err := os.WriteFile(src, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := fx.HardLink(src, dst); err != nil {
		t.Fatalf("HardLink: %v", err)
	}

	srcMeta, err := fx.SymlinkMetadata(src)
	if err != nil {
		t.Fatal(err)
	}
	dstMeta, err := fx.SymlinkMetadata(dst)
	if err != nil {
		t.Fatal(err)
	}
	if srcMeta.Inode != dstMeta.Inode {
		t.Errorf("expected hard-linked files to share an inode: %d != %d", srcMeta.Inode, dstMeta.Inode)
	}
}

func TestOSFSReadDirIsSorted(t *testing.T) {
	fx := NewOSFS(false)
	dir := t.TempDir()
	for _, name := range []string{"c", "a", "b"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	names, err := fx.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	want := []string{"a", "b", "c"}
	if len(names) != len(want) {
		t.Fatalf("names = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
}

func TestOSFSSymlinkMetadataReportsSymlinkKind(t *testing.T) {
	fx := NewOSFS(false)
	dir := t.TempDir()
	target := filepath.Join(dir, "target.txt")
	link := filepath.Join(dir, "link.txt")

	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := fx.Symlink(target, link); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	meta, err := fx.SymlinkMetadata(link)
	if err != nil {
		t.Fatalf("SymlinkMetadata: %v", err)
	}
	if meta.Kind != KindSymlink {
		t.Errorf("Kind = %v, want KindSymlink", meta.Kind)
	}

	got, err := fx.ReadLink(link)
	if err != nil {
		t.Fatalf("ReadLink: %v", err)
	}
	if got != target {
		t.Errorf("ReadLink = %s, want %s", got, target)
	}
}

func TestOSFSRemoveFileAndTree(t *testing.T) {
	fx := NewOSFS(false)
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := fx.RemoveFile(file); err != nil {
		t.Fatalf("RemoveFile: %v", err)
	}
	if _, err := os.Stat(file); !os.IsNotExist(err) {
		t.Error("expected file to be removed")
	}

	sub := filepath.Join(dir, "sub")
	if err := fx.CreateDir(sub); err != nil {
		t.Fatalf("CreateDir: %v", err)
	}
	if err := fx.RemoveTree(sub); err != nil {
		t.Fatalf("RemoveTree: %v", err)
	}
	if _, err := os.Stat(sub); !os.IsNotExist(err) {
		t.Error("expected directory tree to be removed")
	}
}
