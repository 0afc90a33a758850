// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package effects

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"syscall"
)

// OSFS is the real-filesystem implementation of Port.
type OSFS struct {
	Logging
}

// NewOSFS builds an OSFS with the given verbosity.
func NewOSFS(verbose bool) *OSFS {
	return &OSFS{Logging: Logging{Verbose: verbose}}
}

func (OSFS) Canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("canonicalize %s: %w", path, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("canonicalize %s: %w", path, err)
	}
	return resolved, nil
}

func (OSFS) SymlinkMetadata(path string) (Metadata, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return Metadata{}, err
	}
	return toMetadata(info), nil
}

func toMetadata(info fs.FileInfo) Metadata {
	m := Metadata{
		Mtime: info.ModTime().Unix(),
		Size:  uint64(info.Size()),
	}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		m.Kind = KindSymlink
	case info.IsDir():
		m.Kind = KindDirectory
	case info.Mode().IsRegular():
		m.Kind = KindRegular
	default:
		m.Kind = KindOther
	}
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		m.Inode = uint64(st.Ino)
	}
	return m
}

// ReadDir lists directory entry names in byte-lexicographic order, the
// ordering the incremental copier's merge depends on (spec.md §4.F).
func (OSFS) ReadDir(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (OSFS) ReadLink(path string) (string, error) {
	return os.Readlink(path)
}

func (OSFS) OpenRead(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func (OSFS) CreateDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

func (OSFS) CreateFile(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
}

func (OSFS) HardLink(src, dst string) error {
	return os.Link(src, dst)
}

func (OSFS) Symlink(target, at string) error {
	return os.Symlink(target, at)
}

func (OSFS) Rename(src, dst string) error {
	return os.Rename(src, dst)
}

func (OSFS) RemoveFile(path string) error {
	return os.Remove(path)
}

func (OSFS) RemoveTree(path string) error {
	return os.RemoveAll(path)
}
