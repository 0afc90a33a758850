// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package effects defines the effects port: the only interface the core
// engines use to reach the filesystem (spec.md §6). Keeping every
// filesystem syscall behind this interface lets the copier, dedup, and
// retention engines be driven by a fake in tests without touching disk,
// and keeps CLI/runner concerns (argument parsing, process invocation)
// out of the core as spec.md §1 requires.
package effects

import (
	"fmt"
	"io"
	"log/slog"
)

// FileKind classifies a filesystem entry. Sockets, FIFOs, and block/char
// devices all map to KindOther and are skipped silently by the copier
// (spec.md §1 Non-goals, §4.F).
type FileKind int

const (
	KindRegular FileKind = iota
	KindDirectory
	KindSymlink
	KindOther
)

// Metadata is the subset of stat(2) the core needs: no permission bits,
// owner, or group are carried, matching spec.md's "no permission
// preservation" non-goal.
type Metadata struct {
	Kind  FileKind
	Mtime int64 // seconds since epoch
	Size  uint64
	Inode uint64
}

// Port is the effects port interface (spec.md §6).
type Port interface {
	Canonicalize(path string) (string, error)
	SymlinkMetadata(path string) (Metadata, error)
	ReadDir(path string) ([]string, error)
	ReadLink(path string) (string, error)
	OpenRead(path string) (io.ReadCloser, error)
	CreateDir(path string) error
	CreateFile(path string) (io.WriteCloser, error)
	HardLink(src, dst string) error
	Symlink(target, at string) error
	Rename(src, dst string) error
	RemoveFile(path string) error
	RemoveTree(path string) error

	// Commentln logs a non-fatal operational message.
	Commentln(message string)
	// Verbosef logs a message that is only interesting at raised
	// verbosity (spec.md §6 supplement, see SPEC_FULL.md §6.1).
	Verbosef(format string, args ...any)
}

// Logging is a small helper embeddable by Port implementations so
// Commentln/Verbosef route through log/slog the way the teacher routes
// all of its operational narration (clients/go/reconnect.go), instead of
// ad hoc fmt.Println calls.
type Logging struct {
	Verbose bool
}

// Commentln logs at Info level unconditionally.
func (l Logging) Commentln(message string) {
	slog.Info("[biu] " + message)
}

// Verbosef logs at Info level when Verbose is set, Debug level otherwise.
func (l Logging) Verbosef(format string, args ...any) {
	msg := "[biu] " + fmt.Sprintf(format, args...)
	if l.Verbose {
		slog.Info(msg)
		return
	}
	slog.Debug(msg)
}
