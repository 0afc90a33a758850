// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package copier implements the incremental copier (spec.md §4.F): a
// sorted single-pass merge between a fresh walk of the source trees and
// the previous snapshot's log, deciding per path whether to hard-link
// unchanged content, write fresh bytes, or record a deletion.
package copier

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/zeebo/xxh3"

	"github.com/strongdm/biu/internal/effects"
	"github.com/strongdm/biu/internal/logcodec"
	"github.com/strongdm/biu/internal/logstream"
	"github.com/strongdm/biu/internal/snapshot"
	"github.com/strongdm/biu/internal/stats"
)

// ErrDuplicateLogicalName is returned when two source paths canonicalize
// to the same top-level logical name.
var ErrDuplicateLogicalName = errors.New("copier: duplicate top-level logical name")

const copyBufSize = 4096

// Run executes the incremental copier: it walks sources, merges against
// prev's log (prev may be nil for the first-ever backup), and populates
// dest with the new snapshot's files, log, and stats sidecar.
func Run(fx effects.Port, sources []string, prev *snapshot.Handle, dest *snapshot.Handle) (*stats.Stats, error) {
	named, err := normalizeSources(fx, sources)
	if err != nil {
		return nil, err
	}

	if err := fx.CreateDir(dest.Path()); err != nil {
		return nil, fmt.Errorf("copier: create snapshot dir: %w", err)
	}

	w, err := dest.LogWriter()
	if err != nil {
		return nil, fmt.Errorf("copier: open log writer: %w", err)
	}

	prevView, err := openPrevView(prev)
	if err != nil {
		return nil, fmt.Errorf("copier: open previous log: %w", err)
	}

	prevRoot := ""
	if prev != nil {
		prevRoot = prev.Path()
	}
	r := &runner{fx: fx, prev: prevView, w: w, destRoot: dest.Path(), prevRoot: prevRoot}

	for _, n := range named {
		if err := fx.CreateDir(joinPath(r.destRoot, n.logicalName)); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("copier: create dir for %s: %w", n.logicalName, err)
		}
		if err := r.copyDir(n.absPath, n.logicalName); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("copier: %s: %w", n.logicalName, err)
		}
	}

	if err := r.drainRemaining(); err != nil {
		fx.Commentln(fmt.Sprintf("copier: failed to drain remaining deletions: %v", err))
	}

	st, err := w.Finalize()
	if err != nil {
		return nil, fmt.Errorf("copier: finalize log: %w", err)
	}
	if err := dest.WriteStats(st); err != nil {
		return nil, fmt.Errorf("copier: write stats: %w", err)
	}
	return st, nil
}

type namedSource struct {
	absPath     string
	logicalName string
}

// normalizeSources canonicalizes each source, assigns it a top-level
// logical name (basename of the canonical path, "root" for "/"), and
// sorts ascending by logical name, rejecting collisions.
func normalizeSources(fx effects.Port, sources []string) ([]namedSource, error) {
	named := make([]namedSource, 0, len(sources))
	for _, s := range sources {
		abs, err := fx.Canonicalize(s)
		if err != nil {
			return nil, fmt.Errorf("copier: canonicalize %s: %w", s, err)
		}
		named = append(named, namedSource{absPath: abs, logicalName: logicalName(abs)})
	}

	sort.Slice(named, func(i, j int) bool { return named[i].logicalName < named[j].logicalName })

	for i := 1; i < len(named); i++ {
		if named[i].logicalName == named[i-1].logicalName {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateLogicalName, named[i].logicalName)
		}
	}
	return named, nil
}

func logicalName(absPath string) string {
	base := lastPathSegment(absPath)
	if base == "" {
		return "root"
	}
	return base
}

// lastPathSegment returns the final "/"-separated component of a
// canonical absolute path, without pulling in path/filepath's
// OS-specific separator handling: snapshot logical names are always
// forward-slash-relative regardless of host platform.
func lastPathSegment(absPath string) string {
	i := len(absPath) - 1
	for i >= 0 && absPath[i] == '/' {
		i--
	}
	end := i + 1
	for i >= 0 && absPath[i] != '/' {
		i--
	}
	return absPath[i+1 : end]
}

func openPrevView(prev *snapshot.Handle) (*logstream.Peekable, error) {
	if prev == nil {
		return logstream.Empty(), nil
	}
	r, err := prev.OpenLog()
	if err != nil {
		return nil, err
	}
	return logstream.AllFiles(logstream.FromReader(r)), nil
}

type runner struct {
	fx       effects.Port
	prev     *logstream.Peekable
	w        *logcodec.Writer
	destRoot string
	prevRoot string
}

// copyDir recursively copies a directory, advancing the merge against
// r.prev as it goes. relPath uses forward slashes regardless of host
// platform, matching the wire format's path encoding; it is joined onto
// destRoot for every actual filesystem operation on the destination side.
func (r *runner) copyDir(absPath, relPath string) error {
	names, err := r.fx.ReadDir(absPath)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", relPath, err)
	}
	// ReadDir already returns names in byte-lexicographic order; this
	// ordering must match the prior log's path ordering (invariant L1).
	sort.Strings(names)

	childRelBase := relPath
	if childRelBase != "" {
		childRelBase += "/"
	}

	for _, name := range names {
		childAbs := joinPath(absPath, name)
		childRel := childRelBase + name

		meta, err := r.fx.SymlinkMetadata(childAbs)
		if err != nil {
			return fmt.Errorf("stat %s: %w", childRel, err)
		}

		if meta.Kind == effects.KindDirectory {
			if err := r.fx.CreateDir(joinPath(r.destRoot, childRel)); err != nil {
				return fmt.Errorf("create dir %s: %w", childRel, err)
			}
			if err := r.copyDir(childAbs, childRel); err != nil {
				return err
			}
			continue
		}

		if err := r.copyNonDir(childAbs, childRel, meta); err != nil {
			return err
		}
	}
	return nil
}

// copyNonDir handles a single non-directory child: it first advances
// deletions in r.prev up to childRel, then decides hard-link vs fresh
// copy vs silent skip.
func (r *runner) copyNonDir(absPath, relPath string, meta effects.Metadata) error {
	matched, err := r.advanceDeletionsUntil(relPath)
	if err != nil {
		return err
	}

	if matched {
		prior, _ := r.prev.Next()
		if prior.File.Mtime == meta.Mtime && prior.File.Size == meta.Size {
			return r.hardLinkFromPrior(relPath, prior)
		}
		// Prior entry consumed; fall through to a fresh copy below.
	}

	switch meta.Kind {
	case effects.KindRegular:
		return r.freshCopyRegular(absPath, relPath)
	case effects.KindSymlink:
		return r.freshCopySymlink(absPath, relPath)
	default:
		// Socket/FIFO/device: silently skip, no log record.
		return nil
	}
}

// advanceDeletionsUntil drains r.prev while the peeked entry's path
// sorts strictly before relPath, emitting a Delete for each. Returns
// true if the peek lands exactly on relPath.
func (r *runner) advanceDeletionsUntil(relPath string) (bool, error) {
	for {
		e, ok := r.prev.Peek()
		if !ok {
			if err := r.prev.Err(); err != nil {
				return false, fmt.Errorf("read prior log: %w", err)
			}
			return false, nil
		}
		cmp := e.Path().Compare(logcodec.NewLogPath(relPath))
		if cmp == 0 {
			return true, nil
		}
		if cmp > 0 {
			return false, nil
		}
		r.prev.Next()
		if err := r.w.ReportDelete(e.Path(), e.File.Size); err != nil {
			return false, fmt.Errorf("write delete record: %w", err)
		}
	}
}

func (r *runner) hardLinkFromPrior(relPath string, prior logcodec.Entry) error {
	src := joinPath(r.prevRoot, prior.File.Path.String())
	dst := joinPath(r.destRoot, relPath)
	if err := r.fx.HardLink(src, dst); err != nil {
		return fmt.Errorf("hard link %s: %w", relPath, err)
	}
	return r.w.ReportHardlink(prior.File.Path, prior.File.Xxh3, prior.File.Mtime, prior.File.Size)
}

func (r *runner) freshCopyRegular(absPath, relPath string) error {
	src, err := r.fx.OpenRead(absPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", relPath, err)
	}
	defer src.Close()

	dst, err := r.fx.CreateFile(joinPath(r.destRoot, relPath))
	if err != nil {
		return fmt.Errorf("create %s: %w", relPath, err)
	}

	h := xxh3.New()
	mw := io.MultiWriter(dst, h)
	buf := make([]byte, copyBufSize)
	size, err := io.CopyBuffer(mw, src, buf)
	closeErr := dst.Close()
	if err != nil {
		return fmt.Errorf("copy %s: %w", relPath, err)
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", relPath, closeErr)
	}

	meta, err := r.fx.SymlinkMetadata(absPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", relPath, err)
	}

	return r.w.ReportWrite(logcodec.NewLogPath(relPath), h.Sum64(), meta.Mtime, uint64(size))
}

func (r *runner) freshCopySymlink(absPath, relPath string) error {
	target, err := r.fx.ReadLink(absPath)
	if err != nil {
		return fmt.Errorf("readlink %s: %w", relPath, err)
	}
	if err := r.fx.Symlink(target, joinPath(r.destRoot, relPath)); err != nil {
		return fmt.Errorf("symlink %s: %w", relPath, err)
	}

	meta, err := r.fx.SymlinkMetadata(absPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", relPath, err)
	}

	hash := xxh3.Hash([]byte(target))
	return r.w.ReportWrite(logcodec.NewLogPath(relPath), hash, meta.Mtime, uint64(len(target)))
}

// drainRemaining emits a Delete for every entry left in r.prev once the
// walk is complete. Failure here is logged but non-fatal (spec.md §4.F).
func (r *runner) drainRemaining() error {
	for {
		e, ok := r.prev.Next()
		if !ok {
			return r.prev.Err()
		}
		if err := r.w.ReportDelete(e.Path(), e.File.Size); err != nil {
			return err
		}
	}
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
