// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package dedup implements the dedup planner/executor (spec.md §4.H): it
// scans progressively older snapshots looking for files with content
// identical to something written in the newest snapshot, and replaces
// the newest snapshot's copy with a hard link to the existing inode.
package dedup

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/google/uuid"

	"github.com/strongdm/biu/internal/amfilter"
	"github.com/strongdm/biu/internal/effects"
	"github.com/strongdm/biu/internal/logcodec"
	"github.com/strongdm/biu/internal/logstream"
	"github.com/strongdm/biu/internal/snapshot"
	"github.com/strongdm/biu/internal/stats"
)

// Options configures one dedup pass.
type Options struct {
	// PreserveMtime requires a candidate's mtime to match the anchor's
	// before linking, and additionally scopes which older snapshots are
	// even considered to those whose mtime range overlaps the new
	// snapshot's writes.
	PreserveMtime bool
	// DeepCompare does a byte-for-byte comparison before linking, on top
	// of the (hash, size) equality already established by grouping.
	DeepCompare bool
	// MinBytesForDedup aborts the pass early (as a success) if the new
	// snapshot wrote fewer bytes than this.
	MinBytesForDedup uint64
}

// CompareKey groups candidates that are plausibly identical content.
type CompareKey struct {
	MtimeForComparison int64
	Size               uint64
	Hash               uint64
}

func less(a, b CompareKey) bool {
	if a.MtimeForComparison != b.MtimeForComparison {
		return a.MtimeForComparison < b.MtimeForComparison
	}
	if a.Size != b.Size {
		return a.Size < b.Size
	}
	return a.Hash < b.Hash
}

func equal(a, b CompareKey) bool {
	return a == b
}

// DedupCandidate is one file under consideration for hard-link collapse.
type DedupCandidate struct {
	Key        CompareKey
	WantsDedup bool
	AbsPath    string
}

// olderSnapshots returns repo snapshots strictly older than newSnap,
// newest-first.
func olderSnapshots(all []*snapshot.Handle, newSnap *snapshot.Handle) []*snapshot.Handle {
	var older []*snapshot.Handle
	for _, s := range all {
		if s.Path() != newSnap.Path() && s.CreationTime().Before(newSnap.CreationTime()) {
			older = append(older, s)
		}
	}
	sort.SliceStable(older, func(i, j int) bool {
		return older[i].CreationTime().After(older[j].CreationTime())
	})
	return older
}

// Run executes one dedup pass against newSnap, which must already be
// fully written (log flushed, stats sidecar present).
func Run(fx effects.Port, allSnapshots []*snapshot.Handle, newSnap *snapshot.Handle, opts Options) error {
	st, err := newSnap.ReadStats()
	if err != nil {
		return fmt.Errorf("dedup: read new snapshot stats: %w", err)
	}
	if st.NumWrites == 0 || st.BytesWritten < opts.MinBytesForDedup {
		return nil
	}

	newFilesView, err := openAllFiles(newSnap)
	if err != nil {
		return fmt.Errorf("dedup: open new snapshot log: %w", err)
	}
	writesOnly, err := openNewFiles(newSnap)
	if err != nil {
		return fmt.Errorf("dedup: open new snapshot log: %w", err)
	}
	filter, err := amfilter.Build(writesOnly, uint(st.NumWrites))
	if err != nil {
		return fmt.Errorf("dedup: build membership filter: %w", err)
	}

	var pending []DedupCandidate
	for {
		e, ok := newFilesView.Next()
		if !ok {
			break
		}
		if !filter.Lookup(e.File.Xxh3) {
			continue
		}
		pending = append(pending, DedupCandidate{
			Key:        compareKey(e, opts.PreserveMtime),
			WantsDedup: e.Kind == logcodec.KindWrite,
			AbsPath:    newSnap.AbsPath(e.File.Path.String()),
		})
	}
	if err := newFilesView.Err(); err != nil {
		return fmt.Errorf("dedup: stream new snapshot log: %w", err)
	}

	older := olderSnapshots(allSnapshots, newSnap)
	if opts.PreserveMtime {
		older = scopeByMtimeOverlap(older, st.MtimesWritten())
	}

	for len(pending) > 0 {
		var popped *snapshot.Handle
		if len(older) > 0 {
			popped = older[0]
			older = older[1:]
		}
		isFinalPass := popped == nil

		if popped != nil {
			view, err := openAllFiles(popped)
			if err != nil {
				return fmt.Errorf("dedup: open snapshot %s log: %w", popped.Path(), err)
			}
			for {
				e, ok := view.Next()
				if !ok {
					break
				}
				if !filter.Lookup(e.File.Xxh3) {
					continue
				}
				pending = append(pending, DedupCandidate{
					Key:        compareKey(e, opts.PreserveMtime),
					WantsDedup: false,
					AbsPath:    popped.AbsPath(e.File.Path.String()),
				})
			}
			if err := view.Err(); err != nil {
				return fmt.Errorf("dedup: stream snapshot %s log: %w", popped.Path(), err)
			}
		}

		pending = processRound(fx, pending, isFinalPass, opts)
	}

	return nil
}

// processRound sorts candidates, groups by key, resolves each group, and
// returns the candidates that survive (carried, target-only groups) into
// the next iteration.
func processRound(fx effects.Port, candidates []DedupCandidate, isFinalPass bool, opts Options) []DedupCandidate {
	sort.SliceStable(candidates, func(i, j int) bool {
		if !equal(candidates[i].Key, candidates[j].Key) {
			return less(candidates[i].Key, candidates[j].Key)
		}
		return !candidates[i].WantsDedup && candidates[j].WantsDedup
	})

	var carried []DedupCandidate
	i := 0
	for i < len(candidates) {
		j := i + 1
		for j < len(candidates) && equal(candidates[j].Key, candidates[i].Key) {
			j++
		}
		group := candidates[i:j]
		carried = append(carried, resolveGroup(fx, group, isFinalPass, opts)...)
		i = j
	}
	return carried
}

// resolveGroup applies spec.md §4.H's three-way group rule.
func resolveGroup(fx effects.Port, group []DedupCandidate, isFinalPass bool, opts Options) []DedupCandidate {
	hasAnchor, hasTarget := false, false
	for _, c := range group {
		if c.WantsDedup {
			hasTarget = true
		} else {
			hasAnchor = true
		}
	}

	switch {
	case !hasTarget:
		// All anchors, no target: discard — probably a filter false positive.
		return nil
	case !hasAnchor && !isFinalPass:
		// All targets, more older snapshots remain: try again next round.
		return append([]DedupCandidate(nil), group...)
	default:
		// Anchor present, or this is the final pass and the first target
		// stands in as the anchor (sorted ascending by (key, WantsDedup),
		// so index 0 is the anchor whenever one exists).
		anchor := group[0]
		for _, c := range group[1:] {
			if !c.WantsDedup {
				continue
			}
			verifyAndLink(fx, anchor.AbsPath, c.AbsPath, anchor.Key, c.Key, opts)
		}
		return nil
	}
}

// verifyAndLink verifies target against anchor and, if it survives,
// atomically replaces target's content with a hard link to anchor.
func verifyAndLink(fx effects.Port, anchorPath, targetPath string, anchorKey, targetKey CompareKey, opts Options) {
	meta, err := fx.SymlinkMetadata(targetPath)
	if err != nil {
		return
	}
	if meta.Size != targetKey.Size {
		return
	}
	if opts.PreserveMtime && anchorKey.MtimeForComparison != targetKey.MtimeForComparison {
		return
	}
	if opts.DeepCompare {
		same, err := deepCompare(fx, anchorPath, targetPath)
		if err != nil || !same {
			return
		}
	}

	if err := atomicReplace(fx, anchorPath, targetPath); err != nil {
		fx.Commentln(fmt.Sprintf("dedup: failed to link %s to %s: %v", targetPath, anchorPath, err))
	}
}

func deepCompare(fx effects.Port, a, b string) (bool, error) {
	fa, err := fx.OpenRead(a)
	if err != nil {
		return false, err
	}
	defer fa.Close()
	fb, err := fx.OpenRead(b)
	if err != nil {
		return false, err
	}
	defer fb.Close()

	const bufSize = 64 * 1024
	ba := make([]byte, bufSize)
	bb := make([]byte, bufSize)
	for {
		na, erra := io.ReadFull(fa, ba)
		nb, errb := io.ReadFull(fb, bb)
		if na != nb || !bytes.Equal(ba[:na], bb[:nb]) {
			return false, nil
		}
		doneA := erra == io.EOF || erra == io.ErrUnexpectedEOF
		doneB := errb == io.EOF || errb == io.ErrUnexpectedEOF
		if doneA != doneB {
			return false, nil
		}
		if doneA {
			return true, nil
		}
		if erra != nil {
			return false, erra
		}
		if errb != nil {
			return false, errb
		}
	}
}

// atomicReplace hard-links anchor to a scratch path beside target, then
// renames the scratch path over target. Numeric ".as_link[.N]" suffixes
// are probed first; if an implausible number of them are already taken,
// a uuid-derived suffix guarantees a free name without an unbounded loop.
func atomicReplace(fx effects.Port, anchorPath, target string) error {
	dir, base := splitPath(target)
	const maxNumericProbes = 1000

	tmp := joinPath(dir, base+".as_link")
	for n := 1; pathTaken(fx, tmp) && n <= maxNumericProbes; n++ {
		tmp = joinPath(dir, fmt.Sprintf("%s.as_link.%d", base, n))
	}
	if pathTaken(fx, tmp) {
		tmp = joinPath(dir, fmt.Sprintf("%s.as_link.%s", base, uuid.NewString()))
	}

	if err := fx.HardLink(anchorPath, tmp); err != nil {
		return fmt.Errorf("hard link anchor to scratch path: %w", err)
	}
	if err := fx.Rename(tmp, target); err != nil {
		_ = fx.RemoveFile(tmp)
		return fmt.Errorf("rename scratch path over target: %w", err)
	}
	return nil
}

func pathTaken(fx effects.Port, path string) bool {
	_, err := fx.SymlinkMetadata(path)
	return err == nil
}

func splitPath(path string) (dir, base string) {
	i := len(path) - 1
	for i >= 0 && path[i] != '/' {
		i--
	}
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

func compareKey(e logcodec.Entry, preserveMtime bool) CompareKey {
	mtime := int64(0)
	if preserveMtime {
		mtime = e.File.Mtime
	}
	return CompareKey{MtimeForComparison: mtime, Size: e.File.Size, Hash: e.File.Xxh3}
}

// scopeByMtimeOverlap prunes older to only the snapshots whose recorded
// mtime interval overlaps written (the new snapshot's mtimes_written).
// Snapshots with unreadable stats are kept conservatively (spec.md §4.H).
func scopeByMtimeOverlap(older []*snapshot.Handle, written stats.Interval) []*snapshot.Handle {
	var scoped []*snapshot.Handle
	for _, s := range older {
		st, err := s.ReadStats()
		if err != nil {
			scoped = append(scoped, s)
			continue
		}
		if st.Mtimes().Overlaps(written) {
			scoped = append(scoped, s)
		}
	}
	return scoped
}

func openAllFiles(h *snapshot.Handle) (*logstream.Peekable, error) {
	r, err := h.OpenLog()
	if err != nil {
		return nil, err
	}
	return logstream.AllFiles(logstream.FromReader(r)), nil
}

func openNewFiles(h *snapshot.Handle) (*logstream.Peekable, error) {
	r, err := h.OpenLog()
	if err != nil {
		return nil, err
	}
	return logstream.NewFiles(logstream.FromReader(r)), nil
}
