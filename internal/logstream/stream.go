// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package logstream provides lazy, forward-only, single-item-lookahead
// iteration over a snapshot's backup log, plus the two filtered views the
// incremental copier and dedup planner need (spec.md §4.B): all files
// present in the snapshot (Write+Link), and only freshly written files.
package logstream

import (
	"errors"
	"io"

	"github.com/strongdm/biu/internal/logcodec"
)

// Source is anything that yields log entries one at a time, satisfied by
// *logcodec.Reader. Kept as an interface so tests can supply canned entries
// without touching the filesystem.
type Source interface {
	Next() (logcodec.Entry, error)
}

// sliceSource adapts a fixed slice of entries to Source, used by tests and
// by the "no previous snapshot" empty-iterator case.
type sliceSource struct {
	entries []logcodec.Entry
	pos     int
}

// NewSliceSource builds a Source over canned entries.
func NewSliceSource(entries []logcodec.Entry) Source {
	return &sliceSource{entries: entries}
}

func (s *sliceSource) Next() (logcodec.Entry, error) {
	if s.pos >= len(s.entries) {
		return logcodec.Entry{}, io.EOF
	}
	e := s.entries[s.pos]
	s.pos++
	return e, nil
}

// Peekable wraps a Source with one-element lookahead. The merge in the
// incremental copier needs to inspect the next element before deciding
// whether to consume it; this wrapper is a buffered next/peek, not a clone
// of any underlying file handle (spec.md §9).
type Peekable struct {
	src     Source
	buf     logcodec.Entry
	bufErr  error
	hasBuf  bool
	drained bool
}

// NewPeekable wraps src.
func NewPeekable(src Source) *Peekable {
	return &Peekable{src: src}
}

func (p *Peekable) fill() {
	if p.hasBuf || p.drained {
		return
	}
	e, err := p.src.Next()
	if err != nil {
		p.bufErr = err
		p.drained = true
		return
	}
	p.buf = e
	p.hasBuf = true
}

// Peek returns the next entry without consuming it. ok is false once the
// stream is exhausted or has errored (see Err).
func (p *Peekable) Peek() (logcodec.Entry, bool) {
	p.fill()
	return p.buf, p.hasBuf
}

// Next consumes and returns the next entry.
func (p *Peekable) Next() (logcodec.Entry, bool) {
	p.fill()
	if !p.hasBuf {
		return logcodec.Entry{}, false
	}
	e := p.buf
	p.hasBuf = false
	return e, true
}

// Err returns the terminal error, if the stream ended due to something
// other than a clean io.EOF.
func (p *Peekable) Err() error {
	if errors.Is(p.bufErr, io.EOF) {
		return nil
	}
	return p.bufErr
}

// AllFiles filters a Peekable raw stream down to Write and Link entries
// only (files present in the snapshot), skipping Delete — spec.md §4.B's
// AllFilesView.
func AllFiles(p *Peekable) *Peekable {
	return NewPeekable(&filterSource{p: p, keep: func(e logcodec.Entry) bool { return e.IsFile() }})
}

// NewFiles filters a Peekable raw stream down to Write entries only —
// spec.md §4.B's NewFilesView.
func NewFiles(p *Peekable) *Peekable {
	return NewPeekable(&filterSource{p: p, keep: func(e logcodec.Entry) bool { return e.Kind == logcodec.KindWrite }})
}

type filterSource struct {
	p    *Peekable
	keep func(logcodec.Entry) bool
}

func (f *filterSource) Next() (logcodec.Entry, error) {
	for {
		e, ok := f.p.Next()
		if !ok {
			if err := f.p.Err(); err != nil {
				return logcodec.Entry{}, err
			}
			return logcodec.Entry{}, io.EOF
		}
		if f.keep(e) {
			return e, nil
		}
	}
}

// Empty returns a Peekable that yields nothing, used when there is no
// previous snapshot to merge against.
func Empty() *Peekable {
	return NewPeekable(NewSliceSource(nil))
}

// FromReader wraps a *logcodec.Reader as a Peekable raw stream.
func FromReader(r *logcodec.Reader) *Peekable {
	return NewPeekable(r)
}
