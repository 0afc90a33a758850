// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package logstream

import (
	"testing"

	"github.com/strongdm/biu/internal/logcodec"
)

func TestAllFilesViewSkipsDeletes(t *testing.T) {
	entries := []logcodec.Entry{
		logcodec.NewWrite(logcodec.NewLogPath("a"), 1, 1, 1),
		logcodec.NewDelete(logcodec.NewLogPath("b"), 0),
		logcodec.NewLink(logcodec.NewLogPath("c"), 2, 2, 2),
	}
	view := AllFiles(NewPeekable(NewSliceSource(entries)))

	var got []string
	for {
		e, ok := view.Next()
		if !ok {
			break
		}
		got = append(got, e.Path().String())
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("got %v", got)
	}
}

func TestNewFilesViewOnlyWrites(t *testing.T) {
	entries := []logcodec.Entry{
		logcodec.NewWrite(logcodec.NewLogPath("a"), 1, 1, 1),
		logcodec.NewLink(logcodec.NewLogPath("b"), 2, 2, 2),
	}
	view := NewFiles(NewPeekable(NewSliceSource(entries)))

	e, ok := view.Next()
	if !ok || e.Path().String() != "a" {
		t.Fatalf("expected only 'a', got %+v ok=%v", e, ok)
	}
	if _, ok := view.Next(); ok {
		t.Fatal("expected stream exhausted")
	}
}

func TestPeekableLookahead(t *testing.T) {
	entries := []logcodec.Entry{
		logcodec.NewWrite(logcodec.NewLogPath("a"), 1, 1, 1),
	}
	p := NewPeekable(NewSliceSource(entries))

	peeked, ok := p.Peek()
	if !ok || peeked.Path().String() != "a" {
		t.Fatalf("peek = %+v ok=%v", peeked, ok)
	}
	// Peek again must not consume.
	peeked2, ok2 := p.Peek()
	if !ok2 || peeked2.Path().String() != "a" {
		t.Fatalf("second peek = %+v ok=%v", peeked2, ok2)
	}
	next, ok3 := p.Next()
	if !ok3 || next.Path().String() != "a" {
		t.Fatalf("next = %+v ok=%v", next, ok3)
	}
	if _, ok4 := p.Next(); ok4 {
		t.Fatal("expected exhausted stream")
	}
}
