// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package stats

import (
	"path/filepath"
	"testing"
)

func TestIntervalEmptyAndOverlaps(t *testing.T) {
	empty := Interval{Lo: 1, Hi: 0}
	if !empty.IsEmpty() {
		t.Error("expected {1, 0} to be empty")
	}

	a := Interval{Lo: 10, Hi: 20}
	b := Interval{Lo: 20, Hi: 30}
	if !a.Overlaps(b) {
		t.Error("expected touching intervals to overlap")
	}

	c := Interval{Lo: 21, Hi: 30}
	if a.Overlaps(c) {
		t.Error("expected disjoint intervals not to overlap")
	}
}

func TestAccumulatorReportsAndFinalizes(t *testing.T) {
	acc := NewAccumulator()
	acc.ReportWrite(100, 1000)
	acc.ReportWrite(50, 2000)
	acc.ReportLink(1500)
	acc.ReportDelete(25)

	mid := acc.Snapshot()
	if mid.Done() {
		t.Error("expected snapshot mid-flight to not be done")
	}
	if mid.NumWrites != 2 || mid.NumHardlinks != 1 || mid.NumDeletes != 1 {
		t.Fatalf("unexpected counters: %+v", mid)
	}
	if mid.BytesWritten != 150 || mid.BytesDeleted != 25 {
		t.Fatalf("unexpected byte totals: %+v", mid)
	}

	final := acc.Finalize()
	if !final.Done() {
		t.Error("expected finalized stats to be done")
	}
	if got := final.Mtimes(); got.Lo != 1000 || got.Hi != 2000 {
		t.Fatalf("Mtimes() = %+v, want {1000, 2000}", got)
	}
	if got := final.MtimesWritten(); got.Lo != 1000 || got.Hi != 2000 {
		t.Fatalf("MtimesWritten() = %+v, want {1000, 2000}", got)
	}
}

func TestStatsWithNoMtimesReportsEmptyInterval(t *testing.T) {
	s := &Stats{}
	iv := s.Mtimes()
	if !iv.IsEmpty() {
		t.Fatalf("expected empty interval for unset mtimes, got %+v", iv)
	}
}

func TestWriteFileThenReadFileRoundTrips(t *testing.T) {
	acc := NewAccumulator()
	acc.ReportWrite(42, 500)
	s := acc.Finalize()

	path := filepath.Join(t.TempDir(), "backup.stats")
	if err := WriteFile(path, s); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got.NumWrites != s.NumWrites || got.BytesWritten != s.BytesWritten {
		t.Fatalf("round-tripped stats = %+v, want %+v", got, s)
	}
	if !got.Done() {
		t.Error("expected round-tripped stats to report Done")
	}
}
