// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package stats implements the per-snapshot stats sidecar: aggregate
// counters and mtime intervals, durable as a human-readable TOML key/value
// file (spec.md §4.C), using github.com/BurntSushi/toml the way
// original_source's backup_stats.rs uses the Rust toml crate.
package stats

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Interval is an inclusive [Lo, Hi] range. An interval with Lo > Hi is
// considered empty, matching original_source's utils/interval.rs.
type Interval struct {
	Lo int64
	Hi int64
}

// IsEmpty reports whether the interval has no valid bounds.
func (iv Interval) IsEmpty() bool {
	return iv.Lo > iv.Hi
}

// Overlaps reports whether iv and other share at least one point.
func (iv Interval) Overlaps(other Interval) bool {
	if iv.IsEmpty() || other.IsEmpty() {
		return false
	}
	return iv.Lo <= other.Hi && other.Lo <= iv.Hi
}

// Stats is the durable per-snapshot sidecar, keyed exactly by the field
// names in spec.md §3. Optional numerics use pointers so that "unset" is
// distinguishable from zero and is simply absent from the TOML output.
type Stats struct {
	NumWrites    int32 `toml:"num_writes"`
	NumHardlinks int32 `toml:"num_hardlinks"`
	NumDeletes   int32 `toml:"num_deletes"`

	BytesWritten uint64 `toml:"bytes_written"`
	BytesDeleted uint64 `toml:"bytes_deleted"`

	MinMtime *int64 `toml:"min_mtime,omitempty"`
	MaxMtime *int64 `toml:"max_mtime,omitempty"`

	MinMtimeWritten *int64 `toml:"min_mtime_written,omitempty"`
	MaxMtimeWritten *int64 `toml:"max_mtime_written,omitempty"`

	BackupBeginMtime uint64  `toml:"backup_begin_mtime"`
	BackupEndMtime   *uint64 `toml:"backup_end_mtime,omitempty"`
}

// Mtimes returns the [min_mtime, max_mtime] interval, or the canonical
// empty interval {1, 0} if unset (spec.md §4.C).
func (s *Stats) Mtimes() Interval {
	return Interval{Lo: derefOr(s.MinMtime, 1), Hi: derefOr(s.MaxMtime, 0)}
}

// MtimesWritten returns the [min_mtime_written, max_mtime_written] interval.
func (s *Stats) MtimesWritten() Interval {
	return Interval{Lo: derefOr(s.MinMtimeWritten, 1), Hi: derefOr(s.MaxMtimeWritten, 0)}
}

func derefOr(p *int64, def int64) int64 {
	if p == nil {
		return def
	}
	return *p
}

// Done reports whether the snapshot completed cleanly (invariant S1).
func (s *Stats) Done() bool {
	return s.BackupEndMtime != nil
}

// WriteFile persists stats as TOML, creating the file and writing it in
// one shot — spec.md §4.C does not require a temp-file rename here.
func WriteFile(path string, s *Stats) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create stats file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	return nil
}

// ReadFile parses a stats sidecar. Unknown keys are accepted for
// forward-compatibility (toml.Decode ignores fields with no struct tag
// match, which is the behavior spec.md §6 requires of readers).
func ReadFile(path string) (*Stats, error) {
	var s Stats
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return nil, fmt.Errorf("decode stats file %s: %w", path, err)
	}
	return &s, nil
}

// Accumulator tracks running stats while a backup log is being written.
// logcodec.Writer holds one and calls these on every report_* call,
// matching original_source's BackupLogWriter embedding a BackupStats.
type Accumulator struct {
	s Stats
}

// NewAccumulator starts a fresh accumulator stamped with the current time
// as backup_begin_mtime.
func NewAccumulator() *Accumulator {
	return &Accumulator{s: Stats{BackupBeginMtime: uint64(time.Now().Unix())}}
}

func (a *Accumulator) updateMtime(mtime int64) {
	if a.s.MinMtime == nil || mtime < *a.s.MinMtime {
		v := mtime
		a.s.MinMtime = &v
	}
	if a.s.MaxMtime == nil || mtime > *a.s.MaxMtime {
		v := mtime
		a.s.MaxMtime = &v
	}
}

func (a *Accumulator) updateMtimeWritten(mtime int64) {
	if a.s.MinMtimeWritten == nil || mtime < *a.s.MinMtimeWritten {
		v := mtime
		a.s.MinMtimeWritten = &v
	}
	if a.s.MaxMtimeWritten == nil || mtime > *a.s.MaxMtimeWritten {
		v := mtime
		a.s.MaxMtimeWritten = &v
	}
}

// ReportWrite records a freshly-written file.
func (a *Accumulator) ReportWrite(size uint64, mtime int64) {
	a.s.NumWrites++
	a.s.BytesWritten += size
	a.updateMtime(mtime)
	a.updateMtimeWritten(mtime)
}

// ReportLink records a hard-linked (unchanged) file.
func (a *Accumulator) ReportLink(mtime int64) {
	a.s.NumHardlinks++
	a.updateMtime(mtime)
}

// ReportDelete records a path that existed previously but is now gone.
// size is the real size of the deleted file for stats purposes; it is not
// necessarily what ends up on the wire for the corresponding Delete log
// record (see logcodec's Open Question 1 handling).
func (a *Accumulator) ReportDelete(size uint64) {
	a.s.NumDeletes++
	a.s.BytesDeleted += size
}

// Finalize stamps backup_end_mtime and returns the final Stats snapshot.
func (a *Accumulator) Finalize() *Stats {
	end := uint64(time.Now().Unix())
	a.s.BackupEndMtime = &end
	out := a.s
	return &out
}

// Snapshot returns the current accumulated stats without finalizing.
// logcodec.Writer.Finalize returns it on calls after the first.
func (a *Accumulator) Snapshot() *Stats {
	out := a.s
	return &out
}
