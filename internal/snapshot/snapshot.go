// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package snapshot implements the snapshot handle (spec.md §4.D): naming,
// locating, and opening the log and stats sidecar for a single snapshot
// directory.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/strongdm/biu/internal/logcodec"
	"github.com/strongdm/biu/internal/stats"
)

// nameLayout is the reference-time layout for snapshot directory names:
// YYYY-MM-DD_HH-MM. Formatting a fixed layout like this is a one-line
// stdlib call, so no date-formatting library is pulled in for it; see
// DESIGN.md for why that's the one ambient corner left on the standard
// library instead of a third-party package.
const nameLayout = "2006-01-02_15-04"

const (
	logFileName   = "backup.log"
	statsFileName = "backup.stats"
)

// Handle names, locates, and opens the log/stats of one snapshot.
type Handle struct {
	path         string
	creationTime time.Time
}

// Path returns the snapshot's absolute directory path.
func (h *Handle) Path() string { return h.path }

// CreationTime returns the timestamp parsed from (or assigned to) the
// snapshot's directory name.
func (h *Handle) CreationTime() time.Time { return h.creationTime }

// AbsPath joins a relative path onto this snapshot's directory.
func (h *Handle) AbsPath(rel string) string {
	return filepath.Join(h.path, rel)
}

// LogPath returns the absolute path of this snapshot's backup.log.
func (h *Handle) LogPath() string {
	return filepath.Join(h.path, logFileName)
}

// StatsPath returns the absolute path of this snapshot's backup.stats.
func (h *Handle) StatsPath() string {
	return filepath.Join(h.path, statsFileName)
}

// OpenLog opens a forward-only reader over this snapshot's backup log.
func (h *Handle) OpenLog() (*logcodec.Reader, error) {
	return logcodec.OpenReader(h.LogPath())
}

// LogWriter creates a fresh backup-log writer for this (not-yet-populated)
// snapshot.
func (h *Handle) LogWriter() (*logcodec.Writer, error) {
	return logcodec.NewWriter(h.LogPath())
}

// ReadStats reads this snapshot's stats sidecar. Returns an error if the
// file is missing or unparseable — callers that need to tolerate a
// partial snapshot (spec.md §3 "Lifecycle") should check
// errors.Is(err, fs.ErrNotExist) explicitly (the error is wrapped, so
// os.IsNotExist does not see it) and treat it as "no stats" rather than a
// hard failure.
func (h *Handle) ReadStats() (*stats.Stats, error) {
	return stats.ReadFile(h.StatsPath())
}

// HasStats reports whether a readable stats sidecar exists. A snapshot
// without one is either partial (no S1-complete backup_end_mtime) or
// simply missing the file.
func (h *Handle) HasStats() bool {
	_, err := h.ReadStats()
	return err == nil
}

// WriteStats persists the final stats sidecar for this snapshot.
func (h *Handle) WriteStats(s *stats.Stats) error {
	return stats.WriteFile(h.StatsPath(), s)
}

// FromExisting constructs a Handle from an already-existing directory,
// validating both that the directory exists and that its name parses as
// a snapshot timestamp.
func FromExisting(path string) (*Handle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat snapshot dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("snapshot path is not a directory: %s", path)
	}

	name := filepath.Base(path)
	t, err := parseName(name)
	if err != nil {
		return nil, fmt.Errorf("snapshot dir name %q does not parse as a timestamp: %w", name, err)
	}

	return &Handle{path: path, creationTime: t}, nil
}

// NewAtNow picks the current local time, formats it as YYYY-MM-DD_HH-MM,
// and if that path already exists under repoRoot, probes _1, _2, ... until
// a free name is found (spec.md §4.D).
func NewAtNow(repoRoot string) (*Handle, error) {
	now := time.Now()
	base := now.Format(nameLayout)

	candidate := filepath.Join(repoRoot, base)
	for n := 1; pathExists(candidate); n++ {
		candidate = filepath.Join(repoRoot, fmt.Sprintf("%s_%d", base, n))
	}

	return &Handle{path: candidate, creationTime: now}, nil
}

func pathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// parseName parses a snapshot directory's base name into a creation time,
// stripping an optional "_N" disambiguation suffix.
func parseName(name string) (time.Time, error) {
	base := name
	if idx := lastUnderscoreSuffix(name); idx >= 0 {
		base = name[:idx]
	}
	return time.ParseInLocation(nameLayout, base, time.Local)
}

// lastUnderscoreSuffix returns the index of a trailing "_<digits>"
// disambiguation suffix, or -1 if there is none. It tries the full name
// first (the common case with no suffix) so a legitimately-formatted
// timestamp is never mistaken for one with a suffix stripped.
func lastUnderscoreSuffix(name string) int {
	if _, err := time.ParseInLocation(nameLayout, name, time.Local); err == nil {
		return -1
	}
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '_' {
			suffix := name[i+1:]
			if suffix == "" {
				return -1
			}
			allDigits := true
			for _, c := range suffix {
				if c < '0' || c > '9' {
					allDigits = false
					break
				}
			}
			if allDigits {
				return i
			}
			return -1
		}
	}
	return -1
}
