// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package logcodec

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/strongdm/biu/internal/stats"
)

// Writer appends backup-log records to a file and accumulates stats as it
// goes, exactly as original_source's BackupLogWriter does: each report_*
// call both writes one record and updates the in-memory counters.
type Writer struct {
	w    *bufio.Writer
	f    *os.File
	acc  *stats.Accumulator
	done bool
}

// NewWriter creates (truncating if necessary) the log file at path and
// returns a buffered, append-only Writer.
func NewWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create backup log: %w", err)
	}
	return &Writer{
		w:   bufio.NewWriter(f),
		f:   f,
		acc: stats.NewAccumulator(),
	}, nil
}

// ReportWrite emits a Write record and updates stats.
func (w *Writer) ReportWrite(path LogPath, hash uint64, mtime int64, size uint64) error {
	w.acc.ReportWrite(size, mtime)
	return w.writeLine("w", path, hash, mtime, size)
}

// ReportHardlink emits a Link record and updates stats.
func (w *Writer) ReportHardlink(path LogPath, hash uint64, mtime int64, size uint64) error {
	w.acc.ReportLink(mtime)
	return w.writeLine("l", path, hash, mtime, size)
}

// ReportDelete emits a Delete record and updates stats. size is the real
// size of the deleted file for stats purposes; per spec.md §4.A / Open
// Question 1, the wire record for a delete always carries a literal 0 in
// the hash/mtime/size fields — DeleteData.Size is informational only.
func (w *Writer) ReportDelete(path LogPath, size uint64) error {
	w.acc.ReportDelete(size)
	return w.writeLine("d", path, 0, 0, 0)
}

func (w *Writer) writeLine(op string, path LogPath, hash uint64, mtime int64, size uint64) error {
	if _, err := fmt.Fprintf(w.w, "%s;%x;%d;%d;%d;", op, hash, mtime, size, len(path)); err != nil {
		return err
	}
	if _, err := w.w.Write(path.Bytes()); err != nil {
		return err
	}
	_, err := w.w.Write([]byte{'\n'})
	return err
}

// Finalize flushes the buffered writer, closes the file, stamps
// backup_end_mtime, and returns the final Stats. Spec.md §5 requires the
// log writer to be flushed/closed before the stats sidecar is written.
func (w *Writer) Finalize() (*stats.Stats, error) {
	if w.done {
		return w.acc.Snapshot(), nil
	}
	w.done = true
	if err := w.w.Flush(); err != nil {
		w.f.Close()
		return nil, fmt.Errorf("flush backup log: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return nil, fmt.Errorf("close backup log: %w", err)
	}
	return w.acc.Finalize(), nil
}

var _ io.Closer = (*Writer)(nil)

// Close is an alias for a no-stats-returning finalize, satisfying
// io.Closer for callers that abandon a partial writer on error paths.
func (w *Writer) Close() error {
	_, err := w.Finalize()
	return err
}
