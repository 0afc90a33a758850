// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package logcodec

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Field read limits (spec.md §4.A): exceeding any of these yields
// ErrInvalidData rather than silently truncating or looping forever on a
// corrupt log.
const (
	maxOpLen      = 10
	maxHexLen     = 30
	maxDecimalLen = 30
)

// ErrInvalidData is returned when a record is malformed: an unknown op
// byte, a field exceeding its length limit, or unparseable numerics.
var ErrInvalidData = errors.New("logcodec: invalid data")

// Reader is a forward-only cursor over a backup log, yielding one Entry
// per call to Next until io.EOF.
type Reader struct {
	r *bufio.Reader
	f *os.File
}

// OpenReader opens the backup log at path for sequential reading.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open backup log: %w", err)
	}
	return &Reader{r: bufio.NewReader(f), f: f}, nil
}

// NewReader wraps an already-open io.Reader (used by tests).
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Close releases the underlying file, if any.
func (r *Reader) Close() error {
	if r.f == nil {
		return nil
	}
	return r.f.Close()
}

// Next parses and returns the next log record, or io.EOF when the log is
// exhausted.
func (r *Reader) Next() (Entry, error) {
	if _, err := r.r.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return Entry{}, io.EOF
		}
		return Entry{}, err
	}

	op, err := r.readField(maxOpLen)
	if err != nil {
		return Entry{}, err
	}
	hash, err := r.readHexU64()
	if err != nil {
		return Entry{}, err
	}
	mtime, err := r.readI64()
	if err != nil {
		return Entry{}, err
	}
	size, err := r.readU64()
	if err != nil {
		return Entry{}, err
	}
	pathLen, err := r.readU64()
	if err != nil {
		return Entry{}, err
	}
	path, err := r.readExact(int(pathLen))
	if err != nil {
		return Entry{}, err
	}
	// Skip the trailing newline separator; errors here are ignored per
	// spec.md §4.A ("Trailing \n is a convenience separator").
	_, _ = r.r.Discard(1)

	switch op {
	case "w":
		return NewWrite(LogPath(path), hash, mtime, size), nil
	case "l":
		return NewLink(LogPath(path), hash, mtime, size), nil
	case "d":
		return NewDelete(LogPath(path), size), nil
	default:
		return Entry{}, fmt.Errorf("%w: unknown op %q", ErrInvalidData, op)
	}
}

// readField reads bytes up to the next ';' delimiter, failing if more
// than limit bytes are consumed before the delimiter appears.
func (r *Reader) readField(limit int) (string, error) {
	var sb strings.Builder
	for {
		b, err := r.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", fmt.Errorf("%w: unexpected eof reading field", io.ErrUnexpectedEOF)
			}
			return "", err
		}
		if b == ';' {
			return sb.String(), nil
		}
		sb.WriteByte(b)
		if sb.Len() > limit {
			return "", fmt.Errorf("%w: field exceeds %d bytes without delimiter", ErrInvalidData, limit)
		}
	}
}

func (r *Reader) readExact(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: unexpected eof reading path", io.ErrUnexpectedEOF)
		}
		return nil, err
	}
	return buf, nil
}

func (r *Reader) readHexU64() (uint64, error) {
	s, err := r.readField(maxHexLen)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.TrimSpace(s), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: expected hex string: %v", ErrInvalidData, err)
	}
	return v, nil
}

func (r *Reader) readU64() (uint64, error) {
	s, err := r.readField(maxDecimalLen)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: expected unsigned int: %v", ErrInvalidData, err)
	}
	return v, nil
}

func (r *Reader) readI64() (int64, error) {
	s, err := r.readField(maxDecimalLen)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: expected signed int: %v", ErrInvalidData, err)
	}
	return v, nil
}
