// Copyright 2025 The pkzip Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pkzip

import (
	"io"
)

// Source is a random-access byte source the reader pulls ranges from. It
// abstracts over an open file handle (io.ReaderAt) and an in-memory buffer,
// so the rest of the reader never cares which one it has.
type Source interface {
	// ReadRange returns exactly length bytes starting at pos, or fails with
	// ErrUnexpectedEOF if fewer are available. A zero-length read always
	// succeeds without touching the underlying handle.
	ReadRange(pos, length int64) ([]byte, error)

	// Size returns the total size of the source in bytes.
	Size() int64
}

// fileSource is a Source backed by a positioned reader, e.g. an *os.File.
type fileSource struct {
	r    io.ReaderAt
	size int64
}

// NewFileSource wraps r, an io.ReaderAt of the given total size, as a Source.
func NewFileSource(r io.ReaderAt, size int64) Source {
	return &fileSource{r: r, size: size}
}

func (s *fileSource) Size() int64 { return s.size }

func (s *fileSource) ReadRange(pos, length int64) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	buf := make([]byte, length)
	n, err := s.r.ReadAt(buf, pos)
	if n == int(length) {
		return buf, nil
	}
	if err != nil && err != io.EOF {
		return nil, err
	}
	return nil, ErrUnexpectedEOF
}

// bufferSource is a Source backed by an in-memory byte slice.
type bufferSource struct {
	buf []byte
}

// NewBufferSource wraps buf as a Source. buf is not copied; callers must not
// mutate it while the Source is in use.
func NewBufferSource(buf []byte) Source {
	return &bufferSource{buf: buf}
}

func (s *bufferSource) Size() int64 { return int64(len(s.buf)) }

func (s *bufferSource) ReadRange(pos, length int64) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	if pos < 0 || length < 0 || pos+length > int64(len(s.buf)) {
		return nil, ErrUnexpectedEOF
	}
	return s.buf[pos : pos+length], nil
}
