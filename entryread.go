// Copyright 2025 The pkzip Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pkzip

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/pkzip/pkzip/internal/record"
)

// StreamOptions configures one invocation of a StreamFactory.
type StreamOptions struct {
	// Start and End address the compressed byte range to read, in
	// [0, entry.CompressedSize]. Both zero means the whole entry. Non-zero
	// ranges are rejected together with Decompress: a partial range of
	// compressed bytes cannot be meaningfully decompressed.
	Start, End int64

	// Decompress, when true (the default via DefaultStreamOptions), inflates
	// deflate-method entries. Stored entries are unaffected either way.
	Decompress bool

	// ValidateData, when true (the default), wraps the stream in a
	// validating tap that checks CRC-32 and byte count at end-of-stream.
	ValidateData bool

	// Decompressors overrides the method-to-Decompressor registry; nil uses
	// the built-in Stored/Deflated decompressors.
	Decompressors map[CompressionMethod]Decompressor
}

// DefaultStreamOptions returns the typical full-entry, decompressed,
// validated read.
func DefaultStreamOptions() StreamOptions {
	return StreamOptions{Decompress: true, ValidateData: true}
}

// EntryReader is the open stream for one archive entry, composed of a
// byte-range read, an optional inflate stage, and an optional validating
// tap.
type EntryReader struct {
	r      io.Reader
	closer io.Closer
}

func (er *EntryReader) Read(p []byte) (int, error) { return er.r.Read(p) }

// Close releases the inflate stage's state, if one is active. It never
// invalidates the underlying Source.
func (er *EntryReader) Close() error {
	if er.closer != nil {
		return er.closer.Close()
	}
	return nil
}

// newEntryReader builds the read pipeline for entry: re-read the local
// header to discover the true file-data offset (the local header's name
// and extra-field lengths may differ from the central directory's), apply
// range semantics over the compressed bytes, then optionally inflate and
// validate.
func newEntryReader(src Source, entry *Entry, opts StreamOptions) (*EntryReader, error) {
	if entry.Encrypted {
		return nil, ErrEncrypted
	}

	localBuf, err := src.ReadRange(int64(entry.LocalHeaderOffset), 30)
	if err != nil {
		return nil, fmt.Errorf("%w: read local file header: %v", ErrFormat, err)
	}
	if binary.LittleEndian.Uint32(localBuf[0:4]) != record.LocalFileHeaderSignature {
		return nil, fmt.Errorf("%w: %w", ErrFormat, ErrSignature)
	}
	nameLen := int64(binary.LittleEndian.Uint16(localBuf[26:28]))
	extraLen := int64(binary.LittleEndian.Uint16(localBuf[28:30]))
	dataOffset := int64(entry.LocalHeaderOffset) + 30 + nameLen + extraLen

	start, end := opts.Start, opts.End
	if start == 0 && end == 0 {
		end = int64(entry.CompressedSize)
	}
	if start < 0 || end < start || end > int64(entry.CompressedSize) {
		return nil, ErrInvalidRange
	}
	isRangeRequest := start != 0 || end != int64(entry.CompressedSize)
	if isRangeRequest && opts.Decompress {
		return nil, fmt.Errorf("%w: cannot decompress a partial range", ErrInvalidRange)
	}

	rangeLen := end - start
	raw, err := src.ReadRange(dataOffset+start, rangeLen)
	if err != nil {
		return nil, fmt.Errorf("%w: read entry data: %v", ErrFormat, err)
	}

	var r io.Reader = bytes.NewReader(raw)
	var closer io.Closer

	if opts.Decompress {
		decomp := opts.Decompressors
		if decomp == nil {
			decomp = defaultDecompressors()
		}
		d, ok := decomp[entry.Method]
		if !ok {
			return nil, fmt.Errorf("%w: method %d", ErrAlgorithm, entry.Method)
		}
		rc, err := d.Decompress(r)
		if err != nil {
			return nil, err
		}
		r = rc
		closer = rc
	}

	if opts.ValidateData && !isRangeRequest {
		r = &checksumReader{
			r:            r,
			wantCRC:      entry.CRC32,
			wantSize:     entry.UncompressedSize,
		}
	}

	return &EntryReader{r: r, closer: closer}, nil
}

// checksumReader accumulates CRC-32 and byte count across a read, and
// validates both against the entry's recorded values at end-of-stream. It
// fails early, mid-stream, if more bytes are read than the entry declares.
type checksumReader struct {
	r        io.Reader
	crc      uint32
	read     uint64
	wantCRC  uint32
	wantSize uint64
}

func (c *checksumReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.crc = crc32.Update(c.crc, crc32.IEEETable, p[:n])
		c.read += uint64(n)
		if c.read > c.wantSize {
			return n, fmt.Errorf("%w: read past declared uncompressed size", ErrSizeMismatch)
		}
	}
	if err == io.EOF {
		if c.read != c.wantSize {
			return n, fmt.Errorf("%w: got %d bytes, want %d", ErrSizeMismatch, c.read, c.wantSize)
		}
		if c.crc != c.wantCRC {
			return n, fmt.Errorf("%w: got %08x, want %08x", ErrChecksum, c.crc, c.wantCRC)
		}
		return n, io.EOF
	}
	return n, err
}
