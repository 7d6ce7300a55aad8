// Copyright 2025 The pkzip Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pkzip

import (
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
)

// Compressor transforms a stream of uncompressed bytes into a stream of
// compressed bytes, the deflate stage of the entry write pipeline. It
// is the external collaborator interface the writer consumes; callers may
// supply their own for any method beyond stored/deflate.
type Compressor interface {
	Compress(dst io.Writer, src io.Reader) (compressedSize int64, err error)
}

// Decompressor does the reverse, for the entry read pipeline.
type Decompressor interface {
	Decompress(src io.Reader) (io.ReadCloser, error)
}

// storedCompressor implements CompressionMethod Stored: data passes
// through unchanged.
type storedCompressor struct{}

func (storedCompressor) Compress(dst io.Writer, src io.Reader) (int64, error) {
	return io.Copy(dst, src)
}

// deflateCompressor implements CompressionMethod Deflated using
// klauspost/compress, a drop-in faster DEFLATE than the standard library's
// compress/flate. Writers are pooled to avoid re-allocating the sliding
// window on every entry.
type deflateCompressor struct {
	level int
	pool  sync.Pool
}

// NewDeflateCompressor returns a Compressor using DEFLATE at level, which
// must be a valid flate.NewWriter level (flate.BestSpeed..flate.BestCompression,
// or flate.DefaultCompression).
func NewDeflateCompressor(level int) Compressor {
	c := &deflateCompressor{level: level}
	c.pool.New = func() any {
		w, _ := flate.NewWriter(io.Discard, c.level)
		return w
	}
	return c
}

func (c *deflateCompressor) Compress(dst io.Writer, src io.Reader) (int64, error) {
	w := c.pool.Get().(*flate.Writer)
	defer c.pool.Put(w)

	counted := &countingWriter{dest: dst}
	w.Reset(counted)
	if _, err := io.Copy(w, src); err != nil {
		return counted.count, err
	}
	if err := w.Close(); err != nil {
		return counted.count, err
	}
	return counted.count, nil
}

type storedDecompressor struct{}

func (storedDecompressor) Decompress(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(src), nil
}

type deflateDecompressor struct{}

func (deflateDecompressor) Decompress(src io.Reader) (io.ReadCloser, error) {
	return flate.NewReader(src), nil
}

// defaultCompressors returns the built-in Compressor for each supported
// CompressionMethod at the given deflate level.
func defaultCompressors(level int) map[CompressionMethod]Compressor {
	return map[CompressionMethod]Compressor{
		Stored:   storedCompressor{},
		Deflated: NewDeflateCompressor(level),
	}
}

// defaultDecompressors returns the built-in Decompressor for each supported
// CompressionMethod.
func defaultDecompressors() map[CompressionMethod]Decompressor {
	return map[CompressionMethod]Decompressor{
		Stored:   storedDecompressor{},
		Deflated: deflateDecompressor{},
	}
}
