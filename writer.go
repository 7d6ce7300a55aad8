// Copyright 2025 The pkzip Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pkzip

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pkzip/pkzip/internal/record"
	"github.com/pkzip/pkzip/internal/sys"
)

const maxBufferSize = 0x3FFFFFFF // largest buffer AddBuffer accepts

// Writer is a streaming ZIP producer: it emits a contiguous byte sequence
// to an io.Writer sink while tracking an output cursor and the list of
// entries it has committed. All public methods are serialized through an
// internal mutex acting as a FIFO latch: later calls observe every earlier
// call's cursor update and output bytes before they run, giving strict
// FIFO of AddX calls on one Writer.
type Writer struct {
	mu sync.Mutex

	sink   io.Writer
	cursor uint64

	entries   []*writeEntry
	finalized bool
	failed    error

	forceZip64   bool
	deflateLevel int
	compressors  map[CompressionMethod]Compressor
	hostSystem   sys.HostSystem
}

// WriterOption configures a Writer at construction time.
type WriterOption func(*Writer)

// WithCursor seeds the output cursor, for append-mode writers whose sink
// already has cursor bytes written to it (e.g. appending to an existing
// file opened for write at that offset).
func WithCursor(cursor uint64) WriterOption {
	return func(w *Writer) { w.cursor = cursor }
}

// WithForceZip64 forces every local header, central directory record, and
// the archive trailer into ZIP64 form regardless of size thresholds.
func WithForceZip64(force bool) WriterOption {
	return func(w *Writer) { w.forceZip64 = force }
}

// WithDeflateLevel sets the DEFLATE level used by the built-in deflate
// Compressor (ignored if WithCompressors is also supplied).
func WithDeflateLevel(level int) WriterOption {
	return func(w *Writer) { w.deflateLevel = level }
}

// WithCompressors overrides the method-to-Compressor registry.
func WithCompressors(compressors map[CompressionMethod]Compressor) WriterOption {
	return func(w *Writer) { w.compressors = compressors }
}

// NewWriter returns a Writer that emits its output to sink.
func NewWriter(sink io.Writer, opts ...WriterOption) *Writer {
	w := &Writer{
		sink:         sink,
		deflateLevel: 6,
		hostSystem:   sys.HostSystemUNIX,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.compressors == nil {
		w.compressors = defaultCompressors(w.deflateLevel)
	}
	return w
}

// AddOptions configures one entry addition.
type AddOptions struct {
	Mode       uint32 // POSIX permission bits, placed in the high 16 of external attrs
	ModTime    time.Time
	Method     CompressionMethod // Stored or Deflated; Stored is the zero value
	Comment    string
	ForceZip64 bool

	// DeclaredCRC32, DeclaredUncompressedSize, DeclaredCompressedSize let
	// AddReadStream skip recomputation; the produced stream must match or
	// the add fails with ErrDeclaredSizeMismatch.
	DeclaredCRC32            *uint32
	DeclaredUncompressedSize *uint64
	DeclaredCompressedSize   *uint64
}

func (w *Writer) checkNotFinalized() error {
	if w.finalized {
		return ErrWriterFinalized
	}
	if w.failed != nil {
		return w.failed
	}
	return nil
}

func (w *Writer) fail(err error) error {
	w.failed = err
	return err
}

func (w *Writer) validateOptions(name, comment string, mode uint32) error {
	if len(name) > maxUint16 {
		return ErrNameTooLong
	}
	if len(comment) > maxUint16 {
		return ErrCommentTooLong
	}
	if mode > maxUint16 {
		return ErrInvalidMode
	}
	return nil
}

func (w *Writer) newEntry(name string, isDir bool, opts AddOptions) (*writeEntry, error) {
	if err := w.validateOptions(name, opts.Comment, opts.Mode); err != nil {
		return nil, err
	}
	clean, err := sanitizePath(name, isDir)
	if err != nil {
		return nil, err
	}

	modDate, modTime := timeToDOSDate(opts.ModTime)

	var extAttrs uint32
	if isDir {
		extAttrs = (uint32(sys.S_IFDIR|0755) << 16) | 0x10
	} else {
		mode := opts.Mode
		if mode == 0 {
			mode = 0644
		}
		extAttrs = uint32(sys.S_IFREG|mode) << 16
	}

	return &writeEntry{
		name:          clean,
		modDate:       modDate,
		modTime:       modTime,
		externalAttrs: extAttrs,
		method:        opts.Method,
		comment:       opts.Comment,
		forceZip64:    opts.ForceZip64 || w.forceZip64,
		hostSystem:    w.hostSystem,
	}, nil
}

// emitEntry runs the single entry-write protocol common to every
// data-bearing add: record the local-header offset, write the local
// header, stream the body, reconcile declared sizes, emit a data
// descriptor if needed, and append the entry to the committed list.
func (w *Writer) emitEntry(e *writeEntry, body io.Reader, known bool, declaredCRC *uint32, declaredU, declaredC *uint64) (*writeEntry, error) {
	e.relativeOffsetOfLocalHeader = w.cursor
	e.crcAndSizeKnown = known

	compressor, ok := w.compressors[e.method]
	if !ok {
		return nil, fmt.Errorf("%w: method %d", ErrAlgorithm, e.method)
	}

	n, err := emitLocalHeader(w.sink, e)
	if err != nil {
		return nil, w.fail(err)
	}
	w.cursor += uint64(n)

	crc, uSize, cSize, err := streamBody(w.sink, body, e.method, compressor)
	if err != nil {
		return nil, w.fail(err)
	}
	w.cursor += cSize

	if declaredCRC != nil && *declaredCRC != crc {
		return nil, w.fail(fmt.Errorf("%w: crc32", ErrDeclaredSizeMismatch))
	}
	if declaredU != nil && *declaredU != uSize {
		return nil, w.fail(fmt.Errorf("%w: uncompressed size", ErrDeclaredSizeMismatch))
	}
	if declaredC != nil && *declaredC != cSize {
		return nil, w.fail(fmt.Errorf("%w: compressed size", ErrDeclaredSizeMismatch))
	}

	e.crc32 = crc
	e.uncompressedSize = uSize
	e.compressedSize = cSize

	if !known {
		dn, err := emitDataDescriptor(w.sink, crc, uSize, cSize, e.localHeaderZip64())
		if err != nil {
			return nil, w.fail(err)
		}
		w.cursor += uint64(dn)
	}

	w.entries = append(w.entries, e)
	return e, nil
}

// emitPrecomputedEntry writes an entry whose CRC and sizes are fully known
// before its local header is emitted (a buffer add, a directory, or a raw
// re-emission from a source archive). The body is already in its on-disk
// form and is copied verbatim; the observed byte count must match the
// recorded compressed size, and for stored entries the observed CRC must
// match the recorded CRC.
func (w *Writer) emitPrecomputedEntry(e *writeEntry, body io.Reader) (*writeEntry, error) {
	e.relativeOffsetOfLocalHeader = w.cursor
	e.crcAndSizeKnown = true

	n, err := emitLocalHeader(w.sink, e)
	if err != nil {
		return nil, w.fail(err)
	}
	w.cursor += uint64(n)

	counted := &countingHasher{r: body}
	cw := &countingWriter{dest: w.sink}
	if _, err := io.Copy(cw, counted); err != nil {
		return nil, w.fail(err)
	}
	w.cursor += uint64(cw.count)

	if uint64(cw.count) != e.compressedSize {
		return nil, w.fail(fmt.Errorf("%w: compressed size: got %d, want %d", ErrDeclaredSizeMismatch, cw.count, e.compressedSize))
	}
	if e.method == Stored && counted.crc != e.crc32 {
		return nil, w.fail(fmt.Errorf("%w: crc32: got %08x, want %08x", ErrDeclaredSizeMismatch, counted.crc, e.crc32))
	}

	w.entries = append(w.entries, e)
	return e, nil
}

// AddBuffer writes data as a new entry named name. The CRC is computed (and
// the buffer deflated, for a Deflated entry) before the local header is
// emitted, so the header carries final values and no data descriptor is
// produced.
func (w *Writer) AddBuffer(data []byte, name string, opts AddOptions) (*Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkNotFinalized(); err != nil {
		return nil, err
	}
	if len(data) > maxBufferSize {
		return nil, ErrBufferTooLarge
	}
	e, err := w.newEntry(name, false, opts)
	if err != nil {
		return nil, err
	}

	e.crc32 = crc32.ChecksumIEEE(data)
	e.uncompressedSize = uint64(len(data))

	body := data
	if e.method != Stored {
		compressor, ok := w.compressors[e.method]
		if !ok {
			return nil, fmt.Errorf("%w: method %d", ErrAlgorithm, e.method)
		}
		var compressed bytes.Buffer
		if _, err := compressor.Compress(&compressed, bytes.NewReader(data)); err != nil {
			return nil, w.fail(err)
		}
		body = compressed.Bytes()
	}
	e.compressedSize = uint64(len(body))

	written, err := w.emitPrecomputedEntry(e, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return entryFromWriteEntry(written), nil
}

// AddFile opens path, streams its contents as a new entry named name, and
// computes CRC/size as the data flows (so no pre-declared size is known,
// and the entry is emitted with a data descriptor).
func (w *Writer) AddFile(path, name string, opts AddOptions) (*Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if opts.ModTime.IsZero() {
		if fi, statErr := f.Stat(); statErr == nil {
			opts.ModTime = fi.ModTime()
		}
	}
	return w.AddFileHandle(f, name, opts)
}

// AddFileHandle streams r (an already-open handle) as a new entry.
func (w *Writer) AddFileHandle(r io.Reader, name string, opts AddOptions) (*Entry, error) {
	return w.AddReadStream(r, name, opts)
}

// AddReadStream streams r as a new entry. If opts declares CRC/sizes in
// advance, the local header is written with the declared values known up
// front, skipping the data-descriptor path; a produced value disagreeing
// with the declaration fails with ErrDeclaredSizeMismatch.
func (w *Writer) AddReadStream(r io.Reader, name string, opts AddOptions) (*Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkNotFinalized(); err != nil {
		return nil, err
	}
	e, err := w.newEntry(name, false, opts)
	if err != nil {
		return nil, err
	}

	// A header can only be written with final values when every field it
	// carries is declared; a deflated entry's compressed size cannot be
	// derived from the uncompressed one, so it must be declared explicitly.
	known := opts.DeclaredCRC32 != nil && opts.DeclaredUncompressedSize != nil &&
		(e.method == Stored || opts.DeclaredCompressedSize != nil)
	if known {
		e.crc32 = *opts.DeclaredCRC32
		e.uncompressedSize = *opts.DeclaredUncompressedSize
		if opts.DeclaredCompressedSize != nil {
			e.compressedSize = *opts.DeclaredCompressedSize
		} else {
			e.compressedSize = e.uncompressedSize
		}
	}

	written, err := w.emitEntry(e, r, known, opts.DeclaredCRC32, opts.DeclaredUncompressedSize, opts.DeclaredCompressedSize)
	if err != nil {
		return nil, err
	}
	return entryFromWriteEntry(written), nil
}

// AddDirectory emits a local header with zero data: CRC, sizes, and method
// are all zero/stored.
func (w *Writer) AddDirectory(name string, opts AddOptions) (*Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkNotFinalized(); err != nil {
		return nil, err
	}
	opts.Method = Stored
	e, err := w.newEntry(name, true, opts)
	if err != nil {
		return nil, err
	}

	written, err := w.emitPrecomputedEntry(e, bytes.NewReader(nil))
	if err != nil {
		return nil, err
	}
	return entryFromWriteEntry(written), nil
}

// AddEntry re-emits a catalogued entry from a source archive. When
// createReadStream is nil, the entry is recorded with its original
// LocalHeaderOffset for in-place modification (meaningful only when this
// writer's sink is backed by the same bytes the offset was taken from).
// Otherwise the factory is invoked with Decompress false and the source
// bytes are copied verbatim, with no re-inflate/re-deflate; the copy fails
// if the observed byte count disagrees with the catalogued compressed
// size, or, for a stored entry, if the observed CRC disagrees with the
// catalogued CRC.
func (w *Writer) AddEntry(src *Entry, createReadStream StreamFactory, opts AddOptions) (*Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkNotFinalized(); err != nil {
		return nil, err
	}

	if createReadStream == nil {
		e := &writeEntry{
			name:                        src.Name,
			comment:                     src.Comment,
			externalAttrs:               src.ExternalAttributes,
			crc32:                       src.CRC32,
			uncompressedSize:            src.UncompressedSize,
			compressedSize:              src.CompressedSize,
			method:                      src.Method,
			crcAndSizeKnown:             true,
			relativeOffsetOfLocalHeader: src.LocalHeaderOffset,
			forceZip64:                  opts.ForceZip64 || w.forceZip64,
			hostSystem:                  src.HostSystem,
		}
		e.modDate, e.modTime = timeToDOSDate(src.ModTime)
		w.entries = append(w.entries, e)
		return entryFromWriteEntry(e), nil
	}

	rc, err := createReadStream(StreamOptions{Decompress: false, ValidateData: false})
	if err != nil {
		return nil, err
	}

	opts.Comment = src.Comment
	if opts.ModTime.IsZero() {
		opts.ModTime = src.ModTime
	}

	e, err := w.newEntry(src.Name, src.IsDir(), opts)
	if err != nil {
		return nil, err
	}
	e.method = src.Method
	e.externalAttrs = src.ExternalAttributes
	e.crc32 = src.CRC32
	e.uncompressedSize = src.UncompressedSize
	e.compressedSize = src.CompressedSize

	written, err := w.emitPrecomputedEntry(e, rc)
	if err != nil {
		return nil, err
	}
	return entryFromWriteEntry(written), nil
}

// RemoveEntry removes e from the to-be-serialized central directory. It
// does not rewind the output cursor; e's bytes remain in the data area as
// dead weight.
func (w *Writer) RemoveEntry(e *Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkNotFinalized(); err != nil {
		return err
	}
	for i, we := range w.entries {
		if we.relativeOffsetOfLocalHeader == e.LocalHeaderOffset && we.name == e.Name {
			w.entries = append(w.entries[:i:i], w.entries[i+1:]...)
			return nil
		}
	}
	return ErrFileNotFound
}

// AddCentralDirectoryRecord writes one central-directory record per
// remaining entry, then the EOCDR (preceded by the ZIP64 EOCD record and
// locator when archive-level promotion applies). After
// this call the writer is finalized: further AddX calls fail.
func (w *Writer) AddCentralDirectoryRecord(comment string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkNotFinalized(); err != nil {
		return err
	}
	if len(comment) > maxUint16 {
		return ErrCommentTooLong
	}
	if err := validateArchiveComment(comment); err != nil {
		return w.fail(err)
	}

	dirStart := w.cursor
	for _, e := range w.entries {
		cd := buildCentralDirectoryRecord(e)
		buf := cd.Encode()
		if _, err := w.sink.Write(buf); err != nil {
			return w.fail(err)
		}
		w.cursor += uint64(len(buf))
	}
	dirSize := w.cursor - dirStart

	archiveZip64 := w.forceZip64 ||
		len(w.entries) >= maxUint16 ||
		dirSize >= maxUint32 ||
		dirStart >= maxUint32

	if archiveZip64 {
		zip64Start := w.cursor
		zip64Buf := record.EncodeZip64EndOfCentralDirRecord(uint64(len(w.entries)), dirSize, dirStart)
		if _, err := w.sink.Write(zip64Buf); err != nil {
			return w.fail(err)
		}
		w.cursor += uint64(len(zip64Buf))

		locatorBuf := record.EncodeZip64EndOfCentralDirLocator(zip64Start)
		if _, err := w.sink.Write(locatorBuf); err != nil {
			return w.fail(err)
		}
		w.cursor += uint64(len(locatorBuf))
	}

	eocdr := record.EncodeEndOfCentralDirRecord(len(w.entries), dirSize, dirStart, comment, w.forceZip64)
	if _, err := w.sink.Write(eocdr); err != nil {
		return w.fail(err)
	}
	w.cursor += uint64(len(eocdr))

	w.finalized = true
	return nil
}

// Close ends the output stream. For sinks that are also io.Closer (e.g. an
// *os.File), it closes them; otherwise it is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if c, ok := w.sink.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func entryFromWriteEntry(e *writeEntry) *Entry {
	compressed := CompressedFalse
	if e.method == Deflated {
		compressed = CompressedTrue
	}
	return &Entry{
		Name:               e.name,
		Comment:            e.comment,
		ModTime:            dosDateToTime(e.modDate, e.modTime),
		Method:             e.method,
		CRC32:              e.crc32,
		UncompressedSize:   e.uncompressedSize,
		CompressedSize:     e.compressedSize,
		LocalHeaderOffset:  e.relativeOffsetOfLocalHeader,
		ExternalAttributes: e.externalAttrs,
		HostSystem:         e.hostSystem,
		Compressed:         compressed,
	}
}
