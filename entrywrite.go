// Copyright 2025 The pkzip Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pkzip

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/pkzip/pkzip/internal/record"
)

// countingHasher taps a stream to accumulate CRC-32 and byte count while
// passing every chunk through unchanged, the core of the entry write
// pipeline's stored-method tap.
type countingHasher struct {
	r     io.Reader
	crc   uint32
	count uint64
}

func (c *countingHasher) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.crc = crc32.Update(c.crc, crc32.IEEETable, p[:n])
		c.count += uint64(n)
	}
	return n, err
}

// countingWriter counts bytes written to dest, used to measure the
// compressed byte count produced by a Compressor.
type countingWriter struct {
	dest  io.Writer
	count int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.dest.Write(p)
	c.count += int64(n)
	return n, err
}

// emitLocalHeader writes e's local file header to dst, in ZIP64 form when
// the entry is forced, streamed with unknown sizes, or oversized. Returns
// the number of bytes written.
func emitLocalHeader(dst io.Writer, e *writeEntry) (int64, error) {
	zip64 := e.localHeaderZip64()

	flags := uint16(gpBitUTF8)
	if !e.crcAndSizeKnown {
		flags |= gpBitUnknownSizes
	}

	h := record.LocalFileHeader{
		VersionNeededToExtract: versionNeededToExtract(zip64),
		GeneralPurposeBitFlag:  flags,
		CompressionMethod:      uint16(e.method),
		LastModFileDate:        e.modDate,
		LastModFileTime:        e.modTime,
		FileName:               e.name,
	}

	if e.crcAndSizeKnown {
		h.CRC32 = e.crc32
	}

	if zip64 {
		h.CompressedSize = maxUint32
		h.UncompressedSize = maxUint32

		var uSize, cSize uint64
		if e.crcAndSizeKnown {
			uSize, cSize = e.uncompressedSize, e.compressedSize
		}
		payload := make([]byte, 16)
		binary.LittleEndian.PutUint64(payload[0:8], uSize)
		binary.LittleEndian.PutUint64(payload[8:16], cSize)
		h.ExtraField = record.BuildExtraFieldEntry(record.Zip64ExtraFieldTag, payload)
	} else if e.crcAndSizeKnown {
		h.CompressedSize = uint32(e.compressedSize)
		h.UncompressedSize = uint32(e.uncompressedSize)
	}

	buf := h.Encode()
	n, err := dst.Write(buf)
	return int64(n), err
}

// streamBody pushes src through the CRC/size tap and, for Deflated entries,
// a compressor, writing the result to dst. It returns the observed CRC-32,
// uncompressed byte count, and compressed byte count.
func streamBody(dst io.Writer, src io.Reader, method CompressionMethod, compressor Compressor) (crc uint32, uncompressed, compressed uint64, err error) {
	counted := &countingHasher{r: src}
	cw := &countingWriter{dest: dst}

	if method == Stored {
		if _, err := io.Copy(cw, counted); err != nil {
			return 0, 0, 0, err
		}
		return counted.crc, counted.count, uint64(cw.count), nil
	}

	if _, err := compressor.Compress(cw, counted); err != nil {
		return 0, 0, 0, err
	}
	return counted.crc, counted.count, uint64(cw.count), nil
}

// emitDataDescriptor writes the trailing data descriptor for an entry whose
// CRC/sizes were unknown when its local header was written. zip64 must
// match the local header's own encoding: a streamed entry's local header is
// always ZIP64 form, since unknown sizes alone force it, so its data
// descriptor follows in the matching 24-byte ZIP64 form regardless of the
// sizes observed once the data has flowed through.
func emitDataDescriptor(dst io.Writer, crc uint32, uncompressed, compressed uint64, zip64 bool) (int64, error) {
	dd := record.DataDescriptor{CRC32: crc, CompressedSize: compressed, UncompressedSize: uncompressed}
	buf := dd.Encode(zip64)
	n, err := dst.Write(buf)
	return int64(n), err
}

// buildCentralDirectoryRecord renders e's cataloguing record, in ZIP64 form
// when the force flag or a size/offset threshold demands it: the three
// ZIP64 fields appear in order uncompressed, compressed, offset. The
// unknown-sizes flag bit is set iff the entry was streamed without
// pre-known sizes, even though the catalogued sizes are exact by now.
func buildCentralDirectoryRecord(e *writeEntry) record.CentralDirectory {
	zip64 := e.centralZip64()

	flags := uint16(gpBitUTF8)
	if !e.crcAndSizeKnown {
		flags |= gpBitUnknownSizes
	}

	cd := record.CentralDirectory{
		VersionMadeBy:          uint16(e.hostSystem)<<8 | zipSpecVersion,
		VersionNeededToExtract: versionNeededToExtract(zip64 || !e.crcAndSizeKnown),
		GeneralPurposeBitFlag:  flags,
		CompressionMethod:      uint16(e.method),
		LastModFileDate:        e.modDate,
		LastModFileTime:        e.modTime,
		CRC32:                  e.crc32,
		ExternalFileAttributes: e.externalAttrs,
		FileName:               e.name,
		Comment:                e.comment,
	}

	if zip64 {
		cd.CompressedSize = maxUint32
		cd.UncompressedSize = maxUint32
		cd.LocalHeaderOffset = maxUint32

		payload := make([]byte, 24)
		binary.LittleEndian.PutUint64(payload[0:8], e.uncompressedSize)
		binary.LittleEndian.PutUint64(payload[8:16], e.compressedSize)
		binary.LittleEndian.PutUint64(payload[16:24], e.relativeOffsetOfLocalHeader)
		cd.ExtraField = map[uint16][]byte{
			record.Zip64ExtraFieldTag: record.BuildExtraFieldEntry(record.Zip64ExtraFieldTag, payload),
		}
	} else {
		cd.CompressedSize = uint32(e.compressedSize)
		cd.UncompressedSize = uint32(e.uncompressedSize)
		cd.LocalHeaderOffset = uint32(e.relativeOffsetOfLocalHeader)
	}

	return cd
}

// errEOCDRSignatureInComment is returned when an archive comment contains
// the literal EOCDR signature, which would make the trailing-window search
// ambiguous.
var errEOCDRSignatureInComment = fmt.Errorf("%w: comment contains EOCDR signature bytes", ErrCommentHasEOCDRSignature)

func validateArchiveComment(comment string) error {
	const sig = "\x50\x4B\x05\x06"
	for i := 0; i+4 <= len(comment); i++ {
		if comment[i:i+4] == sig {
			return errEOCDRSignatureInComment
		}
	}
	return nil
}
