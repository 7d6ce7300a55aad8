// Copyright 2025 The pkzip Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pkzip

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/pkzip/pkzip/internal/record"
	"github.com/pkzip/pkzip/internal/sys"
)

// unicodePathExtraFieldTag is the Info-ZIP Unicode Path extra field id.
const unicodePathExtraFieldTag uint16 = 0x7075

const (
	gpBitEncrypted        = 0x0001
	gpBitUnknownSizes     = 0x0008
	gpBitStrongEncryption = 0x0040
	gpBitUTF8             = 0x0800
)

// Iterator walks an Archive's central directory lazily, one entry at a
// time. It is single-consumer: Next must not be called concurrently with
// itself on the same Iterator.
type Iterator struct {
	archive       *Archive
	cursor        uint64
	remaining     uint64
	decodeStrings bool
	err           error
}

// NewIterator returns an Iterator starting at the beginning of a's central
// directory. When decodeStrings is false, names and comments pass through
// as raw bytes reinterpreted as a Go string, bypassing both the UTF-8 and
// CP437 decode paths.
func (a *Archive) NewIterator(decodeStrings bool) *Iterator {
	return &Iterator{
		archive:       a,
		cursor:        a.centralDirectoryOffset,
		remaining:     a.entryCount,
		decodeStrings: decodeStrings,
	}
}

// StreamFactory produces independent read streams for one catalogued entry.
// It may be invoked any number of times, in any order, regardless of
// iteration order or iterator lifetime.
type StreamFactory func(opts StreamOptions) (*EntryReader, error)

// Next parses the entry at the iterator's current cursor and advances past
// it. It returns (nil, nil, false, nil) once the directory is exhausted,
// or a non-nil error if the directory is malformed or exhausted
// prematurely.
func (it *Iterator) Next() (*Entry, StreamFactory, bool, error) {
	if it.err != nil {
		return nil, nil, false, it.err
	}
	if it.remaining == 0 {
		return nil, nil, false, nil
	}

	entry, consumed, err := it.parseOne()
	if err != nil {
		it.err = err
		return nil, nil, false, err
	}

	it.cursor += consumed
	it.remaining--

	factory := func(opts StreamOptions) (*EntryReader, error) {
		return newEntryReader(it.archive.source, entry, opts)
	}
	return entry, factory, true, nil
}

func (it *Iterator) parseOne() (*Entry, uint64, error) {
	// Central directory entries are variable length; read the fixed 46
	// bytes first to learn the tail lengths, then read the whole record,
	// fixed part and tail together, once its total length is known.
	fixed, err := it.archive.source.ReadRange(int64(it.cursor), 46)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read central directory header: %v", ErrFormat, err)
	}
	if binary.LittleEndian.Uint32(fixed[0:4]) != record.CentralDirectorySignature {
		return nil, 0, fmt.Errorf("%w: %w", ErrFormat, ErrSignature)
	}
	nameLen := int64(binary.LittleEndian.Uint16(fixed[28:30]))
	extraLen := int64(binary.LittleEndian.Uint16(fixed[30:32]))
	commentLen := int64(binary.LittleEndian.Uint16(fixed[44:46]))

	total := 46 + nameLen + extraLen + commentLen
	full, err := it.archive.source.ReadRange(int64(it.cursor), total)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read central directory entry: %v", ErrFormat, err)
	}

	cd, err := record.ReadCentralDirEntry(bytes.NewReader(full))
	if err != nil {
		if errors.Is(err, record.ErrExtraFieldOverrun) {
			return nil, 0, fmt.Errorf("%w: %v", ErrExtraFieldOverrun, err)
		}
		return nil, 0, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	if cd.GeneralPurposeBitFlag&gpBitStrongEncryption != 0 {
		return nil, 0, ErrStrongEncryption
	}

	rawName := []byte(cd.FileName)

	entry := &Entry{
		Method:             CompressionMethod(cd.CompressionMethod),
		CRC32:              cd.CRC32,
		UncompressedSize:   uint64(cd.UncompressedSize),
		CompressedSize:     uint64(cd.CompressedSize),
		LocalHeaderOffset:  uint64(cd.LocalHeaderOffset),
		DiskNumberStart:    uint32(cd.DiskNumberStart),
		ExternalAttributes: cd.ExternalFileAttributes,
		HostSystem:         sys.HostSystem(cd.VersionMadeBy >> 8),
		Encrypted:          cd.GeneralPurposeBitFlag&gpBitEncrypted != 0,
		ModTime:            dosDateToTime(cd.LastModFileDate, cd.LastModFileTime),
	}

	if err := resolveZip64Fields(entry, cd); err != nil {
		return nil, 0, err
	}

	if it.decodeStrings {
		if cd.GeneralPurposeBitFlag&gpBitUTF8 != 0 {
			entry.Name = cd.FileName
			entry.Comment = cd.Comment
		} else {
			entry.Name = decodeCP437(rawName, 0, len(rawName))
			entry.Comment = decodeCP437([]byte(cd.Comment), 0, len(cd.Comment))
		}
		if unicodeName, ok := unicodePathFromExtra(cd.ExtraField, rawName); ok {
			entry.Name = unicodeName
		}
	} else {
		entry.Name = cd.FileName
		entry.Comment = cd.Comment
	}

	switch entry.Method {
	case Stored:
		entry.Compressed = CompressedFalse
	case Deflated:
		entry.Compressed = CompressedTrue
	default:
		entry.Compressed = CompressedUnknown
	}

	return entry, uint64(total), nil
}

// resolveZip64Fields promotes uncompressedSize/compressedSize/
// localHeaderOffset/diskNumberStart from the ZIP64 extra field, reading
// only the fields whose 32-bit counterpart actually held the sentinel
// value, in the fixed order the ZIP64 extra field always uses: uncompressed
// size, compressed size, local header offset, disk number start.
func resolveZip64Fields(entry *Entry, cd record.CentralDirectory) error {
	needsUncompressed := cd.UncompressedSize == maxUint32
	needsCompressed := cd.CompressedSize == maxUint32
	needsOffset := cd.LocalHeaderOffset == maxUint32
	needsDisk := cd.DiskNumberStart == maxUint16

	if !needsUncompressed && !needsCompressed && !needsOffset && !needsDisk {
		return nil
	}

	raw, ok := cd.ExtraField[record.Zip64ExtraFieldTag]
	if !ok || len(raw) < 4 {
		return fmt.Errorf("%w: zip64 extra field missing", ErrMissingZip64Record)
	}
	payload := raw[4:] // strip the {id, size} TLV prefix

	offset := 0
	need := func(n int) error {
		if offset+n > len(payload) {
			return fmt.Errorf("%w: zip64 extra field payload too short", ErrMissingZip64Record)
		}
		return nil
	}

	if needsUncompressed {
		if err := need(8); err != nil {
			return err
		}
		entry.UncompressedSize = binary.LittleEndian.Uint64(payload[offset : offset+8])
		offset += 8
	}
	if needsCompressed {
		if err := need(8); err != nil {
			return err
		}
		entry.CompressedSize = binary.LittleEndian.Uint64(payload[offset : offset+8])
		offset += 8
	}
	if needsOffset {
		if err := need(8); err != nil {
			return err
		}
		entry.LocalHeaderOffset = binary.LittleEndian.Uint64(payload[offset : offset+8])
		offset += 8
	}
	if needsDisk {
		if err := need(4); err != nil {
			return err
		}
		entry.DiskNumberStart = binary.LittleEndian.Uint32(payload[offset : offset+4])
		offset += 4
	}

	return nil
}

// unicodePathFromExtra decodes the Info-ZIP Unicode Path extra field (id
// 0x7075: {version:u8, nameCrc:u32, utf8Name:[]u8}), accepting it only when
// version is 1 and nameCrc matches CRC-32 of the header's raw file name
// bytes.
func unicodePathFromExtra(fields map[uint16][]byte, rawName []byte) (string, bool) {
	raw, ok := fields[unicodePathExtraFieldTag]
	if !ok || len(raw) < 4 {
		return "", false
	}
	payload := raw[4:]
	if len(payload) < 5 {
		return "", false
	}
	if payload[0] != 1 {
		return "", false
	}
	nameCrc := binary.LittleEndian.Uint32(payload[1:5])
	if nameCrc != crc32.ChecksumIEEE(rawName) {
		return "", false
	}
	return string(payload[5:]), true
}
