// Copyright 2025 The pkzip Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package record implements the pure serialize/parse routines for every
// fixed-size structure in the PKWARE APPNOTE 6.3 ZIP format: the local
// file header, the data descriptor, the central directory file header,
// the end-of-central-directory record and its ZIP64 counterparts, and the
// extra-field TLV list. Nothing in this package touches a filesystem, a
// compressor, or a CRC: it only shuffles bytes in the layouts APPNOTE
// prescribes.
package record

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
)

// Signature values begin with the two-byte marker 0x4B50 ("PK") that
// identifies every ZIP record type.
const (
	LocalFileHeaderSignature             uint32 = 0x04034b50
	DataDescriptorSignature              uint32 = 0x08074b50
	CentralDirectorySignature            uint32 = 0x02014b50
	EndOfCentralDirSignature              uint32 = 0x06054b50
	Zip64EndOfCentralDirSignature         uint32 = 0x06064b50
	Zip64EndOfCentralDirLocatorSignature  uint32 = 0x07064b50
)

// ErrBadSignature is returned by every Read... routine when the leading
// 4-byte signature does not match the record type being parsed.
var ErrBadSignature = errors.New("record: bad signature")

// ErrExtraFieldOverrun is returned when an extra-field TLV entry's declared
// size runs past the end of the buffer.
var ErrExtraFieldOverrun = errors.New("record: extra field overruns buffer")

// Zip64ExtraFieldTag is the id of the ZIP64 Extended Information extra
// field, carrying 64-bit replacements for sentineled 32-bit fields.
const Zip64ExtraFieldTag uint16 = 0x0001

// LocalFileHeader is the 30-byte-fixed record preceding each entry's file
// data.
type LocalFileHeader struct {
	VersionNeededToExtract uint16
	GeneralPurposeBitFlag  uint16
	CompressionMethod      uint16
	LastModFileTime        uint16
	LastModFileDate        uint16
	CRC32                  uint32
	CompressedSize         uint32
	UncompressedSize       uint32
	FileName               string
	ExtraField             []byte
}

// Encode serializes h, including its variable-length file name and extra
// field tail.
func (h LocalFileHeader) Encode() []byte {
	nameLen := len(h.FileName)
	extraLen := len(h.ExtraField)
	buf := make([]byte, 30+nameLen+extraLen)

	binary.LittleEndian.PutUint32(buf[0:4], LocalFileHeaderSignature)
	binary.LittleEndian.PutUint16(buf[4:6], h.VersionNeededToExtract)
	binary.LittleEndian.PutUint16(buf[6:8], h.GeneralPurposeBitFlag)
	binary.LittleEndian.PutUint16(buf[8:10], h.CompressionMethod)
	binary.LittleEndian.PutUint16(buf[10:12], h.LastModFileTime)
	binary.LittleEndian.PutUint16(buf[12:14], h.LastModFileDate)
	binary.LittleEndian.PutUint32(buf[14:18], h.CRC32)
	binary.LittleEndian.PutUint32(buf[18:22], h.CompressedSize)
	binary.LittleEndian.PutUint32(buf[22:26], h.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[26:28], uint16(nameLen))
	binary.LittleEndian.PutUint16(buf[28:30], uint16(extraLen))
	copy(buf[30:], h.FileName)
	copy(buf[30+nameLen:], h.ExtraField)

	return buf
}

// ReadLocalFileHeader parses a local file header, including its variable
// tail, from src.
func ReadLocalFileHeader(src io.Reader) (LocalFileHeader, error) {
	var buf [30]byte
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return LocalFileHeader{}, fmt.Errorf("read local file header: %w", err)
	}
	if sig := binary.LittleEndian.Uint32(buf[0:4]); sig != LocalFileHeaderSignature {
		return LocalFileHeader{}, fmt.Errorf("%w: local file header", ErrBadSignature)
	}

	h := LocalFileHeader{
		VersionNeededToExtract: binary.LittleEndian.Uint16(buf[4:6]),
		GeneralPurposeBitFlag:  binary.LittleEndian.Uint16(buf[6:8]),
		CompressionMethod:      binary.LittleEndian.Uint16(buf[8:10]),
		LastModFileTime:        binary.LittleEndian.Uint16(buf[10:12]),
		LastModFileDate:        binary.LittleEndian.Uint16(buf[12:14]),
		CRC32:                  binary.LittleEndian.Uint32(buf[14:18]),
		CompressedSize:         binary.LittleEndian.Uint32(buf[18:22]),
		UncompressedSize:       binary.LittleEndian.Uint32(buf[22:26]),
	}
	nameLen := binary.LittleEndian.Uint16(buf[26:28])
	extraLen := binary.LittleEndian.Uint16(buf[28:30])

	if nameLen > 0 {
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(src, name); err != nil {
			return LocalFileHeader{}, fmt.Errorf("read local file name: %w", err)
		}
		h.FileName = string(name)
	}
	if extraLen > 0 {
		extra := make([]byte, extraLen)
		if _, err := io.ReadFull(src, extra); err != nil {
			return LocalFileHeader{}, fmt.Errorf("read local extra field: %w", err)
		}
		h.ExtraField = extra
	}

	return h, nil
}

// DataDescriptor trails file data whose CRC/sizes were unknown when the
// local header was emitted. The classic form is 12 bytes after the
// signature (16 total); the ZIP64 form widens both size fields to 8 bytes
// (24 total).
type DataDescriptor struct {
	CRC32            uint32
	CompressedSize   uint64
	UncompressedSize uint64
}

// Encode serializes d. When zip64 is true, sizes are written as 8-byte
// fields (24 bytes total); otherwise as 4-byte fields (16 bytes total).
func (d DataDescriptor) Encode(zip64 bool) []byte {
	if zip64 {
		buf := make([]byte, 24)
		binary.LittleEndian.PutUint32(buf[0:4], DataDescriptorSignature)
		binary.LittleEndian.PutUint32(buf[4:8], d.CRC32)
		binary.LittleEndian.PutUint64(buf[8:16], d.CompressedSize)
		binary.LittleEndian.PutUint64(buf[16:24], d.UncompressedSize)
		return buf
	}
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], DataDescriptorSignature)
	binary.LittleEndian.PutUint32(buf[4:8], d.CRC32)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(d.CompressedSize))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(d.UncompressedSize))
	return buf
}

// CentralDirectory is the 46-byte-fixed per-entry record in the central
// directory.
type CentralDirectory struct {
	VersionMadeBy          uint16
	VersionNeededToExtract uint16
	GeneralPurposeBitFlag  uint16
	CompressionMethod      uint16
	LastModFileTime        uint16
	LastModFileDate        uint16
	CRC32                  uint32
	CompressedSize         uint32
	UncompressedSize       uint32
	DiskNumberStart        uint16
	InternalFileAttributes uint16
	ExternalFileAttributes uint32
	LocalHeaderOffset      uint32
	FileName               string
	ExtraField             map[uint16][]byte
	Comment                string
}

// ReadCentralDirEntry parses one central directory file header, including
// its variable tail, from src.
func ReadCentralDirEntry(src io.Reader) (CentralDirectory, error) {
	var buf [46]byte
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return CentralDirectory{}, fmt.Errorf("read central directory entry: %w", err)
	}
	if sig := binary.LittleEndian.Uint32(buf[0:4]); sig != CentralDirectorySignature {
		return CentralDirectory{}, fmt.Errorf("%w: central directory entry", ErrBadSignature)
	}

	entry := CentralDirectory{
		VersionMadeBy:          binary.LittleEndian.Uint16(buf[4:6]),
		VersionNeededToExtract: binary.LittleEndian.Uint16(buf[6:8]),
		GeneralPurposeBitFlag:  binary.LittleEndian.Uint16(buf[8:10]),
		CompressionMethod:      binary.LittleEndian.Uint16(buf[10:12]),
		LastModFileTime:        binary.LittleEndian.Uint16(buf[12:14]),
		LastModFileDate:        binary.LittleEndian.Uint16(buf[14:16]),
		CRC32:                  binary.LittleEndian.Uint32(buf[16:20]),
		CompressedSize:         binary.LittleEndian.Uint32(buf[20:24]),
		UncompressedSize:       binary.LittleEndian.Uint32(buf[24:28]),
		DiskNumberStart:        binary.LittleEndian.Uint16(buf[32:34]),
		InternalFileAttributes: binary.LittleEndian.Uint16(buf[34:36]),
		ExternalFileAttributes: binary.LittleEndian.Uint32(buf[36:40]),
		LocalHeaderOffset:      binary.LittleEndian.Uint32(buf[40:44]),
	}
	nameLen := binary.LittleEndian.Uint16(buf[28:30])
	extraLen := binary.LittleEndian.Uint16(buf[30:32])
	commentLen := binary.LittleEndian.Uint16(buf[44:46])

	if nameLen > 0 {
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(src, name); err != nil {
			return CentralDirectory{}, fmt.Errorf("read file name: %w", err)
		}
		entry.FileName = string(name)
	}
	if extraLen > 0 {
		extra := make([]byte, extraLen)
		if _, err := io.ReadFull(src, extra); err != nil {
			return CentralDirectory{}, fmt.Errorf("read extra field: %w", err)
		}
		fields, err := ParseExtraField(extra)
		if err != nil {
			return CentralDirectory{}, err
		}
		entry.ExtraField = fields
	}
	if commentLen > 0 {
		comment := make([]byte, commentLen)
		if _, err := io.ReadFull(src, comment); err != nil {
			return CentralDirectory{}, fmt.Errorf("read comment: %w", err)
		}
		entry.Comment = string(comment)
	}

	return entry, nil
}

// Encode serializes d, including its variable-length file name, extra
// field, and comment tail. Extra field tags are written in ascending order
// for deterministic output.
func (d CentralDirectory) Encode() []byte {
	encodedFields := EncodeExtraField(d.ExtraField)
	total := 46 + len(d.FileName) + len(encodedFields) + len(d.Comment)
	buf := make([]byte, total)

	binary.LittleEndian.PutUint32(buf[0:4], CentralDirectorySignature)
	binary.LittleEndian.PutUint16(buf[4:6], d.VersionMadeBy)
	binary.LittleEndian.PutUint16(buf[6:8], d.VersionNeededToExtract)
	binary.LittleEndian.PutUint16(buf[8:10], d.GeneralPurposeBitFlag)
	binary.LittleEndian.PutUint16(buf[10:12], d.CompressionMethod)
	binary.LittleEndian.PutUint16(buf[12:14], d.LastModFileTime)
	binary.LittleEndian.PutUint16(buf[14:16], d.LastModFileDate)
	binary.LittleEndian.PutUint32(buf[16:20], d.CRC32)
	binary.LittleEndian.PutUint32(buf[20:24], d.CompressedSize)
	binary.LittleEndian.PutUint32(buf[24:28], d.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[28:30], uint16(len(d.FileName)))
	binary.LittleEndian.PutUint16(buf[30:32], uint16(len(encodedFields)))
	binary.LittleEndian.PutUint16(buf[32:34], d.DiskNumberStart)
	binary.LittleEndian.PutUint16(buf[34:36], d.InternalFileAttributes)
	binary.LittleEndian.PutUint32(buf[36:40], d.ExternalFileAttributes)
	binary.LittleEndian.PutUint32(buf[40:44], d.LocalHeaderOffset)
	binary.LittleEndian.PutUint16(buf[44:46], uint16(len(d.Comment)))

	offset := 46
	offset += copy(buf[offset:], d.FileName)
	offset += copy(buf[offset:], encodedFields)
	copy(buf[offset:], d.Comment)

	return buf
}

// EndOfCentralDirectory is the 22-byte-fixed trailing anchor record.
type EndOfCentralDirectory struct {
	ThisDiskNum                     uint16
	DiskNumWithStartOfCentralDir    uint16
	TotalNumberOfEntriesOnThisDisk  uint16
	TotalNumberOfEntries            uint16
	CentralDirSize                  uint32
	CentralDirOffset                uint32
	Comment                         string
}

// EncodeEndOfCentralDirRecord serializes the classic EOCDR. The entry count
// is clamped to its 16-bit maximum and the size/offset fields to their
// 32-bit maxima; when forceZip64 is true all three are set to those
// sentinel maxima regardless of their values.
func EncodeEndOfCentralDirRecord(entryCount int, centralDirSize, centralDirOffset uint64, comment string, forceZip64 bool) []byte {
	commentLen := min(len(comment), math.MaxUint16)
	buf := make([]byte, 22+commentLen)

	entries16 := uint16(min(entryCount, math.MaxUint16))
	dirSize32 := uint32(min(centralDirSize, math.MaxUint32))
	dirOffset32 := uint32(min(centralDirOffset, math.MaxUint32))
	if forceZip64 {
		entries16 = math.MaxUint16
		dirSize32 = math.MaxUint32
		dirOffset32 = math.MaxUint32
	}

	binary.LittleEndian.PutUint32(buf[0:4], EndOfCentralDirSignature)
	binary.LittleEndian.PutUint16(buf[4:6], 0)
	binary.LittleEndian.PutUint16(buf[6:8], 0)
	binary.LittleEndian.PutUint16(buf[8:10], entries16)
	binary.LittleEndian.PutUint16(buf[10:12], entries16)
	binary.LittleEndian.PutUint32(buf[12:16], dirSize32)
	binary.LittleEndian.PutUint32(buf[16:20], dirOffset32)
	binary.LittleEndian.PutUint16(buf[20:22], uint16(commentLen))
	copy(buf[22:], comment[:commentLen])

	return buf
}

// ReadEndOfCentralDir parses an EOCDR, including its comment tail, from src.
func ReadEndOfCentralDir(src io.Reader) (EndOfCentralDirectory, error) {
	var buf [22]byte
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return EndOfCentralDirectory{}, fmt.Errorf("read end of central directory: %w", err)
	}
	if sig := binary.LittleEndian.Uint32(buf[0:4]); sig != EndOfCentralDirSignature {
		return EndOfCentralDirectory{}, fmt.Errorf("%w: end of central directory", ErrBadSignature)
	}

	end := EndOfCentralDirectory{
		ThisDiskNum:                    binary.LittleEndian.Uint16(buf[4:6]),
		DiskNumWithStartOfCentralDir:   binary.LittleEndian.Uint16(buf[6:8]),
		TotalNumberOfEntriesOnThisDisk: binary.LittleEndian.Uint16(buf[8:10]),
		TotalNumberOfEntries:           binary.LittleEndian.Uint16(buf[10:12]),
		CentralDirSize:                 binary.LittleEndian.Uint32(buf[12:16]),
		CentralDirOffset:               binary.LittleEndian.Uint32(buf[16:20]),
	}
	commentLen := binary.LittleEndian.Uint16(buf[20:22])
	if commentLen > 0 {
		comment := make([]byte, commentLen)
		if _, err := io.ReadFull(src, comment); err != nil {
			return EndOfCentralDirectory{}, fmt.Errorf("read archive comment: %w", err)
		}
		end.Comment = string(comment)
	}

	return end, nil
}

// Zip64EndOfCentralDirectory is the 56-byte-fixed ZIP64 EOCD record (its
// trailing extensible sector, unused here, is never emitted or required).
type Zip64EndOfCentralDirectory struct {
	VersionMadeBy                  uint16
	VersionNeededToExtract         uint16
	ThisDiskNum                    uint32
	DiskNumWithStartOfCentralDir   uint32
	TotalNumberOfEntriesOnThisDisk uint64
	TotalNumberOfEntries           uint64
	CentralDirSize                 uint64
	CentralDirOffset               uint64
}

// ReadZip64EndOfCentralDir parses the fixed 56-byte ZIP64 EOCD record. Any
// extensible sector following it is ignored.
func ReadZip64EndOfCentralDir(src io.Reader) (Zip64EndOfCentralDirectory, error) {
	var buf [56]byte
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return Zip64EndOfCentralDirectory{}, fmt.Errorf("read zip64 end of central directory: %w", err)
	}
	if sig := binary.LittleEndian.Uint32(buf[0:4]); sig != Zip64EndOfCentralDirSignature {
		return Zip64EndOfCentralDirectory{}, fmt.Errorf("%w: zip64 end of central directory", ErrBadSignature)
	}

	return Zip64EndOfCentralDirectory{
		VersionMadeBy:                  binary.LittleEndian.Uint16(buf[12:14]),
		VersionNeededToExtract:         binary.LittleEndian.Uint16(buf[14:16]),
		ThisDiskNum:                    binary.LittleEndian.Uint32(buf[16:20]),
		DiskNumWithStartOfCentralDir:   binary.LittleEndian.Uint32(buf[20:24]),
		TotalNumberOfEntriesOnThisDisk: binary.LittleEndian.Uint64(buf[24:32]),
		TotalNumberOfEntries:           binary.LittleEndian.Uint64(buf[32:40]),
		CentralDirSize:                 binary.LittleEndian.Uint64(buf[40:48]),
		CentralDirOffset:               binary.LittleEndian.Uint64(buf[48:56]),
	}, nil
}

// EncodeZip64EndOfCentralDirRecord serializes the 56-byte ZIP64 EOCD record.
// Size-of-record (the 8 bytes following the signature) is the fixed 44,
// since no extensible sector is emitted; versionMadeBy/versionNeededToExtract
// are both 45 (the ZIP64 baseline).
func EncodeZip64EndOfCentralDirRecord(entryCount, centralDirSize, centralDirOffset uint64) []byte {
	buf := make([]byte, 56)

	binary.LittleEndian.PutUint32(buf[0:4], Zip64EndOfCentralDirSignature)
	binary.LittleEndian.PutUint64(buf[4:12], 44)
	binary.LittleEndian.PutUint16(buf[12:14], 45)
	binary.LittleEndian.PutUint16(buf[14:16], 45)
	binary.LittleEndian.PutUint32(buf[16:20], 0)
	binary.LittleEndian.PutUint32(buf[20:24], 0)
	binary.LittleEndian.PutUint64(buf[24:32], entryCount)
	binary.LittleEndian.PutUint64(buf[32:40], entryCount)
	binary.LittleEndian.PutUint64(buf[40:48], centralDirSize)
	binary.LittleEndian.PutUint64(buf[48:56], centralDirOffset)

	return buf
}

// Zip64EndOfCentralDirectoryLocator is the 20-byte-fixed record pointing
// from the classic EOCDR back to the ZIP64 EOCD record.
type Zip64EndOfCentralDirectoryLocator struct {
	DiskNumWithZip64EOCD       uint32
	Zip64EndOfCentralDirOffset uint64
	TotalNumberOfDisks         uint32
}

// ReadZip64EndOfCentralDirLocator parses the fixed 20-byte locator.
func ReadZip64EndOfCentralDirLocator(src io.Reader) (Zip64EndOfCentralDirectoryLocator, error) {
	var buf [20]byte
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return Zip64EndOfCentralDirectoryLocator{}, fmt.Errorf("read zip64 locator: %w", err)
	}
	if sig := binary.LittleEndian.Uint32(buf[0:4]); sig != Zip64EndOfCentralDirLocatorSignature {
		return Zip64EndOfCentralDirectoryLocator{}, fmt.Errorf("%w: zip64 locator", ErrBadSignature)
	}

	return Zip64EndOfCentralDirectoryLocator{
		DiskNumWithZip64EOCD:       binary.LittleEndian.Uint32(buf[4:8]),
		Zip64EndOfCentralDirOffset: binary.LittleEndian.Uint64(buf[8:16]),
		TotalNumberOfDisks:         binary.LittleEndian.Uint32(buf[16:20]),
	}, nil
}

// EncodeZip64EndOfCentralDirLocator serializes the 20-byte locator pointing
// at the ZIP64 EOCD record beginning at zip64EOCDOffset.
func EncodeZip64EndOfCentralDirLocator(zip64EOCDOffset uint64) []byte {
	buf := make([]byte, 20)

	binary.LittleEndian.PutUint32(buf[0:4], Zip64EndOfCentralDirLocatorSignature)
	binary.LittleEndian.PutUint32(buf[4:8], 0)
	binary.LittleEndian.PutUint64(buf[8:16], zip64EOCDOffset)
	binary.LittleEndian.PutUint32(buf[16:20], 1)

	return buf
}

// EncodeExtraField concatenates extra-field entries, keyed by tag, in
// ascending tag order so output is deterministic regardless of map
// iteration order.
func EncodeExtraField(fields map[uint16][]byte) []byte {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]uint16, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var total int
	for _, k := range keys {
		total += len(fields[k])
	}
	buf := make([]byte, 0, total)
	for _, k := range keys {
		buf = append(buf, fields[k]...)
	}
	return buf
}

// ParseExtraField parses a raw extra-field buffer into a map keyed by tag.
// Each entry's stored value includes its own 4-byte {id, size} prefix so
// EncodeExtraField can re-emit it unchanged. Parsing fails if a declared
// size runs past the end of the buffer.
func ParseExtraField(extra []byte) (map[uint16][]byte, error) {
	m := make(map[uint16][]byte)

	for offset := 0; offset < len(extra); {
		if offset+4 > len(extra) {
			return nil, ErrExtraFieldOverrun
		}
		tag := binary.LittleEndian.Uint16(extra[offset : offset+2])
		size := int(binary.LittleEndian.Uint16(extra[offset+2 : offset+4]))

		end := offset + 4 + size
		if end > len(extra) {
			return nil, ErrExtraFieldOverrun
		}
		m[tag] = extra[offset:end]
		offset = end
	}
	return m, nil
}

// BuildExtraFieldEntry prepends the {id, size} TLV prefix to payload so the
// result can be stored directly in an ExtraField map.
func BuildExtraFieldEntry(id uint16, payload []byte) []byte {
	buf := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint16(buf[0:2], id)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(payload)))
	copy(buf[4:], payload)
	return buf
}
