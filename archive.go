// Copyright 2025 The pkzip Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pkzip

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pkzip/pkzip/internal/record"
)

const (
	eocdrFixedSize   = 22
	maxCommentLength = 0xFFFF
	zip64LocatorSize = 20
)

// Archive is the result of locating and parsing an opened ZIP's trailing
// records: a source plus the coordinates needed to walk its central
// directory. It owns no further state; NewIterator may be called any
// number of times to re-walk the directory from the start.
type Archive struct {
	source                 Source
	centralDirectoryOffset uint64
	size                   int64
	entryCount             uint64
	comment                string
}

// Comment returns the archive-level comment trailing the EOCDR.
func (a *Archive) Comment() string { return a.comment }

// EntryCount returns the authoritative (ZIP64-resolved) number of entries
// in the central directory.
func (a *Archive) EntryCount() uint64 { return a.entryCount }

// Open locates the end-of-central-directory record in src (whose total size
// is size bytes) via a trailing-window search, promotes to ZIP64 when the
// classic record's sentinels demand it, and returns an Archive ready to be
// iterated.
func Open(src Source, size int64) (*Archive, error) {
	eocdrPos, eocdr, err := findEndOfCentralDir(src, size)
	if err != nil {
		return nil, err
	}

	if eocdr.ThisDiskNum != 0 || eocdr.DiskNumWithStartOfCentralDir != 0 {
		return nil, ErrMultiDisk
	}

	entryCount := uint64(eocdr.TotalNumberOfEntries)
	dirOffset := uint64(eocdr.CentralDirOffset)

	if eocdr.TotalNumberOfEntries == maxUint16 || eocdr.CentralDirOffset == maxUint32 {
		locatorPos := eocdrPos - zip64LocatorSize
		if locatorPos < 0 {
			return nil, fmt.Errorf("%w: archive too short for zip64 locator", ErrMissingZip64Record)
		}
		locatorBuf, err := src.ReadRange(locatorPos, zip64LocatorSize)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMissingZip64Record, err)
		}
		locator, err := record.ReadZip64EndOfCentralDirLocator(bytes.NewReader(locatorBuf))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMissingZip64Record, err)
		}

		zip64Buf, err := src.ReadRange(int64(locator.Zip64EndOfCentralDirOffset), 56)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMissingZip64Record, err)
		}
		zip64EOCD, err := record.ReadZip64EndOfCentralDir(bytes.NewReader(zip64Buf))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMissingZip64Record, err)
		}

		entryCount = zip64EOCD.TotalNumberOfEntries
		dirOffset = zip64EOCD.CentralDirOffset
	}

	return &Archive{
		source:                 src,
		centralDirectoryOffset: dirOffset,
		size:                   size,
		entryCount:             entryCount,
		comment:                eocdr.Comment,
	}, nil
}

// findEndOfCentralDir performs a trailing-window backward scan: read the
// last min(size, 22+65535) bytes, then scan
// backwards for a signature whose encoded comment length matches the
// trailing byte count exactly. The first such match (i.e. the one nearest
// the end of the buffer) wins.
func findEndOfCentralDir(src Source, size int64) (int64, record.EndOfCentralDirectory, error) {
	windowSize := size
	if windowSize > eocdrFixedSize+maxCommentLength {
		windowSize = eocdrFixedSize + maxCommentLength
	}
	if windowSize < eocdrFixedSize {
		return 0, record.EndOfCentralDirectory{}, fmt.Errorf("%w: file too short", ErrFormat)
	}

	windowStart := size - windowSize
	buf, err := src.ReadRange(windowStart, windowSize)
	if err != nil {
		return 0, record.EndOfCentralDirectory{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	for i := len(buf) - eocdrFixedSize; i >= 0; i-- {
		if binary.LittleEndian.Uint32(buf[i:i+4]) != record.EndOfCentralDirSignature {
			continue
		}
		commentLen := int(binary.LittleEndian.Uint16(buf[i+20 : i+22]))
		if len(buf)-eocdrFixedSize-i != commentLen {
			continue
		}

		eocdr, err := record.ReadEndOfCentralDir(bytes.NewReader(buf[i:]))
		if err != nil {
			continue
		}
		return windowStart + int64(i), eocdr, nil
	}

	return 0, record.EndOfCentralDirectory{}, fmt.Errorf("%w: end of central directory record not found", ErrFormat)
}
