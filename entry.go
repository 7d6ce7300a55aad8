// Copyright 2025 The pkzip Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pkzip

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkzip/pkzip/internal/sys"
)

// CompressionMethod identifies how an entry's data is stored on disk.
// Only Stored and Deflated are supported by the read and write pipelines;
// any other method value is carried through as its raw number, so the
// reader can report it, but the read pipeline refuses to decompress it.
type CompressionMethod uint16

const (
	Stored   CompressionMethod = 0
	Deflated CompressionMethod = 8
)

const (
	maxUint16 = 0xFFFF
	maxUint32 = 0xFFFFFFFF
)

// writeEntry is the in-memory record the writer retains for each appended
// file, from the moment it is scheduled until the central directory that
// catalogues it has been written. It is immutable from the writer's outside callers once
// constructed; the writer mutates sizes/CRC/offset fields in place as data
// flows, per the single entry-write protocol.
type writeEntry struct {
	name                       string
	modDate, modTime           uint16
	externalAttrs              uint32
	crc32                      uint32
	uncompressedSize           uint64
	compressedSize             uint64
	method                     CompressionMethod
	crcAndSizeKnown            bool
	forceZip64                 bool
	comment                    string
	relativeOffsetOfLocalHeader uint64
	hostSystem                 sys.HostSystem
}

// localHeaderZip64 reports whether the entry's local header must use ZIP64
// form: forced, sizes not yet known at header-emission time, or either size
// at or past the 32-bit sentinel.
func (e *writeEntry) localHeaderZip64() bool {
	return e.forceZip64 ||
		!e.crcAndSizeKnown ||
		e.uncompressedSize >= maxUint32 ||
		e.compressedSize >= maxUint32
}

// centralZip64 reports whether the entry's central-directory record must use
// ZIP64 form. By central-directory time the sizes are always known, so only
// the size/offset thresholds and the force flag apply.
func (e *writeEntry) centralZip64() bool {
	return e.forceZip64 ||
		e.uncompressedSize >= maxUint32 ||
		e.compressedSize >= maxUint32 ||
		e.relativeOffsetOfLocalHeader >= maxUint32
}

// Entry is the read-side view of one central-directory record: the
// catalogued metadata of an archived file, with every ZIP64-sentineled
// field already resolved to its true 64-bit value.
type Entry struct {
	// Name is the decoded entry name (UTF-8 or CP437, per the general
	// purpose bit, unless the Iterator was created with decodeStrings
	// false).
	Name string

	// Comment is the decoded per-entry comment.
	Comment string

	// ModTime is the entry's last-modification time, decoded from the DOS
	// date/time fields (UTC, even seconds).
	ModTime time.Time

	Method             CompressionMethod
	CRC32              uint32
	UncompressedSize   uint64
	CompressedSize     uint64
	LocalHeaderOffset  uint64
	DiskNumberStart    uint32
	ExternalAttributes uint32

	// HostSystem is the creating host system decoded from versionMadeBy's
	// high byte, used to interpret ExternalAttributes.
	HostSystem sys.HostSystem

	// Encrypted is true when the entry's traditional-encryption
	// general-purpose bit is set. The read pipeline refuses to open such
	// entries (encryption is out of scope).
	Encrypted bool

	// Compressed is "unknown" (neither true nor false) whenever Method is
	// something other than Stored or Deflated: the pipeline offers only the
	// raw stored bytes of such entries (Decompress false); a decompressing
	// read fails with ErrAlgorithm.
	Compressed CompressedState
}

// CompressedState is a three-valued flag: the reader may be certain data is
// compressed, certain it is not, or unable to tell because the compression
// method is unrecognized.
type CompressedState uint8

const (
	CompressedUnknown CompressedState = iota
	CompressedFalse
	CompressedTrue
)

// IsDir reports whether the entry represents a directory, by the
// conventional trailing-slash name marker.
func (e *Entry) IsDir() bool {
	return strings.HasSuffix(e.Name, "/")
}

// sanitizePath validates and normalizes a name given to the writer:
// non-empty, not absolute, no ".." segment; backslashes become
// forward slashes; a directory name must end in "/", a file name must not.
func sanitizePath(name string, isDir bool) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidPath)
	}

	clean := strings.ReplaceAll(name, `\`, "/")

	if strings.HasPrefix(clean, "/") {
		return "", fmt.Errorf("%w: absolute path %q", ErrInvalidPath, name)
	}
	if len(clean) >= 2 && clean[1] == ':' {
		return "", fmt.Errorf("%w: drive-letter path %q", ErrInvalidPath, name)
	}

	for _, seg := range strings.Split(clean, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q contains \"..\"", ErrInvalidPath, name)
		}
	}

	switch {
	case isDir && !strings.HasSuffix(clean, "/"):
		clean += "/"
	case !isDir && strings.HasSuffix(clean, "/"):
		return "", fmt.Errorf("%w: file name %q ends in \"/\"", ErrInvalidPath, name)
	}

	return clean, nil
}

// timeToDOSDate encodes t (taken in UTC) into the 16-bit DOS date/time pair
// APPNOTE prescribes for last-mod-file-date/time.
func timeToDOSDate(t time.Time) (date, dosTime uint16) {
	u := t.UTC()
	year := u.Year() - 1980
	if year < 0 {
		year = 0
	}
	if year > 127 {
		year = 127
	}

	date = uint16(u.Day()) | uint16(u.Month())<<5 | uint16(year)<<9
	dosTime = uint16(u.Second()/2) | uint16(u.Minute())<<5 | uint16(u.Hour())<<11
	return date, dosTime
}

// dosDateToTime decodes a DOS date/time pair back to a UTC time.Time.
// Out-of-range month/day fields (which a hostile archive could encode) are
// clamped to 1 rather than rejected, matching the reader's tolerant
// posture toward malformed-but-parseable metadata.
func dosDateToTime(date, dosTime uint16) time.Time {
	day := int(date & 0x1F)
	month := int((date >> 5) & 0x0F)
	year := int((date>>9)&0x7F) + 1980

	second := int(dosTime&0x1F) * 2
	minute := int((dosTime >> 5) & 0x3F)
	hour := int((dosTime >> 11) & 0x1F)

	if month < 1 || month > 12 {
		month = 1
	}
	if day < 1 || day > 31 {
		day = 1
	}

	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
}

// versionNeededToExtract returns the minimum APPNOTE version a reader must
// implement to extract an entry written with these characteristics: 45 for
// any ZIP64 or unknown-size entry, 20 for every plain UTF-8 entry (every
// entry this writer emits carries the UTF-8 general-purpose bit).
func versionNeededToExtract(zip64 bool) uint16 {
	if zip64 {
		return 45
	}
	return 20
}

// zipSpecVersion is the low byte of versionMadeBy: APPNOTE version 6.3.
const zipSpecVersion = 63
