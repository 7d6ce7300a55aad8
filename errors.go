// Copyright 2025 The pkzip Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pkzip

import "errors"

// Format errors, returned by the reader when the input does not conform
// to APPNOTE 6.3.
var (
	// ErrFormat is returned when the input is not a recognizable ZIP archive.
	ErrFormat = errors.New("pkzip: not a valid zip file")

	// ErrSignature is returned when a record's signature field does not match
	// the value required for its position.
	ErrSignature = errors.New("pkzip: bad record signature")

	// ErrMultiDisk is returned when an archive spans more than one disk.
	ErrMultiDisk = errors.New("pkzip: multi-disk archives are not supported")

	// ErrStrongEncryption is returned when an entry has the strong-encryption
	// general-purpose bit set.
	ErrStrongEncryption = errors.New("pkzip: strongly encrypted entries are not supported")

	// ErrEncrypted is returned when an entry has the traditional-encryption bit set.
	ErrEncrypted = errors.New("pkzip: encrypted entries are not supported")

	// ErrAlgorithm is returned when an entry's compression method is neither
	// stored nor deflate.
	ErrAlgorithm = errors.New("pkzip: unsupported compression method")

	// ErrChecksum is returned when a decompressed entry's CRC-32 does not
	// match the value recorded in its header.
	ErrChecksum = errors.New("pkzip: checksum mismatch")

	// ErrSizeMismatch is returned when a decompressed entry's byte count does
	// not match the uncompressed size recorded in its header.
	ErrSizeMismatch = errors.New("pkzip: size mismatch")

	// ErrExtraFieldOverrun is returned when an extra-field TLV record's
	// declared size runs past the end of the extra-field buffer.
	ErrExtraFieldOverrun = errors.New("pkzip: extra field overruns buffer")

	// ErrMissingZip64Record is returned when the EOCDR sentinels demand a
	// ZIP64 locator or end record that cannot be found or fails to parse.
	ErrMissingZip64Record = errors.New("pkzip: missing zip64 end-of-central-directory record")

	// ErrUnexpectedEOF is returned by the range reader when a positional
	// read returns fewer bytes than requested.
	ErrUnexpectedEOF = errors.New("pkzip: unexpected EOF")
)

// Input-validation errors, returned synchronously by writer methods.
var (
	// ErrNameTooLong is returned when an entry name exceeds 65535 bytes.
	ErrNameTooLong = errors.New("pkzip: name too long")

	// ErrCommentTooLong is returned when an entry or archive comment exceeds
	// 65535 bytes.
	ErrCommentTooLong = errors.New("pkzip: comment too long")

	// ErrBufferTooLarge is returned when a buffer passed to AddBuffer exceeds
	// the writer's maximum in-memory buffer size.
	ErrBufferTooLarge = errors.New("pkzip: buffer too large")

	// ErrInvalidPath is returned when a name given to the writer is empty,
	// absolute, or contains a ".." segment.
	ErrInvalidPath = errors.New("pkzip: invalid path")

	// ErrInvalidMode is returned when a mode value falls outside [0, 0xFFFF].
	ErrInvalidMode = errors.New("pkzip: invalid mode")

	// ErrCommentHasEOCDRSignature is returned when an archive comment
	// contains the literal EOCDR signature bytes, which would make the
	// archive's trailer ambiguous to locate.
	ErrCommentHasEOCDRSignature = errors.New("pkzip: comment contains end-of-central-directory signature")

	// ErrDeclaredSizeMismatch is returned when a pre-declared size or CRC-32
	// passed to AddReadStream disagrees with the bytes actually produced.
	ErrDeclaredSizeMismatch = errors.New("pkzip: declared size or checksum does not match stream")

	// ErrWriterFinalized is returned when an add operation is attempted after
	// AddCentralDirectoryRecord has been called.
	ErrWriterFinalized = errors.New("pkzip: writer already finalized")

	// ErrInvalidRange is returned when a requested byte range is out of order
	// or out of bounds, or when a non-default range is requested together
	// with decompression.
	ErrInvalidRange = errors.New("pkzip: invalid byte range")
)

// ErrFileNotFound is returned when a lookup by name finds no matching entry.
var ErrFileNotFound = errors.New("pkzip: file not found")

// ErrCP437Unmappable is returned by the CP437 encoder when a rune has no
// representation in the code page.
var ErrCP437Unmappable = errors.New("pkzip: rune has no CP437 representation")
