// Copyright 2025 The pkzip Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package record

import (
	"bytes"
	"testing"
)

func TestLocalFileHeaderRoundTrip(t *testing.T) {
	h := LocalFileHeader{
		VersionNeededToExtract: 20,
		GeneralPurposeBitFlag:  0x0800,
		CompressionMethod:      8,
		LastModFileTime:        1234,
		LastModFileDate:        5678,
		CRC32:                  0xDEADBEEF,
		CompressedSize:         100,
		UncompressedSize:       200,
		FileName:               "hello.txt",
		ExtraField:             []byte{1, 2, 3, 4},
	}
	got, err := ReadLocalFileHeader(bytes.NewReader(h.Encode()))
	if err != nil {
		t.Fatalf("ReadLocalFileHeader: %v", err)
	}
	if got.FileName != h.FileName || got.CRC32 != h.CRC32 ||
		got.CompressedSize != h.CompressedSize || got.UncompressedSize != h.UncompressedSize ||
		got.CompressionMethod != h.CompressionMethod || got.GeneralPurposeBitFlag != h.GeneralPurposeBitFlag ||
		got.LastModFileTime != h.LastModFileTime || got.LastModFileDate != h.LastModFileDate ||
		got.VersionNeededToExtract != h.VersionNeededToExtract {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
	if !bytes.Equal(got.ExtraField, h.ExtraField) {
		t.Fatalf("extra field mismatch: got %v, want %v", got.ExtraField, h.ExtraField)
	}
}

func TestLocalFileHeaderBadSignature(t *testing.T) {
	buf := make([]byte, 30)
	if _, err := ReadLocalFileHeader(bytes.NewReader(buf)); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestDataDescriptorEncode(t *testing.T) {
	d := DataDescriptor{CRC32: 1, CompressedSize: 2, UncompressedSize: 3}

	classic := d.Encode(false)
	if len(classic) != 16 {
		t.Fatalf("classic data descriptor should be 16 bytes, got %d", len(classic))
	}

	zip64 := d.Encode(true)
	if len(zip64) != 24 {
		t.Fatalf("zip64 data descriptor should be 24 bytes, got %d", len(zip64))
	}
}

func TestCentralDirectoryRoundTrip(t *testing.T) {
	d := CentralDirectory{
		VersionMadeBy:          (3 << 8) | 63,
		VersionNeededToExtract: 20,
		GeneralPurposeBitFlag:  0x0800,
		CompressionMethod:      0,
		CRC32:                  42,
		CompressedSize:         10,
		UncompressedSize:       10,
		ExternalFileAttributes: 0644 << 16,
		FileName:               "a/b.txt",
		ExtraField: map[uint16][]byte{
			0x0001: BuildExtraFieldEntry(0x0001, []byte{1, 2, 3, 4, 5, 6, 7, 8}),
		},
		Comment: "a comment",
	}
	got, err := ReadCentralDirEntry(bytes.NewReader(d.Encode()))
	if err != nil {
		t.Fatalf("ReadCentralDirEntry: %v", err)
	}
	if got.FileName != d.FileName || got.Comment != d.Comment {
		t.Fatalf("name/comment mismatch: got %+v", got)
	}
	if !bytes.Equal(got.ExtraField[0x0001], d.ExtraField[0x0001]) {
		t.Fatalf("extra field mismatch: got %v want %v", got.ExtraField[0x0001], d.ExtraField[0x0001])
	}
}

func TestEndOfCentralDirRoundTrip(t *testing.T) {
	buf := EncodeEndOfCentralDirRecord(3, 123, 456, "hi", false)
	got, err := ReadEndOfCentralDir(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("ReadEndOfCentralDir: %v", err)
	}
	if got.TotalNumberOfEntries != 3 || got.CentralDirSize != 123 || got.CentralDirOffset != 456 || got.Comment != "hi" {
		t.Fatalf("unexpected EOCDR: %+v", got)
	}
}

func TestEndOfCentralDirForceZip64Sentinels(t *testing.T) {
	buf := EncodeEndOfCentralDirRecord(1, 1, 1, "", true)
	got, err := ReadEndOfCentralDir(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("ReadEndOfCentralDir: %v", err)
	}
	if got.TotalNumberOfEntries != 0xFFFF || got.CentralDirSize != 0xFFFFFFFF || got.CentralDirOffset != 0xFFFFFFFF {
		t.Fatalf("expected sentinel values, got %+v", got)
	}
}

func TestZip64EndOfCentralDirRoundTrip(t *testing.T) {
	buf := EncodeZip64EndOfCentralDirRecord(70000, 1<<33, 1<<34)
	got, err := ReadZip64EndOfCentralDir(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("ReadZip64EndOfCentralDir: %v", err)
	}
	if got.TotalNumberOfEntries != 70000 || got.CentralDirSize != 1<<33 || got.CentralDirOffset != 1<<34 {
		t.Fatalf("unexpected zip64 EOCDR: %+v", got)
	}
	if got.VersionNeededToExtract != 45 {
		t.Fatalf("expected versionNeededToExtract 45, got %d", got.VersionNeededToExtract)
	}
}

func TestZip64LocatorRoundTrip(t *testing.T) {
	buf := EncodeZip64EndOfCentralDirLocator(999)
	got, err := ReadZip64EndOfCentralDirLocator(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("ReadZip64EndOfCentralDirLocator: %v", err)
	}
	if got.Zip64EndOfCentralDirOffset != 999 || got.TotalNumberOfDisks != 1 {
		t.Fatalf("unexpected locator: %+v", got)
	}
}

func TestParseExtraFieldOverrun(t *testing.T) {
	// declares a payload of 10 bytes but only supplies 2
	buf := []byte{0x01, 0x00, 0x0A, 0x00, 0xAA, 0xBB}
	if _, err := ParseExtraField(buf); err == nil {
		t.Fatal("expected overrun error")
	}
}

func TestParseExtraFieldMultiple(t *testing.T) {
	e1 := BuildExtraFieldEntry(0x0001, []byte{1, 2, 3, 4})
	e2 := BuildExtraFieldEntry(0x7075, []byte{5, 6})
	buf := append(append([]byte{}, e1...), e2...)

	fields, err := ParseExtraField(buf)
	if err != nil {
		t.Fatalf("ParseExtraField: %v", err)
	}
	if len(fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(fields))
	}
	if !bytes.Equal(fields[0x0001], e1) || !bytes.Equal(fields[0x7075], e2) {
		t.Fatalf("field contents mismatch")
	}
}
