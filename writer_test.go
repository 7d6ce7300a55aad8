// Copyright 2025 The pkzip Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pkzip

import (
	"bytes"
	"io"
	"testing"
	"time"
)

func mustOpenArchive(t *testing.T, buf []byte) *Archive {
	t.Helper()
	a, err := Open(NewBufferSource(buf), int64(len(buf)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return a
}

func collectEntries(t *testing.T, a *Archive) []*Entry {
	t.Helper()
	var out []*Entry
	it := a.NewIterator(true)
	for {
		e, _, ok, err := it.Next()
		if err != nil {
			t.Fatalf("iterator.Next: %v", err)
		}
		if !ok {
			break
		}
		out = append(out, e)
	}
	return out
}

func readAll(t *testing.T, a *Archive, factory StreamFactory, opts StreamOptions) []byte {
	t.Helper()
	er, err := factory(opts)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	data, err := io.ReadAll(er)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	return data
}

func TestWriterStoredRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	content := []byte("hello, pkzip")
	if _, err := w.AddBuffer(content, "hello.txt", AddOptions{ModTime: time.Date(2024, 8, 27, 21, 13, 26, 0, time.UTC)}); err != nil {
		t.Fatalf("AddBuffer: %v", err)
	}
	if err := w.AddCentralDirectoryRecord(""); err != nil {
		t.Fatalf("AddCentralDirectoryRecord: %v", err)
	}

	a := mustOpenArchive(t, buf.Bytes())
	entries := collectEntries(t, a)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Name != "hello.txt" {
		t.Errorf("Name = %q, want hello.txt", entries[0].Name)
	}
	if entries[0].Method != Stored {
		t.Errorf("Method = %v, want Stored", entries[0].Method)
	}

	it := a.NewIterator(true)
	_, factory, ok, err := it.Next()
	if err != nil || !ok {
		t.Fatalf("re-iterate: ok=%v err=%v", ok, err)
	}
	got := readAll(t, a, factory, DefaultStreamOptions())
	if !bytes.Equal(got, content) {
		t.Errorf("got %q, want %q", got, content)
	}
}

func TestWriterDeflateRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	content := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 200)
	if _, err := w.AddBuffer(content, "fox.txt", AddOptions{Method: Deflated}); err != nil {
		t.Fatalf("AddBuffer: %v", err)
	}
	if err := w.AddCentralDirectoryRecord(""); err != nil {
		t.Fatalf("AddCentralDirectoryRecord: %v", err)
	}

	a := mustOpenArchive(t, buf.Bytes())
	it := a.NewIterator(true)
	entry, factory, ok, err := it.Next()
	if err != nil || !ok {
		t.Fatalf("iterate: ok=%v err=%v", ok, err)
	}
	if entry.Method != Deflated {
		t.Fatalf("Method = %v, want Deflated", entry.Method)
	}
	if entry.CompressedSize >= entry.UncompressedSize {
		t.Errorf("compressed size %d not smaller than uncompressed %d", entry.CompressedSize, entry.UncompressedSize)
	}

	got := readAll(t, a, factory, DefaultStreamOptions())
	if !bytes.Equal(got, content) {
		t.Errorf("round trip mismatch: got %d bytes, want %d", len(got), len(content))
	}
}

func TestWriterAddReadStreamUsesDataDescriptor(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	content := []byte("streamed without a known size up front")
	if _, err := w.AddReadStream(bytes.NewReader(content), "stream.bin", AddOptions{}); err != nil {
		t.Fatalf("AddReadStream: %v", err)
	}
	if err := w.AddCentralDirectoryRecord(""); err != nil {
		t.Fatalf("AddCentralDirectoryRecord: %v", err)
	}

	if !bytes.Contains(buf.Bytes(), []byte{0x50, 0x4B, 0x07, 0x08}) {
		t.Error("missing data descriptor")
	}

	a := mustOpenArchive(t, buf.Bytes())
	it := a.NewIterator(true)
	entry, factory, ok, err := it.Next()
	if err != nil || !ok {
		t.Fatalf("iterate: ok=%v err=%v", ok, err)
	}
	if entry.UncompressedSize != uint64(len(content)) {
		t.Errorf("UncompressedSize = %d, want %d", entry.UncompressedSize, len(content))
	}
	got := readAll(t, a, factory, DefaultStreamOptions())
	if !bytes.Equal(got, content) {
		t.Errorf("got %q, want %q", got, content)
	}
}

func TestWriterAddDirectory(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	if _, err := w.AddDirectory("pkg/", AddOptions{}); err != nil {
		t.Fatalf("AddDirectory: %v", err)
	}
	if err := w.AddCentralDirectoryRecord(""); err != nil {
		t.Fatalf("AddCentralDirectoryRecord: %v", err)
	}

	a := mustOpenArchive(t, buf.Bytes())
	entries := collectEntries(t, a)
	if len(entries) != 1 || !entries[0].IsDir() {
		t.Fatalf("expected one directory entry, got %+v", entries)
	}
	if entries[0].UncompressedSize != 0 {
		t.Errorf("directory UncompressedSize = %d, want 0", entries[0].UncompressedSize)
	}
}

func TestWriterForceZip64(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, WithForceZip64(true))

	if _, err := w.AddBuffer([]byte("tiny"), "tiny.txt", AddOptions{}); err != nil {
		t.Fatalf("AddBuffer: %v", err)
	}
	if err := w.AddCentralDirectoryRecord(""); err != nil {
		t.Fatalf("AddCentralDirectoryRecord: %v", err)
	}

	a := mustOpenArchive(t, buf.Bytes())
	if a.EntryCount() != 1 {
		t.Fatalf("EntryCount = %d, want 1", a.EntryCount())
	}
	entries := collectEntries(t, a)
	if entries[0].UncompressedSize != 4 {
		t.Errorf("UncompressedSize = %d, want 4", entries[0].UncompressedSize)
	}
}

func TestWriterRejectsCommentContainingEOCDRSignature(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	if _, err := w.AddBuffer([]byte("x"), "x.txt", AddOptions{}); err != nil {
		t.Fatalf("AddBuffer: %v", err)
	}
	err := w.AddCentralDirectoryRecord("trailer \x50\x4B\x05\x06 embedded")
	if err == nil {
		t.Fatal("expected error for comment containing EOCDR signature")
	}
}

func TestWriterDeclaredSizeMismatchFails(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	content := []byte("actual content")
	wrongSize := uint64(len(content) + 1)
	_, err := w.AddReadStream(bytes.NewReader(content), "mismatch.bin", AddOptions{
		DeclaredUncompressedSize: &wrongSize,
		DeclaredCRC32:            new(uint32),
	})
	if err == nil {
		t.Fatal("expected declared size mismatch error")
	}
}

func TestWriterRejectsAddAfterFinalize(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	if _, err := w.AddBuffer([]byte("a"), "a.txt", AddOptions{}); err != nil {
		t.Fatalf("AddBuffer: %v", err)
	}
	if err := w.AddCentralDirectoryRecord(""); err != nil {
		t.Fatalf("AddCentralDirectoryRecord: %v", err)
	}
	if _, err := w.AddBuffer([]byte("b"), "b.txt", AddOptions{}); err == nil {
		t.Fatal("expected ErrWriterFinalized after finalize")
	}
}

func TestWriterMultipleEntriesPreserveOrder(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	names := []string{"a.txt", "b.txt", "c.txt"}
	for _, name := range names {
		if _, err := w.AddBuffer([]byte(name), name, AddOptions{}); err != nil {
			t.Fatalf("AddBuffer(%s): %v", name, err)
		}
	}
	if err := w.AddCentralDirectoryRecord(""); err != nil {
		t.Fatalf("AddCentralDirectoryRecord: %v", err)
	}

	a := mustOpenArchive(t, buf.Bytes())
	entries := collectEntries(t, a)
	if len(entries) != len(names) {
		t.Fatalf("got %d entries, want %d", len(entries), len(names))
	}
	for i, e := range entries {
		if e.Name != names[i] {
			t.Errorf("entry %d: Name = %q, want %q", i, e.Name, names[i])
		}
	}
}

func TestWriterRemoveEntry(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	drop, err := w.AddBuffer([]byte("drop"), "drop.txt", AddOptions{})
	if err != nil {
		t.Fatalf("AddBuffer: %v", err)
	}
	if _, err := w.AddBuffer([]byte("keep"), "keep.txt", AddOptions{}); err != nil {
		t.Fatalf("AddBuffer: %v", err)
	}
	if err := w.RemoveEntry(drop); err != nil {
		t.Fatalf("RemoveEntry: %v", err)
	}
	if err := w.AddCentralDirectoryRecord(""); err != nil {
		t.Fatalf("AddCentralDirectoryRecord: %v", err)
	}

	a := mustOpenArchive(t, buf.Bytes())
	entries := collectEntries(t, a)
	if len(entries) != 1 || entries[0].Name != "keep.txt" {
		t.Fatalf("got %+v, want only keep.txt", entries)
	}
}

func TestWriterBufferTooLarge(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	big := make([]byte, maxBufferSize+1)
	if _, err := w.AddBuffer(big, "big.bin", AddOptions{}); err == nil {
		t.Fatal("expected ErrBufferTooLarge")
	}
}

func TestWriterAddEntryStreamedCopy(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	stored := []byte("stored entry data")
	deflated := bytes.Repeat([]byte("compressible pattern "), 100)
	if _, err := w.AddBuffer(stored, "stored.txt", AddOptions{}); err != nil {
		t.Fatalf("AddBuffer stored: %v", err)
	}
	if _, err := w.AddBuffer(deflated, "deflated.txt", AddOptions{Method: Deflated}); err != nil {
		t.Fatalf("AddBuffer deflated: %v", err)
	}
	if err := w.AddCentralDirectoryRecord(""); err != nil {
		t.Fatalf("AddCentralDirectoryRecord: %v", err)
	}

	src := mustOpenArchive(t, buf.Bytes())
	var out bytes.Buffer
	w2 := NewWriter(&out)

	it := src.NewIterator(true)
	for {
		e, factory, ok, err := it.Next()
		if err != nil {
			t.Fatalf("iterate source: %v", err)
		}
		if !ok {
			break
		}
		if _, err := w2.AddEntry(e, factory, AddOptions{}); err != nil {
			t.Fatalf("AddEntry(%s): %v", e.Name, err)
		}
	}
	if err := w2.AddCentralDirectoryRecord(""); err != nil {
		t.Fatalf("AddCentralDirectoryRecord: %v", err)
	}

	copied := mustOpenArchive(t, out.Bytes())
	want := map[string][]byte{"stored.txt": stored, "deflated.txt": deflated}
	srcEntries := collectEntries(t, src)

	it2 := copied.NewIterator(true)
	i := 0
	for {
		e, factory, ok, err := it2.Next()
		if err != nil {
			t.Fatalf("iterate copy: %v", err)
		}
		if !ok {
			break
		}
		if e.CRC32 != srcEntries[i].CRC32 {
			t.Errorf("%s: CRC32 = %08x, want %08x", e.Name, e.CRC32, srcEntries[i].CRC32)
		}
		if e.CompressedSize != srcEntries[i].CompressedSize {
			t.Errorf("%s: CompressedSize = %d, want %d", e.Name, e.CompressedSize, srcEntries[i].CompressedSize)
		}
		got := readAll(t, copied, factory, DefaultStreamOptions())
		if !bytes.Equal(got, want[e.Name]) {
			t.Errorf("%s: content mismatch after copy", e.Name)
		}
		i++
	}
	if i != 2 {
		t.Fatalf("copied %d entries, want 2", i)
	}
}

func TestReaderDetectsCorruptedData(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	content := []byte("data that will be corrupted after writing")
	if _, err := w.AddBuffer(content, "victim.txt", AddOptions{}); err != nil {
		t.Fatalf("AddBuffer: %v", err)
	}
	if err := w.AddCentralDirectoryRecord(""); err != nil {
		t.Fatalf("AddCentralDirectoryRecord: %v", err)
	}

	raw := buf.Bytes()
	pos := bytes.Index(raw, content)
	if pos < 0 {
		t.Fatal("stored content not found in archive bytes")
	}
	raw[pos+3] ^= 0xFF

	a := mustOpenArchive(t, raw)
	it := a.NewIterator(true)
	_, factory, ok, err := it.Next()
	if err != nil || !ok {
		t.Fatalf("iterate: ok=%v err=%v", ok, err)
	}
	er, err := factory(DefaultStreamOptions())
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	if _, err := io.ReadAll(er); err == nil {
		t.Fatal("expected checksum error reading corrupted entry")
	}
}

func TestWriterForceZip64RecordShapes(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, WithForceZip64(true))

	if _, err := w.AddBuffer([]byte("abcd"), "z.txt", AddOptions{}); err != nil {
		t.Fatalf("AddBuffer: %v", err)
	}
	if err := w.AddCentralDirectoryRecord(""); err != nil {
		t.Fatalf("AddCentralDirectoryRecord: %v", err)
	}
	raw := buf.Bytes()

	// Local header: versionNeededToExtract 45, a 16-byte zip64 extra field,
	// and sentinel 32-bit size fields.
	if got := uint16(raw[4]) | uint16(raw[5])<<8; got != 45 {
		t.Errorf("local versionNeededToExtract = %d, want 45", got)
	}
	extraLen := uint16(raw[28]) | uint16(raw[29])<<8
	if extraLen != 20 { // 4-byte TLV prefix + 16-byte payload
		t.Errorf("local extra field length = %d, want 20", extraLen)
	}

	// The trailer must include the zip64 EOCD record and locator.
	if !bytes.Contains(raw, []byte{0x50, 0x4B, 0x06, 0x06}) {
		t.Error("missing zip64 end-of-central-directory record")
	}
	if !bytes.Contains(raw, []byte{0x50, 0x4B, 0x06, 0x07}) {
		t.Error("missing zip64 end-of-central-directory locator")
	}
}

func TestWriterAddEntryInPlaceReference(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if _, err := w.AddBuffer([]byte("original"), "orig.txt", AddOptions{}); err != nil {
		t.Fatalf("AddBuffer: %v", err)
	}
	if err := w.AddCentralDirectoryRecord(""); err != nil {
		t.Fatalf("AddCentralDirectoryRecord: %v", err)
	}

	a := mustOpenArchive(t, buf.Bytes())
	entries := collectEntries(t, a)

	var out bytes.Buffer
	w2 := NewWriter(&out)
	if _, err := w2.AddEntry(entries[0], nil, AddOptions{}); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := w2.AddCentralDirectoryRecord(""); err != nil {
		t.Fatalf("AddCentralDirectoryRecord: %v", err)
	}

	a2 := mustOpenArchive(t, out.Bytes())
	if a2.EntryCount() != 1 {
		t.Fatalf("EntryCount = %d, want 1", a2.EntryCount())
	}
}
