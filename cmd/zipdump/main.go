// Copyright 2025 The pkzip Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command zipdump is a diagnostic tool that sequentially scans a file for
// PKWARE ZIP records and pretty-prints each one it recognizes. Unlike the
// pkzip package's random-access reader, it never consults a central
// directory: it walks the byte stream signature by signature, which means
// it can inspect truncated input or a file with no trailing directory at
// all. Because a local file header's compressed size is unknown whenever
// its "unknown sizes" bit is set, the scan pauses and asks on stdin how
// many bytes of file data follow before it can resume.
package main

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/pkzip/pkzip/internal/record"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "zipdump <path>",
		Short: "Sequentially scan a file for ZIP records and print what it finds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(verbose)
			return dump(args[0], os.Stdin, os.Stdout, logger)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log scan progress to stderr")
	return cmd
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level}))
}

// dump scans path from byte 0, printing each record it recognizes to out.
// It reads a confirmation from in whenever a local file header's data
// length can't be inferred from the header itself.
func dump(path string, in io.Reader, out io.Writer, logger *slog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %s\n", path, humanize.Bytes(uint64(fi.Size())))

	scanner := bufio.NewScanner(in)
	r := bufio.NewReader(f)
	var offset int64

	for {
		sigBuf, err := r.Peek(4)
		if err == io.EOF || len(sigBuf) < 4 {
			fmt.Fprintf(out, "@%d: end of file\n", offset)
			return nil
		}
		if err != nil {
			return err
		}
		sig := binary.LittleEndian.Uint32(sigBuf)

		logger.Debug("record", "offset", offset, "signature", fmt.Sprintf("0x%08x", sig))

		var consumed int64
		switch sig {
		case record.LocalFileHeaderSignature:
			consumed, err = dumpLocalFileHeader(r, out, scanner, offset)
		case record.DataDescriptorSignature:
			consumed, err = dumpDataDescriptor(r, out, offset)
		case record.CentralDirectorySignature:
			consumed, err = dumpCentralDirectory(r, out, offset)
		case record.Zip64EndOfCentralDirSignature:
			consumed, err = dumpZip64EOCD(r, out, offset)
		case record.Zip64EndOfCentralDirLocatorSignature:
			consumed, err = dumpZip64Locator(r, out, offset)
		case record.EndOfCentralDirSignature:
			consumed, err = dumpEOCDR(r, out, offset)
		default:
			fmt.Fprintf(out, "@%d: unrecognized signature 0x%08x, stopping\n", offset, sig)
			return nil
		}
		if err != nil {
			return fmt.Errorf("@%d: %w", offset, err)
		}
		offset += consumed
	}
}

func dumpLocalFileHeader(r *bufio.Reader, out io.Writer, scanner *bufio.Scanner, offset int64) (int64, error) {
	h, err := record.ReadLocalFileHeader(r)
	if err != nil {
		return 0, err
	}
	fixed := int64(30 + len(h.FileName) + len(h.ExtraField))

	fmt.Fprintf(out, "@%d: local file header %q method=%d crc32=%08x\n", offset, h.FileName, h.CompressionMethod, h.CRC32)

	dataLen := int64(h.CompressedSize)
	unknownSizes := h.GeneralPurposeBitFlag&0x0008 != 0
	if unknownSizes {
		fmt.Fprintf(out, "  sizes unknown (bit 0x0008 set); how many bytes of file data follow? ")
		dataLen = promptInt(scanner, 0)
	}

	if _, err := io.CopyN(io.Discard, r, dataLen); err != nil {
		return 0, fmt.Errorf("skip %d bytes of file data: %w", dataLen, err)
	}

	return fixed + dataLen, nil
}

func dumpDataDescriptor(r *bufio.Reader, out io.Writer, offset int64) (int64, error) {
	buf := make([]byte, 16)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	crc := binary.LittleEndian.Uint32(buf[4:8])

	// The zip64 form widens both size fields to 8 bytes (24 total). The
	// descriptor itself doesn't say which form it is; if the next 4 bytes do
	// not begin another record, the remaining 8 belong to this one.
	consumed := int64(16)
	if next, err := r.Peek(4); err == nil && len(next) == 4 && !knownSignature(binary.LittleEndian.Uint32(next)) {
		if _, err := io.CopyN(io.Discard, r, 8); err != nil {
			return 0, err
		}
		consumed = 24
	}

	fmt.Fprintf(out, "@%d: data descriptor crc32=%08x\n", offset, crc)
	return consumed, nil
}

func knownSignature(sig uint32) bool {
	switch sig {
	case record.LocalFileHeaderSignature,
		record.DataDescriptorSignature,
		record.CentralDirectorySignature,
		record.Zip64EndOfCentralDirSignature,
		record.Zip64EndOfCentralDirLocatorSignature,
		record.EndOfCentralDirSignature:
		return true
	}
	return false
}

func dumpCentralDirectory(r *bufio.Reader, out io.Writer, offset int64) (int64, error) {
	cd, err := record.ReadCentralDirEntry(r)
	if err != nil {
		return 0, err
	}
	fmt.Fprintf(out, "@%d: central directory entry %q size=%s offset=%d\n",
		offset, cd.FileName, humanize.Bytes(uint64(cd.UncompressedSize)), cd.LocalHeaderOffset)
	return int64(46 + len(cd.FileName) + len(record.EncodeExtraField(cd.ExtraField)) + len(cd.Comment)), nil
}

func dumpEOCDR(r *bufio.Reader, out io.Writer, offset int64) (int64, error) {
	eocdr, err := record.ReadEndOfCentralDir(r)
	if err != nil {
		return 0, err
	}
	fmt.Fprintf(out, "@%d: end of central directory entries=%d dirSize=%s dirOffset=%d comment=%q\n",
		offset, eocdr.TotalNumberOfEntries, humanize.Bytes(uint64(eocdr.CentralDirSize)), eocdr.CentralDirOffset, eocdr.Comment)
	return int64(22 + len(eocdr.Comment)), nil
}

func dumpZip64EOCD(r *bufio.Reader, out io.Writer, offset int64) (int64, error) {
	rec, err := record.ReadZip64EndOfCentralDir(r)
	if err != nil {
		return 0, err
	}
	fmt.Fprintf(out, "@%d: zip64 end of central directory entries=%d dirSize=%s dirOffset=%d\n",
		offset, rec.TotalNumberOfEntries, humanize.Bytes(rec.CentralDirSize), rec.CentralDirOffset)
	return 56, nil
}

func dumpZip64Locator(r *bufio.Reader, out io.Writer, offset int64) (int64, error) {
	loc, err := record.ReadZip64EndOfCentralDirLocator(r)
	if err != nil {
		return 0, err
	}
	fmt.Fprintf(out, "@%d: zip64 locator -> %d\n", offset, loc.Zip64EndOfCentralDirOffset)
	return 20, nil
}

// promptInt reads one line from scanner and parses it as a non-negative
// integer, re-prompting on malformed input; fallback is returned on EOF.
func promptInt(scanner *bufio.Scanner, fallback int64) int64 {
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		n, err := strconv.ParseInt(line, 10, 64)
		if err != nil || n < 0 {
			fmt.Print("please enter a non-negative integer: ")
			continue
		}
		return n
	}
	return fallback
}
