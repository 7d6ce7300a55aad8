// Copyright 2025 The pkzip Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pkzip

import (
	"bytes"
	"errors"
	"testing"
)

func TestBufferSourceReadRange(t *testing.T) {
	src := NewBufferSource([]byte("hello world"))
	got, err := src.ReadRange(6, 5)
	if err != nil {
		t.Fatalf("ReadRange: %v", err)
	}
	if string(got) != "world" {
		t.Fatalf("got %q, want %q", got, "world")
	}
}

func TestBufferSourceOutOfRange(t *testing.T) {
	src := NewBufferSource([]byte("short"))
	_, err := src.ReadRange(0, 100)
	if !errors.Is(err, ErrUnexpectedEOF) {
		t.Fatalf("expected ErrUnexpectedEOF, got %v", err)
	}
}

func TestBufferSourceZeroLength(t *testing.T) {
	src := NewBufferSource(nil)
	got, err := src.ReadRange(0, 0)
	if err != nil || got != nil {
		t.Fatalf("zero-length read should succeed with nil, got %v %v", got, err)
	}
}

func TestFileSourceReadRange(t *testing.T) {
	src := NewFileSource(bytes.NewReader([]byte("0123456789")), 10)
	got, err := src.ReadRange(3, 4)
	if err != nil {
		t.Fatalf("ReadRange: %v", err)
	}
	if string(got) != "3456" {
		t.Fatalf("got %q, want %q", got, "3456")
	}
}

func TestFileSourceShortRead(t *testing.T) {
	src := NewFileSource(bytes.NewReader([]byte("abc")), 3)
	_, err := src.ReadRange(0, 10)
	if !errors.Is(err, ErrUnexpectedEOF) {
		t.Fatalf("expected ErrUnexpectedEOF, got %v", err)
	}
}
