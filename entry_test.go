// Copyright 2025 The pkzip Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pkzip

import (
	"testing"
	"time"
)

func TestSanitizePath(t *testing.T) {
	tests := []struct {
		name    string
		isDir   bool
		want    string
		wantErr bool
	}{
		{name: "", wantErr: true},
		{name: "/foo", wantErr: true},
		{name: "C:foo", wantErr: true},
		{name: "a/../b", wantErr: true},
		{name: `a\b\c`, want: "a/b/c"},
		{name: "dir", isDir: true, want: "dir/"},
		{name: "file/", wantErr: true},
		{name: "plain.txt", want: "plain.txt"},
	}
	for _, tt := range tests {
		got, err := sanitizePath(tt.name, tt.isDir)
		if tt.wantErr {
			if err == nil {
				t.Errorf("sanitizePath(%q, %v): expected error", tt.name, tt.isDir)
			}
			continue
		}
		if err != nil {
			t.Errorf("sanitizePath(%q, %v): unexpected error: %v", tt.name, tt.isDir, err)
			continue
		}
		if got != tt.want {
			t.Errorf("sanitizePath(%q, %v) = %q, want %q", tt.name, tt.isDir, got, tt.want)
		}
	}
}

func TestDOSDateRoundTrip(t *testing.T) {
	in := time.Date(2024, time.August, 27, 21, 13, 26, 0, time.UTC)
	date, dosTime := timeToDOSDate(in)
	out := dosDateToTime(date, dosTime)

	want := in.Truncate(2 * time.Second)
	if !out.Equal(want) {
		t.Fatalf("round trip = %v, want %v", out, want)
	}
}

func TestDOSDateYearClamp(t *testing.T) {
	tooOld := time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)
	date, _ := timeToDOSDate(tooOld)
	year := (date >> 9) & 0x7F
	if year != 0 {
		t.Fatalf("expected clamp to 1980, got DOS year offset %d", year)
	}
}
