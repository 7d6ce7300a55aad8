// Copyright 2025 The pkzip Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pkzip

import (
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/pkzip/pkzip/internal/sys"
)

var (
	_ fs.FS        = (*archiveFS)(nil)
	_ fs.StatFS    = (*archiveFS)(nil)
	_ fs.ReadDirFS = (*archiveFS)(nil)
)

// FS returns a read-only io/fs.FS view of a's central directory. Each call
// walks the whole directory once to build the name index of the view it
// returns; the index is not shared between calls. Opening a regular-file
// entry decompresses and validates it with DefaultStreamOptions.
func (a *Archive) FS() (fs.FS, error) {
	entries, factories, err := a.indexEntries()
	if err != nil {
		return nil, err
	}
	return &archiveFS{archive: a, entries: entries, factories: factories}, nil
}

func (a *Archive) indexEntries() ([]*Entry, map[*Entry]StreamFactory, error) {
	it := a.NewIterator(true)
	var entries []*Entry
	factories := make(map[*Entry]StreamFactory)
	for {
		e, factory, ok, err := it.Next()
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			break
		}
		entries = append(entries, e)
		factories[e] = factory
	}
	return entries, factories, nil
}

type archiveFS struct {
	archive   *Archive
	entries   []*Entry
	factories map[*Entry]StreamFactory
}

func (afs *archiveFS) Open(name string) (fs.File, error) {
	entry, err := afs.lookup(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	if entry == nil {
		return &fsDir{name: name, afs: afs}, nil
	}
	if entry.IsDir() {
		return &fsDir{name: entry.Name, afs: afs}, nil
	}

	rc, err := afs.factories[entry](DefaultStreamOptions())
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &fsFile{entry: entry, r: rc}, nil
}

func (afs *archiveFS) Stat(name string) (fs.FileInfo, error) {
	entry, err := afs.lookup(name)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	if entry == nil {
		return syntheticDirInfo{name: path.Base(name)}, nil
	}
	return entryFileInfo{entry}, nil
}

func (afs *archiveFS) ReadDir(name string) ([]fs.DirEntry, error) {
	f, err := afs.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dir, ok := f.(fs.ReadDirFile)
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	return dir.ReadDir(-1)
}

// lookup resolves name to a catalogued entry, or (nil, nil) when name
// names an implicit directory (a path prefix shared by some entry but not
// itself catalogued).
func (afs *archiveFS) lookup(name string) (*Entry, error) {
	if !fs.ValidPath(name) {
		return nil, fs.ErrInvalid
	}
	if name == "." {
		return nil, nil
	}

	dirName := name + "/"
	for _, e := range afs.entries {
		if e.Name == name || e.Name == dirName {
			return e, nil
		}
	}
	if afs.hasImplicitDir(dirName) {
		return nil, nil
	}
	return nil, fs.ErrNotExist
}

func (afs *archiveFS) hasImplicitDir(prefix string) bool {
	for _, e := range afs.entries {
		if strings.HasPrefix(e.Name, prefix) {
			return true
		}
	}
	return false
}

type fsFile struct {
	entry *Entry
	r     *EntryReader
}

func (f *fsFile) Stat() (fs.FileInfo, error) { return entryFileInfo{f.entry}, nil }
func (f *fsFile) Read(p []byte) (int, error) { return f.r.Read(p) }
func (f *fsFile) Close() error               { return f.r.Close() }

type fsDir struct {
	name string
	afs  *archiveFS
}

func (d *fsDir) Stat() (fs.FileInfo, error) { return syntheticDirInfo{name: path.Base(d.name)}, nil }
func (d *fsDir) Close() error               { return nil }
func (d *fsDir) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name, Err: fs.ErrInvalid}
}

func (d *fsDir) ReadDir(n int) ([]fs.DirEntry, error) {
	prefix := d.name
	if prefix == "." {
		prefix = ""
	} else if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	seen := make(map[string]bool)
	var out []fs.DirEntry
	for _, e := range d.afs.entries {
		if !strings.HasPrefix(e.Name, prefix) {
			continue
		}
		rel := strings.TrimPrefix(e.Name, prefix)
		rel = strings.TrimSuffix(rel, "/")
		if rel == "" {
			continue
		}
		parts := strings.SplitN(rel, "/", 2)
		child := parts[0]
		if seen[child] {
			continue
		}
		seen[child] = true

		isDir := len(parts) > 1 || e.IsDir()
		if isDir {
			out = append(out, fsDirEntry{name: child, isDir: true, info: syntheticDirInfo{name: child}})
		} else {
			out = append(out, fsDirEntry{name: child, isDir: false, info: entryFileInfo{e}})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })

	if n <= 0 {
		return out, nil
	}
	if len(out) <= n {
		return out, io.EOF
	}
	return out[:n], nil
}

type entryFileInfo struct{ e *Entry }

func (i entryFileInfo) Name() string       { return path.Base(strings.TrimSuffix(i.e.Name, "/")) }
func (i entryFileInfo) Size() int64        { return int64(i.e.UncompressedSize) }
func (i entryFileInfo) Mode() fs.FileMode  { return entryFileMode(i.e) }
func (i entryFileInfo) ModTime() time.Time { return i.e.ModTime }
func (i entryFileInfo) IsDir() bool        { return i.e.IsDir() }
func (i entryFileInfo) Sys() any           { return i.e }

func entryFileMode(e *Entry) fs.FileMode {
	mode := fs.FileMode(0644)
	if e.HostSystem == sys.HostSystemUNIX || e.HostSystem == sys.HostSystemDarwin {
		mode = fs.FileMode(e.ExternalAttributes>>16) & 0777
	}
	if e.IsDir() {
		mode |= fs.ModeDir
	}
	return mode
}

type syntheticDirInfo struct{ name string }

func (i syntheticDirInfo) Name() string       { return i.name }
func (i syntheticDirInfo) Size() int64        { return 0 }
func (i syntheticDirInfo) Mode() fs.FileMode  { return fs.ModeDir | 0755 }
func (i syntheticDirInfo) ModTime() time.Time { return time.Time{} }
func (i syntheticDirInfo) IsDir() bool        { return true }
func (i syntheticDirInfo) Sys() any           { return nil }

type fsDirEntry struct {
	name  string
	isDir bool
	info  fs.FileInfo
}

func (e fsDirEntry) Name() string               { return e.name }
func (e fsDirEntry) IsDir() bool                { return e.isDir }
func (e fsDirEntry) Type() fs.FileMode          { return e.info.Mode().Type() }
func (e fsDirEntry) Info() (fs.FileInfo, error) { return e.info, nil }
