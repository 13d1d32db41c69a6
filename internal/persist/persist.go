// Copyright (c) The Teleform Authors
// SPDX-License-Identifier: MPL-2.0

// Package persist implements a per-resource JSON store: one file per
// resource id, written as create-or-replace with parent-directory
// autocreate, deleted unconditionally on destroy.
//
// Every write goes to a sibling ".tmp" file first and is swapped into
// place with Fs.Rename, which is atomic on a POSIX filesystem and on
// NTFS for same-volume renames, so a crash mid-write never leaves a
// partially-written record in place of the previous one.
package persist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Record is the on-disk shape of one resource. Unknown fields are ignored
// on read (forward evolution); TypeName and Dependencies are tolerated
// absent on read (legacy records). TypeName is written whenever it is
// set; an empty Dependencies list is omitted.
type Record struct {
	Name         string          `json:"name"`
	Local        json.RawMessage `json:"local"`
	Remote       json.RawMessage `json:"remote"`
	TypeName     string          `json:"type_name,omitempty"`
	Dependencies []string        `json:"dependencies,omitempty"`
}

// ErrMissing is returned by Read when the store file does not exist. The
// planner treats this distinctly from other I/O failures: it means
// "this id has never been created."
var ErrMissing = errors.New("missing store file")

// Store is a directory of per-resource JSON records.
type Store struct {
	fs  afero.Fs
	dir string
}

// New returns a Store rooted at dir on fs. dir need not exist yet; it is
// created on first write.
func New(fs afero.Fs, dir string) *Store {
	return &Store{fs: fs, dir: dir}
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Read loads the record for id, or ErrMissing if it has no store file.
func (s *Store) Read(id string) (*Record, error) {
	f, err := s.fs.Open(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrMissing
		}
		return nil, fmt.Errorf("reading store file for %q: %w", id, err)
	}
	defer f.Close()

	var rec Record
	if err := json.NewDecoder(f).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decoding store file for %q: %w", id, err)
	}
	// Write indents the whole record, Local and Remote included; compact
	// them so callers can compare them byte-for-byte with json.Marshal
	// output.
	for _, raw := range []*json.RawMessage{&rec.Local, &rec.Remote} {
		var buf bytes.Buffer
		if err := json.Compact(&buf, *raw); err == nil {
			*raw = buf.Bytes()
		}
	}
	return &rec, nil
}

// Exists reports whether id has a persisted record, without parsing it.
func (s *Store) Exists(id string) (bool, error) {
	_, err := s.fs.Stat(s.path(id))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Write creates or replaces the record for id. The write is atomic: it is
// staged in a temp file in the same directory and then renamed into place,
// so a crash either leaves the previous record intact or the new one fully
// written, never a partial file.
func (s *Store) Write(rec *Record) error {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating store directory %q: %w", s.dir, err)
	}

	final := s.path(rec.Name)
	tmp := final + ".tmp"

	f, err := s.fs.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating store file for %q: %w", rec.Name, err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		f.Close()
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("writing store file for %q: %w", rec.Name, err)
	}
	if syncer, ok := f.(interface{ Sync() error }); ok {
		_ = syncer.Sync()
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("writing store file for %q: %w", rec.Name, err)
	}

	if err := s.fs.Rename(tmp, final); err != nil {
		return fmt.Errorf("writing store file for %q: %w", rec.Name, err)
	}
	return nil
}

// Delete unconditionally removes the record for id. Deleting an id
// with no record is not an error.
func (s *Store) Delete(id string) error {
	err := s.fs.Remove(s.path(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting store file for %q: %w", id, err)
	}
	return nil
}

// Walk invokes fn once for every resource id with a persisted record
// (i.e. every "<id>.json" file directly in the store directory), in
// filename order. It is the primitive the orphan scanner uses to
// enumerate what's on disk.
func (s *Store) Walk(fn func(id string, rec *Record) error) error {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("scanning store directory %q: %w", s.dir, err)
	}
	for _, entry := range entries {
		name := entry.Name()
		const suffix = ".json"
		if entry.IsDir() || len(name) <= len(suffix) || name[len(name)-len(suffix):] != suffix {
			continue
		}
		id := name[:len(name)-len(suffix)]
		rec, err := s.Read(id)
		if err != nil {
			return fmt.Errorf("scanning store file %q: %w", name, err)
		}
		if err := fn(id, rec); err != nil {
			return err
		}
	}
	return nil
}
