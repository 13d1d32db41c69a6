// Copyright (c) The Teleform Authors
// SPDX-License-Identifier: MPL-2.0

package persist

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestStore_ReadMissingReturnsErrMissing(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/store")
	_, err := s.Read("nope")
	require.True(t, errors.Is(err, ErrMissing))
}

func TestStore_WriteThenRead_RoundTrips(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/store")
	rec := &Record{
		Name:         "bucket.main",
		Local:        json.RawMessage(`{"name":"main"}`),
		Remote:       json.RawMessage(`{"arn":"arn:aws:s3:::main"}`),
		TypeName:     "pkg.Bucket",
		Dependencies: []string{"vpc.main"},
	}
	require.NoError(t, s.Write(rec))

	got, err := s.Read("bucket.main")
	require.NoError(t, err)
	require.Equal(t, rec.Name, got.Name)
	require.JSONEq(t, string(rec.Local), string(got.Local))
	require.JSONEq(t, string(rec.Remote), string(got.Remote))
	require.Equal(t, rec.TypeName, got.TypeName)
	require.Equal(t, rec.Dependencies, got.Dependencies)
}

func TestStore_WriteDoesNotLeaveTempFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := New(fs, "/store")
	require.NoError(t, s.Write(&Record{Name: "a", Local: json.RawMessage(`{}`), Remote: json.RawMessage(`{}`)}))

	exists, err := afero.Exists(fs, "/store/a.json.tmp")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestStore_Exists(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/store")
	ok, err := s.Exists("a")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Write(&Record{Name: "a", Local: json.RawMessage(`{}`), Remote: json.RawMessage(`{}`)}))
	ok, err = s.Exists("a")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestStore_DeleteIsUnconditional(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/store")
	require.NoError(t, s.Delete("never-existed"))

	require.NoError(t, s.Write(&Record{Name: "a", Local: json.RawMessage(`{}`), Remote: json.RawMessage(`{}`)}))
	require.NoError(t, s.Delete("a"))
	_, err := s.Read("a")
	require.True(t, errors.Is(err, ErrMissing))
}

func TestStore_WalkVisitsEveryRecordInFilenameOrder(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/store")
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, s.Write(&Record{Name: id, Local: json.RawMessage(`{}`), Remote: json.RawMessage(`{}`)}))
	}

	var seen []string
	require.NoError(t, s.Walk(func(id string, rec *Record) error {
		seen = append(seen, id)
		return nil
	}))
	require.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestStore_WalkOnMissingDirectoryIsANoop(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/nonexistent")
	var calls int
	require.NoError(t, s.Walk(func(id string, rec *Record) error {
		calls++
		return nil
	}))
	require.Zero(t, calls)
}
