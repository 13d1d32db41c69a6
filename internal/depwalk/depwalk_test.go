// Copyright (c) The Teleform Authors
// SPDX-License-Identifier: MPL-2.0

package depwalk

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeRef is a minimal stand-in for teleform.LateBound[T] that implements
// Dependent without importing the root package (which would create an
// import cycle).
type fakeRef struct {
	id string
}

func (f fakeRef) DependsOnID() string { return f.id }

func TestDependencies_DirectField(t *testing.T) {
	type input struct {
		Name string
		Ref  fakeRef
	}
	got := Dependencies(input{Name: "x", Ref: fakeRef{id: "vpc.main"}})
	require.Equal(t, []string{"vpc.main"}, got)
}

func TestDependencies_NoReferencesYieldsEmpty(t *testing.T) {
	type input struct{ Name string }
	got := Dependencies(input{Name: "x"})
	require.Empty(t, got)
}

func TestDependencies_SliceAndMapElements(t *testing.T) {
	type input struct {
		Many []fakeRef
		ByID map[string]fakeRef
	}
	got := Dependencies(input{
		Many:  []fakeRef{{id: "a"}, {id: "b"}},
		ByID:  map[string]fakeRef{"x": {id: "c"}},
	})
	require.Equal(t, []string{"a", "b", "c"}, got)
}

func TestDependencies_DeduplicatesAndSorts(t *testing.T) {
	type input struct {
		First  fakeRef
		Second fakeRef
		Third  fakeRef
	}
	got := Dependencies(input{First: fakeRef{id: "z"}, Second: fakeRef{id: "a"}, Third: fakeRef{id: "z"}})
	require.Equal(t, []string{"a", "z"}, got)
}

func TestDependencies_NestedStruct(t *testing.T) {
	type inner struct{ Ref fakeRef }
	type outer struct{ Inner inner }
	got := Dependencies(outer{Inner: inner{Ref: fakeRef{id: "nested.id"}}})
	require.Equal(t, []string{"nested.id"}, got)
}
