// Copyright (c) The Teleform Authors
// SPDX-License-Identifier: MPL-2.0

// Package depwalk implements the default dependency discovery used by
// resources that don't implement Reporter themselves: given any
// declared-input value, find every resource id referenced transitively
// through its embedded late-bound fields.
//
// It walks the value's fields at runtime using
// github.com/mitchellh/reflectwalk rather than requiring generated
// code. Types that want to skip the reflection cost, or that embed
// late-bound values in a shape reflection can't see (e.g. in an
// unexported field), can implement Reporter themselves and bypass this
// package entirely.
package depwalk

import (
	"reflect"
	"sort"

	"github.com/mitchellh/reflectwalk"
)

// Dependent is implemented by any value that pins a dependency on another
// resource's output — concretely, teleform.LateBound[T]. Kept as a
// minimal interface here (rather than importing the root package) to
// avoid a import cycle between the root package and this one.
type Dependent interface {
	DependsOnID() string
}

// Dependencies returns the sorted, de-duplicated set of resource ids that
// v references transitively through fields implementing Dependent. v is
// typically a pointer to, or value of, a declared-input struct.
func Dependencies(v any) []string {
	w := &walker{seen: map[string]struct{}{}}
	// reflectwalk only returns an error that a walker callback returned;
	// ours return nothing but SkipEntry from Struct and StructField, which
	// reflectwalk consumes itself, so the error is always nil.
	_ = reflectwalk.Walk(v, w)

	out := make([]string, 0, len(w.seen))
	for id := range w.seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

type walker struct {
	seen map[string]struct{}
}

func (w *walker) consider(v reflect.Value) bool {
	if !v.IsValid() || !v.CanInterface() {
		return false
	}
	dep, ok := v.Interface().(Dependent)
	if !ok {
		return false
	}
	if id := dep.DependsOnID(); id != "" {
		w.seen[id] = struct{}{}
	}
	return true
}

// StructField is called for every field reflectwalk visits. If the field
// itself is a Dependent (a LateBound cell embedded directly), we record it
// and tell reflectwalk not to descend further into its internals.
func (w *walker) StructField(_ reflect.StructField, v reflect.Value) error {
	if w.consider(v) {
		return reflectwalk.SkipEntry
	}
	return nil
}

// Struct stops the walk from descending into the internals of a struct
// value that is itself a Dependent, such as a LateBound slice element.
func (w *walker) Struct(v reflect.Value) error {
	if w.consider(v) {
		return reflectwalk.SkipEntry
	}
	return nil
}

// Slice and Map are the other halves of the SliceWalker/MapWalker
// interfaces reflectwalk requires alongside SliceElem/MapElem; interface
// satisfaction in Go is all-or-nothing, so without these two no-ops
// reflectwalk never recognizes w as either interface and SliceElem/MapElem
// are simply never called.
func (w *walker) Slice(reflect.Value) error { return nil }

func (w *walker) Map(reflect.Value) error { return nil }

// SliceElem and MapElem cover late-bound values stored directly as
// elements of a slice or map field. reflectwalk does not accept SkipEntry
// from these callbacks (it would abort the whole walk), so they return nil
// and Struct stops the descent into a late-bound element.
func (w *walker) SliceElem(_ int, v reflect.Value) error {
	w.consider(v)
	return nil
}

func (w *walker) MapElem(_, k, v reflect.Value) error {
	w.consider(k)
	w.consider(v)
	return nil
}
