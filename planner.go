// Copyright (c) The Teleform Authors
// SPDX-License-Identifier: MPL-2.0

package teleform

import "github.com/google/go-cmp/cmp"

// opKind identifies which of the four declaration calls produced a
// registry entry.
type opKind int

const (
	opResource opKind = iota
	opImport
	opLoad
	opDestroy
)

// declaredDiffers reports whether the newly-declared input differs from
// the one reconstructed from the persisted record, using structural
// equality. It's implemented with go-cmp rather than reflect.DeepEqual
// specifically so that any LateBound[T] field's custom Equal method
// (see latebound.go) is honored instead of a naive deep comparison of
// its unexported internals.
func declaredDiffers[L any](declared, stored L) bool {
	return !cmp.Equal(declared, stored)
}

// resourceAction implements the Create/Load/Update decision table for
// ResourceOf, including the propagation rule: if any transitive
// dependency's planned action is not Load, this resource's action is
// promoted from Load to Update so that it re-runs and can refresh
// references to a possibly-regenerated upstream output.
func resourceAction(recordExists, differs, depsNonLoad bool) Action {
	if !recordExists {
		return ActionCreate
	}
	if differs || depsNonLoad {
		return ActionUpdate
	}
	return ActionLoad
}

// loadAction implements the LoadOf decision table. clobber is true
// when the call must fail with *ClobberError because force was not
// set.
func loadAction(recordExists, outputsEqual, force bool) (action Action, clobber bool) {
	if !recordExists {
		return ActionLoad, false
	}
	if outputsEqual || force {
		return ActionLoad, false
	}
	return ActionNone, true
}
