// Copyright (c) The Teleform Authors
// SPDX-License-Identifier: MPL-2.0

package teleform

import "encoding/json"

// Handle is returned by ResourceOf, ImportOf, and LoadOf. It exposes
// the declared resource's eventual output as late-bound projections
// for other resources to depend on.
type Handle[O any] struct {
	id     string
	cell   *cell
	action Action
}

// ID returns the resource id this handle was declared under.
func (h *Handle[O]) ID() string { return h.id }

// Action returns the action the planner decided for this resource.
func (h *Handle[O]) Action() Action { return h.action }

// Remote returns a late-bound reference to this resource's own output,
// unprojected.
func Remote[O any](h *Handle[O]) LateBound[O] {
	return newLiveLateBound[O](h.id, h.cell)
}

// RemoteMap returns a late-bound projection of this resource's output.
func RemoteMap[O, T any](h *Handle[O], f func(O) T) LateBound[T] {
	return Map(newLiveLateBound[O](h.id, h.cell), f)
}

// DestroyHandle is returned by Destroy. It exposes the resource's
// last-known output so dependents can capture a Migrated snapshot of it
// before it disappears.
type DestroyHandle struct {
	id         string
	lastOutput func() (json.RawMessage, bool)
}

// ID returns the resource id being destroyed.
func (h *DestroyHandle) ID() string { return h.id }

// Migrate captures a snapshot of the destroyed resource's last-known
// output, projected through f, as a Migrated value a dependent can
// embed in place of a LateBound reference. O must match the output
// type the destroyed resource was originally declared with; a
// mismatch yields the zero value.
func Migrate[O, T any](h *DestroyHandle, f func(O) T) Migrated[T] {
	var zero T
	raw, ok := h.lastOutput()
	if !ok {
		return NewMigrated(zero)
	}
	var v O
	if err := json.Unmarshal(raw, &v); err != nil {
		return NewMigrated(zero)
	}
	return NewMigrated(f(v))
}
