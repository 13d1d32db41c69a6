// Copyright (c) The Teleform Authors
// SPDX-License-Identifier: MPL-2.0

package teleform

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/go-cmp/cmp"
)

// cell is the reference-counted mutable slot a resource's output lands
// in once it applies. It is shared by every LateBound value derived
// from the same producer, guarded by a mutex so concurrent readers
// (should the executor ever parallelize within a batch) see a
// consistent value.
type cell struct {
	mu    sync.Mutex
	value any
	ok    bool
}

func (c *cell) set(v any) {
	c.mu.Lock()
	c.value, c.ok = v, true
	c.mu.Unlock()
}

func (c *cell) clear() {
	c.mu.Lock()
	c.value, c.ok = nil, false
	c.mu.Unlock()
}

func (c *cell) get() (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.ok
}

// LateBound is a typed reference to another resource's output, resolved
// only once that resource has applied. A LateBound value is either
// "live" (shares a producer's cell directly) or "detached" (holds a
// snapshot deserialized from a persisted record);
// decoding a record always produces the detached form, since graph links
// are reconstructed from the declaration, not from disk.
type LateBound[T any] struct {
	dependsOn string
	cell      *cell
	proj      func(any) (T, error)
	snapshot  *T
}

// newLiveLateBound constructs the live variant used when a resource
// handle hands out a reference to its own (not-yet-populated) output.
func newLiveLateBound[T any](dependsOn string, c *cell) LateBound[T] {
	return LateBound[T]{
		dependsOn: dependsOn,
		cell:      c,
		proj: func(raw any) (T, error) {
			v, ok := raw.(T)
			if !ok {
				var zero T
				return zero, fmt.Errorf("resource %q produced %T, not %T", dependsOn, raw, zero)
			}
			return v, nil
		},
	}
}

// DependsOnID returns the id of the resource this value is late-bound to.
// It satisfies internal/depwalk.Dependent, which is how the default
// dependency discovery finds it inside a declared-input struct without
// needing to know LateBound's concrete type parameter.
func (lb LateBound[T]) DependsOnID() string { return lb.dependsOn }

// Get resolves the current projected value, or an *UnresolvedError if the
// producer hasn't applied yet (live, cell empty) and there is no cached
// snapshot (detached, never populated) either.
func (lb LateBound[T]) Get() (T, error) {
	var zero T
	if lb.cell != nil {
		raw, ok := lb.cell.get()
		if !ok {
			return zero, &UnresolvedError{TypeName: fmt.Sprintf("%T", zero), DependsOn: lb.dependsOn}
		}
		return lb.proj(raw)
	}
	if lb.snapshot != nil {
		return *lb.snapshot, nil
	}
	return zero, &UnresolvedError{TypeName: fmt.Sprintf("%T", zero), DependsOn: lb.dependsOn}
}

// Dependencies returns the singleton set of resource ids this value
// depends on.
func (lb LateBound[T]) Dependencies() []string { return []string{lb.dependsOn} }

// CopyStructure satisfies github.com/mitchellh/copystructure's Copier
// interface, so cloning a declared-input struct that embeds a
// LateBound[T] field (via cloneDeclared in store.go) returns the field
// unchanged rather than letting copystructure's generic reflection walk
// allocate a new, disconnected cell — which would silently detach the
// clone from its producer.
func (lb LateBound[T]) CopyStructure() any { return lb }

// ResolvedEqual compares the currently-resolved values of two
// late-bound references; an unresolved value is unequal to anything,
// including another unresolved value. Use this for application-level
// comparisons; the planner uses a different, plan-time-only notion of
// equality (see Equal).
func (lb LateBound[T]) ResolvedEqual(other LateBound[T]) bool {
	a, errA := lb.Get()
	if errA != nil {
		return false
	}
	b, errB := other.Get()
	if errB != nil {
		return false
	}
	return cmp.Equal(a, b)
}

// planSnapshot returns the id this value depends on, plus its last-known
// value if one is available (from a populated live cell, or from a
// detached snapshot read off disk) — nil if nothing is known yet, which
// is the normal state for a freshly-declared live value before its first
// apply in this session.
func (lb LateBound[T]) planSnapshot() (string, *T) {
	if lb.cell != nil {
		if raw, ok := lb.cell.get(); ok {
			if v, err := lb.proj(raw); err == nil {
				return lb.dependsOn, &v
			}
		}
		return lb.dependsOn, nil
	}
	return lb.dependsOn, lb.snapshot
}

// Equal implements plan-time structural equality: late-bound fields
// compare on depends_on identity plus last-known snapshot. A
// freshly-declared live value has no snapshot yet (its producer hasn't
// run this session), so an unknown snapshot on either side can't prove
// a difference and is treated as matching; genuine drift is still
// caught once both snapshots are known, and in any case a changed
// upstream is independently forced onto its dependents by the
// action-propagation rule.
//
// go-cmp calls this method automatically wherever it compares two
// LateBound[T] values (it special-cases any type with an "Equal(T) bool"
// method), which is what the action planner relies on; see
// declaredDiffers in planner.go.
func (lb LateBound[T]) Equal(other LateBound[T]) bool {
	if lb.dependsOn != other.dependsOn {
		return false
	}
	_, sa := lb.planSnapshot()
	_, sb := other.planSnapshot()
	if sa == nil || sb == nil {
		return true
	}
	return cmp.Equal(*sa, *sb)
}

// Map derives a new late-bound value that applies f to whatever lb
// resolves to, without forcing resolution now. The result shares lb's
// underlying cell, so it becomes resolvable at exactly the same moment
// lb does.
func Map[T, S any](lb LateBound[T], f func(T) S) LateBound[S] {
	return LateBound[S]{
		dependsOn: lb.dependsOn,
		cell:      lb.cell,
		proj: func(raw any) (S, error) {
			v, err := lb.proj(raw)
			if err != nil {
				var zero S
				return zero, err
			}
			return f(v), nil
		},
		snapshot: mapSnapshot(lb.snapshot, f),
	}
}

func mapSnapshot[T, S any](snap *T, f func(T) S) *S {
	if snap == nil {
		return nil
	}
	v := f(*snap)
	return &v
}

type wireLateBound[T any] struct {
	DependsOn      string `json:"depends_on"`
	LastKnownValue *T     `json:"last_known_value,omitempty"`
}

// MarshalJSON produces the {depends_on, last_known_value} wire shape.
// If the value currently has a resolved output (its producer already
// applied earlier in this same session), that output is what gets
// persisted as the snapshot; otherwise whatever detached snapshot it
// was decoded with (if any) is carried forward unchanged.
func (lb LateBound[T]) MarshalJSON() ([]byte, error) {
	_, snap := lb.planSnapshot()
	return json.Marshal(wireLateBound[T]{DependsOn: lb.dependsOn, LastKnownValue: snap})
}

// UnmarshalJSON always produces the detached variant: graph links are
// reconstructed at declaration time, not from disk.
func (lb *LateBound[T]) UnmarshalJSON(data []byte) error {
	var w wireLateBound[T]
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	lb.dependsOn = w.DependsOn
	lb.cell = nil
	lb.proj = nil
	lb.snapshot = w.LastKnownValue
	return nil
}
