// Copyright (c) The Teleform Authors
// SPDX-License-Identifier: MPL-2.0

package teleform

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Barrier is a synthetic graph checkpoint returned by Store.Barrier:
// every declaration made before the barrier is guaranteed to schedule
// in an earlier batch than any declaration that names the barrier with
// After.
type Barrier struct {
	key int
}

// Barrier introduces a checkpoint after every resource declared so far
// this session. Pass the result to After on a later declaration to
// force it behind the checkpoint, useful for phased rollouts where a
// whole wave of resources must settle before the next wave begins,
// independent of whether any direct dependency edge exists between them.
func (s *Store) Barrier() Barrier {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A uuid-suffixed id, rather than a sequential counter, means a
	// barrier token can never collide with a resource id a caller chose,
	// even across repeated ClearResources cycles within one process.
	id := fmt.Sprintf("#barrier#%s", uuid.New().String())
	entry, _, _ := s.registry.declare(id, "barrier")
	key := entry.key

	// afterMove, not reads: a prior Destroy's synthetic load node produces
	// the same key its destroy node later retires, and a plain Reads edge
	// here would make the barrier count as a "reader" of that moved key —
	// forcing the destroy to wait on the barrier instead of the other way
	// around. AfterMove resolves to the mover when one exists.
	var afterMove []int
	for _, d := range s.decls {
		if d.result != nil {
			afterMove = append(afterMove, *d.result)
		}
	}

	s.decls = append(s.decls, &nodeSpec{
		id:        id,
		key:       key,
		afterMove: afterMove,
		result:    &key,
		run:       func(ctx context.Context) error { return nil },
	})
	return Barrier{key: key}
}

// After attaches a read-edge on b to a single ResourceOf, ImportOf,
// LoadOf, or Destroy call, forcing it into a batch no earlier than the
// one that barrier's checkpoint itself lands in.
func After(b Barrier) DeclareOption {
	return func(o *declareOpts) { o.after = append(o.after, b.key) }
}
