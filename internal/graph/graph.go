// Copyright (c) The Teleform Authors
// SPDX-License-Identifier: MPL-2.0

// Package graph builds the resource-key DAG and batches it into an
// execution schedule. It is deliberately ignorant of resource domain
// types: a [Node] carries only integer key annotations and an opaque
// runner closure supplied by the caller, a flat table of operation
// descriptors referencing each other only by integer index.
package graph

import (
	"context"
	"fmt"
	"sort"
)

// Node is one unit of planned work: a resource's Load/Create/Read/Update,
// a Destroy, an orphan's synthetic pair, or a barrier.
type Node struct {
	// ID is a human-readable label used in error messages and DebugRepr;
	// it is not used for graph identity (Index is).
	ID string

	// Reads lists the resource keys that must be produced by an earlier
	// batch before this node may run.
	Reads []int

	// Result is the key this node produces into, if any (Load, Create,
	// Read, Update nodes, and barriers).
	Result *int

	// Move is the key this node consumes and retires, if any (Destroy
	// nodes). No node may read a key after its mover has run.
	Move *int

	// AfterMove lists keys whose full lifecycle must finish before this
	// node runs: if a key has a mover, that mover's completion is what
	// satisfies the edge, not its producer's. Unlike Reads, a key here
	// never makes this node count as a "reader" for the moved-key rule
	// below — it's for checkpoints (barriers) that must follow a Destroy
	// declared earlier, not for ordinary data dependents.
	AfterMove []int

	// Run performs the node's side effect. May be nil for placeholder
	// nodes used only in tests.
	Run func(ctx context.Context) error

	// index is assigned by Builder.Add and used internally for edges.
	index int
}

// Builder accumulates nodes and edges before Finish produces an immutable
// Graph. The zero value is ready to use.
type Builder struct {
	nodes []*Node
}

// Add appends a node and returns it. The returned pointer is stable and
// may be passed to DependsOn.
func (b *Builder) Add(n Node) *Node {
	n.index = len(b.nodes)
	ptr := &n
	b.nodes = append(b.nodes, ptr)
	return ptr
}

// DependsOn rewrites every node whose Result is this's key (the slot
// `this` produces into) so that it also reads other's key. It is used
// to attach a manually-declared extra dependency after both nodes
// already exist in the graph.
func (b *Builder) DependsOn(thisKey, otherKey int) {
	for _, n := range b.nodes {
		if n.Result != nil && *n.Result == thisKey {
			n.Reads = append(n.Reads, otherKey)
		}
	}
}

// Finish freezes the builder into a Graph.
func (b *Builder) Finish() *Graph {
	return &Graph{nodes: b.nodes}
}

// Graph is an immutable set of nodes and the read/result/move edges
// between them, ready for scheduling.
type Graph struct {
	nodes []*Node
}

// Batch is one set of nodes that may run concurrently-in-principle; the
// executor runs them sequentially within the batch by contract, but
// nothing in the schedule itself imposes an order among a batch's
// members.
type Batch []*Node

// Schedule is the ordered list of batches produced by Plan.
type Schedule []Batch

// CycleError is returned when the graph contains a dependency cycle.
type CycleError struct {
	Nodes []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected among: %v", e.Nodes)
}

// MissingResourceError is returned when a node reads a key that no node in
// the graph produces.
type MissingResourceError struct {
	Reader string
	Key    int
}

func (e *MissingResourceError) Error() string {
	return fmt.Sprintf("%s reads resource key %d, which no node produces", e.Reader, e.Key)
}

// Schedule performs topological batching:
//   - a node enters a batch once every key it reads has been produced by
//     an earlier batch;
//   - a node that reads a key also depends on every other reader of that
//     key if a mover exists for it, so that "no later batch may read a
//     moved key" holds without the executor needing to re-check it;
//   - a node's AfterMove keys resolve to each key's mover, not its
//     producer, when a mover exists, so a checkpoint can follow a
//     Destroy without being treated as a reader of the destroyed key.
func (g *Graph) Schedule() (Schedule, error) {
	producer := make(map[int]*Node, len(g.nodes))
	mover := make(map[int]*Node, len(g.nodes))
	for _, n := range g.nodes {
		if n.Result != nil {
			producer[*n.Result] = n
		}
		if n.Move != nil {
			mover[*n.Move] = n
		}
	}

	// deps[n] = set of node indices that must be scheduled strictly before n.
	deps := make([][]int, len(g.nodes))
	for _, n := range g.nodes {
		for _, k := range n.Reads {
			p, ok := producer[k]
			if !ok {
				return nil, &MissingResourceError{Reader: n.ID, Key: k}
			}
			if p.index != n.index {
				deps[n.index] = append(deps[n.index], p.index)
			}
		}
	}
	// Every reader of a moved key must run before that key's mover.
	for k, m := range mover {
		for _, n := range g.nodes {
			if n.index == m.index {
				continue
			}
			for _, rk := range n.Reads {
				if rk == k {
					deps[m.index] = append(deps[m.index], n.index)
				}
			}
		}
	}
	// AfterMove edges depend on the mover if one exists, the producer
	// otherwise — a checkpoint that follows a destroyed key waits for the
	// destroy itself, not the stale value that preceded it.
	for _, n := range g.nodes {
		for _, k := range n.AfterMove {
			if m, ok := mover[k]; ok {
				if m.index != n.index {
					deps[n.index] = append(deps[n.index], m.index)
				}
				continue
			}
			p, ok := producer[k]
			if !ok {
				return nil, &MissingResourceError{Reader: n.ID, Key: k}
			}
			if p.index != n.index {
				deps[n.index] = append(deps[n.index], p.index)
			}
		}
	}

	batchOf := make([]int, len(g.nodes))
	for i := range batchOf {
		batchOf[i] = -1
	}

	remaining := len(g.nodes)
	for batch := 0; remaining > 0; batch++ {
		progressed := false
		for _, n := range g.nodes {
			if batchOf[n.index] != -1 {
				continue
			}
			ready := true
			for _, d := range deps[n.index] {
				if batchOf[d] == -1 {
					ready = false
					break
				}
			}
			if ready {
				batchOf[n.index] = batch
				progressed = true
				remaining--
			}
		}
		if !progressed {
			var stuck []string
			for _, n := range g.nodes {
				if batchOf[n.index] == -1 {
					stuck = append(stuck, n.ID)
				}
			}
			sort.Strings(stuck)
			return nil, &CycleError{Nodes: stuck}
		}
	}

	maxBatch := -1
	for _, b := range batchOf {
		if b > maxBatch {
			maxBatch = b
		}
	}
	sched := make(Schedule, maxBatch+1)
	for _, n := range g.nodes {
		sched[batchOf[n.index]] = append(sched[batchOf[n.index]], n)
	}
	return sched, nil
}

// Nodes returns every node in the graph, in insertion order.
func (g *Graph) Nodes() []*Node {
	return g.nodes
}
