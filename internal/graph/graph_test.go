// Copyright (c) The Teleform Authors
// SPDX-License-Identifier: MPL-2.0

package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func key(k int) *int { return &k }

func TestSchedule_LinearChain(t *testing.T) {
	var b Builder
	a := b.Add(Node{ID: "a", Result: key(0)})
	c := b.Add(Node{ID: "b", Reads: []int{0}, Result: key(1)})
	d := b.Add(Node{ID: "c", Reads: []int{1}, Result: key(2)})

	sched, err := b.Finish().Schedule()
	require.NoError(t, err)
	require.Len(t, sched, 3)
	require.Equal(t, []*Node{a}, []*Node(sched[0]))
	require.Equal(t, []*Node{c}, []*Node(sched[1]))
	require.Equal(t, []*Node{d}, []*Node(sched[2]))
}

func TestSchedule_IndependentNodesShareABatch(t *testing.T) {
	var b Builder
	b.Add(Node{ID: "a", Result: key(0)})
	b.Add(Node{ID: "b", Result: key(1)})
	b.Add(Node{ID: "c", Reads: []int{0, 1}, Result: key(2)})

	sched, err := b.Finish().Schedule()
	require.NoError(t, err)
	require.Len(t, sched, 2)
	require.Len(t, sched[0], 2)
	require.Len(t, sched[1], 1)
}

func TestSchedule_CycleDetected(t *testing.T) {
	var b Builder
	b.Add(Node{ID: "a", Reads: []int{1}, Result: key(0)})
	b.Add(Node{ID: "b", Reads: []int{0}, Result: key(1)})

	_, err := b.Finish().Schedule()
	require.Error(t, err)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	require.ElementsMatch(t, []string{"a", "b"}, cycleErr.Nodes)
}

func TestSchedule_MissingResource(t *testing.T) {
	var b Builder
	b.Add(Node{ID: "a", Reads: []int{7}})

	_, err := b.Finish().Schedule()
	require.Error(t, err)
	var missErr *MissingResourceError
	require.ErrorAs(t, err, &missErr)
	require.Equal(t, "a", missErr.Reader)
	require.Equal(t, 7, missErr.Key)
}

func TestSchedule_ReadersOfAMovedKeyPrecedeItsMover(t *testing.T) {
	var b Builder
	producer := b.Add(Node{ID: "producer", Result: key(0)})
	reader := b.Add(Node{ID: "reader", Reads: []int{0}, Result: key(1)})
	mover := b.Add(Node{ID: "mover", Reads: []int{0}, Move: key(0)})

	sched, err := b.Finish().Schedule()
	require.NoError(t, err)

	batchOf := map[*Node]int{}
	for i, batch := range sched {
		for _, n := range batch {
			batchOf[n] = i
		}
	}
	require.Less(t, batchOf[producer], batchOf[reader])
	require.Less(t, batchOf[reader], batchOf[mover])
}

func TestSchedule_AfterMoveResolvesToMoverNotProducer(t *testing.T) {
	var b Builder
	producer := b.Add(Node{ID: "producer", Result: key(0)})
	mover := b.Add(Node{ID: "mover", Reads: []int{0}, Move: key(0)})
	checkpoint := b.Add(Node{ID: "checkpoint", AfterMove: []int{0}, Result: key(1)})

	sched, err := b.Finish().Schedule()
	require.NoError(t, err)

	batchOf := map[*Node]int{}
	for i, batch := range sched {
		for _, n := range batch {
			batchOf[n] = i
		}
	}
	require.Less(t, batchOf[producer], batchOf[mover])
	require.Less(t, batchOf[mover], batchOf[checkpoint])
}

func TestSchedule_AfterMoveFallsBackToProducerWithoutAMover(t *testing.T) {
	var b Builder
	producer := b.Add(Node{ID: "producer", Result: key(0)})
	checkpoint := b.Add(Node{ID: "checkpoint", AfterMove: []int{0}, Result: key(1)})

	sched, err := b.Finish().Schedule()
	require.NoError(t, err)

	batchOf := map[*Node]int{}
	for i, batch := range sched {
		for _, n := range batch {
			batchOf[n] = i
		}
	}
	require.Less(t, batchOf[producer], batchOf[checkpoint])
}

func TestSchedule_AfterMoveMissingKeyErrors(t *testing.T) {
	var b Builder
	b.Add(Node{ID: "checkpoint", AfterMove: []int{9}})

	_, err := b.Finish().Schedule()
	require.Error(t, err)
	var missErr *MissingResourceError
	require.ErrorAs(t, err, &missErr)
	require.Equal(t, "checkpoint", missErr.Reader)
	require.Equal(t, 9, missErr.Key)
}

func TestBuilder_DependsOnAttachesExtraReadEdge(t *testing.T) {
	var b Builder
	b.Add(Node{ID: "a", Result: key(0)})
	b.Add(Node{ID: "b", Result: key(1)})
	b.DependsOn(1, 0) // whatever produces key 1 must also read key 0

	sched, err := b.Finish().Schedule()
	require.NoError(t, err)
	require.Len(t, sched, 2)
	require.Equal(t, "a", sched[0][0].ID)
	require.Equal(t, "b", sched[1][0].ID)
}

func TestNode_RunIsInvoked(t *testing.T) {
	var ran bool
	var b Builder
	b.Add(Node{ID: "a", Result: key(0), Run: func(ctx context.Context) error {
		ran = true
		return nil
	}})

	sched, err := b.Finish().Schedule()
	require.NoError(t, err)
	for _, batch := range sched {
		for _, n := range batch {
			require.NoError(t, n.Run(context.Background()))
		}
	}
	require.True(t, ran)
}
