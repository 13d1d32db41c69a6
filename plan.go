// Copyright (c) The Teleform Authors
// SPDX-License-Identifier: MPL-2.0

package teleform

import (
	"context"
	"fmt"
	"strings"

	"github.com/teleform/teleform/internal/graph"
)

// PlannedAction describes one entry in a Plan's execution-ordered
// action list.
type PlannedAction struct {
	ID       string
	Action   Action
	TypeTag  string
	IsOrphan bool
}

// Plan is the result of Store.Plan: a read-only, execution-ordered
// description of what Store.Apply would do, plus any non-fatal warnings
// collected while building it (orphan remediation guidance lands here).
//
// A Plan may be applied at most once; Apply drains its schedule so a
// stale Plan can't be replayed against a Store whose declarations have
// since moved on.
type Plan struct {
	Actions  []PlannedAction
	Warnings []string

	schedule graph.Schedule
	applied  bool
}

// String renders the plan the way a human would read it at a terminal:
// one line per action, or "No changes." if the action list is empty.
func (p *Plan) String() string {
	if p == nil || len(p.Actions) == 0 {
		return "No changes."
	}
	var b strings.Builder
	for _, a := range p.Actions {
		orphan := ""
		if a.IsOrphan {
			orphan = " (orphan)"
		}
		fmt.Fprintf(&b, "  %-8s %s [%s]%s\n", a.Action, a.ID, a.TypeTag, orphan)
	}
	for _, w := range p.Warnings {
		fmt.Fprintf(&b, "  warning: %s\n", w)
	}
	return b.String()
}

// Apply executes plan's schedule batch by batch, running each batch's
// nodes in order. Execution stops at the first failing node; every
// node that already ran remains persisted, so a subsequent Plan/Apply
// cycle picks up from there. Regardless of outcome, plan is consumed:
// a second Apply call on it returns an error without re-running
// anything.
func (s *Store) Apply(ctx context.Context, plan *Plan) error {
	if plan == nil {
		return nil
	}
	if plan.applied {
		return newErr(KindTele, "", fmt.Errorf("plan already applied"))
	}
	plan.applied = true
	defer s.drain()

	for _, batch := range plan.schedule {
		for _, node := range batch {
			if node.Run == nil {
				continue
			}
			if err := node.Run(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}
