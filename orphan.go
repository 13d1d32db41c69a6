// Copyright (c) The Teleform Authors
// SPDX-License-Identifier: MPL-2.0

package teleform

import (
	"context"

	"github.com/teleform/teleform/internal/persist"
)

// scanOrphansLocked finds every persisted record whose id wasn't
// declared this session. Each one is either scheduled for destruction,
// if a deleter is available for its recorded type, or reported as a
// warning naming the exact call the caller needs to add to make it
// destroyable.
//
// Called with s.mu already held, from Plan.
func (s *Store) scanOrphansLocked() error {
	return s.persist.Walk(func(id string, rec *persist.Record) error {
		if s.declaredResources[id] {
			return nil
		}

		deps := recordDependencies(rec)
		var resolvedDeps []string
		for _, d := range deps {
			if _, ok := s.registry.get(d); ok {
				resolvedDeps = append(resolvedDeps, d)
			}
		}

		if rec.TypeName == "" {
			s.warnf(
				"orphaned store file %q has no recorded type; register its type with teleform.Register[T] and destroy(%q), or remove the file manually",
				id, id,
			)
			return nil
		}

		deleter, ok := s.deleters[rec.TypeName]
		if !ok {
			s.warnf(
				"orphaned resource %q of type %q is no longer declared this session; call teleform.Register[%s](store, provider) before the next plan so it can be destroyed",
				id, rec.TypeName, rec.TypeName,
			)
			return nil
		}

		entry, _, err := s.registry.declare(id, rec.TypeName)
		if err != nil {
			return err
		}
		entry.deps = resolvedDeps
		entry.action = ActionDestroy
		s.declaredResources[id] = true

		key := entry.key
		s.decls = append(s.decls, &nodeSpec{
			id:     id + "#load",
			key:    key,
			result: &key,
			run:    func(ctx context.Context) error { return nil },
		})

		reads := append([]int{key}, depKeys(s, resolvedDeps)...)
		s.decls = append(s.decls, &nodeSpec{
			id:    id,
			key:   key,
			reads: reads,
			move:  &key,
			emit:  &PlannedAction{ID: id, Action: ActionDestroy, TypeTag: rec.TypeName, IsOrphan: true},
			run: func(ctx context.Context) error {
				if err := deleter(ctx, rec); err != nil {
					return newErr(KindDestroy, id, err)
				}
				if err := s.persist.Delete(id); err != nil {
					return newErr(KindStoreFileDelete, id, err)
				}
				entry.cell.clear()
				return nil
			},
		})
		return nil
	})
}
