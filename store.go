// Copyright (c) The Teleform Authors
// SPDX-License-Identifier: MPL-2.0

package teleform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/copystructure"
	"github.com/spf13/afero"

	"github.com/teleform/teleform/internal/diag"
	"github.com/teleform/teleform/internal/graph"
	"github.com/teleform/teleform/internal/persist"
)

// deleterFunc destroys a persisted resource of some type, given only its
// last-written record; it's how Store recovers a Delete call for a type
// whose resource(...) declaration has gone away this session (see
// Register, the orphan scanner in orphan.go, and Destroy).
type deleterFunc func(ctx context.Context, rec *persist.Record) error

// nodeSpec is the engine-internal bridge between a declared resource and
// the domain-agnostic internal/graph.Node the scheduler actually runs.
type nodeSpec struct {
	id        string
	key       int
	reads     []int
	afterMove []int
	result    *int
	move      *int
	run       func(ctx context.Context) error
	emit      *PlannedAction // nil for synthetic helper nodes (barriers, destroy's load pairing)
}

// Store is the engine's single stateful handle: one per reconciliation
// session. Declare resources against it with ResourceOf, ImportOf,
// LoadOf, and Destroy, then call Plan and Apply.
//
// Store is not safe for concurrent declaration calls from multiple
// goroutines at once; the internal mutex only guards against data races,
// not against interleaved declare/Plan/Apply sequencing.
type Store struct {
	mu sync.Mutex

	fs      afero.Fs
	dir     string
	logger  hclog.Logger
	persist *persist.Store

	registry          *registry
	declaredResources map[string]bool
	deleters          map[string]deleterFunc
	diags             diag.Diagnostics
	decls             []*nodeSpec
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithLogger overrides the default hclog logger (named "teleform" off
// hclog.Default()).
func WithLogger(l hclog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithFS overrides the filesystem records are persisted to. Tests use
// this with afero.NewMemMapFs() to avoid touching disk.
func WithFS(fs afero.Fs) Option {
	return func(s *Store) { s.fs = fs }
}

// New returns a Store that persists records under dir.
func New(dir string, opts ...Option) *Store {
	s := &Store{
		dir:               dir,
		fs:                afero.NewOsFs(),
		logger:            hclog.Default().Named("teleform"),
		registry:          newRegistry(),
		declaredResources: map[string]bool{},
		deleters:          map[string]deleterFunc{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.persist = persist.New(s.fs, s.dir)
	return s
}

// declareOpts accumulates per-declaration modifiers (currently just
// After barriers) applied via DeclareOption.
type declareOpts struct {
	after []int
}

// DeclareOption modifies a single ResourceOf/ImportOf/LoadOf/Destroy
// call.
type DeclareOption func(*declareOpts)

func collectAfterKeys(opts []DeclareOption) []int {
	var o declareOpts
	for _, fn := range opts {
		fn(&o)
	}
	return o.after
}

// depKeys resolves dep ids to their already-assigned registry keys,
// silently dropping any that aren't registered (the caller is expected
// to have already turned an unresolved dependency into a diagnostic).
func depKeys(s *Store, deps []string) []int {
	keys := make([]int, 0, len(deps))
	for _, d := range deps {
		if e, ok := s.registry.get(d); ok {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// cloneDeclared deep-copies a declared-input value so the frozen copy
// a closure captures at declaration time can't be mutated out from
// under it by the caller reusing or modifying its original struct
// before Apply eventually runs. Falls back to v itself if it isn't
// deep-copyable (e.g. contains a channel or func field); LateBound
// implements copystructure.Copier to return itself unchanged rather
// than being walked field-by-field, which is what keeps a cloned
// value's late-bound fields pointing at the same producer cell.
func cloneDeclared[L any](v L) L {
	cp, err := copystructure.Copy(v)
	if err != nil {
		return v
	}
	out, ok := cp.(L)
	if !ok {
		return v
	}
	return out
}

func mustMarshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<unserializable: %v>", err)
	}
	return string(b)
}

// persistRecord writes declared and out as the record for id.
func (s *Store) persistRecord(id, typeTag string, deps []string, declared, out any) error {
	localBytes, err := json.Marshal(declared)
	if err != nil {
		return newErr(KindSerialize, id, err)
	}
	remoteBytes, err := json.Marshal(out)
	if err != nil {
		return newErr(KindSerialize, id, err)
	}
	rec := &persist.Record{Name: id, Local: localBytes, Remote: remoteBytes, TypeName: typeTag, Dependencies: deps}
	if err := s.persist.Write(rec); err != nil {
		return newErr(KindWriteFile, id, err)
	}
	return nil
}

// checkDuplicate reports whether id has already been declared this
// session under any of the four declaration calls, recording a
// diagnostic if so.
func (s *Store) checkDuplicate(id string) bool {
	if s.declaredResources[id] {
		s.diags.Append(newErr(KindTele, id, fmt.Errorf("id already declared this session")))
		return true
	}
	s.declaredResources[id] = true
	return false
}

// warnf records a non-fatal warning both in the diagnostics accumulator
// (surfaced on Plan.Warnings) and through the configured logger, so a
// host that only watches hclog output still sees orphan guidance.
func (s *Store) warnf(format string, args ...any) {
	s.logger.Warn(s.diags.Warnf(format, args...))
}

// checkDependencies validates that every id in deps is already known to
// the registry, recording a diagnostic and reporting false on the first
// unresolved one.
func (s *Store) checkDependencies(id string, deps []string) bool {
	for _, dep := range deps {
		if _, ok := s.registry.get(dep); !ok {
			s.diags.Append(newErr(KindMissingResource, id, fmt.Errorf("depends on undeclared id %q", dep)))
			return false
		}
	}
	return true
}

// ResourceOf declares a managed resource, returning a handle future
// callers can depend on. The planner decides Create, Update, or Load
// for it depending on whether a record already exists and whether the
// declared input or any dependency has changed.
func ResourceOf[L Resource[P, O], P, O any](s *Store, id string, declared L, provider P, opts ...DeclareOption) *Handle[O] {
	declared = cloneDeclared(declared)
	typeTag := fmt.Sprintf("%T", declared)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.checkDuplicate(id) {
		return &Handle[O]{id: id, cell: &cell{}}
	}
	s.deleters[typeTag] = func(ctx context.Context, rec *persist.Record) error {
		var out O
		if err := json.Unmarshal(rec.Remote, &out); err != nil {
			return newErr(KindDeserialize, rec.Name, err)
		}
		return declared.Delete(ctx, provider, out)
	}

	entry, _, err := s.registry.declare(id, typeTag)
	if err != nil {
		s.diags.Append(err)
		return &Handle[O]{id: id, cell: &cell{}}
	}
	entry.deps = dependenciesOf(declared)
	if !s.checkDependencies(id, entry.deps) {
		return &Handle[O]{id: id, cell: entry.cell}
	}

	rec, err := s.persist.Read(id)
	recordExists := err == nil
	if err != nil && !errors.Is(err, persist.ErrMissing) {
		s.diags.Append(newErr(KindStoreFileRead, id, err))
		return &Handle[O]{id: id, cell: entry.cell}
	}

	var differs bool
	if recordExists {
		var stored L
		if err := json.Unmarshal(rec.Local, &stored); err != nil {
			s.diags.Append(newErr(KindDeserialize, id, err))
			return &Handle[O]{id: id, cell: entry.cell}
		}
		differs = declaredDiffers(declared, stored)
	}

	var depsNonLoad bool
	for _, dep := range entry.deps {
		if depEntry, ok := s.registry.get(dep); ok && depEntry.action != ActionLoad {
			depsNonLoad = true
		}
	}

	action := resourceAction(recordExists, differs, depsNonLoad)
	entry.action = action

	key := entry.key
	reads := append(depKeys(s, entry.deps), collectAfterKeys(opts)...)
	ns := &nodeSpec{
		id: id, key: key, reads: reads, result: &key,
		emit: &PlannedAction{ID: id, Action: action, TypeTag: typeTag},
	}

	switch action {
	case ActionCreate:
		ns.run = func(ctx context.Context) error {
			out, err := declared.Create(ctx, provider)
			if err != nil {
				return newErr(KindCreate, id, err)
			}
			entry.cell.set(out)
			return s.persistRecord(id, typeTag, entry.deps, declared, out)
		}
	case ActionUpdate:
		ns.run = func(ctx context.Context) error {
			newLocal, err := json.Marshal(declared)
			if err != nil {
				return newErr(KindSerialize, id, err)
			}
			if recordExists && bytes.Equal(newLocal, rec.Local) {
				var prevOut O
				if err := json.Unmarshal(rec.Remote, &prevOut); err != nil {
					return newErr(KindDeserialize, id, err)
				}
				entry.cell.set(prevOut)
				s.logger.Debug("skipping unchanged update", "id", id)
				return nil
			}
			var prevOut O
			var prevDeclared any
			if recordExists {
				if err := json.Unmarshal(rec.Remote, &prevOut); err != nil {
					return newErr(KindDeserialize, id, err)
				}
				var pd L
				if err := json.Unmarshal(rec.Local, &pd); err != nil {
					return newErr(KindDeserialize, id, err)
				}
				prevDeclared = pd
			}
			out, err := declared.Update(ctx, provider, prevDeclared, prevOut)
			if err != nil {
				return newErr(KindUpdate, id, err)
			}
			entry.cell.set(out)
			return s.persistRecord(id, typeTag, entry.deps, declared, out)
		}
	default: // ActionLoad
		ns.run = func(ctx context.Context) error {
			if !recordExists {
				return newErr(KindLoad, id, fmt.Errorf("no stored record to load"))
			}
			var out O
			if err := json.Unmarshal(rec.Remote, &out); err != nil {
				return newErr(KindDeserialize, id, err)
			}
			entry.cell.set(out)
			return s.persistRecord(id, typeTag, entry.deps, declared, out)
		}
	}

	s.decls = append(s.decls, ns)
	return &Handle[O]{id: id, cell: entry.cell, action: action}
}

// ImportOf declares a resource whose current state is read from the
// provider unconditionally, rather than compared against a stored
// record.
func ImportOf[L Resource[P, O], P, O any](s *Store, id string, declared L, provider P, opts ...DeclareOption) *Handle[O] {
	declared = cloneDeclared(declared)
	typeTag := fmt.Sprintf("%T", declared)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.checkDuplicate(id) {
		return &Handle[O]{id: id, cell: &cell{}}
	}
	s.deleters[typeTag] = func(ctx context.Context, rec *persist.Record) error {
		var out O
		if err := json.Unmarshal(rec.Remote, &out); err != nil {
			return newErr(KindDeserialize, rec.Name, err)
		}
		return declared.Delete(ctx, provider, out)
	}

	entry, _, err := s.registry.declare(id, typeTag)
	if err != nil {
		s.diags.Append(err)
		return &Handle[O]{id: id, cell: &cell{}}
	}
	entry.deps = dependenciesOf(declared)
	if !s.checkDependencies(id, entry.deps) {
		return &Handle[O]{id: id, cell: entry.cell}
	}
	entry.action = ActionRead

	key := entry.key
	reads := append(depKeys(s, entry.deps), collectAfterKeys(opts)...)
	ns := &nodeSpec{
		id: id, key: key, reads: reads, result: &key,
		emit: &PlannedAction{ID: id, Action: ActionRead, TypeTag: typeTag},
		run: func(ctx context.Context) error {
			out, err := declared.Read(ctx, provider)
			if err != nil {
				return newErr(KindImport, id, err)
			}
			entry.cell.set(out)
			return s.persistRecord(id, typeTag, entry.deps, declared, out)
		},
	}
	s.decls = append(s.decls, ns)
	return &Handle[O]{id: id, cell: entry.cell, action: ActionRead}
}

// LoadOf seeds a resource's output directly, without contacting a
// provider. If a different output is already stored for id, Plan
// reports a *ClobberError unless force is set.
func LoadOf[L any, O any](s *Store, id string, declared L, seedOutput O, force bool, opts ...DeclareOption) *Handle[O] {
	declared = cloneDeclared(declared)
	typeTag := fmt.Sprintf("%T", declared)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.checkDuplicate(id) {
		return &Handle[O]{id: id, cell: &cell{}}
	}

	entry, _, err := s.registry.declare(id, typeTag)
	if err != nil {
		s.diags.Append(err)
		return &Handle[O]{id: id, cell: &cell{}}
	}
	entry.deps = dependenciesOf(declared)
	if !s.checkDependencies(id, entry.deps) {
		return &Handle[O]{id: id, cell: entry.cell}
	}

	rec, err := s.persist.Read(id)
	recordExists := err == nil
	if err != nil && !errors.Is(err, persist.ErrMissing) {
		s.diags.Append(newErr(KindStoreFileRead, id, err))
		return &Handle[O]{id: id, cell: entry.cell}
	}

	var outputsEqual bool
	if recordExists {
		seedBytes, mErr := json.Marshal(seedOutput)
		if mErr != nil {
			s.diags.Append(newErr(KindSerialize, id, mErr))
			return &Handle[O]{id: id, cell: entry.cell}
		}
		outputsEqual = bytes.Equal(seedBytes, rec.Remote)
	}

	action, clobber := loadAction(recordExists, outputsEqual, force)
	if clobber {
		s.diags.Append(&ClobberError{ID: id, StoredOutput: string(rec.Remote), DeclaredOutput: mustMarshal(seedOutput)})
		return &Handle[O]{id: id, cell: entry.cell}
	}
	entry.action = action

	key := entry.key
	reads := append(depKeys(s, entry.deps), collectAfterKeys(opts)...)
	ns := &nodeSpec{
		id: id, key: key, reads: reads, result: &key,
		emit: &PlannedAction{ID: id, Action: action, TypeTag: typeTag},
		run: func(ctx context.Context) error {
			entry.cell.set(seedOutput)
			return s.persistRecord(id, typeTag, entry.deps, declared, seedOutput)
		},
	}
	s.decls = append(s.decls, ns)
	return &Handle[O]{id: id, cell: entry.cell, action: action}
}

// Destroy declares that id should be removed. Unlike the other three
// declare calls it needs no declared-input value: it reads the stored
// record to recover the resource's type and last-known output, and
// looks up a deleter registered for that type either by an earlier
// ResourceOf/ImportOf call this session or by Register.
func Destroy(s *Store, id string, opts ...DeclareOption) *DestroyHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	missing := func() *DestroyHandle {
		return &DestroyHandle{id: id, lastOutput: func() (json.RawMessage, bool) { return nil, false }}
	}

	if s.checkDuplicate(id) {
		return missing()
	}

	rec, err := s.persist.Read(id)
	if err != nil {
		if errors.Is(err, persist.ErrMissing) {
			s.diags.Append(newErr(KindMissingStoreFile, id, err))
		} else {
			s.diags.Append(newErr(KindStoreFileRead, id, err))
		}
		return missing()
	}

	entry, _, err := s.registry.declare(id, rec.TypeName)
	if err != nil {
		s.diags.Append(err)
		return missing()
	}
	entry.deps = recordDependencies(rec)
	entry.action = ActionDestroy

	lastOutput := func() (json.RawMessage, bool) { return rec.Remote, true }

	deleter, ok := s.deleters[rec.TypeName]
	if !ok {
		s.diags.Append(newErr(KindManual, id, fmt.Errorf(
			"no deleter registered for type %q; call teleform.Register[%s](store, provider) before destroying %q",
			rec.TypeName, rec.TypeName, id)))
		return &DestroyHandle{id: id, lastOutput: lastOutput}
	}

	key := entry.key
	loadNode := &nodeSpec{
		id:     id + "#load",
		key:    key,
		result: &key,
		run:    func(ctx context.Context) error { return nil },
	}

	reads := []int{key}
	reads = append(reads, depKeys(s, entry.deps)...)
	reads = append(reads, collectAfterKeys(opts)...)

	destroyNode := &nodeSpec{
		id:    id,
		key:   key,
		reads: reads,
		move:  &key,
		emit:  &PlannedAction{ID: id, Action: ActionDestroy, TypeTag: rec.TypeName},
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
	}

	s.decls = append(s.decls, loadNode, destroyNode)
	return &DestroyHandle{id: id, lastOutput: lastOutput}
}

// ClearResources forgets every declaration made so far this session
// while retaining registered deleters, letting a host program re-run
// its declaration pass (e.g. between
// config reloads) without losing the ability to destroy orphans of a
// type whose resource(...) call isn't reached this time around.
func (s *Store) ClearResources() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Store) resetLocked() {
	s.registry.reset()
	s.declaredResources = map[string]bool{}
	s.decls = nil
	s.diags = diag.Diagnostics{}
}

// drain is called once after Apply runs, successfully or not, so a
// fresh declare/Plan/Apply cycle can start clean. Deleters registered
// via ResourceOf/ImportOf/Register survive.
func (s *Store) drain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// Plan scans for orphaned records, builds the dependency graph from
// every declaration made this session, and schedules it into execution
// batches. It returns an error if any declaration this session produced
// a diagnostic error, or if the graph has a cycle or an unresolved
// dependency. The orphan scan runs first: the orphans it registers stay
// on the Store even when Plan then returns an error.
func (s *Store) Plan(ctx context.Context) (*Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.scanOrphansLocked(); err != nil {
		s.diags.Append(err)
	}

	if s.diags.HasErrors() {
		return nil, s.diags.Err()
	}

	var b graph.Builder
	emitByID := make(map[string]*PlannedAction, len(s.decls))
	for _, d := range s.decls {
		b.Add(graph.Node{ID: d.id, Reads: d.reads, AfterMove: d.afterMove, Result: d.result, Move: d.move, Run: d.run})
		if d.emit != nil {
			emitByID[d.id] = d.emit
		}
	}

	sched, err := b.Finish().Schedule()
	if err != nil {
		var cycleErr *graph.CycleError
		if errors.As(err, &cycleErr) {
			return nil, newErr(KindSchedule, "", err)
		}
		var missErr *graph.MissingResourceError
		if errors.As(err, &missErr) {
			return nil, newErr(KindMissingResource, missErr.Reader, err)
		}
		return nil, newErr(KindSchedule, "", err)
	}

	if s.logger.IsDebug() {
		for i, batch := range sched {
			ids := make([]string, len(batch))
			for j, n := range batch {
				ids[j] = n.ID
			}
			s.logger.Debug("schedule batch", "index", i, "nodes", ids)
		}
	}

	plan := &Plan{
		Warnings: append([]string{}, s.diags.Warnings...),
		schedule: sched,
	}
	for _, batch := range sched {
		for _, n := range batch {
			if pa, ok := emitByID[n.ID]; ok {
				plan.Actions = append(plan.Actions, *pa)
			}
		}
	}
	return plan, nil
}
