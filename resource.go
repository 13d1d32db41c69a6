// Copyright (c) The Teleform Authors
// SPDX-License-Identifier: MPL-2.0

package teleform

import (
	"context"

	"github.com/teleform/teleform/internal/depwalk"
)

// Resource is the capability set a declared-input type must implement
// to be usable with ResourceOf. P is the provider handle (an
// opaque client bundle, e.g. a cloud SDK client); O is the output type
// describing realized state.
//
// Implementations may panic lazily in methods that are never reachable
// along the chosen action path — e.g. a data-source-only resource can
// panic in Update and Delete if its planner action never produces
// those calls.
type Resource[P any, O any] interface {
	// Create materializes the resource on the provider.
	Create(ctx context.Context, provider P) (O, error)
	// Read imports the resource's current state from the provider.
	Read(ctx context.Context, provider P) (O, error)
	// Update reconciles a changed declaration against the provider.
	// previousDeclared is the declared input from the last successful
	// apply, typed as `any` because the action planner that calls this
	// doesn't retain a type parameter for it; implementations type-assert
	// it back to their own type.
	Update(ctx context.Context, provider P, previousDeclared any, previousOutput O) (O, error)
	// Delete removes the resource from the provider.
	Delete(ctx context.Context, provider P, previousOutput O) error
}

// Reporter lets a declared-input type enumerate its own dependencies
// instead of relying on the reflection-based default in internal/depwalk.
// Implement this when a type's late-bound references live somewhere
// reflection can't see them (in an unexported field, for example) or
// simply to skip the reflection cost.
type Reporter interface {
	Dependencies() []string
}

// dependenciesOf returns v's declared dependencies: v's own Dependencies
// method if it implements Reporter, else the reflection-based default.
func dependenciesOf(v any) []string {
	if r, ok := v.(Reporter); ok {
		return r.Dependencies()
	}
	return depwalk.Dependencies(v)
}
