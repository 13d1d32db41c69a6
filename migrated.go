// Copyright (c) The Teleform Authors
// SPDX-License-Identifier: MPL-2.0

package teleform

import "encoding/json"

// Migrated is an owned snapshot of a projected output, captured at
// declaration time from a resource that is about to be destroyed.
// Using Migrated[T] instead of LateBound[T] for a field lets a
// dependent survive its upstream's removal: there is no live cell to
// go empty, just a plain value.
//
// It deserializes transparently from either a bare T or the
// {depends_on, last_known_value} shape a LateBound[T] would have
// serialized as, so a schema migration from LateBound[T] to Migrated[T]
// is forward-compatible with whatever was already on disk.
type Migrated[T any] struct {
	Value T
}

// NewMigrated captures v as a migrated value.
func NewMigrated[T any](v T) Migrated[T] {
	return Migrated[T]{Value: v}
}

// MarshalJSON always writes the bare-value form; only decoding needs to
// tolerate the older late-bound-proxy shape.
func (m Migrated[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Value)
}

func (m *Migrated[T]) UnmarshalJSON(data []byte) error {
	var asObject map[string]json.RawMessage
	if err := json.Unmarshal(data, &asObject); err == nil {
		if _, isLateBoundShape := asObject["depends_on"]; isLateBoundShape {
			if raw, ok := asObject["last_known_value"]; ok {
				return json.Unmarshal(raw, &m.Value)
			}
			var zero T
			m.Value = zero
			return nil
		}
	}
	return json.Unmarshal(data, &m.Value)
}
