// Copyright (c) The Teleform Authors
// SPDX-License-Identifier: MPL-2.0

package teleform

import (
	"encoding/json"

	"github.com/teleform/teleform/internal/persist"
)

// recordDependencies returns rec's dependency ids: the explicit
// Dependencies field if the record was written by this engine, or a
// best-effort scan of Local for nested {"depends_on": "<id>"} objects
// (the wire shape LateBound[T] serializes as) if the record predates
// that field or was written by an older schema.
func recordDependencies(rec *persist.Record) []string {
	if len(rec.Dependencies) > 0 {
		return rec.Dependencies
	}
	seen := map[string]struct{}{}
	var out []string
	var walk func(raw json.RawMessage)
	walk = func(raw json.RawMessage) {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err == nil {
			if depRaw, ok := obj["depends_on"]; ok {
				var dep string
				if err := json.Unmarshal(depRaw, &dep); err == nil {
					if _, dup := seen[dep]; !dup {
						seen[dep] = struct{}{}
						out = append(out, dep)
					}
				}
			}
			for _, v := range obj {
				walk(v)
			}
			return
		}
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err == nil {
			for _, v := range arr {
				walk(v)
			}
		}
	}
	walk(rec.Local)
	return out
}
