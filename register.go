// Copyright (c) The Teleform Authors
// SPDX-License-Identifier: MPL-2.0

package teleform

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/teleform/teleform/internal/persist"
)

// Register makes a type destroyable by id even after every
// resource(...)/import(...) call that used to declare it has been
// removed from the caller's code. Without this, an orphaned record whose
// type no longer appears anywhere in the current declaration pass can
// only be reported as a warning, never actually destroyed, because the
// engine has no Delete method to call.
//
// L, O must be given explicitly; P is usually inferred from provider.
func Register[L Resource[P, O], P, O any](s *Store, provider P) {
	var zero L
	typeTag := fmt.Sprintf("%T", zero)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleters[typeTag] = func(ctx context.Context, rec *persist.Record) error {
		var out O
		if err := json.Unmarshal(rec.Remote, &out); err != nil {
			return newErr(KindDeserialize, rec.Name, err)
		}
		return zero.Delete(ctx, provider, out)
	}
}
