// Copyright (c) The Teleform Authors
// SPDX-License-Identifier: MPL-2.0

// Package diag collects warnings and errors produced while a plan is being
// built. It is intentionally small: unlike a full diagnostics system it
// carries no source-range or severity taxonomy, just the two buckets the
// engine actually needs (see Store.Plan in the root package).
package diag

import (
	"fmt"

	multierror "github.com/hashicorp/go-multierror"
)

// Diagnostics accumulates warnings (surfaced to the caller alongside a
// successful plan) and errors (any one of which aborts planning).
type Diagnostics struct {
	Warnings []string
	errs     *multierror.Error
}

// Warnf records a warning and returns the formatted message, so a caller
// that also wants to log it doesn't have to format it twice. Warnings
// never abort planning.
func (d *Diagnostics) Warnf(format string, args ...any) string {
	msg := fmt.Sprintf(format, args...)
	d.Warnings = append(d.Warnings, msg)
	return msg
}

// Append records a planning error. Nil errors are ignored so callers can
// append the result of a fallible step unconditionally.
func (d *Diagnostics) Append(err error) {
	if err == nil {
		return
	}
	d.errs = multierror.Append(d.errs, err)
}

// HasErrors reports whether any error has been appended.
func (d *Diagnostics) HasErrors() bool {
	return d.errs != nil && d.errs.Len() > 0
}

// Err returns the accumulated errors, or nil if there were none.
func (d *Diagnostics) Err() error {
	if d.errs == nil || d.errs.Len() == 0 {
		return nil
	}
	return d.errs.ErrorOrNil()
}
