// Copyright (c) The Teleform Authors
// SPDX-License-Identifier: MPL-2.0

package teleform

import "fmt"

// Kind identifies a class of error. It exists so host programs can
// errors.As into a *Error and switch on Kind without string-matching
// messages.
type Kind string

const (
	// KindTele is a generic pass-through: a lower-level error (typically
	// from the filesystem or from JSON encoding) that doesn't fit one of
	// the more specific kinds below.
	KindTele Kind = "tele"

	KindStoreFileRead   Kind = "store_file_read"
	KindStoreFileDelete Kind = "store_file_delete"
	KindSerialize       Kind = "serialize"
	KindDeserialize     Kind = "deserialize"
	KindSchedule        Kind = "schedule"
	KindCreateFile      Kind = "create_file"
	KindWriteFile       Kind = "write_file"
	KindRemoteUnresolved Kind = "remote_unresolved"
	// KindDot is reserved for a graphviz/.dot export of a schedule;
	// Plan itself never produces it.
	KindDot              Kind = "dot"
	KindMissingName      Kind = "missing_name"
	KindMissingResource  Kind = "missing_resource"
	KindCreate           Kind = "create"
	KindImport           Kind = "import"
	KindUpdate           Kind = "update"
	KindDestroy          Kind = "destroy"
	// KindManual marks an error raised because the caller must take an
	// explicit manual action (e.g. the register[T]()/destroy(id) calls
	// named in an orphan warning) rather than one the engine can recover
	// from on its own.
	KindManual           Kind = "manual"
	KindLoad             Kind = "load"
	KindClobber          Kind = "clobber"
	KindDowncast         Kind = "downcast"
	KindMissingStoreFile Kind = "missing_store_file"
	KindScanStoreDir     Kind = "scan_store_dir"
)

// Error is the concrete error type for most failures in this package;
// UnresolvedError and ClobberError are separate types, and Plan combines
// the errors recorded by declare calls into one multierror. ID is the
// resource id involved, if any.
type Error struct {
	Kind  Kind
	ID    string
	Cause error
}

func (e *Error) Error() string {
	if e.ID == "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
		}
		return string(e.Kind)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s %q: %v", e.Kind, e.ID, e.Cause)
	}
	return fmt.Sprintf("%s %q", e.Kind, e.ID)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(kind Kind, id string, cause error) *Error {
	return &Error{Kind: kind, ID: id, Cause: cause}
}

// UnresolvedError is returned by LateBound.Get when its producer has not
// yet applied this session. It's a distinct type (rather than just an
// *Error with KindRemoteUnresolved) so callers can recover the
// producer's id directly with errors.As.
type UnresolvedError struct {
	TypeName  string
	DependsOn string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("unresolved dependency: %s has not produced an output yet (needed for %s)", e.DependsOn, e.TypeName)
}

// ClobberError is reported by Plan for a LoadOf declaration when the
// stored output differs from the one the caller is seeding and force was
// not set.
type ClobberError struct {
	ID             string
	StoredOutput   string
	DeclaredOutput string
}

func (e *ClobberError) Error() string {
	return fmt.Sprintf(
		"load %q would overwrite a different stored output without force=true:\n  stored:   %s\n  declared: %s",
		e.ID, e.StoredOutput, e.DeclaredOutput,
	)
}
