// Copyright (c) The Teleform Authors
// SPDX-License-Identifier: MPL-2.0

// Package teleform is an embedded infrastructure-as-code reconciliation
// engine. A host program declares typed resources with inter-resource
// references; Store diffs those declarations against a directory of
// persisted JSON records, builds a dependency-ordered schedule of
// create/read/update/destroy actions, and executes it against whatever
// provider API the resource type talks to.
//
// Resource declaration and dependency tracking are generic: a resource's
// declared input is any Go value whose fields may embed [LateBound]
// references to other resources' outputs. Dependency discovery,
// scheduling, persistence, and orphan cleanup are all provider-agnostic;
// only the Create/Read/Update/Delete methods a resource type implements
// know how to talk to a real cloud API.
package teleform
