/*
 * Breakpoint Interceptor
 * Adapted from the Jacobin JVM project. Licensed under Mozilla Public
 * License 2.0 (MPL 2.0).
 */

// Package trace defines the TraceEmitter boundary (spec.md §6,
// "Outbound to the trace emitter") and one concrete implementation.
//
// The teacher references a jacobin/trace package from
// texadactyl-jacobin/native/osBridgeWindows.go ("trace.Error(errMsg)")
// but that package itself wasn't in the retrieval pack. This package
// reconstructs its evident shape -- a small, stable, side-effecting API
// named trace.* -- generalized from "log one string" to "append one
// structured Record", which is what spec.md's outbound interface
// actually asks for.
package trace

import (
	"context"
)

// Kind is one of the three trace record kinds spec.md §6 names.
type Kind string

const (
	KindReflect       Kind = "reflect"
	KindSerialization Kind = "serialization"
	KindJNI           Kind = "jni"
)

// Sentinel values a Record's fields may carry instead of a real value
// (spec.md §4.1: "A missing or unreadable array element becomes the
// sentinel 'unknown'; an unset reference becomes the sentinel
// 'null'.").
const (
	Unknown = "unknown"
	Null    = "null"
)

// Record is the single "traceCall" operation's argument set (spec.md
// §6). Result and each element of Args may be a bool, a string, a
// []string, or one of the Unknown/Null sentinels (as a string).
type Record struct {
	Kind           Kind
	Function       string
	Class          any // receiver/target class name, or Unknown/Null
	DeclaringClass any
	CallerClass    any
	Result         any
	Args           []any
}

// Emitter is the external collaborator spec.md §1 keeps out of scope:
// "append-only, thread-safe, and non-blocking from the handler's
// perspective."
type Emitter interface {
	TraceCall(ctx context.Context, rec Record)
}
