/*
 * Breakpoint Interceptor
 * Adapted from the Jacobin JVM project. Licensed under Mozilla Public
 * License 2.0 (MPL 2.0).
 */

// Package handlers implements spec.md §4.1's HandlerSet: one handler
// per hook-kind family, each reconstructing semantic arguments off
// hostruntime.Runtime and calling trace.Emitter.
//
// Grounded on artipop-jacobin/gfunction/javaLangString.go's extraction
// style (read positional params, fall back to an error-block sentinel
// on bad input rather than panicking) and
// gfunction/javaUtilHashMap.go's type-switch-heavy field access,
// generalized here from "what to return instead of running bytecode"
// to "what to record about an intercepted call."
package handlers

import (
	"context"

	"github.com/jacobin-agent/breakpoint-interceptor/src/hostruntime"
	"github.com/jacobin-agent/breakpoint-interceptor/src/trace"
)

// argOrSentinel reads local index idx and converts it to the sentinel
// form trace.Record expects: the real value if present, trace.Null if
// explicitly absent (the runtime reported the slot as nil), or
// trace.Unknown if the runtime could not read it at all (spec.md §4.1:
// "Missing locals yield the 'unknown' sentinel rather than crashing the
// trace").
func argOrSentinel(ctx context.Context, rt hostruntime.Runtime, idx int) any {
	v, ok := rt.ReadLocal(ctx, idx)
	if !ok {
		return trace.Unknown
	}
	if v == nil {
		return trace.Null
	}
	return v
}

// callerClassOrSentinel reads the direct caller frame's class name
// (spec.md GLOSSARY: "Caller class"), falling back to trace.Unknown
// when no caller frame is available.
func callerClassOrSentinel(ctx context.Context, rt hostruntime.Runtime, skip int) any {
	frames := rt.CallerStack(ctx, skip+1)
	if len(frames) <= skip {
		return trace.Unknown
	}
	return frames[skip].Class
}

// stringArgOrSentinel type-asserts v as a string argument, used where a
// handler knows the semantic type of the local it just read (most
// hooked signatures' interesting argument is a j.l.String).
func stringArgOrSentinel(v any) any {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return trace.Null
	default:
		return trace.Unknown
	}
}

// ReflectField is the semantic shape a `java.lang.reflect.Field`
// argument takes in this module's synthetic argument model (spec.md
// §4.1's "Unsafe field offset" handlers extract exactly these two
// properties off whichever Field-shaped argument they receive).
type ReflectField struct {
	DeclaringClass string
	Name           string
}
