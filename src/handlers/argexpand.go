/*
 * Breakpoint Interceptor
 * Adapted from the Jacobin JVM project. Licensed under Mozilla Public
 * License 2.0 (MPL 2.0).
 */

package handlers

import (
	"context"

	"github.com/jacobin-agent/breakpoint-interceptor/src/breakpoint"
	"github.com/jacobin-agent/breakpoint-interceptor/src/hostruntime"
	"github.com/jacobin-agent/breakpoint-interceptor/src/trace"
)

// ArgExpandConfig parameterizes the argument-expanding handler family
// of spec.md §4.1: newProxyInstance, getProxyClass, method-handle
// lookups. These re-invoke like the plain re-invoking family, but one
// of their arguments is an array that must be materialized into a list
// of class names rather than reported opaquely.
type ArgExpandConfig struct {
	Function      string
	ArrayArgIndex int // local index of the array argument to expand
	ScalarArgs    []int
}

// expandArray converts a local holding an array-typed argument into
// trace.Record's []string-of-sentinels form (spec.md §4.1: "A missing
// or unreadable array element becomes the sentinel 'unknown'; an unset
// reference becomes the sentinel 'null'.").
func expandArray(ctx context.Context, rt hostruntime.Runtime, idx int) any {
	v, ok := rt.ReadLocal(ctx, idx)
	if !ok {
		return trace.Unknown
	}
	if v == nil {
		return trace.Null
	}
	elems, ok := v.([]any)
	if !ok {
		return trace.Unknown
	}

	out := make([]string, len(elems))
	for i, e := range elems {
		switch t := e.(type) {
		case string:
			out[i] = t
		case nil:
			out[i] = trace.Null
		default:
			out[i] = trace.Unknown
		}
	}
	return out
}

// ArgExpanding builds one argument-expanding handler.
func ArgExpanding(cfg ArgExpandConfig) breakpoint.Handler {
	return breakpoint.HandlerFunc(func(ctx context.Context, rt hostruntime.Runtime, emitter trace.Emitter, evt breakpoint.HookEvent) (bool, error) {
		receiver := argOrSentinel(ctx, rt, 0)
		caller := callerClassOrSentinel(ctx, rt, 0)

		args := make([]any, 0, len(cfg.ScalarArgs)+1)
		for _, idx := range cfg.ScalarArgs {
			args = append(args, argOrSentinel(ctx, rt, idx))
		}
		args = append(args, expandArray(ctx, rt, cfg.ArrayArgIndex))

		callerClassLoader, _ := caller.(string)
		_, clearedFailure, err := rt.Reinvoke(ctx, evt.Method, args, callerClassLoader)
		success := err == nil
		if !clearedFailure && rt.HasPendingFailure(ctx) {
			rt.ClearPendingFailure(ctx)
		}

		emitter.TraceCall(ctx, trace.Record{
			Kind:           trace.KindReflect,
			Function:       cfg.Function,
			Class:          receiver,
			DeclaringClass: receiver,
			CallerClass:    caller,
			Result:         success,
			Args:           args,
		})
		return true, nil
	})
}
