/*
 * Breakpoint Interceptor
 * Adapted from the Jacobin JVM project. Licensed under Mozilla Public
 * License 2.0 (MPL 2.0).
 */

package handlers

import (
	"context"

	"github.com/jacobin-agent/breakpoint-interceptor/src/breakpoint"
	"github.com/jacobin-agent/breakpoint-interceptor/src/callsite"
	"github.com/jacobin-agent/breakpoint-interceptor/src/hostruntime"
	"github.com/jacobin-agent/breakpoint-interceptor/src/trace"
)

// LoadClass builds spec.md §4.5 step 7's tracing handler for the
// `loadClass` hook: classify the callsite via filter, and only for
// callsites classified explicit, re-invoke and emit
// (caller class, classloader class, "loadClass", success=resolved?,
// name=argument).
func LoadClass(filter *callsite.Filter) breakpoint.Handler {
	return breakpoint.HandlerFunc(func(ctx context.Context, rt hostruntime.Runtime, emitter trace.Emitter, evt breakpoint.HookEvent) (bool, error) {
		frames := rt.CallerStack(ctx, 1)
		if len(frames) == 0 {
			return false, nil
		}

		res, err := filter.Classify(ctx, frames[0])
		if err != nil {
			return false, err
		}
		if !res.Explicit {
			return false, nil
		}

		classloaderClass, _, _, err := rt.MethodInfo(ctx, evt.Method)
		if err != nil {
			classloaderClass = string(trace.Unknown)
		}

		name := argOrSentinel(ctx, rt, 1)
		nameStr, _ := name.(string)

		_, clearedFailure, reinvokeErr := rt.Reinvoke(ctx, evt.Method, []any{name}, res.CallerClass)
		success := reinvokeErr == nil
		if !clearedFailure && rt.HasPendingFailure(ctx) {
			rt.ClearPendingFailure(ctx)
		}

		emitter.TraceCall(ctx, trace.Record{
			Kind:           trace.KindReflect,
			Function:       "loadClass",
			Class:          classloaderClass,
			DeclaringClass: classloaderClass,
			CallerClass:    res.CallerClass,
			Result:         success,
			Args:           []any{nameOrSentinel(nameStr, name)},
		})
		return true, nil
	})
}

func nameOrSentinel(s string, raw any) any {
	if s != "" {
		return s
	}
	return raw
}
