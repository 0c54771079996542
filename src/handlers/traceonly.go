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

// TraceOnly builds the trace-only handler family of spec.md §4.1:
// "read the receiver, read the direct caller class, emit a record with
// (receiver class name, caller class name, operation, result=null). No
// re-invocation." function names the intercepted operation; argCount
// is how many positional arguments (beyond the receiver at local index
// 0) to read and report.
func TraceOnly(function string, argCount int) breakpoint.Handler {
	return breakpoint.HandlerFunc(func(ctx context.Context, rt hostruntime.Runtime, emitter trace.Emitter, evt breakpoint.HookEvent) (bool, error) {
		receiver := argOrSentinel(ctx, rt, 0)
		caller := callerClassOrSentinel(ctx, rt, 0)

		args := make([]any, argCount)
		for i := 0; i < argCount; i++ {
			args[i] = argOrSentinel(ctx, rt, i+1)
		}

		emitter.TraceCall(ctx, trace.Record{
			Kind:           trace.KindReflect,
			Function:       function,
			Class:          receiver,
			DeclaringClass: receiver,
			CallerClass:    caller,
			Result:         trace.Null,
			Args:           args,
		})
		return true, nil
	})
}
