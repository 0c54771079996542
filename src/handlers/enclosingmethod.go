/*
 * Breakpoint Interceptor
 * Adapted from the Jacobin JVM project. Licensed under Mozilla Public
 * License 2.0 (MPL 2.0).
 */

package handlers

import (
	"context"
	"fmt"

	"github.com/jacobin-agent/breakpoint-interceptor/src/breakpoint"
	"github.com/jacobin-agent/breakpoint-interceptor/src/hostruntime"
	"github.com/jacobin-agent/breakpoint-interceptor/src/trace"
)

// EnclosingMethod builds spec.md §4.1's enclosing-method handler:
// re-invoke to obtain the returned reflective method reference, then
// resolve its declaring class, name, and descriptor via the runtime's
// debug interface and format as "<class>.<name><descriptor>".
func EnclosingMethod(function string) breakpoint.Handler {
	return breakpoint.HandlerFunc(func(ctx context.Context, rt hostruntime.Runtime, emitter trace.Emitter, evt breakpoint.HookEvent) (bool, error) {
		receiver := argOrSentinel(ctx, rt, 0)
		caller := callerClassOrSentinel(ctx, rt, 0)

		callerClassLoader, _ := caller.(string)
		result, clearedFailure, err := rt.Reinvoke(ctx, evt.Method, nil, callerClassLoader)
		if !clearedFailure && rt.HasPendingFailure(ctx) {
			rt.ClearPendingFailure(ctx)
		}

		var formatted any = trace.Null
		if err == nil {
			if methodRef, ok := result.(hostruntime.MethodID); ok {
				if class, name, descriptor, infoErr := rt.MethodInfo(ctx, methodRef); infoErr == nil {
					formatted = fmt.Sprintf("%s.%s%s", class, name, descriptor)
				} else {
					formatted = trace.Unknown
				}
			} else {
				formatted = trace.Unknown
			}
		}

		emitter.TraceCall(ctx, trace.Record{
			Kind:           trace.KindReflect,
			Function:       function,
			Class:          receiver,
			DeclaringClass: receiver,
			CallerClass:    caller,
			Result:         formatted,
		})
		return true, nil
	})
}
