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

// fieldExtractor reads whichever objectFieldOffset variant's arguments
// describe the target field, returning its declaring class and name.
type fieldExtractor func(ctx context.Context, rt hostruntime.Runtime) (declaringClass, name string, ok bool)

// unsafeFieldOffset is the shared body of spec.md §4.1's Unsafe
// field-offset handler family: "for each variant of objectFieldOffset
// (by Field, by (class, name), and a native variant), extract the
// field's declaring class and name and emit (declaring class, field
// name, success)." The three variants differ only in extractor.
func unsafeFieldOffset(function string, extract fieldExtractor) breakpoint.Handler {
	return breakpoint.HandlerFunc(func(ctx context.Context, rt hostruntime.Runtime, emitter trace.Emitter, evt breakpoint.HookEvent) (bool, error) {
		receiver := argOrSentinel(ctx, rt, 0)
		caller := callerClassOrSentinel(ctx, rt, 0)

		declaringClass, name, ok := extract(ctx, rt)
		if !ok {
			emitter.TraceCall(ctx, trace.Record{
				Kind: trace.KindJNI, Function: function,
				Class: receiver, DeclaringClass: trace.Unknown, CallerClass: caller,
				Result: false, Args: []any{trace.Unknown},
			})
			return true, nil
		}

		callerClassLoader, _ := caller.(string)
		_, clearedFailure, err := rt.Reinvoke(ctx, evt.Method, []any{declaringClass, name}, callerClassLoader)
		success := err == nil
		if !clearedFailure && rt.HasPendingFailure(ctx) {
			rt.ClearPendingFailure(ctx)
		}

		emitter.TraceCall(ctx, trace.Record{
			Kind:           trace.KindJNI,
			Function:       function,
			Class:          receiver,
			DeclaringClass: declaringClass,
			CallerClass:    caller,
			Result:         success,
			Args:           []any{name},
		})
		return true, nil
	})
}

// UnsafeFieldOffsetByField builds the `objectFieldOffset(Field)`
// variant: the field argument at local index 1 is a ReflectField.
func UnsafeFieldOffsetByField(function string) breakpoint.Handler {
	return unsafeFieldOffset(function, func(ctx context.Context, rt hostruntime.Runtime) (string, string, bool) {
		v, ok := rt.ReadLocal(ctx, 1)
		if !ok {
			return "", "", false
		}
		f, ok := v.(ReflectField)
		if !ok {
			return "", "", false
		}
		return f.DeclaringClass, f.Name, true
	})
}

// UnsafeFieldOffsetByClassAndName builds the `objectFieldOffset(Class,
// String)` variant: the declaring class name is local 1, the field
// name is local 2.
func UnsafeFieldOffsetByClassAndName(function string) breakpoint.Handler {
	return unsafeFieldOffset(function, func(ctx context.Context, rt hostruntime.Runtime) (string, string, bool) {
		class, ok1 := rt.ReadLocal(ctx, 1)
		name, ok2 := rt.ReadLocal(ctx, 2)
		if !ok1 || !ok2 {
			return "", "", false
		}
		classStr, ok1 := class.(string)
		nameStr, ok2 := name.(string)
		if !ok1 || !ok2 {
			return "", "", false
		}
		return classStr, nameStr, true
	})
}

// UnsafeFieldOffsetNative builds the native-entry variant of
// objectFieldOffset (spec.md §8 scenario 3: "The intercepting entry is
// bound"). It reads arguments and re-invokes exactly like
// UnsafeFieldOffsetByField, since this module's synthetic argument
// model does not distinguish the two call paths. Nothing in this
// module calls it from a native entry: NativeBindingInterceptor only
// registers a replacement value and never invokes a handler.
func UnsafeFieldOffsetNative(function string) breakpoint.Handler {
	return UnsafeFieldOffsetByField(function)
}
