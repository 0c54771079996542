/*
 * Breakpoint Interceptor
 * Adapted from the Jacobin JVM project. Licensed under Mozilla Public
 * License 2.0 (MPL 2.0).
 */

package handlers

import (
	"context"
	"strings"

	"github.com/jacobin-agent/breakpoint-interceptor/src/breakpoint"
	"github.com/jacobin-agent/breakpoint-interceptor/src/hostruntime"
	"github.com/jacobin-agent/breakpoint-interceptor/src/trace"
)

// lambdaMarker is the substring spec.md §4.1 names for suppressing
// synthetic lambda classes: "Lambda-synthetic class names (matching
// the substring $$Lambda$) are suppressed."
const lambdaMarker = "$$Lambda$"

func containsInterface(implements []string, want string) bool {
	for _, i := range implements {
		if i == want {
			return true
		}
	}
	return false
}

// walkSerializableChain implements spec.md §4.1's "walk its
// class-data-layout to enumerate transitively-referenced stream
// classes": starting at target, follow the superclass chain while each
// class directly implements Serializable, stopping at the first
// non-serializable ancestor, java.lang.Object, or a lambda-synthetic
// name. Order is leaf-to-root, matching class-data-layout order
// (spec.md §8 scenario 5: "order matches class-data-layout order").
func walkSerializableChain(ctx context.Context, rt hostruntime.Runtime, target string) []string {
	var chain []string
	current := target
	for current != "" && current != "java/lang/Object" {
		if strings.Contains(current, lambdaMarker) {
			break
		}
		super, implements, ok := rt.ClassInfo(ctx, current)
		if !ok || !containsInterface(implements, "java/io/Serializable") {
			break
		}
		chain = append(chain, current)
		current = super
	}
	return chain
}

// SerializationConstructor builds spec.md §4.1's serialization
// constructor handler: "after observing an ObjectStreamClass
// construction on a target class, walk its class-data-layout to
// enumerate transitively-referenced stream classes and emit one
// serialization record per transitive target."
func SerializationConstructor() breakpoint.Handler {
	return breakpoint.HandlerFunc(func(ctx context.Context, rt hostruntime.Runtime, emitter trace.Emitter, evt breakpoint.HookEvent) (bool, error) {
		caller := callerClassOrSentinel(ctx, rt, 0)

		target, ok := rt.ReadLocal(ctx, 1)
		if !ok {
			return false, nil
		}
		targetClass, ok := target.(string)
		if !ok {
			return false, nil
		}

		for _, class := range walkSerializableChain(ctx, rt, targetClass) {
			emitter.TraceCall(ctx, trace.Record{
				Kind:           trace.KindSerialization,
				Function:       "ObjectStreamClass.<init>",
				Class:          class,
				DeclaringClass: class,
				CallerClass:    caller,
				Result:         true,
				Args:           []any{class},
			})
		}
		return true, nil
	})
}
