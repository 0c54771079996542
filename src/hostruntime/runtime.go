/*
 * Breakpoint Interceptor
 * Adapted from the Jacobin JVM project. Licensed under Mozilla Public
 * License 2.0 (MPL 2.0).
 */

// Package hostruntime defines the boundary between the breakpoint
// interceptor core and the host managed runtime it instruments
// (spec.md §6, "Inbound from the host runtime"). Production bindings
// would implement Runtime over JVMTI/JNI; hostsim implements it over a
// small synthetic in-process class table for tests and the agentctl
// replay command.
package hostruntime

import "context"

// MethodID is the runtime's opaque integer naming a method, stable for
// the method's lifetime (spec.md GLOSSARY: "Method identity").
type MethodID int64

// ClassRef is a tracked global reference to a runtime-managed class
// (spec.md GLOSSARY: "Tracked global reference"). Release must be
// called exactly once, at agent unload.
type ClassRef struct {
	Name    string
	runtime Runtime
}

// Release pins this class reference's owning runtime to drop it. A
// zero-value ClassRef (no runtime bound) is a no-op, matching the
// "destruction invokes the runtime's release function" design note
// (spec.md §9) for references that were never actually acquired.
func (c ClassRef) Release() {
	if c.runtime != nil {
		c.runtime.ReleaseClassRef(c)
	}
}

// NewClassRef is used by Runtime implementations to hand back a
// releasable reference.
func NewClassRef(runtime Runtime, name string) ClassRef {
	return ClassRef{Name: name, runtime: runtime}
}

// Frame is one entry of a caller stack (spec.md §6: "Read the caller
// stack (depth-bounded)").
type Frame struct {
	Method MethodID
	Class  string
	BCI    int // bytecode index at the point of the call in this frame
}

// NativeBindEvent is delivered when the runtime is about to bind a
// native method to its resolved entry (spec.md §4.3).
type NativeBindEvent struct {
	Method       MethodID
	CurrentEntry uintptr
	// NewEntry is where the runtime will look to find the replacement
	// entry point after the event handler returns; the runtime reads
	// it once the handler returns.
	NewEntry uintptr
}

// Runtime is every capability the breakpoint interceptor core needs
// from the host (spec.md §6).
type Runtime interface {
	// AttachHook installs a hook at bytecode offset 0 of the named
	// method; the host then delivers a hook event on each hit.
	AttachHook(ctx context.Context, class string, method string, descriptor string) (ClassRef, MethodID, error)

	// ResolveMethod resolves a (method, descriptor) pair already known
	// to belong to class to an opaque MethodID, without attaching a
	// hook. No core package calls it; nativebind resolves NativeHookSpecs
	// through MethodResolver.ResolveAndAttach.
	ResolveMethod(ctx context.Context, class ClassRef, method string, descriptor string) (MethodID, error)

	// RegisterNativeMethod installs replacement as the implementation
	// the runtime calls for method, returning the entry point that was
	// previously registered (zero if none).
	RegisterNativeMethod(ctx context.Context, method MethodID, replacement uintptr) (previous uintptr, err error)

	// ReadLocal reads a positional argument or local variable of the
	// currently-stopped frame by index. ok is false if the slot is
	// unavailable (spec.md §4.1: "Missing locals yield the 'unknown'
	// sentinel rather than crashing the trace").
	ReadLocal(ctx context.Context, index int) (value any, ok bool)

	// CallerStack reads up to depth frames above the currently
	// intercepted method, nearest first.
	CallerStack(ctx context.Context, depth int) []Frame

	// MethodInfo reads a method's declaring class, name, and
	// descriptor (spec.md §6).
	MethodInfo(ctx context.Context, method MethodID) (class, name, descriptor string, err error)

	// Bytecode returns the bytecode array of the method owning class,
	// along with a release function that MUST be called on every exit
	// path (spec.md §5, "Resource discipline").
	Bytecode(ctx context.Context, method MethodID) (code []byte, release func(), err error)

	// ConstantPool returns the constant-pool byte slice of the class
	// that declares method, with a matching release function.
	ConstantPool(ctx context.Context, method MethodID) (pool []byte, release func(), err error)

	// ReleaseClassRef releases a tracked global reference acquired by
	// AttachHook.
	ReleaseClassRef(ref ClassRef)

	// Reinvoke calls the originally-intercepted method again, passing
	// callerClassLoader when the target API is caller-sensitive
	// (spec.md §4.1, "Re-invocation contract"). clearedFailure
	// reports whether the runtime's thread-state carried a pending
	// failure that was cleared as part of this call.
	Reinvoke(ctx context.Context, method MethodID, args []any, callerClassLoader string) (result any, clearedFailure bool, err error)

	// HasPendingFailure reports the calling thread's thread-state
	// pending-failure flag (spec.md §8: postcondition check).
	HasPendingFailure(ctx context.Context) bool

	// ClearPendingFailure clears the calling thread's pending-failure
	// flag.
	ClearPendingFailure(ctx context.Context)

	// ClassInfo reads a class's superclass name and the interfaces it
	// directly implements, for handlers that need to walk the class
	// hierarchy (spec.md §4.1, serialization constructor handler: "walk
	// its class-data-layout to enumerate transitively-referenced stream
	// classes"). ok is false if class is unknown to the runtime.
	ClassInfo(ctx context.Context, class string) (superClass string, implements []string, ok bool)

	// AttachHookToClass installs a hook at bytecode offset 0 of
	// (method, descriptor) declared by an already-resolved class,
	// without repeating the class lookup AttachHook performs (spec.md
	// §4.2: "Class resolution results are memoised across consecutive
	// entries with the same class name... a hook is still attached for
	// every entry").
	AttachHookToClass(ctx context.Context, class ClassRef, method string, descriptor string) (MethodID, error)
}
