/*
 * Breakpoint Interceptor
 * Adapted from the Jacobin JVM project. Licensed under Mozilla Public
 * License 2.0 (MPL 2.0).
 */

package agent

import (
	"github.com/jacobin-agent/breakpoint-interceptor/src/breakpoint"
	"github.com/jacobin-agent/breakpoint-interceptor/src/handlers"
	"github.com/jacobin-agent/breakpoint-interceptor/src/hostruntime"
)

// BuildTable assembles spec.md §4.1's static catalog: the closed set
// of dynamic-lookup APIs this agent traces, one HookSpec per entry.
// Grounded on artipop-jacobin/gfunction's several Load_Lang_*()
// functions, each a flat list of MethodSignatures entries -- this is
// the same shape, a flat list of (class, method, descriptor, handler)
// built once at agent construction.
func BuildTable(trampolineMethod hostruntime.MethodID) *breakpoint.Table {
	t := breakpoint.NewTable()

	// Trace-only: reflective listing APIs never re-invoked, since
	// observing their result adds nothing the trace needs (spec.md
	// §4.1, "Trace-only handlers").
	t.Add(breakpoint.HookSpec{
		Class: "java/lang/Class", Method: "getFields", Descriptor: "()[Ljava/lang/reflect/Field;",
		Handler: handlers.TraceOnly("getFields", 0), Optional: true,
	})
	t.Add(breakpoint.HookSpec{
		Class: "java/lang/Class", Method: "getMethods", Descriptor: "()[Ljava/lang/reflect/Method;",
		Handler: handlers.TraceOnly("getMethods", 0), Optional: true,
	})
	t.Add(breakpoint.HookSpec{
		Class: "java/lang/Class", Method: "getDeclaredFields", Descriptor: "()[Ljava/lang/reflect/Field;",
		Handler: handlers.TraceOnly("getDeclaredFields", 0), Optional: true,
	})

	// Re-invoking: the handler re-calls the hooked method itself to
	// observe success/failure (spec.md §4.1, "Re-invoking handlers").
	t.Add(breakpoint.HookSpec{
		Class: "java/lang/Class", Method: "forName", Descriptor: "(Ljava/lang/String;)Ljava/lang/Class;",
		Handler: handlers.Reinvoking(handlers.ReinvokeConfig{Function: "forName", ArgCount: 1}),
	})
	// The three-argument forName additionally carries an explicit
	// "initialize" boolean (spec.md §9 open question): force it off on
	// re-invocation to avoid triggering further hookable events during
	// class init.
	t.Add(breakpoint.HookSpec{
		Class: "java/lang/Class", Method: "forName", Descriptor: "(Ljava/lang/String;ZLjava/lang/ClassLoader;)Ljava/lang/Class;",
		Handler: handlers.Reinvoking(handlers.ReinvokeConfig{
			Function: "forName", ArgCount: 3, ForceInitializeOff: true, InitializeArgIndex: 1,
		}), Optional: true,
	})
	t.Add(breakpoint.HookSpec{
		Class: "java/lang/Class", Method: "getField", Descriptor: "(Ljava/lang/String;)Ljava/lang/reflect/Field;",
		Handler: handlers.Reinvoking(handlers.ReinvokeConfig{Function: "getField", ArgCount: 1}),
	})
	t.Add(breakpoint.HookSpec{
		Class: "java/lang/Class", Method: "getDeclaredField", Descriptor: "(Ljava/lang/String;)Ljava/lang/reflect/Field;",
		Handler: handlers.Reinvoking(handlers.ReinvokeConfig{Function: "getDeclaredField", ArgCount: 1}),
	})
	t.Add(breakpoint.HookSpec{
		Class: "java/lang/Class", Method: "getMethod", Descriptor: "(Ljava/lang/String;[Ljava/lang/Class;)Ljava/lang/reflect/Method;",
		Handler: handlers.Reinvoking(handlers.ReinvokeConfig{Function: "getMethod", ArgCount: 2}),
	})
	t.Add(breakpoint.HookSpec{
		Class: "java/lang/Class", Method: "getDeclaredMethod", Descriptor: "(Ljava/lang/String;[Ljava/lang/Class;)Ljava/lang/reflect/Method;",
		Handler: handlers.Reinvoking(handlers.ReinvokeConfig{Function: "getDeclaredMethod", ArgCount: 2}),
	})
	t.Add(breakpoint.HookSpec{
		Class: "java/lang/Class", Method: "getConstructor", Descriptor: "([Ljava/lang/Class;)Ljava/lang/reflect/Constructor;",
		Handler: handlers.Reinvoking(handlers.ReinvokeConfig{Function: "getConstructor", ArgCount: 1}),
	})
	t.Add(breakpoint.HookSpec{
		Class: "java/lang/invoke/MethodHandles$Lookup", Method: "findVirtual",
		Descriptor: "(Ljava/lang/Class;Ljava/lang/String;Ljava/lang/invoke/MethodType;)Ljava/lang/invoke/MethodHandle;",
		Handler: handlers.Reinvoking(handlers.ReinvokeConfig{Function: "findVirtual", ArgCount: 3}), Optional: true,
	})

	// Argument-expanding: additionally materialise an array argument
	// into a list of class names (spec.md §4.1, "Argument-expanding
	// handlers").
	t.Add(breakpoint.HookSpec{
		Class: "java/lang/reflect/Proxy", Method: "newProxyInstance",
		Descriptor: "(Ljava/lang/ClassLoader;[Ljava/lang/Class;Ljava/lang/reflect/InvocationHandler;)Ljava/lang/Object;",
		Handler: handlers.ArgExpanding(handlers.ArgExpandConfig{
			Function: "newProxyInstance", ArrayArgIndex: 1,
		}),
	})
	t.Add(breakpoint.HookSpec{
		Class: "java/lang/reflect/Proxy", Method: "getProxyClass",
		Descriptor: "(Ljava/lang/ClassLoader;[Ljava/lang/Class;)Ljava/lang/Class;",
		Handler: handlers.ArgExpanding(handlers.ArgExpandConfig{
			Function: "getProxyClass", ArrayArgIndex: 1,
		}), Optional: true,
	})

	// Enclosing-method: resolves a returned reflective method reference
	// rather than a boolean (spec.md §4.1, "Enclosing-method handler").
	t.Add(breakpoint.HookSpec{
		Class: "java/lang/Class", Method: "getEnclosingMethod", Descriptor: "()Ljava/lang/reflect/Method;",
		Handler: handlers.EnclosingMethod("getEnclosingMethod"), Optional: true,
	})

	// Unsafe field-offset variants, bytecode-hooked (the native variant
	// goes through BuildNativeTable instead; spec.md §4.1, "Unsafe
	// field offset handlers").
	t.Add(breakpoint.HookSpec{
		Class: "jdk/internal/misc/Unsafe", Method: "objectFieldOffset",
		Descriptor: "(Ljava/lang/Class;Ljava/lang/String;)J",
		Handler: handlers.UnsafeFieldOffsetByClassAndName("objectFieldOffset"), Optional: true,
	})

	// Serialization constructor: walks the class hierarchy rather than
	// re-invoking (spec.md §4.1, "Serialization constructor handler").
	t.Add(breakpoint.HookSpec{
		Class: "java/io/ObjectStreamClass", Method: "<init>", Descriptor: "(Ljava/lang/Class;)V",
		Handler: handlers.SerializationConstructor(), Optional: true,
	})

	// Resource bundle: needs the trampoline method identity to pick its
	// caller-walk depth (spec.md §4.1, "Resource bundle handler"; §9
	// open question).
	t.Add(breakpoint.HookSpec{
		Class: "java/util/ResourceBundle", Method: "getBundle",
		Descriptor: "(Ljava/lang/String;)Ljava/util/ResourceBundle;",
		Handler: handlers.ResourceBundle(handlers.ResourceBundleConfig{
			Function: "getBundle", TrampolineMethodID: trampolineMethod,
		}),
	})

	// loadClass is deliberately absent from this fixed catalog: every
	// classloader subclass needs its own HookSpec naming that class, so
	// either ClassLoaderDiscovery (spec.md §4.6) or an explicit
	// deployment-specific list supplies it -- see
	// Agent.AddLoadClassTarget and cmd/agentctl/install.go.

	return t
}

// BuildNativeTable assembles spec.md §4.3's native-method table: the
// one Unsafe.objectFieldOffset(Field) variant that is typically bound
// as a JNI intrinsic rather than reached via bytecode. Replacement is
// a process-local sentinel pointer standing in for the real
// replacement native entry a production binding would supply --
// hostsim never dereferences it, only records it (spec.md §4.3 step
// 3: "register our replacement via the runtime's
// native-method-registration interface").
func BuildNativeTable() *breakpoint.NativeTable {
	t := breakpoint.NewNativeTable()
	t.Add(&breakpoint.NativeHookSpec{
		Class: "jdk/internal/misc/Unsafe", Method: "objectFieldOffset",
		Descriptor:  "(Ljava/lang/reflect/Field;)J",
		Replacement: nativeReplacementSentinel,
	})
	return t
}

// nativeReplacementSentinel is a fixed non-zero value distinguishing
// "our replacement is installed" from a zero/absent entry in tests and
// logging; it is never called as a function pointer by this module.
const nativeReplacementSentinel = 0x1
