/*
 * Breakpoint Interceptor
 * Adapted from the Jacobin JVM project. Licensed under Mozilla Public
 * License 2.0 (MPL 2.0).
 */

package main

import (
	"errors"

	"github.com/jacobin-agent/breakpoint-interceptor/src/hostsim"
)

var errNotFound = errors.New("hostsim: class not found")

// buildDemoRuntime seeds a hostsim.Runtime with every class spec.md
// §8's literal scenarios reference, so `agentctl install` and
// `agentctl replay` have a host to run against without a live JVM
// (spec.md §1 keeps "the tool-interface bindings themselves" out of
// the core's scope; hostsim stands in for them here).
func buildDemoRuntime() *hostsim.Runtime {
	rt := hostsim.New()

	rt.DefineClass(hostsim.ClassDef{
		Name: "java/lang/Class",
		Methods: []hostsim.MethodDef{
			{Name: "forName", Descriptor: "(Ljava/lang/String;)Ljava/lang/Class;",
				Reinvoke: func(args []any, _ string) (any, error) {
					if len(args) > 0 && args[0] == "DoesNotExist" {
						return nil, errNotFound
					}
					return "resolved", nil
				}},
			{Name: "getField", Descriptor: "(Ljava/lang/String;)Ljava/lang/reflect/Field;",
				Reinvoke: func(args []any, _ string) (any, error) { return "found", nil }},
			{Name: "getDeclaredField", Descriptor: "(Ljava/lang/String;)Ljava/lang/reflect/Field;",
				Reinvoke: func(args []any, _ string) (any, error) { return "found", nil }},
			{Name: "getMethod", Descriptor: "(Ljava/lang/String;[Ljava/lang/Class;)Ljava/lang/reflect/Method;",
				Reinvoke: func(args []any, _ string) (any, error) { return "found", nil }},
			{Name: "getDeclaredMethod", Descriptor: "(Ljava/lang/String;[Ljava/lang/Class;)Ljava/lang/reflect/Method;",
				Reinvoke: func(args []any, _ string) (any, error) { return "found", nil }},
			{Name: "getConstructor", Descriptor: "([Ljava/lang/Class;)Ljava/lang/reflect/Constructor;",
				Reinvoke: func(args []any, _ string) (any, error) { return "found", nil }},
		},
	})
	rt.DefineClass(hostsim.ClassDef{
		Name: "java/lang/reflect/Proxy",
		Methods: []hostsim.MethodDef{
			{Name: "newProxyInstance",
				Descriptor: "(Ljava/lang/ClassLoader;[Ljava/lang/Class;Ljava/lang/reflect/InvocationHandler;)Ljava/lang/Object;",
				Reinvoke:   func(args []any, _ string) (any, error) { return "proxy", nil }},
		},
	})
	rt.DefineClass(hostsim.ClassDef{
		Name: "java/util/ResourceBundle",
		Methods: []hostsim.MethodDef{
			{Name: "getBundle", Descriptor: "(Ljava/lang/String;)Ljava/util/ResourceBundle;",
				Reinvoke: func(args []any, _ string) (any, error) { return "bundle", nil }},
		},
	})
	rt.DefineClass(hostsim.ClassDef{
		Name: "jdk/internal/misc/Unsafe",
		Methods: []hostsim.MethodDef{
			{Name: "objectFieldOffset", Descriptor: "(Ljava/lang/reflect/Field;)J", IsNative: true,
				Reinvoke: func(args []any, _ string) (any, error) { return int64(24), nil }},
			{Name: "objectFieldOffset", Descriptor: "(Ljava/lang/Class;Ljava/lang/String;)J",
				Reinvoke: func(args []any, _ string) (any, error) { return int64(24), nil }},
		},
	})
	rt.DefineClass(hostsim.ClassDef{
		Name: "java/io/ObjectStreamClass",
		Methods: []hostsim.MethodDef{
			{Name: "<init>", Descriptor: "(Ljava/lang/Class;)V"},
		},
	})
	rt.DefineClass(hostsim.ClassDef{Name: "Child", SuperClass: "Parent", Implements: []string{"java/io/Serializable"}})
	rt.DefineClass(hostsim.ClassDef{Name: "Parent", SuperClass: "java/lang/Object", Implements: []string{"java/io/Serializable"}})
	rt.DefineClass(hostsim.ClassDef{Name: "Outer$$Lambda$1/0x1", SuperClass: "java/lang/Object", Implements: []string{"java/io/Serializable"}})

	loadCode, loadPool := buildExplicitLoadClassSite(7)
	internalCode := make([]byte, 10) // opcode 0 at bci 2: never an explicit invokevirtual
	rt.DefineClass(hostsim.ClassDef{
		Name:          "demo/UserClassLoader",
		IsClassLoader: true,
		Methods: []hostsim.MethodDef{
			{Name: "loadClass", Descriptor: "(Ljava/lang/String;)Ljava/lang/Class;",
				Reinvoke: func(args []any, _ string) (any, error) { return "resolved", nil }},
			{Name: "load", Descriptor: "(Ljava/lang/String;)Ljava/lang/Class;", Code: loadCode, Pool: loadPool},
			{Name: "internalLoad", Descriptor: "()V", Code: internalCode},
		},
	})

	return rt
}

// buildExplicitLoadClassSite hand-builds a minimal constant pool and
// bytecode array whose only invokevirtual site, at bci, resolves to
// loadClass(String), for demonstrating BytecodeCallsiteFilter's
// accept path (spec.md §4.5, §8 scenario 4). Mirrors the fixture
// builder src/handlers' and src/callsite's own tests use for the same
// purpose.
func buildExplicitLoadClassSite(bci int) (code, pool []byte) {
	const name = "loadClass"
	const descriptor = "(Ljava/lang/String;)Ljava/lang/Class;"

	var buf []byte
	appendUTF8 := func(s string) {
		buf = append(buf, 1)
		l := len(s)
		buf = append(buf, byte(l>>8), byte(l))
		buf = append(buf, s...)
	}
	appendUTF8(name)
	appendUTF8(descriptor)
	buf = append(buf, 12, 0, 1, 0, 2) // NameAndType(1,2) at index 3
	buf = append(buf, 10, 0, 0, 0, 3) // Methodref(0,3) at index 4 -- class_index unused by the reader

	code = make([]byte, bci+3)
	code[bci] = 0xb6 // invokevirtual
	code[bci+1] = 0
	code[bci+2] = 4
	return code, buf
}
