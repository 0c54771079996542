/*
 * Breakpoint Interceptor
 * Adapted from the Jacobin JVM project. Licensed under Mozilla Public
 * License 2.0 (MPL 2.0).
 */

package agent_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobin-agent/breakpoint-interceptor/internal/config"
	"github.com/jacobin-agent/breakpoint-interceptor/internal/metrics"
	"github.com/jacobin-agent/breakpoint-interceptor/src/agent"
	"github.com/jacobin-agent/breakpoint-interceptor/src/hostruntime"
	"github.com/jacobin-agent/breakpoint-interceptor/src/hostsim"
	"github.com/jacobin-agent/breakpoint-interceptor/src/trace"
)

type recordingEmitter struct {
	records []trace.Record
}

func (r *recordingEmitter) TraceCall(_ context.Context, rec trace.Record) {
	r.records = append(r.records, rec)
}

// newFullRuntime defines every class/method BuildTable's mandatory
// entries need so Install succeeds end to end.
func newFullRuntime(t *testing.T) *hostsim.Runtime {
	t.Helper()
	rt := hostsim.New()

	rt.DefineClass(hostsim.ClassDef{
		Name: "java/lang/Class",
		Methods: []hostsim.MethodDef{
			{Name: "forName", Descriptor: "(Ljava/lang/String;)Ljava/lang/Class;",
				Reinvoke: func(args []any, _ string) (any, error) { return "Foo", nil }},
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
				Reinvoke: func(args []any, _ string) (any, error) { return int64(8), nil }},
		},
	})

	return rt
}

func TestAgent_InstallWiresBreakpointAndNativeTables(t *testing.T) {
	rt := newFullRuntime(t)
	ctx := context.Background()
	emitter := &recordingEmitter{}
	m := metrics.New()

	a := agent.New(ctx, rt, config.AgentConfig{TraceSinkPath: "-"}, emitter, m)
	require.NoError(t, a.Install(ctx))

	assert.Equal(t, 1, a.Native.Len())
	assert.True(t, a.Set.Len() > 0)
}

func TestAgent_DispatchForNameEmitsRecord(t *testing.T) {
	rt := newFullRuntime(t)
	ctx := context.Background()
	emitter := &recordingEmitter{}
	m := metrics.New()

	a := agent.New(ctx, rt, config.AgentConfig{TraceSinkPath: "-"}, emitter, m)
	require.NoError(t, a.Install(ctx))

	method, ok := rt.MethodIDFor("java/lang/Class", "forName", "(Ljava/lang/String;)Ljava/lang/Class;")
	require.True(t, ok)

	rt.SetCurrentCall([]any{"java/lang/Class", "Foo"}, []hostruntime.Frame{{Class: "user/Main"}})
	accepted, err := a.OnHookEvent(ctx, method, 0)
	require.NoError(t, err)
	assert.True(t, accepted)

	require.Len(t, emitter.records, 1)
	rec := emitter.records[0]
	assert.Equal(t, "forName", rec.Function)
	assert.Equal(t, "user/Main", rec.CallerClass)
	assert.Equal(t, true, rec.Result)
	assert.Equal(t, []any{"Foo"}, rec.Args)
}

func TestAgent_DispatchMissingHookIsFatal(t *testing.T) {
	rt := newFullRuntime(t)
	ctx := context.Background()
	emitter := &recordingEmitter{}
	m := metrics.New()

	a := agent.New(ctx, rt, config.AgentConfig{TraceSinkPath: "-"}, emitter, m)
	require.NoError(t, a.Install(ctx))

	_, err := a.OnHookEvent(ctx, hostruntime.MethodID(99999), 0)
	assert.Error(t, err)
}
