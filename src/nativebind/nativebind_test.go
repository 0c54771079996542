/*
 * Breakpoint Interceptor
 * Adapted from the Jacobin JVM project. Licensed under Mozilla Public
 * License 2.0 (MPL 2.0).
 */

package nativebind_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobin-agent/breakpoint-interceptor/internal/metrics"
	"github.com/jacobin-agent/breakpoint-interceptor/src/breakpoint"
	"github.com/jacobin-agent/breakpoint-interceptor/src/dispatch"
	"github.com/jacobin-agent/breakpoint-interceptor/src/hostsim"
	"github.com/jacobin-agent/breakpoint-interceptor/src/nativebind"
)

func TestInterceptor_InstallRegistersReplacementAndRecordsOriginal(t *testing.T) {
	rt := hostsim.New()
	rt.DefineClass(hostsim.ClassDef{
		Name:    "jdk/internal/misc/Unsafe",
		Methods: []hostsim.MethodDef{{Name: "objectFieldOffset", Descriptor: "(Ljava/lang/reflect/Field;)J", IsNative: true}},
	})
	method, ok := rt.MethodIDFor("jdk/internal/misc/Unsafe", "objectFieldOffset", "(Ljava/lang/reflect/Field;)J")
	require.True(t, ok)

	// the host had already bound some original entry before the agent
	// attached -- simulated by registering it directly.
	const originalEntry uintptr = 0xABCD
	_, err := rt.RegisterNativeMethod(context.Background(), method, originalEntry)
	require.NoError(t, err)

	table := breakpoint.NewNativeTable()
	spec := &breakpoint.NativeHookSpec{
		Class: "jdk/internal/misc/Unsafe", Method: "objectFieldOffset", Descriptor: "(Ljava/lang/reflect/Field;)J",
		Replacement: 0x1234,
	}
	table.Add(spec)

	in := nativebind.NewInterceptor(rt, dispatch.NewGuard(), metrics.New())
	require.NoError(t, in.Install(context.Background(), table))

	assert.Equal(t, 1, in.Len())
	assert.Equal(t, originalEntry, in.Original(method))
	assert.True(t, in.HasOriginal(method))
}

func TestInterceptor_MandatoryResolutionFailureIsFatal(t *testing.T) {
	rt := hostsim.New() // no classes defined

	table := breakpoint.NewNativeTable()
	table.Add(&breakpoint.NativeHookSpec{
		Class: "jdk/internal/misc/Unsafe", Method: "objectFieldOffset", Descriptor: "(Ljava/lang/reflect/Field;)J",
		Replacement: 0x1234,
	})

	in := nativebind.NewInterceptor(rt, dispatch.NewGuard(), metrics.New())
	err := in.Install(context.Background(), table)
	assert.ErrorIs(t, err, nativebind.ErrMandatoryResolutionFailed)
}

func TestInterceptor_OnBindEventBeforeInstallIsParkedThenApplied(t *testing.T) {
	rt := hostsim.New()
	rt.DefineClass(hostsim.ClassDef{
		Name:    "jdk/internal/misc/Unsafe",
		Methods: []hostsim.MethodDef{{Name: "objectFieldOffset", Descriptor: "(Ljava/lang/reflect/Field;)J", IsNative: true}},
	})
	method, ok := rt.MethodIDFor("jdk/internal/misc/Unsafe", "objectFieldOffset", "(Ljava/lang/reflect/Field;)J")
	require.True(t, ok)

	in := nativebind.NewInterceptor(rt, dispatch.NewGuard(), metrics.New())

	// the host notifies the agent of the bind before Install has run
	// for this spec (e.g. lazy class loading order).
	in.OnBindEvent(context.Background(), rt.DeliverNativeBind(method, 0x9999))
	assert.False(t, in.HasOriginal(method))

	table := breakpoint.NewNativeTable()
	table.Add(&breakpoint.NativeHookSpec{
		Class: "jdk/internal/misc/Unsafe", Method: "objectFieldOffset", Descriptor: "(Ljava/lang/reflect/Field;)J",
		Replacement: 0x1234,
	})
	require.NoError(t, in.Install(context.Background(), table))

	assert.True(t, in.HasOriginal(method))
	assert.Equal(t, uintptr(0x9999), in.Original(method))
}

func TestInterceptor_DuplicateSpecInstallIsFatal(t *testing.T) {
	rt := hostsim.New()
	rt.DefineClass(hostsim.ClassDef{
		Name:    "jdk/internal/misc/Unsafe",
		Methods: []hostsim.MethodDef{{Name: "objectFieldOffset", Descriptor: "(Ljava/lang/reflect/Field;)J", IsNative: true}},
	})

	spec := &breakpoint.NativeHookSpec{
		Class: "jdk/internal/misc/Unsafe", Method: "objectFieldOffset", Descriptor: "(Ljava/lang/reflect/Field;)J",
		Replacement: 0x1234,
	}
	table := breakpoint.NewNativeTable()
	table.Add(spec)

	in := nativebind.NewInterceptor(rt, dispatch.NewGuard(), metrics.New())
	require.NoError(t, in.Install(context.Background(), table))

	// reinstalling the same *NativeHookSpec (not a fresh one) must fail
	// its one-time bind.
	table2 := breakpoint.NewNativeTable()
	table2.Add(spec)
	err := in.Install(context.Background(), table2)
	assert.ErrorIs(t, err, nativebind.ErrAlreadyInstalled)
}
