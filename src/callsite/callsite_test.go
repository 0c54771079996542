/*
 * Breakpoint Interceptor
 * Adapted from the Jacobin JVM project. Licensed under Mozilla Public
 * License 2.0 (MPL 2.0).
 */

package callsite_test

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobin-agent/breakpoint-interceptor/internal/metrics"
	"github.com/jacobin-agent/breakpoint-interceptor/src/callsite"
	"github.com/jacobin-agent/breakpoint-interceptor/src/hostruntime"
	"github.com/jacobin-agent/breakpoint-interceptor/src/hostsim"
)

// buildLoadClassSite constructs a method whose Code attribute invokes
// loadClass via invokevirtual at bci 7, with a matching constant pool,
// mirroring spec.md §8 end-to-end scenario 4.
func buildLoadClassSite(t *testing.T, name, descriptor string) (code, pool []byte, cpIndex int) {
	t.Helper()

	// constant pool: index1=UTF8 name, index2=UTF8 descriptor,
	// index3=NameAndType(1,2), index4=UTF8 class name (unused),
	// index5=Class(4), index6=Methodref(5,3)
	var buf []byte
	appendUTF8 := func(s string) {
		buf = append(buf, 1)
		l := make([]byte, 2)
		binary.BigEndian.PutUint16(l, uint16(len(s)))
		buf = append(buf, l...)
		buf = append(buf, s...)
	}
	appendUTF8(name)       // index 1
	appendUTF8(descriptor) // index 2

	buf = append(buf, 12) // NameAndType, index 3
	nat := make([]byte, 4)
	binary.BigEndian.PutUint16(nat[0:2], 1)
	binary.BigEndian.PutUint16(nat[2:4], 2)
	buf = append(buf, nat...)

	appendUTF8("some/Loader") // index 4

	buf = append(buf, 7) // Class, index 5
	cls := make([]byte, 2)
	binary.BigEndian.PutUint16(cls, 4)
	buf = append(buf, cls...)

	buf = append(buf, 10) // Methodref, index 6
	mref := make([]byte, 4)
	binary.BigEndian.PutUint16(mref[0:2], 5)
	binary.BigEndian.PutUint16(mref[2:4], 3)
	buf = append(buf, mref...)

	code = make([]byte, 10)
	code[7] = callsite.OpInvokeVirtual
	binary.BigEndian.PutUint16(code[8:10], 6)

	return code, buf, 6
}

func newRuntimeWithSite(t *testing.T, callerClass, hookedName, hookedDescriptor string) (*hostsim.Runtime, hostruntime.MethodID) {
	t.Helper()
	code, pool, _ := buildLoadClassSite(t, hookedName, hookedDescriptor)
	rt := hostsim.New()
	rt.DefineClass(hostsim.ClassDef{
		Name: callerClass,
		Methods: []hostsim.MethodDef{
			{Name: "load", Descriptor: "(Ljava/lang/String;)Ljava/lang/Class;", Code: code, Pool: pool},
		},
	})
	id, ok := rt.MethodIDFor(callerClass, "load", "(Ljava/lang/String;)Ljava/lang/Class;")
	require.True(t, ok)
	return rt, id
}

func TestFilter_ExplicitInvocationIsAcceptedAndCached(t *testing.T) {
	rt, method := newRuntimeWithSite(t, "user/MyLoader", "loadClass", "(Ljava/lang/String;)Ljava/lang/Class;")
	f := callsite.NewFilter(rt, metrics.New(), "loadClass", "(Ljava/lang/String;)Ljava/lang/Class;", func(string) bool { return false })

	frame := hostruntime.Frame{Method: method, Class: "user/MyLoader", BCI: 7}

	res, err := f.Classify(context.Background(), frame)
	require.NoError(t, err)
	assert.True(t, res.Explicit)
	assert.Equal(t, 1, f.Explicit.Len())

	// hitting the same (method, bci) again must hit the cache, not
	// reparse (spec.md §8 invariant).
	res2, err := f.Classify(context.Background(), frame)
	require.NoError(t, err)
	assert.True(t, res2.Explicit)
	assert.Equal(t, 1, f.Explicit.Len())
}

func TestFilter_WrongOpcodeIsSkippedForever(t *testing.T) {
	rt := hostsim.New()
	code := make([]byte, 10) // all zeroes: opcode 0 at bci 7, not invokevirtual
	rt.DefineClass(hostsim.ClassDef{
		Name:    "user/MyLoader",
		Methods: []hostsim.MethodDef{{Name: "load", Descriptor: "(Ljava/lang/String;)Ljava/lang/Class;", Code: code, Pool: []byte{0}}},
	})
	method, _ := rt.MethodIDFor("user/MyLoader", "load", "(Ljava/lang/String;)Ljava/lang/Class;")

	f := callsite.NewFilter(rt, metrics.New(), "loadClass", "(Ljava/lang/String;)Ljava/lang/Class;", func(string) bool { return false })
	res, err := f.Classify(context.Background(), hostruntime.Frame{Method: method, BCI: 7})
	require.NoError(t, err)
	assert.False(t, res.Explicit)
}

func TestFilter_RecursiveLoaderCallIsNeverExplicit(t *testing.T) {
	rt, method := newRuntimeWithSite(t, "internal/BootLoader", "loadClass", "(Ljava/lang/String;)Ljava/lang/Class;")
	f := callsite.NewFilter(rt, metrics.New(), "loadClass", "(Ljava/lang/String;)Ljava/lang/Class;",
		func(class string) bool { return class == "internal/BootLoader" })

	res, err := f.Classify(context.Background(), hostruntime.Frame{Method: method, BCI: 7})
	require.NoError(t, err)
	assert.False(t, res.Explicit)
	assert.Equal(t, 0, f.Explicit.Len())
}

func TestFilter_MismatchedMethodNameAtCallsiteIsNotExplicit(t *testing.T) {
	rt, method := newRuntimeWithSite(t, "user/MyLoader", "someOtherMethod", "(Ljava/lang/String;)Ljava/lang/Class;")
	f := callsite.NewFilter(rt, metrics.New(), "loadClass", "(Ljava/lang/String;)Ljava/lang/Class;", func(string) bool { return false })

	res, err := f.Classify(context.Background(), hostruntime.Frame{Method: method, BCI: 7})
	require.NoError(t, err)
	assert.False(t, res.Explicit)
}
