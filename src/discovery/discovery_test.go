/*
 * Breakpoint Interceptor
 * Adapted from the Jacobin JVM project. Licensed under Mozilla Public
 * License 2.0 (MPL 2.0).
 */

package discovery_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobin-agent/breakpoint-interceptor/internal/metrics"
	"github.com/jacobin-agent/breakpoint-interceptor/src/breakpoint"
	"github.com/jacobin-agent/breakpoint-interceptor/src/discovery"
	"github.com/jacobin-agent/breakpoint-interceptor/src/hostruntime"
	"github.com/jacobin-agent/breakpoint-interceptor/src/hostsim"
	"github.com/jacobin-agent/breakpoint-interceptor/src/trace"
)

func noopHandler() breakpoint.Handler {
	return breakpoint.HandlerFunc(func(ctx context.Context, rt hostruntime.Runtime, emitter trace.Emitter, evt breakpoint.HookEvent) (bool, error) {
		return true, nil
	})
}

func TestDiscovery_BootstrapInstallsOnlyClassLoaderSubclasses(t *testing.T) {
	rt := hostsim.New()
	rt.DefineClass(hostsim.ClassDef{
		Name:          "user/MyLoader",
		IsClassLoader: true,
		Methods:       []hostsim.MethodDef{{Name: discovery.LoadClassMethod, Descriptor: discovery.LoadClassDescriptor}},
	})
	rt.DefineClass(hostsim.ClassDef{Name: "user/PlainClass"})

	set := breakpoint.NewInstalledSet()
	d := discovery.New(rt, set, noopHandler(), metrics.New())

	require.NoError(t, d.Bootstrap(context.Background(), []discovery.ClassDescriptor{
		{Name: "user/MyLoader", IsClassLoader: true},
		{Name: "user/PlainClass", IsClassLoader: false},
	}))

	assert.Equal(t, 1, set.Len())
}

func TestDiscovery_OnClassPreparedSkipsClassLoaderWithoutOverride(t *testing.T) {
	rt := hostsim.New()
	rt.DefineClass(hostsim.ClassDef{Name: "user/NoOverrideLoader", IsClassLoader: true}) // no loadClass method

	set := breakpoint.NewInstalledSet()
	d := discovery.New(rt, set, noopHandler(), metrics.New())

	require.NoError(t, d.OnClassPrepared(context.Background(), discovery.ClassDescriptor{Name: "user/NoOverrideLoader", IsClassLoader: true}))
	assert.Equal(t, 0, set.Len())
}

func TestDiscovery_DuplicateClassPrepareIsFatal(t *testing.T) {
	rt := hostsim.New()
	rt.DefineClass(hostsim.ClassDef{
		Name:          "user/MyLoader",
		IsClassLoader: true,
		Methods:       []hostsim.MethodDef{{Name: discovery.LoadClassMethod, Descriptor: discovery.LoadClassDescriptor}},
	})

	set := breakpoint.NewInstalledSet()
	d := discovery.New(rt, set, noopHandler(), metrics.New())

	desc := discovery.ClassDescriptor{Name: "user/MyLoader", IsClassLoader: true}
	require.NoError(t, d.OnClassPrepared(context.Background(), desc))
	err := d.OnClassPrepared(context.Background(), desc)
	assert.ErrorIs(t, err, breakpoint.ErrDuplicateInstall)
}
