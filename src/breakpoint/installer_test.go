/*
 * Breakpoint Interceptor
 * Adapted from the Jacobin JVM project. Licensed under Mozilla Public
 * License 2.0 (MPL 2.0).
 */

package breakpoint_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobin-agent/breakpoint-interceptor/src/breakpoint"
	"github.com/jacobin-agent/breakpoint-interceptor/src/hostruntime"
	"github.com/jacobin-agent/breakpoint-interceptor/src/hostsim"
	"github.com/jacobin-agent/breakpoint-interceptor/src/trace"
)

func fakeHandler() breakpoint.Handler {
	return breakpoint.HandlerFunc(func(ctx context.Context, rt hostruntime.Runtime, emitter trace.Emitter, evt breakpoint.HookEvent) (bool, error) {
		return true, nil
	})
}

func TestInstaller_InstallsMandatoryAndSkipsOptionalAbsent(t *testing.T) {
	rt := hostsim.New()
	rt.DefineClass(hostsim.ClassDef{
		Name:    "java/lang/Class",
		Methods: []hostsim.MethodDef{{Name: "forName", Descriptor: "(Ljava/lang/String;)Ljava/lang/Class;"}},
	})

	table := breakpoint.NewTable()
	table.Add(breakpoint.HookSpec{
		Class: "java/lang/Class", Method: "forName", Descriptor: "(Ljava/lang/String;)Ljava/lang/Class;",
		Handler: fakeHandler(),
	})
	table.Add(breakpoint.HookSpec{
		// a newer-runtime-only variant that this synthetic host doesn't have
		Class: "java/lang/Class", Method: "forNameNewVariant", Descriptor: "()V",
		Handler: fakeHandler(), Optional: true,
	})

	set := breakpoint.NewInstalledSet()
	installer := breakpoint.NewInstaller(rt, set)
	require.NoError(t, installer.Install(context.Background(), table))

	assert.Equal(t, 1, set.Len())
}

func TestInstaller_MandatoryAbsenceIsFatal(t *testing.T) {
	rt := hostsim.New() // no classes defined at all

	table := breakpoint.NewTable()
	table.Add(breakpoint.HookSpec{
		Class: "java/lang/Class", Method: "forName", Descriptor: "(Ljava/lang/String;)Ljava/lang/Class;",
		Handler: fakeHandler(),
	})

	set := breakpoint.NewInstalledSet()
	installer := breakpoint.NewInstaller(rt, set)
	err := installer.Install(context.Background(), table)
	assert.ErrorIs(t, err, breakpoint.ErrMandatoryResolutionFailed)
}

func TestInstaller_Uninstall_ReleasesAllHooks(t *testing.T) {
	rt := hostsim.New()
	rt.DefineClass(hostsim.ClassDef{
		Name:    "java/lang/Class",
		Methods: []hostsim.MethodDef{{Name: "forName", Descriptor: "(Ljava/lang/String;)Ljava/lang/Class;"}},
	})

	table := breakpoint.NewTable()
	table.Add(breakpoint.HookSpec{
		Class: "java/lang/Class", Method: "forName", Descriptor: "(Ljava/lang/String;)Ljava/lang/Class;",
		Handler: fakeHandler(),
	})

	set := breakpoint.NewInstalledSet()
	installer := breakpoint.NewInstaller(rt, set)
	require.NoError(t, installer.Install(context.Background(), table))
	require.Equal(t, 1, set.Len())

	installer.Uninstall(context.Background())
	assert.Equal(t, 0, set.Len())
}
