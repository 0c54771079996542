/*
 * Breakpoint Interceptor
 * Adapted from the Jacobin JVM project. Licensed under Mozilla Public
 * License 2.0 (MPL 2.0).
 */

// Package agent wires every other package into the single object
// agentctl drives: the static tables, the installer, the dispatch
// core, the native-bind interceptor, and (when enabled) classloader
// discovery, all sharing one metrics.Agent and one RecursionGuard
// (spec.md §2, "the pieces described below compose into a single
// running agent instance").
//
// Grounded on oriys-nova's cmd/nova daemon construction (internal/*
// collaborators built once, in dependency order, off a loaded config)
// and artipop-jacobin/jvm/jvmrun.go's own "build the one global runtime
// struct, then call its Run methods" boot sequence.
package agent

import (
	"context"
	"fmt"

	"github.com/jacobin-agent/breakpoint-interceptor/internal/agentlog"
	"github.com/jacobin-agent/breakpoint-interceptor/internal/config"
	"github.com/jacobin-agent/breakpoint-interceptor/internal/metrics"
	"github.com/jacobin-agent/breakpoint-interceptor/src/breakpoint"
	"github.com/jacobin-agent/breakpoint-interceptor/src/callsite"
	"github.com/jacobin-agent/breakpoint-interceptor/src/discovery"
	"github.com/jacobin-agent/breakpoint-interceptor/src/dispatch"
	"github.com/jacobin-agent/breakpoint-interceptor/src/handlers"
	"github.com/jacobin-agent/breakpoint-interceptor/src/hostruntime"
	"github.com/jacobin-agent/breakpoint-interceptor/src/nativebind"
	"github.com/jacobin-agent/breakpoint-interceptor/src/trace"
)

// Agent is the fully-wired running instance.
type Agent struct {
	Runtime hostruntime.Runtime
	Config  config.AgentConfig
	Metrics *metrics.Agent
	Emitter trace.Emitter

	Guard       *dispatch.Guard
	Set         *breakpoint.InstalledSet
	Installer   *breakpoint.Installer
	Dispatch    *dispatch.Core
	Native      *nativebind.Interceptor
	Discovery   *discovery.Discovery
	LoadFilter  *callsite.Filter

	table       *breakpoint.Table
	nativeTable *breakpoint.NativeTable
}

// isClassLoaderClass returns the closure New installs as the callsite
// filter's IsClassLoaderClass: it answers "is this class a classloader
// subclass" by walking ClassInfo's superclass chain up to
// java/lang/ClassLoader, the same kind of walk the serialization
// handler uses to find Serializable ancestors (spec.md §4.5 step 2).
func isClassLoaderClass(ctx context.Context, rt hostruntime.Runtime) func(string) bool {
	return func(class string) bool {
		current := class
		for current != "" && current != "java/lang/Object" {
			if current == "java/lang/ClassLoader" {
				return true
			}
			super, _, ok := rt.ClassInfo(ctx, current)
			if !ok {
				return false
			}
			current = super
		}
		return false
	}
}

// New builds every collaborator but does not yet resolve or install
// anything (spec.md §4.2: resolution happens in Install).
func New(ctx context.Context, rt hostruntime.Runtime, cfg config.AgentConfig, emitter trace.Emitter, m *metrics.Agent) *Agent {
	guard := dispatch.NewGuard()
	set := breakpoint.NewInstalledSet()

	filter := callsite.NewFilter(rt, m,
		discovery.LoadClassMethod, discovery.LoadClassDescriptor,
		isClassLoaderClass(ctx, rt))

	table := BuildTable(hostruntime.MethodID(cfg.ResourceBundleTrampolineMethodID))
	nativeTable := BuildNativeTable()

	a := &Agent{
		Runtime:     rt,
		Config:      cfg,
		Metrics:     m,
		Emitter:     emitter,
		Guard:       guard,
		Set:         set,
		Installer:   breakpoint.NewInstaller(rt, set),
		Dispatch:    dispatch.NewCore(rt, set, emitter, guard, m),
		Native:      nativebind.NewInterceptor(rt, guard, m),
		LoadFilter:  filter,
		table:       table,
		nativeTable: nativeTable,
	}

	if cfg.EnableClassLoaderDiscovery {
		a.Discovery = discovery.New(rt, set, handlers.LoadClass(filter), m)
	}

	return a
}

// AddLoadClassTarget registers a loadClass HookSpec for one named
// classloader subclass against the static table, for deployments that
// name their classloader ahead of time rather than (or in addition to)
// enabling ClassLoaderDiscovery (spec.md §4.5). Must be called before
// Install.
func (a *Agent) AddLoadClassTarget(class string) {
	a.table.Add(breakpoint.HookSpec{
		Class: class, Method: discovery.LoadClassMethod, Descriptor: discovery.LoadClassDescriptor,
		Handler: handlers.LoadClass(a.LoadFilter), Optional: true,
	})
}

// Install runs BreakpointInstaller against the static table, then the
// native-bind interceptor against the native table (spec.md §4.2,
// §4.3). Ordering matches spec.md §4.2's own requirement that
// resolution complete, in full, before hook-event delivery is
// enabled: the caller must not enable delivery until Install returns
// nil.
func (a *Agent) Install(ctx context.Context) error {
	if err := a.Installer.Install(ctx, a.table); err != nil {
		return fmt.Errorf("agent: installing breakpoint table: %w", err)
	}
	if a.Metrics != nil {
		a.Metrics.HooksInstalled.Set(float64(a.Set.Len()))
	}
	agentlog.Log("agent: breakpoint table installed", agentlog.INFO, agentlog.F("count", a.Set.Len()))

	if err := a.Native.Install(ctx, a.nativeTable); err != nil {
		return fmt.Errorf("agent: installing native table: %w", err)
	}
	agentlog.Log("agent: native table installed", agentlog.INFO, agentlog.F("count", a.Native.Len()))

	return nil
}

// Bootstrap runs ClassLoaderDiscovery's initial sweep, a no-op if the
// mode is disabled (spec.md §4.6 step 1).
func (a *Agent) Bootstrap(ctx context.Context, classes []discovery.ClassDescriptor) error {
	if a.Discovery == nil {
		return nil
	}
	return a.Discovery.Bootstrap(ctx, classes)
}

// OnClassPrepared forwards a class-prepare event to discovery, a
// no-op if the mode is disabled.
func (a *Agent) OnClassPrepared(ctx context.Context, c discovery.ClassDescriptor) error {
	if a.Discovery == nil {
		return nil
	}
	return a.Discovery.OnClassPrepared(ctx, c)
}

// OnHookEvent forwards one bytecode hook hit to DispatchCore (spec.md
// §4.4).
func (a *Agent) OnHookEvent(ctx context.Context, method hostruntime.MethodID, bci int) (bool, error) {
	return a.Dispatch.Dispatch(ctx, method, bci)
}

// OnNativeBind forwards one native-bind event to the native-bind
// interceptor (spec.md §4.3 step 5).
func (a *Agent) OnNativeBind(ctx context.Context, evt hostruntime.NativeBindEvent) {
	a.Native.OnBindEvent(ctx, evt)
}

// Uninstall releases every tracked global reference (spec.md §5,
// "Agent unload is a barrier").
func (a *Agent) Uninstall(ctx context.Context) {
	a.Installer.Uninstall(ctx)
}
