/*
 * Breakpoint Interceptor
 * Adapted from the Jacobin JVM project. Licensed under Mozilla Public
 * License 2.0 (MPL 2.0).
 */

// Package nativebind implements spec.md §4.3: NativeBindingInterceptor,
// the protocol that substitutes a replacement entry point for a native
// method and remembers the original one the runtime had bound, so a
// handler family can call through to real behavior.
//
// Grounded on texadactyl-jacobin/native/osBridgeWindows.go's
// ConnectLibrary: "ask the OS to bind a native entry, remember it (or
// fail cleanly), log via the trace package" -- generalized here from
// one OS LoadLibrary call into the general protocol of recording an
// original native entry and substituting a replacement, and on
// artipop-jacobin/classloader/classloader.go's mutex-guarded map shape
// for NativeInstalledSet and PendingBindings (spec.md §3, §9: "a single
// mutex plus an explicit reentrancy bit").
package nativebind

import (
	"context"
	"fmt"
	"sync"

	"github.com/jacobin-agent/breakpoint-interceptor/internal/agentlog"
	"github.com/jacobin-agent/breakpoint-interceptor/internal/metrics"
	"github.com/jacobin-agent/breakpoint-interceptor/src/breakpoint"
	"github.com/jacobin-agent/breakpoint-interceptor/src/classloader"
	"github.com/jacobin-agent/breakpoint-interceptor/src/dispatch"
	"github.com/jacobin-agent/breakpoint-interceptor/src/hostruntime"
)

// ErrMandatoryResolutionFailed mirrors breakpoint.ErrMandatoryResolutionFailed
// for the native-install path (spec.md §4.2/§4.3 share the "mandatory
// absence is fatal" rule).
var ErrMandatoryResolutionFailed = fmt.Errorf("nativebind: mandatory native hook failed to resolve")

// ErrAlreadyInstalled is spec.md §3's "each spec is installed at most
// once" invariant.
var ErrAlreadyInstalled = fmt.Errorf("nativebind: NativeHookSpec already installed")

// Interceptor owns NativeInstalledSet and PendingBindings under one
// mutex (spec.md §3: "built at install time under a mutex shared with
// the 'pending bindings' map").
type Interceptor struct {
	Runtime hostruntime.Runtime
	Guard   *dispatch.Guard
	Metrics *metrics.Agent

	mu       sync.Mutex
	byMethod map[hostruntime.MethodID]*breakpoint.NativeHook // NativeInstalledSet
	pending  map[hostruntime.MethodID]uintptr                // PendingBindings
}

func NewInterceptor(runtime hostruntime.Runtime, guard *dispatch.Guard, m *metrics.Agent) *Interceptor {
	return &Interceptor{
		Runtime:  runtime,
		Guard:    guard,
		Metrics:  m,
		byMethod: make(map[hostruntime.MethodID]*breakpoint.NativeHook),
		pending:  make(map[hostruntime.MethodID]uintptr),
	}
}

// Install resolves every NativeHookSpec in table against the runtime,
// constructs its NativeHook, and registers the replacement entry point
// (spec.md §4.3 step 3). The guard is held for the duration of the
// runtime-registration call, so a native-bind event the registration
// itself provokes cannot recurse back into Install (spec.md §4.3: "the
// recursion guard... also covers registration calls, not only hook
// hits").
func (in *Interceptor) Install(ctx context.Context, table *breakpoint.NativeTable) error {
	resolver := classloader.NewMethodResolver(in.Runtime)

	for _, spec := range table.Specs() {
		ref, method, err := resolver.ResolveAndAttach(ctx, spec.Class, spec.Method, spec.Descriptor)
		if err != nil {
			return fmt.Errorf("%w: %s.%s%s: %v", ErrMandatoryResolutionFailed, spec.Class, spec.Method, spec.Descriptor, err)
		}
		_ = ref // resolution is reused for its class/method lookup only; native methods never receive
		// bytecode hook events, so the class reference itself is discarded rather than retained on NativeHook

		hook := &breakpoint.NativeHook{Spec: spec, Method: method}
		if !spec.BindOnce(hook) {
			return fmt.Errorf("%w: %s.%s%s", ErrAlreadyInstalled, spec.Class, spec.Method, spec.Descriptor)
		}

		in.mu.Lock()
		in.byMethod[method] = hook
		if original, ok := in.pending[method]; ok {
			hook.SetOriginal(original)
			delete(in.pending, method)
		}
		in.mu.Unlock()

		alreadyInside, release := in.Guard.Enter()
		if alreadyInside {
			// a registration call recursed back into an event this
			// same interceptor would otherwise handle; spec.md §4.3
			// treats that as a no-op rather than a fatal error, since
			// the outer call already owns the registration.
			continue
		}
		previous, err := in.Runtime.RegisterNativeMethod(ctx, method, spec.Replacement)
		release()
		if err != nil {
			return fmt.Errorf("nativebind: registering replacement for %s.%s%s: %w", spec.Class, spec.Method, spec.Descriptor, err)
		}
		if previous != 0 {
			// zero means nothing was bound yet: leave the cell unset for
			// a later OnBindEvent to fill.
			hook.SetOriginal(previous)
		}

		if in.Metrics != nil {
			in.Metrics.NativeHooksInstalled.Set(float64(len(in.byMethod)))
			in.Metrics.NativeBindingsTotal.WithLabelValues("installed").Inc()
		}
		agentlog.Log("nativebind: installed replacement", agentlog.FINE,
			agentlog.F("class", spec.Class), agentlog.F("method", spec.Method))
	}

	return nil
}

// OnBindEvent handles a "native method about to bind" notification
// from the host (spec.md §4.3 steps 2-4): if Install already produced a
// NativeHook for this method, this late notification simply updates
// its original-entry cell; otherwise the event arrived before Install
// ran and is parked in PendingBindings for Install to pick up.
func (in *Interceptor) OnBindEvent(_ context.Context, evt hostruntime.NativeBindEvent) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if hook, ok := in.byMethod[evt.Method]; ok {
		hook.SetOriginal(evt.CurrentEntry)
		if in.Metrics != nil {
			in.Metrics.NativeBindingsTotal.WithLabelValues("late_resolved").Inc()
		}
		agentlog.Log("nativebind: late-resolved original entry", agentlog.FINE, agentlog.F("method", evt.Method))
		return
	}

	in.pending[evt.Method] = evt.CurrentEntry
	if in.Metrics != nil {
		in.Metrics.NativeBindingsTotal.WithLabelValues("pending").Inc()
	}
}

// HasOriginal reports whether method's original native entry has been
// recorded yet, for replacement entries deciding whether they may call
// through to it.
func (in *Interceptor) HasOriginal(method hostruntime.MethodID) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	h, ok := in.byMethod[method]
	return ok && h.HasOriginal()
}

// Original returns the recorded original entry point for method, or
// zero if none has been recorded.
func (in *Interceptor) Original(method hostruntime.MethodID) uintptr {
	in.mu.Lock()
	defer in.mu.Unlock()
	if h, ok := in.byMethod[method]; ok {
		return h.Original()
	}
	return 0
}

// Len reports how many native hooks are currently installed.
func (in *Interceptor) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.byMethod)
}
