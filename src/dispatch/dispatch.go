/*
 * Breakpoint Interceptor
 * Adapted from the Jacobin JVM project. Licensed under Mozilla Public
 * License 2.0 (MPL 2.0).
 */

// DispatchCore implements spec.md §4.4: the single entry point every
// hook hit goes through.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/jacobin-agent/breakpoint-interceptor/internal/agentlog"
	"github.com/jacobin-agent/breakpoint-interceptor/internal/metrics"
	"github.com/jacobin-agent/breakpoint-interceptor/src/breakpoint"
	"github.com/jacobin-agent/breakpoint-interceptor/src/hostruntime"
	"github.com/jacobin-agent/breakpoint-interceptor/src/trace"
)

// ErrMissingHook is spec.md §4.4 step 3's fatal invariant violation:
// "A miss indicates the runtime delivered a stale event."
var ErrMissingHook = fmt.Errorf("dispatch: no installed hook for delivered event")

// ErrLeakedPendingFailure is spec.md §4.4 step 6's postcondition
// violation: "the runtime's thread-state must not carry a pending
// failure produced by our own calls."
var ErrLeakedPendingFailure = fmt.Errorf("dispatch: handler returned with a pending failure still set")

// Core is spec.md's DispatchCore.
type Core struct {
	Runtime hostruntime.Runtime
	Set     *breakpoint.InstalledSet
	Emitter trace.Emitter
	Guard   dispatchGuard
	Metrics *metrics.Agent
}

// dispatchGuard is the minimal surface Core needs from a RecursionGuard,
// declared locally so dispatch doesn't force every caller to construct
// a *Guard directly -- tests can substitute a fake.
type dispatchGuard interface {
	Enter() (alreadyInside bool, release func())
}

func NewCore(runtime hostruntime.Runtime, set *breakpoint.InstalledSet, emitter trace.Emitter, guard *Guard, m *metrics.Agent) *Core {
	return &Core{Runtime: runtime, Set: set, Emitter: emitter, Guard: guard, Metrics: m}
}

// Dispatch is the single entry function spec.md §4.4 describes,
// receiving (method identity, bytecode location); the "thread"
// parameter of spec.md's signature is implicit in which goroutine calls
// Dispatch, consistent with RecursionGuard's design (see recursion.go).
func (c *Core) Dispatch(ctx context.Context, method hostruntime.MethodID, bci int) (accepted bool, err error) {
	alreadyInside, release := c.Guard.Enter()
	if alreadyInside {
		if c.Metrics != nil {
			c.Metrics.DispatchTotal.WithLabelValues("rejected_recursive").Inc()
		}
		return false, nil // spec.md §4.4 step 1: return immediately
	}
	defer release()

	hook, ok := c.Set.Get(method)
	if !ok {
		if c.Metrics != nil {
			c.Metrics.DispatchTotal.WithLabelValues("missing_hook").Inc()
		}
		agentlog.Log("dispatch: stale event, no installed hook", agentlog.SEVERE, agentlog.F("method", method))
		return false, fmt.Errorf("%w: method %d", ErrMissingHook, method)
	}

	start := time.Now()
	accepted, err = hook.Spec.Handler.Handle(ctx, c.Runtime, c.Emitter, breakpoint.HookEvent{Method: method, BCI: bci})
	if c.Metrics != nil {
		c.Metrics.HandlerDuration.WithLabelValues(hook.Spec.Method).Observe(time.Since(start).Seconds())
	}

	if c.Runtime.HasPendingFailure(ctx) {
		// The handler is responsible for clearing any failure it
		// provoked via re-invocation (spec.md §4.1). A failure still
		// set here means a handler leaked it -- spec.md §4.4 step 6
		// calls this a fatal internal error, not a recoverable one.
		agentlog.Log("dispatch: handler leaked pending failure", agentlog.SEVERE, agentlog.F("method", method))
		if c.Metrics != nil {
			c.Metrics.DispatchTotal.WithLabelValues("leaked_failure").Inc()
		}
		return accepted, fmt.Errorf("%w: method %d", ErrLeakedPendingFailure, method)
	}

	if c.Metrics != nil {
		c.Metrics.DispatchTotal.WithLabelValues("handled").Inc()
	}
	return accepted, err
}
