/*
 * Breakpoint Interceptor
 * Adapted from the Jacobin JVM project. Licensed under Mozilla Public
 * License 2.0 (MPL 2.0).
 */

// Package discovery implements spec.md §4.6: ClassLoaderDiscovery, the
// optional mode that installs the loadClass hook in every classloader
// subclass as it appears rather than only the ones named by the static
// BreakpointTable.
//
// Grounded on artipop-jacobin/classloader/classloader.go's own
// "iterate currently-loaded classes, then react to new ones" shape
// (its Classloader.LoadClassFromFile walks the classpath once at boot,
// then responds to further requests as they arrive), reused here for
// the bootstrap-then-subscribe structure of ClassLoaderDiscovery.
package discovery

import (
	"context"
	"fmt"

	"github.com/jacobin-agent/breakpoint-interceptor/internal/agentlog"
	"github.com/jacobin-agent/breakpoint-interceptor/internal/metrics"
	"github.com/jacobin-agent/breakpoint-interceptor/src/breakpoint"
	"github.com/jacobin-agent/breakpoint-interceptor/src/classloader"
	"github.com/jacobin-agent/breakpoint-interceptor/src/hostruntime"
)

// ClassDescriptor is what the host reports for each currently-loaded or
// newly-prepared class (spec.md §4.6: "iterate all currently-loaded
// classes" / "class prepared events").
type ClassDescriptor struct {
	Name          string
	SuperClass    string
	Implements    []string
	IsClassLoader bool
}

// LoadClassDescriptor is the (name, descriptor) of the loadClass
// overload this mode hooks — fixed across every discovered classloader
// subclass per spec.md §4.6.
const (
	LoadClassMethod     = "loadClass"
	LoadClassDescriptor = "(Ljava/lang/String;)Ljava/lang/Class;"
)

// Discovery runs the optional classloader-instrumentation mode.
// InstalledSet becomes a concurrent map under this mode because entries
// may be added after the initial install (spec.md §4.6).
type Discovery struct {
	Runtime  hostruntime.Runtime
	Set      *breakpoint.InstalledSet
	Handler  breakpoint.Handler
	Metrics  *metrics.Agent
	resolver *classloader.MethodResolver
}

func New(runtime hostruntime.Runtime, set *breakpoint.InstalledSet, handler breakpoint.Handler, m *metrics.Agent) *Discovery {
	return &Discovery{
		Runtime:  runtime,
		Set:      set,
		Handler:  handler,
		Metrics:  m,
		resolver: classloader.NewMethodResolver(runtime),
	}
}

// Bootstrap iterates every currently-loaded class at agent-ready time
// and installs the loadClass hook on each one assignment-compatible
// with the root classloader type (spec.md §4.6 step 1).
func (d *Discovery) Bootstrap(ctx context.Context, classes []ClassDescriptor) error {
	for _, c := range classes {
		if err := d.OnClassPrepared(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// OnClassPrepared handles one class-prepare event (spec.md §4.6 step
// 2), installing the loadClass hook if the class is a classloader
// subclass. Non-classloader classes are silently ignored; resolution
// failure for a classloader's own loadClass is not fatal here the way
// BreakpointInstaller's mandatory path is -- a given classloader
// subclass might not override loadClass at all, which is a normal,
// expected outcome under this optional mode.
func (d *Discovery) OnClassPrepared(ctx context.Context, c ClassDescriptor) error {
	if !c.IsClassLoader {
		return nil
	}

	ref, method, err := d.resolver.ResolveAndAttach(ctx, c.Name, LoadClassMethod, LoadClassDescriptor)
	if err != nil {
		agentlog.Log("discovery: classloader subclass has no loadClass override, skipping", agentlog.FINE,
			agentlog.F("class", c.Name))
		return nil
	}

	hook := &breakpoint.Hook{
		Spec: breakpoint.HookSpec{
			Class: c.Name, Method: LoadClassMethod, Descriptor: LoadClassDescriptor,
			Handler: d.Handler, Optional: true,
		},
		Class:  ref,
		Method: method,
	}
	if err := d.Set.Insert(hook); err != nil {
		// a classloader subclass can only be discovered once; a
		// duplicate here means the host delivered the same
		// class-prepare event twice, which is the same fatal bug
		// BreakpointInstaller treats a duplicate install as.
		return fmt.Errorf("discovery: %w", err)
	}

	if d.Metrics != nil {
		d.Metrics.HooksInstalled.Inc()
	}
	agentlog.Log("discovery: installed loadClass hook", agentlog.FINE, agentlog.F("class", c.Name))
	return nil
}
