/*
 * Breakpoint Interceptor
 * Adapted from the Jacobin JVM project. Licensed under Mozilla Public
 * License 2.0 (MPL 2.0).
 */

// BreakpointInstaller implements spec.md §4.2: walk the static table,
// resolve each entry, attach a hook, and seed InstalledSet.
//
// Grounded on artipop-jacobin/classloader/classloader.go's Classloader
// struct (a named, counted, owned collection of loaded classes) reshaped
// from "classes this classloader owns" to "hooks this agent owns",
// keeping the same "count + map" bookkeeping shape.
package breakpoint

import (
	"context"
	"fmt"
	"sync"

	"github.com/jacobin-agent/breakpoint-interceptor/src/classloader"
	"github.com/jacobin-agent/breakpoint-interceptor/src/hostruntime"
)

// InstalledSet maps method identity to Hook (spec.md §3). A single
// RWMutex-guarded map implementation satisfies both regimes spec.md
// describes -- insert-only during single-threaded install, or
// concurrent insert/read once ClassLoaderDiscovery is enabled -- since
// the mutex is cheap relative to a hook hit's own cost and removes the
// need for two separate types.
type InstalledSet struct {
	mu       sync.RWMutex
	byMethod map[hostruntime.MethodID]*Hook
}

func NewInstalledSet() *InstalledSet {
	return &InstalledSet{byMethod: make(map[hostruntime.MethodID]*Hook)}
}

// Insert adds hook, keyed by its method identity. Returns
// ErrDuplicateInstall if that identity is already present (spec.md §3
// invariant: "inserting a duplicate is a fatal bug").
func (s *InstalledSet) Insert(hook *Hook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.byMethod[hook.Method]; dup {
		return fmt.Errorf("%w: method %d", ErrDuplicateInstall, hook.Method)
	}
	s.byMethod[hook.Method] = hook
	return nil
}

func (s *InstalledSet) Get(method hostruntime.MethodID) (*Hook, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.byMethod[method]
	return h, ok
}

func (s *InstalledSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byMethod)
}

// Remove releases and drops hook's entry, used by Installer.Uninstall
// (SPEC_FULL.md §4: agent-unload is a barrier, spec.md §5).
func (s *InstalledSet) Remove(method hostruntime.MethodID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.byMethod[method]; ok {
		h.Class.Release()
		delete(s.byMethod, method)
	}
}

// methods returns a snapshot of every installed method identity, used
// by Installer.Uninstall to iterate without holding the lock across
// each Remove call.
func (s *InstalledSet) methods() []hostruntime.MethodID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]hostruntime.MethodID, 0, len(s.byMethod))
	for id := range s.byMethod {
		ids = append(ids, id)
	}
	return ids
}

// ErrMandatoryResolutionFailed is spec.md §4.2's "Mandatory entries:
// resolution failure is fatal to the agent."
var ErrMandatoryResolutionFailed = fmt.Errorf("breakpoint: mandatory hook failed to install")

// Installer runs BreakpointTable against a hostruntime.Runtime
// (spec.md §4.2).
type Installer struct {
	Runtime hostruntime.Runtime
	Set     *InstalledSet
}

func NewInstaller(runtime hostruntime.Runtime, set *InstalledSet) *Installer {
	return &Installer{Runtime: runtime, Set: set}
}

// Install walks table in order, resolving and attaching one hook per
// entry. Ordering matters: spec.md §4.2 requires the installer to
// complete, in full, before the host's hook-event notification is
// enabled -- Install itself never enables delivery; that is the
// caller's responsibility once Install returns nil.
func (in *Installer) Install(ctx context.Context, table *Table) error {
	resolver := classloader.NewMethodResolver(in.Runtime)

	for _, spec := range table.Specs() {
		ref, method, err := resolver.ResolveAndAttach(ctx, spec.Class, spec.Method, spec.Descriptor)
		if err != nil {
			if spec.Optional {
				continue // spec.md §4.2: "skip without error"
			}
			return fmt.Errorf("%w: %s.%s%s: %v", ErrMandatoryResolutionFailed, spec.Class, spec.Method, spec.Descriptor, err)
		}

		hook := &Hook{Spec: spec, Class: ref, Method: method}
		if err := in.Set.Insert(hook); err != nil {
			return err // spec.md §3: duplicate method identity is a fatal bug
		}
	}

	return nil
}

// Uninstall releases every installed hook's tracked global reference
// (spec.md §5: "Every tracked global reference held by a Hook is
// released at agent unload."). Not named in spec.md's component list
// directly, but required by its own concurrency model (§5, "Agent
// unload is a barrier") -- see SPEC_FULL.md §4.
func (in *Installer) Uninstall(_ context.Context) {
	for _, method := range in.Set.methods() {
		in.Set.Remove(method)
	}
}
