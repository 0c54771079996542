/*
 * Breakpoint Interceptor
 * Adapted from the Jacobin JVM project. Licensed under Mozilla Public
 * License 2.0 (MPL 2.0).
 */

// Package breakpoint holds the data model of spec.md §3: HookSpec,
// Hook, NativeHookSpec, NativeHook, and the static BreakpointTable that
// catalogs them, plus BreakpointInstaller (spec.md §4.2).
//
// Grounded on artipop-jacobin's gfunction package: its MethodSignatures
// map keyed by fully-qualified "class.method(descriptor)" strings, with
// a GMeth{ParamSlots int, GFunction func([]interface{}) interface{}}
// value (see gfunction/javaLangThread.go, jdkInternalMiscScopedMemoryAccess.go).
// That is the same shape as a static table of (class, method,
// signature) triples mapped to handler logic -- generalized here from
// "what Go code runs instead of a bytecode method body" to "what Go
// code runs when the host breaks on a hooked method".
package breakpoint

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/jacobin-agent/breakpoint-interceptor/src/hostruntime"
	"github.com/jacobin-agent/breakpoint-interceptor/src/trace"
)

// HookEvent is what DispatchCore hands to a Handler on every hit
// (spec.md §4.4).
type HookEvent struct {
	Method hostruntime.MethodID
	BCI    int
}

// Handler is the closed set of tagged handler families from spec.md
// §4.1, modeled as an interface (the system design notes, §9, call out
// either a tagged-variant or a trait/interface; the interface form
// reads closest to the teacher's own GFunction func value per entry).
// Handle's bool return is advisory only (spec.md §4.4 step 4: "true
// indicating the handler accepted the event").
type Handler interface {
	Handle(ctx context.Context, rt hostruntime.Runtime, emitter trace.Emitter, evt HookEvent) (accepted bool, err error)
}

// HandlerFunc adapts a plain function to Handler, the way
// gfunction.GMeth.GFunction is a bare func value rather than an
// interface -- most of src/handlers' simpler families are written this
// way.
type HandlerFunc func(ctx context.Context, rt hostruntime.Runtime, emitter trace.Emitter, evt HookEvent) (bool, error)

func (f HandlerFunc) Handle(ctx context.Context, rt hostruntime.Runtime, emitter trace.Emitter, evt HookEvent) (bool, error) {
	return f(ctx, rt, emitter, evt)
}

// HookSpec is immutable process-static catalog data (spec.md §3).
type HookSpec struct {
	Class      string // internal form, e.g. "java/lang/Class"
	Method     string
	Descriptor string
	Handler    Handler
	Optional   bool
}

func (s HookSpec) key() string {
	return s.Class + "." + s.Method + s.Descriptor
}

// Hook is a resolved HookSpec bound to a live class reference and
// method identity (spec.md §3).
type Hook struct {
	Spec   HookSpec
	Class  hostruntime.ClassRef
	Method hostruntime.MethodID
}

// NativeHookSpec additionally carries the replacement native entry and
// a one-time back-pointer to its installed NativeHook (spec.md §3:
// "each spec is installed at most once").
type NativeHookSpec struct {
	Class       string
	Method      string
	Descriptor  string
	Replacement uintptr

	installed atomic.Pointer[NativeHook]
}

// BindOnce sets the spec's one-time back-pointer. It returns false if
// the spec was already installed, which nativebind.Interceptor treats
// as a fatal invariant violation per spec.md §3 ("each spec is
// installed at most once").
func (s *NativeHookSpec) BindOnce(h *NativeHook) bool {
	return s.installed.CompareAndSwap(nil, h)
}

func (s *NativeHookSpec) InstalledHook() *NativeHook {
	return s.installed.Load()
}

// NativeHook is a resolved NativeHookSpec plus the cell holding the
// original native entry pointer, set exactly once when the runtime
// first binds the method (spec.md §3: "once set, the cell is
// read-only for the lifetime of the hook").
type NativeHook struct {
	Spec   *NativeHookSpec
	Method hostruntime.MethodID

	original atomic.Uintptr
	hasOrig  atomic.Bool
}

// SetOriginal sets the original entry exactly once. A second call is a
// no-op by design (the invariant says the cell never changes once
// set); callers that need to detect a double-set should check
// HasOriginal first.
func (h *NativeHook) SetOriginal(entry uintptr) {
	if h.hasOrig.CompareAndSwap(false, true) {
		h.original.Store(entry)
	}
}

func (h *NativeHook) HasOriginal() bool {
	return h.hasOrig.Load()
}

func (h *NativeHook) Original() uintptr {
	return h.original.Load()
}

// ErrDuplicateInstall is the fatal-bug invariant of spec.md §3:
// "inserting a duplicate is a fatal bug."
var ErrDuplicateInstall = fmt.Errorf("breakpoint: duplicate method identity in installed set")
