/*
 * Breakpoint Interceptor
 * Adapted from the Jacobin JVM project. Licensed under Mozilla Public
 * License 2.0 (MPL 2.0).
 */

// Package callsite implements spec.md §4.5: BytecodeCallsiteFilter, the
// heuristic that distinguishes an explicit user `loadClass` invocation
// from the many internal VM-driven ones, classifying each callsite at
// most once.
//
// Grounded on artipop-jacobin/classloader/classloader.go's
// Classloader.Archives memoization shape, reused here for
// ExplicitCallSiteSet, and on the teacher's own opcode-scanning style in
// jvm/run.go's bytecode interpreter loop (switch on a single opcode
// byte read from a method's Code attribute).
package callsite

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/jacobin-agent/breakpoint-interceptor/internal/agentlog"
	"github.com/jacobin-agent/breakpoint-interceptor/internal/metrics"
	"github.com/jacobin-agent/breakpoint-interceptor/src/classloader"
	"github.com/jacobin-agent/breakpoint-interceptor/src/hostruntime"
)

// OpInvokeVirtual is JVMS opcode 0xb6, the only opcode shape spec.md
// §4.5 step 4 accepts as "this hit originated from an explicit
// invocation."
const OpInvokeVirtual = classloader.OpInvokeVirtual

// MethodLocation is spec.md §3's MethodLocation: a structural
// (method identity, bytecode index) pair used as the classification
// cache key.
type MethodLocation struct {
	Method hostruntime.MethodID
	BCI    int
}

// ExplicitCallSiteSet is spec.md §3's concurrent, insert-only set of
// MethodLocations classified as explicit (spec.md §5: "concurrent
// insert-only").
type ExplicitCallSiteSet struct {
	mu   sync.RWMutex
	seen map[MethodLocation]struct{}
}

func NewExplicitCallSiteSet() *ExplicitCallSiteSet {
	return &ExplicitCallSiteSet{seen: make(map[MethodLocation]struct{})}
}

func (s *ExplicitCallSiteSet) contains(loc MethodLocation) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[loc]
	return ok
}

func (s *ExplicitCallSiteSet) insert(loc MethodLocation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[loc] = struct{}{}
}

// Len reports how many callsites have been classified explicit so far.
func (s *ExplicitCallSiteSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}

// skipped is the complement of ExplicitCallSiteSet: callsites that
// failed classification and must never be retried (spec.md §4.5 steps
// 4 and 6: "skip forever"). Kept separate from ExplicitCallSiteSet so
// "classified explicit" and "classified not-explicit" remain distinct,
// auditable states rather than one set's absence standing in for both
// "not yet classified" and "classified negative."
type skippedSet struct {
	mu   sync.RWMutex
	seen map[MethodLocation]struct{}
}

func newSkippedSet() *skippedSet { return &skippedSet{seen: make(map[MethodLocation]struct{})} }

func (s *skippedSet) contains(loc MethodLocation) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[loc]
	return ok
}

func (s *skippedSet) insert(loc MethodLocation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[loc] = struct{}{}
}

// ClassifyResult is what Filter.Classify reports for one hit.
type ClassifyResult struct {
	// Explicit is true when this hit should be traced: either this
	// exact callsite was already classified explicit, or it has just
	// been classified explicit for the first time.
	Explicit bool
	// CallerClass and CallerMethod name the frame that made the call,
	// for handlers building the trace record (spec.md §4.5 step 7).
	CallerClass  string
	CallerMethod string
}

// Filter is spec.md's BytecodeCallsiteFilter, parameterized by the
// hooked method's own (name, descriptor) so it can recognize a genuine
// call to it among arbitrary invokevirtual sites.
type Filter struct {
	Runtime          hostruntime.Runtime
	Metrics          *metrics.Agent
	HookedName       string
	HookedDescriptor string

	Explicit *ExplicitCallSiteSet
	skipped  *skippedSet
	reader   classloader.ConstantPoolReader

	// IsClassLoaderClass reports whether a class name names a
	// classloader type, for step 2's recursive-loader-call suppression
	// (spec.md §4.5 step 2). Supplied by the caller since "is a
	// classloader" is a property of the live class hierarchy, which
	// this package has no independent view of.
	IsClassLoaderClass func(class string) bool
}

func NewFilter(runtime hostruntime.Runtime, m *metrics.Agent, hookedName, hookedDescriptor string, isClassLoaderClass func(string) bool) *Filter {
	return &Filter{
		Runtime:            runtime,
		Metrics:            m,
		HookedName:         hookedName,
		HookedDescriptor:   hookedDescriptor,
		Explicit:           NewExplicitCallSiteSet(),
		skipped:            newSkippedSet(),
		IsClassLoaderClass: isClassLoaderClass,
	}
}

// Classify runs spec.md §4.5's full procedure for one hit at the
// caller's (method, bci). The caller is expected to have already read
// the single-frame stack (spec.md step 1); Classify receives it
// directly rather than reading CallerStack itself, since the handler
// that calls Classify already needed the frame for other purposes.
func (f *Filter) Classify(ctx context.Context, caller hostruntime.Frame) (ClassifyResult, error) {
	loc := MethodLocation{Method: caller.Method, BCI: caller.BCI}

	callerClass, callerMethod, _, err := f.Runtime.MethodInfo(ctx, caller.Method)
	if err != nil {
		return ClassifyResult{}, fmt.Errorf("callsite: reading caller method info: %w", err)
	}

	if f.IsClassLoaderClass != nil && f.IsClassLoaderClass(callerClass) {
		// step 2: recursive loader call, never trace regardless of
		// caching state.
		f.observe("recursive_loader")
		return ClassifyResult{Explicit: false, CallerClass: callerClass, CallerMethod: callerMethod}, nil
	}

	if f.Explicit.contains(loc) {
		f.observe("cached")
		return ClassifyResult{Explicit: true, CallerClass: callerClass, CallerMethod: callerMethod}, nil
	}
	if f.skipped.contains(loc) {
		f.observe("cached_skip")
		return ClassifyResult{Explicit: false, CallerClass: callerClass, CallerMethod: callerMethod}, nil
	}

	explicit, err := f.classifyFresh(ctx, loc)
	if err != nil {
		// spec.md §7 error kind 3: malformed pool or unexpected opcode
		// marks the callsite not-explicit forever, it never propagates.
		f.skipped.insert(loc)
		f.observe("skipped")
		agentlog.Log("callsite: classification failed, skipping forever", agentlog.FINE,
			agentlog.F("method", caller.Method), agentlog.F("bci", caller.BCI), agentlog.F("err", err.Error()))
		return ClassifyResult{Explicit: false, CallerClass: callerClass, CallerMethod: callerMethod}, nil
	}

	if explicit {
		f.Explicit.insert(loc)
		f.observe("explicit")
	} else {
		f.skipped.insert(loc)
		f.observe("skipped")
	}

	return ClassifyResult{Explicit: explicit, CallerClass: callerClass, CallerMethod: callerMethod}, nil
}

// classifyFresh implements steps 4-6: fetch bytecode, check the
// opcode, fetch the constant pool, resolve the operand, compare names.
func (f *Filter) classifyFresh(ctx context.Context, loc MethodLocation) (bool, error) {
	code, releaseCode, err := f.Runtime.Bytecode(ctx, loc.Method)
	defer releaseCode()
	if err != nil {
		return false, fmt.Errorf("fetching bytecode: %w", err)
	}
	if loc.BCI < 0 || loc.BCI+3 > len(code) {
		return false, fmt.Errorf("bci %d out of range for method with %d bytes of code", loc.BCI, len(code))
	}
	if code[loc.BCI] != OpInvokeVirtual {
		return false, fmt.Errorf("opcode 0x%02x at bci %d is not invokevirtual", code[loc.BCI], loc.BCI)
	}
	cpIndex := int(binary.BigEndian.Uint16(code[loc.BCI+1 : loc.BCI+3]))

	pool, releasePool, err := f.Runtime.ConstantPool(ctx, loc.Method)
	defer releasePool()
	if err != nil {
		return false, fmt.Errorf("fetching constant pool: %w", err)
	}

	ref, err := f.reader.Resolve(pool, cpIndex)
	if err != nil {
		return false, fmt.Errorf("resolving constant pool index %d: %w", cpIndex, err)
	}

	return ref.Name == f.HookedName && ref.Descriptor == f.HookedDescriptor, nil
}

func (f *Filter) observe(outcome string) {
	if f.Metrics != nil {
		f.Metrics.CallsiteClassifyTotal.WithLabelValues(outcome).Inc()
	}
}
