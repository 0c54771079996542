/*
 * Breakpoint Interceptor
 * Adapted from the Jacobin JVM project. Licensed under Mozilla Public
 * License 2.0 (MPL 2.0).
 */

// Package hostsim is a synthetic hostruntime.Runtime: a small
// single-process table of classes, methods, fields, and constant
// pools, plus a "current call" slot the test driver sets before
// delivering an event. It exists because every end-to-end scenario in
// spec.md §8 requires a host runtime to exist and no real JVMTI
// binding is in scope for this module (spec.md §1: "the tool-interface
// bindings themselves" are an external collaborator).
//
// Grounded on artipop-jacobin/jvm/instantiate.go and
// jvm/initializerBlock.go: the teacher's own class/field table
// bookkeeping (classloader.Classes map, <clinit> ordering over
// superclasses) reshaped from "the real JVM's own instantiation logic"
// into "a fake JVM used to drive the agent's hooks".
package hostsim

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jacobin-agent/breakpoint-interceptor/src/hostruntime"
)

// MethodDef describes one method of a synthetic class.
type MethodDef struct {
	Name       string
	Descriptor string
	IsNative   bool

	// Reinvoke, if set, is what Runtime.Reinvoke calls to simulate the
	// method's real behavior when a handler re-invokes it.
	Reinvoke func(args []any, callerClassLoader string) (any, error)

	// Code and Pool back Bytecode/ConstantPool for this method's
	// declaring class (classes share one code/pool pair per method in
	// this simplified model, since hostsim only ever needs to support
	// the single-method callsite scans spec.md's scenarios require).
	Code []byte
	Pool []byte
}

// ClassDef describes one synthetic class.
type ClassDef struct {
	Name            string
	SuperClass      string
	Implements      []string
	IsClassLoader   bool
	Methods         []MethodDef
	FieldDeclaring  string // for Unsafe-style field-offset scenarios: which class "declares" fields below
	Fields          []string
}

// Runtime is the synthetic hostruntime.Runtime.
type Runtime struct {
	mu sync.Mutex

	classes   map[string]*ClassDef
	methodIDs map[hostruntime.MethodID]*boundMethod
	byKey     map[string]hostruntime.MethodID
	nextID    atomic.Int64

	nativeEntries map[hostruntime.MethodID]uintptr

	// current is set by the test driver immediately before invoking a
	// DispatchCore/NativeBindingInterceptor/callsite entry point, and
	// consumed by ReadLocal/CallerStack.
	current atomic.Pointer[callContext]

	pendingFailure atomic.Bool
}

type boundMethod struct {
	class *ClassDef
	def   *MethodDef
}

type callContext struct {
	locals []any
	stack  []hostruntime.Frame
}

func New() *Runtime {
	return &Runtime{
		classes:       make(map[string]*ClassDef),
		methodIDs:     make(map[hostruntime.MethodID]*boundMethod),
		byKey:         make(map[string]hostruntime.MethodID),
		nativeEntries: make(map[hostruntime.MethodID]uintptr),
	}
}

func key(class, method, descriptor string) string {
	return class + "." + method + descriptor
}

// DefineClass registers a synthetic class. Test fixtures call this to
// build up the world a scenario needs (spec.md §8's literal scenarios
// each define one or two classes).
func (r *Runtime) DefineClass(c ClassDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cd := c
	r.classes[c.Name] = &cd
	for i := range cd.Methods {
		m := &cd.Methods[i]
		id := hostruntime.MethodID(r.nextID.Add(1))
		r.methodIDs[id] = &boundMethod{class: &cd, def: m}
		r.byKey[key(c.Name, m.Name, m.Descriptor)] = id
	}
}

// SetCurrentCall arranges for ReadLocal/CallerStack to answer as if
// the current hit is inside the given locals/caller stack.
func (r *Runtime) SetCurrentCall(locals []any, stack []hostruntime.Frame) {
	r.current.Store(&callContext{locals: locals, stack: stack})
}

// MethodIDFor returns the MethodID hostsim assigned to a defined
// method, for tests that need to refer to it directly (e.g. to build a
// HookEvent without going through AttachHook).
func (r *Runtime) MethodIDFor(class, method, descriptor string) (hostruntime.MethodID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byKey[key(class, method, descriptor)]
	return id, ok
}

func (r *Runtime) AttachHook(_ context.Context, class, method, descriptor string) (hostruntime.ClassRef, hostruntime.MethodID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.classes[class]; !ok {
		return hostruntime.ClassRef{}, 0, fmt.Errorf("hostsim: class %s not present", class)
	}
	id, ok := r.byKey[key(class, method, descriptor)]
	if !ok {
		return hostruntime.ClassRef{}, 0, fmt.Errorf("hostsim: method %s.%s%s not present", class, method, descriptor)
	}
	return hostruntime.NewClassRef(r, class), id, nil
}

func (r *Runtime) ResolveMethod(_ context.Context, class hostruntime.ClassRef, method, descriptor string) (hostruntime.MethodID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byKey[key(class.Name, method, descriptor)]
	if !ok {
		return 0, fmt.Errorf("hostsim: method %s.%s%s not present", class.Name, method, descriptor)
	}
	return id, nil
}

// AttachHookToClass looks up (method, descriptor) under class.Name
// without re-checking that the class itself is present -- the caller
// already holds a ClassRef proving that.
func (r *Runtime) AttachHookToClass(_ context.Context, class hostruntime.ClassRef, method, descriptor string) (hostruntime.MethodID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byKey[key(class.Name, method, descriptor)]
	if !ok {
		return 0, fmt.Errorf("hostsim: method %s.%s%s not present", class.Name, method, descriptor)
	}
	return id, nil
}

func (r *Runtime) RegisterNativeMethod(_ context.Context, method hostruntime.MethodID, replacement uintptr) (uintptr, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.nativeEntries[method]
	r.nativeEntries[method] = replacement
	return prev, nil
}

// DeliverNativeBind simulates the host about to bind a native method,
// returning the event the test driver then hands to
// nativebind.Interceptor.
func (r *Runtime) DeliverNativeBind(method hostruntime.MethodID, originalEntry uintptr) hostruntime.NativeBindEvent {
	return hostruntime.NativeBindEvent{Method: method, CurrentEntry: originalEntry}
}

func (r *Runtime) ReadLocal(_ context.Context, index int) (any, bool) {
	cc := r.current.Load()
	if cc == nil || index < 0 || index >= len(cc.locals) {
		return nil, false
	}
	return cc.locals[index], true
}

func (r *Runtime) CallerStack(_ context.Context, depth int) []hostruntime.Frame {
	cc := r.current.Load()
	if cc == nil {
		return nil
	}
	if depth >= len(cc.stack) {
		return cc.stack
	}
	return cc.stack[:depth]
}

func (r *Runtime) MethodInfo(_ context.Context, method hostruntime.MethodID) (string, string, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bm, ok := r.methodIDs[method]
	if !ok {
		return "", "", "", fmt.Errorf("hostsim: unknown method id %d", method)
	}
	return bm.class.Name, bm.def.Name, bm.def.Descriptor, nil
}

func (r *Runtime) Bytecode(_ context.Context, method hostruntime.MethodID) ([]byte, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bm, ok := r.methodIDs[method]
	if !ok {
		return nil, func() {}, fmt.Errorf("hostsim: unknown method id %d", method)
	}
	return bm.def.Code, func() {}, nil
}

func (r *Runtime) ConstantPool(_ context.Context, method hostruntime.MethodID) ([]byte, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bm, ok := r.methodIDs[method]
	if !ok {
		return nil, func() {}, fmt.Errorf("hostsim: unknown method id %d", method)
	}
	return bm.def.Pool, func() {}, nil
}

func (r *Runtime) ReleaseClassRef(hostruntime.ClassRef) {
	// synthetic classes have no real native resource to release
}

func (r *Runtime) Reinvoke(_ context.Context, method hostruntime.MethodID, args []any, callerClassLoader string) (any, bool, error) {
	r.mu.Lock()
	bm, ok := r.methodIDs[method]
	r.mu.Unlock()
	if !ok {
		return nil, false, fmt.Errorf("hostsim: unknown method id %d", method)
	}
	if bm.def.Reinvoke == nil {
		return nil, false, fmt.Errorf("hostsim: method %s.%s has no simulated behavior", bm.class.Name, bm.def.Name)
	}

	result, err := bm.def.Reinvoke(args, callerClassLoader)
	if err != nil {
		// simulate the failure landing on the calling thread's
		// thread-state; the handler is responsible for clearing it
		// (spec.md §4.1's re-invocation contract) before returning.
		r.pendingFailure.Store(true)
		return nil, false, err
	}
	return result, false, nil
}

func (r *Runtime) HasPendingFailure(context.Context) bool {
	return r.pendingFailure.Load()
}

func (r *Runtime) ClearPendingFailure(context.Context) {
	r.pendingFailure.Store(false)
}

func (r *Runtime) ClassInfo(_ context.Context, class string) (string, []string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cd, ok := r.classes[class]
	if !ok {
		return "", nil, false
	}
	return cd.SuperClass, cd.Implements, true
}

// NewSyntheticMethodID is a convenience for tests/hostsim-free fixtures
// that just need a plausible-looking identity.
func NewSyntheticMethodID() hostruntime.MethodID {
	return hostruntime.MethodID(int64(uuid.New().ID()))
}
