/*
 * Breakpoint Interceptor
 * Adapted from the Jacobin JVM project. Licensed under Mozilla Public
 * License 2.0 (MPL 2.0).
 */

package breakpoint

import "fmt"

// Table is the static catalog of HookSpecs (spec.md §3: "Lifetime:
// process-static"). It is built once, at process init, by calling Add
// for every hook family -- the same shape as gfunction's several
// Load_Lang_*() functions each populating the shared MethodSignatures
// map, just appending to a slice instead of a map since HookSpec keys
// (class, method, descriptor) are already unique by construction here.
type Table struct {
	specs []HookSpec
	seen  map[string]struct{}
}

func NewTable() *Table {
	return &Table{seen: make(map[string]struct{})}
}

// Add registers spec. A duplicate (class, method, descriptor) key is a
// programming error in the static table itself (not a runtime
// condition), so it panics at table-construction time rather than
// surfacing as a spec.md §7 error kind.
func (t *Table) Add(spec HookSpec) {
	k := spec.key()
	if _, dup := t.seen[k]; dup {
		panic(fmt.Sprintf("breakpoint: duplicate HookSpec for %s", k))
	}
	t.seen[k] = struct{}{}
	t.specs = append(t.specs, spec)
}

// Specs returns the table's entries in registration order, the order
// BreakpointInstaller walks them (spec.md §4.2).
func (t *Table) Specs() []HookSpec {
	out := make([]HookSpec, len(t.specs))
	copy(out, t.specs)
	return out
}

// NativeTable is the equivalent static catalog for NativeHookSpecs
// (spec.md §3, §4.3). Kept separate from Table because native hooks
// are resolved through a materially different protocol (function
// pointer substitution rather than AttachHook).
type NativeTable struct {
	specs []*NativeHookSpec
	seen  map[string]struct{}
}

func NewNativeTable() *NativeTable {
	return &NativeTable{seen: make(map[string]struct{})}
}

func (t *NativeTable) Add(spec *NativeHookSpec) {
	k := spec.Class + "." + spec.Method + spec.Descriptor
	if _, dup := t.seen[k]; dup {
		panic(fmt.Sprintf("breakpoint: duplicate NativeHookSpec for %s", k))
	}
	t.seen[k] = struct{}{}
	t.specs = append(t.specs, spec)
}

func (t *NativeTable) Specs() []*NativeHookSpec {
	out := make([]*NativeHookSpec, len(t.specs))
	copy(out, t.specs)
	return out
}
