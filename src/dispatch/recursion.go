/*
 * Breakpoint Interceptor
 * Adapted from the Jacobin JVM project. Licensed under Mozilla Public
 * License 2.0 (MPL 2.0).
 */

// RecursionGuard implements spec.md's [MODULE: RecursionGuard]: a
// thread-local boolean preventing reentry when the interceptor itself
// calls back into the runtime.
//
// Go has no native thread-local storage, and goroutines are not
// threads -- but spec.md's invariant ("false outside DispatchCore; true
// for the duration of a handler's synchronous work") only needs to hold
// for the single goroutine that is synchronously running the handler,
// since a handler never hands its own event off to another goroutine
// (spec.md §5: "no suspension points... beyond brief, bounded work").
// Grounded on artipop-jacobin/jvm/instantiate.go's own recheck-the-flag
// loop (`k.Status == 'I'`), generalized from a status byte on a shared
// class record to a goroutine-local flag via goroutine ID.
package dispatch

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// goroutineID extracts the calling goroutine's numeric ID from its
// stack trace header ("goroutine 123 [running]:"), the same trick
// Jacobin-adjacent Go codebases reach for in the absence of a stdlib
// API -- good enough here because RecursionGuard only needs a stable
// key for the duration of one synchronous call tree, not a durable
// identity.
func goroutineID() int64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i >= 0 {
		buf = buf[:i]
	}
	id, _ := strconv.ParseInt(string(buf), 10, 64)
	return id
}

// Guard is the process-wide recursion flag, one bit per goroutine
// currently inside a handler.
type Guard struct {
	mu  sync.Mutex
	set map[int64]struct{}
}

func NewGuard() *Guard {
	return &Guard{set: make(map[int64]struct{})}
}

// Enter reports whether the calling goroutine was already inside the
// guard (spec.md §4.4 step 1: "If RecursionFlag is set, return
// immediately"). If it was not, Enter marks it set and returns a
// release func the caller must invoke on every exit path (spec.md §4.4
// step 5: "Clear RecursionFlag on all exit paths").
func (g *Guard) Enter() (alreadyInside bool, release func()) {
	id := goroutineID()

	g.mu.Lock()
	_, already := g.set[id]
	if !already {
		g.set[id] = struct{}{}
	}
	g.mu.Unlock()

	if already {
		return true, func() {}
	}
	return false, func() {
		g.mu.Lock()
		delete(g.set, id)
		g.mu.Unlock()
	}
}

// Inside reports whether the calling goroutine currently holds the
// guard, for handlers that need to know without acquiring it (e.g. the
// native-bind path setting the guard itself before registration calls,
// spec.md §4.3).
func (g *Guard) Inside() bool {
	id := goroutineID()
	g.mu.Lock()
	_, ok := g.set[id]
	g.mu.Unlock()
	return ok
}
