/*
 * Breakpoint Interceptor
 * Adapted from the Jacobin JVM project. Licensed under Mozilla Public
 * License 2.0 (MPL 2.0).
 */

package trace

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/google/uuid"
)

// wireRecord is Record's JSON Lines shape. Kept separate from Record
// so Record itself stays a plain Go value type with no serialization
// concerns leaking into the handler code that builds one.
type wireRecord struct {
	ID             string `json:"id"`
	Kind           Kind   `json:"kind"`
	Function       string `json:"function"`
	Class          any    `json:"clazz"`
	DeclaringClass any    `json:"declaringClass,omitempty"`
	CallerClass    any    `json:"callerClass,omitempty"`
	Result         any    `json:"result"`
	Args           []any  `json:"args,omitempty"`
}

// JSONLinesWriter is the one concrete TraceEmitter spec.md ships:
// append-only, one JSON object per line, safe for concurrent use from
// many hook hits on many threads (spec.md §5: "no blocking I/O within
// handlers" -- the mutex here only ever guards a single buffered
// Write, never a network round trip).
//
// instanceID tags every record with this process's AgentInstanceID
// (SPEC_FULL.md §2.5), so records from concurrently-running agent
// instances can be told apart downstream.
type JSONLinesWriter struct {
	mu         sync.Mutex
	w          io.Writer
	instanceID string
	onRecord   func(Record) // optional hook for tests; never blocks
}

func NewJSONLinesWriter(w io.Writer) *JSONLinesWriter {
	return &JSONLinesWriter{w: w, instanceID: uuid.NewString()}
}

// OnRecord installs a synchronous observer called after every
// successful write, for tests that want to assert on emitted records
// without re-parsing JSON.
func (j *JSONLinesWriter) OnRecord(fn func(Record)) {
	j.onRecord = fn
}

func (j *JSONLinesWriter) TraceCall(_ context.Context, rec Record) {
	wr := wireRecord{
		ID:             j.instanceID + "-" + uuid.NewString(),
		Kind:           rec.Kind,
		Function:       rec.Function,
		Class:          normalize(rec.Class),
		DeclaringClass: normalize(rec.DeclaringClass),
		CallerClass:    normalize(rec.CallerClass),
		Result:         normalize(rec.Result),
		Args:           rec.Args,
	}

	line, err := json.Marshal(wr)
	if err != nil {
		// A Record that can't marshal is a programming error in a
		// handler, not a runtime condition spec.md asks us to recover
		// from; drop it rather than panic inside a hook hit.
		return
	}
	line = append(line, '\n')

	j.mu.Lock()
	_, _ = j.w.Write(line)
	j.mu.Unlock()

	if j.onRecord != nil {
		j.onRecord(rec)
	}
}

func normalize(v any) any {
	if v == nil {
		return Null
	}
	return v
}
