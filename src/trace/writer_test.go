/*
 * Breakpoint Interceptor
 * Adapted from the Jacobin JVM project. Licensed under Mozilla Public
 * License 2.0 (MPL 2.0).
 */

package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLinesWriter_EmitsOneLinePerRecord(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLinesWriter(&buf)

	w.TraceCall(context.Background(), Record{
		Kind:        KindReflect,
		Function:    "forName",
		Class:       "java.lang.Class",
		CallerClass: "UserApp",
		Result:      false,
		Args:        []any{"DoesNotExist"},
	})
	w.TraceCall(context.Background(), Record{
		Kind:     KindReflect,
		Function: "getField",
		Result:   true,
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "forName", first["function"])
	assert.Equal(t, []any{"DoesNotExist"}, first["args"])
	assert.Equal(t, false, first["result"])
}

func TestJSONLinesWriter_NilFieldsBecomeSentinel(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLinesWriter(&buf)

	w.TraceCall(context.Background(), Record{Function: "x", Result: nil})

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, Null, rec["result"])
}

func TestJSONLinesWriter_OnRecordObserverFires(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLinesWriter(&buf)

	var got []Record
	w.OnRecord(func(r Record) { got = append(got, r) })

	w.TraceCall(context.Background(), Record{Function: "getMethod"})
	require.Len(t, got, 1)
	assert.Equal(t, "getMethod", got[0].Function)
}
