// Package record defines the generic record model the pipeline operates on.
// A record is a JSON-shaped nested map addressed by dotted field paths. An
// absent path is distinct from a present-but-empty value, and all pipeline
// stages treat records as read-only inputs.
package record

import (
	"fmt"
	"strings"
)

// Record is a single JSON-shaped item, typically one incident, alert, user,
// service or team returned by the remote API.
type Record = map[string]any

// Sequence is an ordered collection of records. Stages receive a sequence
// and return a derived sequence without mutating the input.
type Sequence []Record

// At resolves a dotted field path against the record. A key containing a
// literal dot wins over nested descent. The boolean reports whether the path
// exists at all: a present nil value returns (nil, true), a missing segment
// returns (nil, false).
func At(r Record, path string) (any, bool) {
	if r == nil {
		return nil, false
	}

	if val, ok := r[path]; ok {
		return val, true
	}

	parts := strings.Split(path, ".")
	if len(parts) == 1 {
		return nil, false
	}

	var current any = map[string]any(r)
	for _, part := range parts {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// StringAt resolves a dotted path and renders the value for display. Absent
// paths and nil values both render as the empty string.
func StringAt(r Record, path string) string {
	val, ok := At(r, path)
	if !ok || val == nil {
		return ""
	}
	return Stringify(val)
}

// Stringify renders any record value the way the renderer prints it.
// Floats that carry integral values drop the trailing ".0" JSON decoding
// gives them.
func Stringify(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprint(v)
	}
}

// ID returns the record's identifier field, empty when absent.
func ID(r Record) string {
	return StringAt(r, "id")
}

// Clone returns a shallow copy of the record. Top-level keys can be added or
// replaced on the copy without touching the original; nested values are
// shared.
func Clone(r Record) Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// IDs collects the identifier of every record in the sequence, skipping
// records without one.
func (s Sequence) IDs() []string {
	ids := make([]string, 0, len(s))
	for _, r := range s {
		if id := ID(r); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Clone returns a new slice holding the same records. Stages that reorder or
// drop records work on a clone so the caller's sequence stays intact.
func (s Sequence) Clone() Sequence {
	out := make(Sequence, len(s))
	copy(out, s)
	return out
}
