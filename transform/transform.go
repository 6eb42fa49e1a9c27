// Package transform projects raw API records into display records. A Spec
// is an ordered list of output fields, each bound to a rule that computes
// the field's value from the original record. Applying a spec preserves
// sequence length and order; rules read the original record and never
// mutate it.
package transform

import (
	"context"
	"fmt"

	"github.com/lorepanichi/pdh/errors"
	"github.com/lorepanichi/pdh/record"
)

// Rule computes one output field from the original record. Rules that call
// the remote API take the pass context; everything else ignores it.
type Rule func(ctx context.Context, rec record.Record) (any, error)

// Spec is an insertion-ordered set of output fields and their rules. The
// field order is the display order for table and plain renderers.
type Spec struct {
	fields []string
	rules  map[string]Rule
}

// NewSpec returns an empty spec.
func NewSpec() *Spec {
	return &Spec{rules: make(map[string]Rule)}
}

// Add binds a rule to an output field. Adding a field twice replaces its
// rule but keeps the original position.
func (s *Spec) Add(field string, rule Rule) *Spec {
	if _, exists := s.rules[field]; !exists {
		s.fields = append(s.fields, field)
	}
	s.rules[field] = rule
	return s
}

// Fields returns the output fields in display order.
func (s *Spec) Fields() []string {
	return append([]string(nil), s.fields...)
}

// Len returns the number of output fields.
func (s *Spec) Len() int {
	return len(s.fields)
}

// Apply projects every record through the spec. The output has exactly one
// record per input record, in input order. Without preserve the output
// records carry only the spec's fields; with preserve each output record is
// a shallow copy of the input overlaid with the spec's fields.
func Apply(ctx context.Context, seq record.Sequence, spec *Spec, preserve bool) (record.Sequence, error) {
	out := make(record.Sequence, len(seq))
	for i, rec := range seq {
		projected, err := applyOne(ctx, rec, spec, preserve)
		if err != nil {
			return nil, err
		}
		out[i] = projected
	}
	return out, nil
}

func applyOne(ctx context.Context, rec record.Record, spec *Spec, preserve bool) (record.Record, error) {
	var out record.Record
	if preserve {
		out = record.Clone(rec)
	} else {
		out = make(record.Record, spec.Len())
	}

	for _, field := range spec.fields {
		val, err := spec.rules[field](ctx, rec)
		if err != nil {
			return nil, errors.Wrap(err, "Transform", "Apply", fmt.Sprintf("field %q", field))
		}
		out[field] = val
	}

	return out, nil
}

// Extract returns the value at the given path, or the empty string when the
// path is absent. Present values pass through with their original type.
func Extract(path string) Rule {
	return func(_ context.Context, rec record.Record) (any, error) {
		val, ok := record.At(rec, path)
		if !ok {
			return "", nil
		}
		return val, nil
	}
}
