// Package filter implements the predicate chain records must pass before
// display. Predicates are pure, side-effect free, and combined with AND
// logic; the chain never reorders records and never mutates them.
package filter

import (
	"fmt"
	"regexp"

	"github.com/lorepanichi/pdh/errors"
	"github.com/lorepanichi/pdh/record"
)

// Filter is a single named predicate over a record. Match must be pure:
// same record in, same answer out, no mutation.
type Filter struct {
	Name  string
	Match func(record.Record) bool
}

// Apply keeps the records matching every filter in the chain. Order is
// preserved and the input sequence is never modified. An empty chain
// returns the input unchanged.
func Apply(seq record.Sequence, filters []Filter) record.Sequence {
	if len(filters) == 0 {
		return seq
	}

	out := make(record.Sequence, 0, len(seq))
	for _, rec := range seq {
		if matchesAll(rec, filters) {
			out = append(out, rec)
		}
	}
	return out
}

// matchesAll checks a record against every filter (AND logic)
func matchesAll(rec record.Record, filters []Filter) bool {
	for _, f := range filters {
		if !f.Match(rec) {
			return false
		}
	}
	return true
}

// InSet keeps records whose field value equals one of the allowed values.
// Comparison is a case-sensitive string match after stringification; a
// record without the field never matches.
func InSet(path string, allowed []string) Filter {
	values := append([]string(nil), allowed...)
	return Filter{
		Name: fmt.Sprintf("inSet(%s)", path),
		Match: func(rec record.Record) bool {
			val, ok := record.At(rec, path)
			if !ok {
				return false
			}
			str := record.Stringify(val)
			for _, want := range values {
				if str == want {
					return true
				}
			}
			return false
		},
	}
}

// Regexp keeps records whose field value contains a match for the pattern.
// The pattern is compiled once here; a malformed pattern is a configuration
// error. A record without the field never matches and is dropped.
func Regexp(path, pattern string) (Filter, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Filter{}, errors.WrapConfig(
			fmt.Errorf("%w: %v", errors.ErrInvalidPattern, err),
			"Filter", "Regexp", fmt.Sprintf("compile %q", pattern))
	}

	return Filter{
		Name: fmt.Sprintf("regexMatches(%s)", path),
		Match: func(rec record.Record) bool {
			val, ok := record.At(rec, path)
			if !ok {
				return false
			}
			return re.MatchString(record.Stringify(val))
		},
	}, nil
}

// NotRegexp keeps records whose field value does NOT contain a match for
// the pattern. A record without the field is kept: only a present, matching
// value excludes it.
func NotRegexp(path, pattern string) (Filter, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Filter{}, errors.WrapConfig(
			fmt.Errorf("%w: %v", errors.ErrInvalidPattern, err),
			"Filter", "NotRegexp", fmt.Sprintf("compile %q", pattern))
	}

	return Filter{
		Name: fmt.Sprintf("regexExcludes(%s)", path),
		Match: func(rec record.Record) bool {
			val, ok := record.At(rec, path)
			if !ok {
				return true
			}
			return !re.MatchString(record.Stringify(val))
		},
	}, nil
}
