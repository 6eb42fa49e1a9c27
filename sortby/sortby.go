// Package sortby orders transformed records for display. Sorting is stable
// across equal keys; a reverse request flips the whole sorted order rather
// than each key's direction.
package sortby

import (
	"sort"
	"strings"

	"github.com/lorepanichi/pdh/errors"
	"github.com/lorepanichi/pdh/record"
	"github.com/lorepanichi/pdh/render"
)

// Sort returns the sequence ordered by the given field keys, compared
// element-wise. Every record must carry every key: a missing key is a
// configuration error naming the fields that would have worked. An empty
// key list returns the input unchanged.
func Sort(seq record.Sequence, keys []string, reverse bool) (record.Sequence, error) {
	if len(keys) == 0 {
		return seq, nil
	}

	// Decorate each record with its comparison tuple up front so missing
	// keys surface before any reordering happens.
	tuples := make([][]any, len(seq))
	for i, rec := range seq {
		tuple := make([]any, len(keys))
		for j, key := range keys {
			val, ok := record.At(rec, key)
			if !ok {
				return nil, errors.InvalidSortField(key, fieldNames(rec))
			}
			tuple[j] = sortValue(val)
		}
		tuples[i] = tuple
	}

	indexes := make([]int, len(seq))
	for i := range indexes {
		indexes[i] = i
	}

	sort.SliceStable(indexes, func(a, b int) bool {
		return compareTuples(tuples[indexes[a]], tuples[indexes[b]]) < 0
	})

	out := make(record.Sequence, len(seq))
	for i, idx := range indexes {
		out[i] = seq[idx]
	}

	if reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}

	return out, nil
}

// sortValue unwraps decorated cells so records sort by what the user sees.
func sortValue(val any) any {
	if cell, ok := val.(render.Cell); ok {
		return cell.Value
	}
	return val
}

func compareTuples(a, b []any) int {
	for i := range a {
		if cmp := compareValues(a[i], b[i]); cmp != 0 {
			return cmp
		}
	}
	return 0
}

// compareValues orders two field values: numerically when both are numbers,
// lexicographically on the display string otherwise.
func compareValues(a, b any) int {
	aNum, aOK := toFloat64(a)
	bNum, bOK := toFloat64(b)
	if aOK && bOK {
		switch {
		case aNum < bNum:
			return -1
		case aNum > bNum:
			return 1
		default:
			return 0
		}
	}

	return strings.Compare(record.Stringify(a), record.Stringify(b))
}

func toFloat64(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	default:
		return 0, false
	}
}

func fieldNames(rec record.Record) []string {
	names := make([]string, 0, len(rec))
	for name := range rec {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
