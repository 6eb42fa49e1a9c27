package transform

import (
	"context"
	"time"

	"github.com/lorepanichi/pdh/record"
	"github.com/lorepanichi/pdh/render"
)

// DecorateOpts configures a decorated extraction. ChangeMap rewrites the
// raw value to a display label, ColorMap picks a style tag by raw value,
// and DefaultColor applies when the raw value is not in ColorMap. MapFunc,
// when set, overrides the maps entirely; it sees the raw value and the full
// original record so decorations can depend on sibling fields.
type DecorateOpts struct {
	ChangeMap    map[string]string
	ColorMap     map[string]string
	DefaultColor string
	MapFunc      func(val any, rec record.Record) render.Cell
}

// Decorate extracts a field and wraps it in a styled cell. Raw values
// missing from the maps pass through with the default color, so new remote
// states degrade to unstyled text instead of breaking display.
func Decorate(path string, opts DecorateOpts) Rule {
	return func(_ context.Context, rec record.Record) (any, error) {
		val, _ := record.At(rec, path)

		if opts.MapFunc != nil {
			return opts.MapFunc(val, rec), nil
		}

		raw := record.Stringify(val)
		display := raw
		if mapped, ok := opts.ChangeMap[raw]; ok {
			display = mapped
		}
		color := opts.DefaultColor
		if mapped, ok := opts.ColorMap[raw]; ok {
			color = mapped
		}

		return render.Cell{Value: display, Color: color}, nil
	}
}

// Date reformat contract: RFC3339 timestamps from the API are re-expressed
// in UTC with a fixed human-readable pattern. Values that do not parse pass
// through unchanged.
const (
	DateInputLayout  = time.RFC3339
	DateOutputLayout = "2006-01-02 15:04:05"
)

// Date extracts a timestamp field and reformats it for display.
func Date(path string) Rule {
	return func(_ context.Context, rec record.Record) (any, error) {
		val, ok := record.At(rec, path)
		if !ok {
			return "", nil
		}

		parsed, err := time.Parse(DateInputLayout, record.Stringify(val))
		if err != nil {
			return val, nil
		}

		return parsed.UTC().Format(DateOutputLayout), nil
	}
}

// Assignees flattens assignments[].assignee.summary into one comma-joined
// display string. Records without assignments render empty.
func Assignees() Rule {
	return joinSummaries("assignments", "assignee")
}

// Teams flattens teams[].summary into one comma-joined display string.
func Teams() Rule {
	return joinSummaries("teams", "")
}

// joinSummaries walks a list field and collects the summary of each entry,
// optionally descending through an inner key first.
func joinSummaries(listField, innerKey string) Rule {
	return func(_ context.Context, rec record.Record) (any, error) {
		val, ok := record.At(rec, listField)
		if !ok {
			return "", nil
		}

		items, ok := val.([]any)
		if !ok {
			return "", nil
		}

		out := ""
		for _, item := range items {
			node, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if innerKey != "" {
				inner, ok := node[innerKey].(map[string]any)
				if !ok {
					continue
				}
				node = inner
			}
			summary := record.StringAt(node, "summary")
			if summary == "" {
				continue
			}
			if out != "" {
				out += ", "
			}
			out += summary
		}

		return out, nil
	}
}
