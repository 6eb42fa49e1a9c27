package transform

import (
	"context"

	"github.com/lorepanichi/pdh/record"
	"github.com/lorepanichi/pdh/render"
)

// AlertFetcher retrieves the alerts of one incident from the remote API.
type AlertFetcher func(ctx context.Context, incidentID string) (record.Sequence, error)

// SpecOptions parameterizes rule construction for fields that need more
// than the record itself.
type SpecOptions struct {
	AlertFields []string
	FetchAlerts AlertFetcher
}

// ruleFactory builds the display rule for one special field. The registry
// of factories is resolved once, when the spec is built, not per record.
type ruleFactory func(field string, opts SpecOptions) Rule

// incidentFactories maps incident fields with dedicated display rules.
// Unlisted fields get plain extraction.
var incidentFactories = map[string]ruleFactory{
	"status": func(field string, _ SpecOptions) Rule {
		return Decorate(field, DecorateOpts{
			ChangeMap:    map[string]string{"triggered": "✘", "acknowledged": "✔", "resolved": "✔"},
			ColorMap:     map[string]string{"triggered": "red", "acknowledged": "yellow", "resolved": "green"},
			DefaultColor: "cyan",
		})
	},
	"urgency": func(field string, _ SpecOptions) Rule {
		return Decorate(field, DecorateOpts{
			ChangeMap:    map[string]string{"high": "HIGH", "low": "LOW"},
			ColorMap:     map[string]string{"high": "red", "low": "green"},
			DefaultColor: "cyan",
		})
	},
	"title": func(field string, _ SpecOptions) Rule {
		return Decorate(field, DecorateOpts{
			MapFunc: func(val any, rec record.Record) render.Cell {
				color := "cyan"
				if record.StringAt(rec, "urgency") == "high" {
					color = "red"
				}
				return render.Cell{Value: record.Stringify(val), Color: color}
			},
		})
	},
	"assignee": func(_ string, _ SpecOptions) Rule {
		return Assignees()
	},
	"url": func(_ string, _ SpecOptions) Rule {
		return Extract("html_url")
	},
	"created_at": func(field string, _ SpecOptions) Rule {
		return Date(field)
	},
	"last_status_change_at": func(field string, _ SpecOptions) Rule {
		return Date(field)
	},
	"alerts": func(_ string, opts SpecOptions) Rule {
		return Alerts(opts.AlertFields, opts.FetchAlerts)
	},
}

// alertFactories maps alert fields with dedicated display rules.
var alertFactories = map[string]ruleFactory{
	"status": func(field string, _ SpecOptions) Rule {
		return Decorate(field, DecorateOpts{
			ChangeMap:    map[string]string{"triggered": "✘", "resolved": "✔"},
			ColorMap:     map[string]string{"triggered": "red", "resolved": "green"},
			DefaultColor: "cyan",
		})
	},
	"created_at": func(field string, _ SpecOptions) Rule {
		return Date(field)
	},
}

// serviceFactories maps service fields with dedicated display rules.
var serviceFactories = map[string]ruleFactory{
	"status": func(field string, _ SpecOptions) Rule {
		return Decorate(field, DecorateOpts{
			ChangeMap: map[string]string{
				"active":      "OK",
				"warning":     "WARN",
				"critical":    "CRIT",
				"maintenance": "maint",
				"disabled":    "off",
			},
			ColorMap: map[string]string{
				"active":      "green",
				"warning":     "yellow",
				"critical":    "red",
				"maintenance": "gray",
				"disabled":    "gray",
			},
			DefaultColor: "cyan",
		})
	},
	"created_at": func(field string, _ SpecOptions) Rule {
		return Date(field)
	},
	"updated_at": func(field string, _ SpecOptions) Rule {
		return Date(field)
	},
}

// userFactories maps user fields with dedicated display rules.
var userFactories = map[string]ruleFactory{
	"teams": func(_ string, _ SpecOptions) Rule {
		return Teams()
	},
}

// IncidentSpec builds the display spec for incident records.
func IncidentSpec(fields []string, opts SpecOptions) *Spec {
	return buildSpec(fields, incidentFactories, opts)
}

// AlertSpec builds the display spec for alert records.
func AlertSpec(fields []string) *Spec {
	return buildSpec(fields, alertFactories, SpecOptions{})
}

// ServiceSpec builds the display spec for service records.
func ServiceSpec(fields []string) *Spec {
	return buildSpec(fields, serviceFactories, SpecOptions{})
}

// UserSpec builds the display spec for user records.
func UserSpec(fields []string) *Spec {
	return buildSpec(fields, userFactories, SpecOptions{})
}

// TeamSpec builds the display spec for team records. Teams have no special
// fields; everything is plain extraction.
func TeamSpec(fields []string) *Spec {
	return buildSpec(fields, nil, SpecOptions{})
}

func buildSpec(fields []string, factories map[string]ruleFactory, opts SpecOptions) *Spec {
	spec := NewSpec()
	for _, field := range fields {
		if factory, ok := factories[field]; ok {
			spec.Add(field, factory(field, opts))
			continue
		}
		spec.Add(field, Extract(field))
	}
	return spec
}

// Alerts projects an incident's attached alerts through their own display
// spec. The query loop normally attaches the raw alerts before transforming;
// the fetcher is only called when nothing is attached, so the API is hit at
// most once per record per pass.
func Alerts(alertFields []string, fetch AlertFetcher) Rule {
	sub := AlertSpec(alertFields)

	return func(ctx context.Context, rec record.Record) (any, error) {
		raw, attached := attachedAlerts(rec)
		if !attached {
			if fetch == nil {
				return record.Sequence{}, nil
			}
			fetched, err := fetch(ctx, record.ID(rec))
			if err != nil {
				return nil, err
			}
			raw = fetched
		}

		return Apply(ctx, raw, sub, false)
	}
}

func attachedAlerts(rec record.Record) (record.Sequence, bool) {
	val, ok := record.At(rec, "alerts")
	if !ok {
		return nil, false
	}

	switch typed := val.(type) {
	case record.Sequence:
		return typed, true
	case []record.Record:
		return typed, true
	case []any:
		seq := make(record.Sequence, 0, len(typed))
		for _, item := range typed {
			if node, ok := item.(map[string]any); ok {
				seq = append(seq, node)
			}
		}
		return seq, true
	default:
		return nil, false
	}
}
