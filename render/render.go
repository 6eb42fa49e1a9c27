// Package render prints record sequences for the terminal. Table and plain
// modes honor the advisory style carried by decorated cells; JSON and YAML
// always emit the underlying display value with no styling.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/lorepanichi/pdh/errors"
	"github.com/lorepanichi/pdh/record"
)

// Output modes accepted by Render.
const (
	ModeTable = "table"
	ModeJSON  = "json"
	ModeYAML  = "yaml"
	ModeRaw   = "raw"
	ModePlain = "plain"
)

// Modes lists the accepted output modes for flag help and validation.
var Modes = []string{ModeTable, ModeJSON, ModeYAML, ModeRaw, ModePlain}

// Cell is a display value with an optional style tag. The tag is advisory:
// text renderers may colorize it, structured renderers ignore it.
type Cell struct {
	Value string
	Color string
}

// String returns the undecorated display value.
func (c Cell) String() string {
	return c.Value
}

// MarshalJSON emits only the display value.
func (c Cell) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Value)
}

// MarshalYAML emits only the display value.
func (c Cell) MarshalYAML() (any, error) {
	return c.Value, nil
}

// styles maps the tags decorations use to terminal colors. Unknown tags
// render unstyled.
var styles = map[string]*color.Color{
	"red":     color.New(color.FgRed),
	"green":   color.New(color.FgGreen),
	"yellow":  color.New(color.FgYellow),
	"cyan":    color.New(color.FgCyan),
	"magenta": color.New(color.FgMagenta),
	"blue":    color.New(color.FgBlue),
	"white":   color.New(color.FgWhite),
	"gray":    color.New(color.FgHiBlack),
}

// Options selects the output mode and its knobs.
type Options struct {
	Mode    string
	Fields  []string // column order for table and plain modes
	NoColor bool
}

// Render writes the sequence to w in the requested mode. Unknown modes are
// a configuration error.
func Render(w io.Writer, seq record.Sequence, opts Options) error {
	switch opts.Mode {
	case ModeTable, "":
		return renderTable(w, seq, opts)
	case ModeJSON:
		return renderJSON(w, seq)
	case ModeYAML:
		return renderYAML(w, seq)
	case ModeRaw:
		return renderJSON(w, seq)
	case ModePlain:
		return renderPlain(w, seq, opts)
	default:
		return errors.WrapConfig(
			fmt.Errorf("%w: unknown output mode %q (valid: %s)",
				errors.ErrInvalidConfig, opts.Mode, strings.Join(Modes, ", ")),
			"Render", "Render", "select output mode")
	}
}

func renderTable(w io.Writer, seq record.Sequence, opts Options) error {
	fields := fieldsOrKeys(opts.Fields, seq)

	table := tablewriter.NewWriter(w)
	table.SetHeader(fields)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)

	for _, rec := range seq {
		row := make([]string, len(fields))
		for i, field := range fields {
			val, _ := record.At(rec, field)
			row[i] = displayString(val, opts.NoColor)
		}
		table.Append(row)
	}

	table.Render()
	return nil
}

func renderJSON(w io.Writer, seq record.Sequence) error {
	data, err := json.MarshalIndent(seq, "", "  ")
	if err != nil {
		return errors.WrapData(err, "Render", "renderJSON", "marshal records")
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func renderYAML(w io.Writer, seq record.Sequence) error {
	data, err := yaml.Marshal(seq)
	if err != nil {
		return errors.WrapData(err, "Render", "renderYAML", "marshal records")
	}
	_, err = w.Write(data)
	return err
}

func renderPlain(w io.Writer, seq record.Sequence, opts Options) error {
	fields := fieldsOrKeys(opts.Fields, seq)

	for _, rec := range seq {
		parts := make([]string, len(fields))
		for i, field := range fields {
			val, _ := record.At(rec, field)
			parts[i] = displayString(val, opts.NoColor)
		}
		if _, err := fmt.Fprintln(w, strings.Join(parts, "\t")); err != nil {
			return err
		}
	}
	return nil
}

// fieldsOrKeys falls back to the first record's keys, sorted, when the
// caller gave no column order.
func fieldsOrKeys(fields []string, seq record.Sequence) []string {
	if len(fields) > 0 || len(seq) == 0 {
		return fields
	}
	keys := make([]string, 0, len(seq[0]))
	for key := range seq[0] {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// displayString renders a single value, applying the cell style when color
// is enabled. Nested structures print as compact JSON so a table cell stays
// one line.
func displayString(val any, noColor bool) string {
	switch val.(type) {
	case record.Sequence, []any, map[string]any:
		if data, err := json.Marshal(val); err == nil {
			return string(data)
		}
	}

	cell, ok := val.(Cell)
	if !ok {
		return record.Stringify(val)
	}
	if noColor || cell.Color == "" {
		return cell.Value
	}
	style, ok := styles[cell.Color]
	if !ok {
		return cell.Value
	}
	return style.Sprint(cell.Value)
}

// ClearScreen resets the terminal between watch passes.
func ClearScreen(w io.Writer) {
	fmt.Fprint(w, "\033[2J\033[H")
}
