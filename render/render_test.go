package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/lorepanichi/pdh/errors"
	"github.com/lorepanichi/pdh/record"
)

func sampleSeq() record.Sequence {
	return record.Sequence{
		{
			"id":     "P1",
			"title":  "CPU load high",
			"status": Cell{Value: "triggered", Color: "red"},
		},
		{
			"id":     "P2",
			"title":  "disk almost full",
			"status": Cell{Value: "acknowledged", Color: "yellow"},
		},
	}
}

func TestCell_MarshalJSON(t *testing.T) {
	rec := record.Record{"status": Cell{Value: "triggered", Color: "red"}}

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	// Styling is advisory: JSON carries only the display value.
	assert.JSONEq(t, `{"status":"triggered"}`, string(data))
}

func TestCell_MarshalYAML(t *testing.T) {
	rec := record.Record{"status": Cell{Value: "triggered", Color: "red"}}

	data, err := yaml.Marshal(rec)
	require.NoError(t, err)

	assert.Equal(t, "status: triggered\n", string(data))
}

func TestRender_Table(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, sampleSeq(), Options{
		Mode:    ModeTable,
		Fields:  []string{"id", "title", "status"},
		NoColor: true,
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "id")
	assert.Contains(t, out, "title")
	assert.Contains(t, out, "CPU load high")
	assert.Contains(t, out, "triggered")
	assert.Contains(t, out, "acknowledged")
}

func TestRender_JSON(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, sampleSeq(), Options{Mode: ModeJSON})
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "triggered", decoded[0]["status"])
	assert.Equal(t, "P2", decoded[1]["id"])
}

func TestRender_YAML(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, sampleSeq(), Options{Mode: ModeYAML})
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "acknowledged", decoded[1]["status"])
}

func TestRender_Plain(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, sampleSeq(), Options{
		Mode:    ModePlain,
		Fields:  []string{"id", "status"},
		NoColor: true,
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "P1\ttriggered", lines[0])
	assert.Equal(t, "P2\tacknowledged", lines[1])
}

func TestRender_UnknownMode(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, sampleSeq(), Options{Mode: "csv"})
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
	assert.Contains(t, err.Error(), "csv")
}

func TestRender_EmptySequence(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, nil, Options{Mode: ModeTable, Fields: []string{"id"}})
	require.NoError(t, err)
}

func TestDisplayString(t *testing.T) {
	tests := []struct {
		name     string
		val      any
		noColor  bool
		expected string
	}{
		{"plain string", "hello", false, "hello"},
		{"integral float", float64(7), false, "7"},
		{"cell no color flag", Cell{Value: "ok", Color: "green"}, true, "ok"},
		{"cell unknown style", Cell{Value: "ok", Color: "mauve"}, false, "ok"},
		{"cell empty style", Cell{Value: "ok"}, false, "ok"},
		{"nil", nil, false, ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, displayString(test.val, test.noColor))
		})
	}
}
