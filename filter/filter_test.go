package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorepanichi/pdh/errors"
	"github.com/lorepanichi/pdh/record"
)

func titled(titles ...string) record.Sequence {
	seq := make(record.Sequence, len(titles))
	for i, title := range titles {
		seq[i] = record.Record{"id": title, "title": title}
	}
	return seq
}

func titlesOf(seq record.Sequence) []string {
	out := make([]string, len(seq))
	for i, rec := range seq {
		out[i] = record.StringAt(rec, "title")
	}
	return out
}

func TestInSet(t *testing.T) {
	tests := []struct {
		name     string
		rec      record.Record
		path     string
		allowed  []string
		expected bool
	}{
		{
			name:     "value in set",
			rec:      record.Record{"status": "triggered"},
			path:     "status",
			allowed:  []string{"triggered", "acknowledged"},
			expected: true,
		},
		{
			name:     "value not in set",
			rec:      record.Record{"status": "resolved"},
			path:     "status",
			allowed:  []string{"triggered", "acknowledged"},
			expected: false,
		},
		{
			name:     "comparison is case-sensitive",
			rec:      record.Record{"status": "Triggered"},
			path:     "status",
			allowed:  []string{"triggered"},
			expected: false,
		},
		{
			name:     "missing field never matches",
			rec:      record.Record{"other": "x"},
			path:     "status",
			allowed:  []string{"triggered"},
			expected: false,
		},
		{
			name:     "nested path",
			rec:      record.Record{"service": map[string]any{"summary": "checkout"}},
			path:     "service.summary",
			allowed:  []string{"checkout"},
			expected: true,
		},
		{
			name:     "numeric value stringified",
			rec:      record.Record{"priority": float64(1)},
			path:     "priority",
			allowed:  []string{"1"},
			expected: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := InSet(test.path, test.allowed)
			assert.Equal(t, test.expected, f.Match(test.rec))
		})
	}
}

func TestRegexp(t *testing.T) {
	tests := []struct {
		name     string
		rec      record.Record
		pattern  string
		expected bool
	}{
		{
			name:     "substring match",
			rec:      record.Record{"title": "CPU load high"},
			pattern:  "CPU",
			expected: true,
		},
		{
			name:     "no match",
			rec:      record.Record{"title": "memory leak"},
			pattern:  "CPU",
			expected: false,
		},
		{
			name:     "anchored pattern",
			rec:      record.Record{"title": "CPU load high"},
			pattern:  "^CPU",
			expected: true,
		},
		{
			name:     "missing field is excluded",
			rec:      record.Record{"other": "CPU"},
			pattern:  "CPU",
			expected: false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f, err := Regexp("title", test.pattern)
			require.NoError(t, err)
			assert.Equal(t, test.expected, f.Match(test.rec))
		})
	}
}

func TestNotRegexp(t *testing.T) {
	tests := []struct {
		name     string
		rec      record.Record
		pattern  string
		expected bool
	}{
		{
			name:     "matching value is excluded",
			rec:      record.Record{"title": "CPU load high"},
			pattern:  "CPU",
			expected: false,
		},
		{
			name:     "non-matching value is kept",
			rec:      record.Record{"title": "memory leak"},
			pattern:  "CPU",
			expected: true,
		},
		{
			// Opposite of Regexp: absence cannot be excluded.
			name:     "missing field is kept",
			rec:      record.Record{"other": "CPU"},
			pattern:  "CPU",
			expected: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f, err := NotRegexp("title", test.pattern)
			require.NoError(t, err)
			assert.Equal(t, test.expected, f.Match(test.rec))
		})
	}
}

func TestRegexp_MalformedPattern(t *testing.T) {
	_, err := Regexp("title", "([unclosed")
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))

	_, err = NotRegexp("title", "([unclosed")
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestApply_TitleScenarios(t *testing.T) {
	seq := titled("CPU load high", "CPU save low", "memory leak")

	t.Run("regex keeps matches", func(t *testing.T) {
		f, err := Regexp("title", "CPU")
		require.NoError(t, err)
		out := Apply(seq, []Filter{f})
		assert.Equal(t, []string{"CPU load high", "CPU save low"}, titlesOf(out))
	})

	t.Run("excluded regex drops matches", func(t *testing.T) {
		f, err := NotRegexp("title", "(CPU|memory)")
		require.NoError(t, err)
		out := Apply(seq, []Filter{f})
		assert.Empty(t, out)
	})

	t.Run("excluded regex keeps the rest in order", func(t *testing.T) {
		f, err := NotRegexp("title", "save")
		require.NoError(t, err)
		out := Apply(seq, []Filter{f})
		assert.Equal(t, []string{"CPU load high", "memory leak"}, titlesOf(out))
	})
}

func TestApply_AndChain(t *testing.T) {
	seq := record.Sequence{
		{"id": "P1", "status": "triggered", "urgency": "high"},
		{"id": "P2", "status": "triggered", "urgency": "low"},
		{"id": "P3", "status": "resolved", "urgency": "high"},
	}

	out := Apply(seq, []Filter{
		InSet("status", []string{"triggered"}),
		InSet("urgency", []string{"high"}),
	})

	require.Len(t, out, 1)
	assert.Equal(t, "P1", record.ID(out[0]))
}

func TestApply_EmptyChainReturnsInput(t *testing.T) {
	seq := titled("a", "b")
	out := Apply(seq, nil)
	assert.Equal(t, seq, out)
}

func TestApply_PureAndIdempotent(t *testing.T) {
	seq := titled("CPU load high", "memory leak")
	f, err := Regexp("title", "CPU")
	require.NoError(t, err)
	chain := []Filter{f}

	once := Apply(seq, chain)
	twice := Apply(once, chain)

	// Same chain applied again yields the identical subsequence.
	assert.Equal(t, once, twice)

	// The input sequence is untouched.
	assert.Equal(t, []string{"CPU load high", "memory leak"}, titlesOf(seq))
}
