package rules

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorepanichi/pdh/errors"
	"github.com/lorepanichi/pdh/record"
)

func writeScript(t *testing.T, dir, name, body string) Script {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return Script{Name: name, Path: path}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "z_last.sh", "cat")
	writeScript(t, dir, "a_first.sh", "cat")
	writeScript(t, dir, "nested/inner.sh", "cat")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a script"), 0o644))

	scripts, err := Discover(dir)
	require.NoError(t, err)

	names := make([]string, len(scripts))
	for i, s := range scripts {
		names[i] = s.Name
	}
	// Lexical walk order, non-executables skipped.
	assert.Equal(t, []string{"a_first.sh", "nested/inner.sh", "z_last.sh"}, names)
}

func TestDiscover_EmptyDir(t *testing.T) {
	scripts, err := Discover(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, scripts)
}

func TestDiscover_MissingDir(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestApply_Passthrough(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "pass.sh", "cat")

	seq := record.Sequence{
		{"id": "P1", "title": "first"},
		{"id": "P2", "title": "second"},
	}

	out, err := Apply(context.Background(), seq, []Script{script}, Options{})
	require.NoError(t, err)
	assert.Equal(t, seq, out)
}

func TestApply_ChainsSequentially(t *testing.T) {
	dir := t.TempDir()
	// The first script replaces the sequence; the second edits what the
	// first produced, proving output feeds forward.
	first := writeScript(t, dir, "10_replace.sh", `echo '{"id":"X1","source":"first"}'`)
	second := writeScript(t, dir, "20_edit.sh", `sed 's/X1/X2/'`)

	var succeeded []string
	out, err := Apply(context.Background(), record.Sequence{{"id": "P1"}}, []Script{first, second}, Options{
		OnSuccess: func(name string) { succeeded = append(succeeded, name) },
	})
	require.NoError(t, err)

	require.Len(t, out, 1)
	assert.Equal(t, "X2", record.ID(out[0]))
	assert.Equal(t, "first", out[0]["source"])
	assert.Equal(t, []string{"10_replace.sh", "20_edit.sh"}, succeeded)
}

func TestApply_ScriptCanDropAllRecords(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "drop.sh", "true")

	out, err := Apply(context.Background(), record.Sequence{{"id": "P1"}}, []Script{script}, Options{})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestApply_AbortReturnsPassStartSequence(t *testing.T) {
	dir := t.TempDir()
	mutate := writeScript(t, dir, "10_mutate.sh", `echo '{"id":"MUTATED"}'`)
	failing := writeScript(t, dir, "20_fail.sh", `echo "custom failure detail" >&2; exit 3`)

	var failedScript string
	var failedErr error
	seq := record.Sequence{{"id": "P1"}}

	out, err := Apply(context.Background(), seq, []Script{mutate, failing}, Options{
		Policy: PolicyAbort,
		OnError: func(name string, e error) {
			failedScript = name
			failedErr = e
		},
	})

	require.Error(t, err)
	assert.True(t, errors.IsData(err))
	assert.Contains(t, err.Error(), "20_fail.sh")
	assert.Contains(t, err.Error(), "custom failure detail")
	assert.Equal(t, "20_fail.sh", failedScript)
	require.Error(t, failedErr)

	// Abort discards partial work: the caller gets the pass-start sequence.
	require.Len(t, out, 1)
	assert.Equal(t, "P1", record.ID(out[0]))
}

func TestApply_ContinueSkipsFailingScript(t *testing.T) {
	dir := t.TempDir()
	failing := writeScript(t, dir, "10_fail.sh", "exit 1")
	tag := writeScript(t, dir, "20_tag.sh", `sed 's/}$/,"tagged":true}/'`)

	seq := record.Sequence{{"id": "P1"}}
	out, err := Apply(context.Background(), seq, []Script{failing, tag}, Options{
		Policy: PolicyContinue,
	})

	// The chain completes on the last good sequence and reports once.
	require.Error(t, err)
	assert.True(t, errors.IsData(err))
	assert.Contains(t, err.Error(), "1 of 2 rule scripts failed")

	require.Len(t, out, 1)
	assert.Equal(t, "P1", record.ID(out[0]))
	assert.Equal(t, true, out[0]["tagged"])
}

func TestApply_InvalidOutputLine(t *testing.T) {
	dir := t.TempDir()
	garbage := writeScript(t, dir, "bad.sh", "echo 'not json at all'")

	seq := record.Sequence{{"id": "P1"}}
	out, err := Apply(context.Background(), seq, []Script{garbage}, Options{})

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrBadScriptOutput)
	assert.Equal(t, seq, out)
}

func TestApply_NonObjectOutputLine(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "array.sh", `echo '[1,2,3]'`)

	_, err := Apply(context.Background(), record.Sequence{{"id": "P1"}}, []Script{script}, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrBadScriptOutput)
}

func TestApply_ScriptEnvironment(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "env.sh",
		`echo "{\"id\":\"$PDH_RULES_PROTOCOL:$PDH_RUN_ID\"}"`)

	out, err := Apply(context.Background(), record.Sequence{{"id": "P1"}}, []Script{script}, Options{
		RunID: "run-42",
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "1:run-42", record.ID(out[0]))
}

func TestApply_NoScriptsIsNoop(t *testing.T) {
	seq := record.Sequence{{"id": "P1"}}
	out, err := Apply(context.Background(), seq, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, seq, out)
}
