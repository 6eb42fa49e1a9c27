// Package rules runs operator-supplied executables over the record
// sequence before filtering. Scripts receive one JSON record per stdin line
// and print the replacement sequence the same way; a non-zero exit or an
// output line that is not a JSON object fails the script. Scripts run
// sequentially, never concurrently, and are never retried.
package rules

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/lorepanichi/pdh/errors"
	"github.com/lorepanichi/pdh/record"
)

// ProtocolVersion identifies the stdin/stdout interchange format announced
// to scripts via PDH_RULES_PROTOCOL.
const ProtocolVersion = "1"

// recordSchemaJSON is the v1 contract for each line a script prints: a JSON
// object, optionally carrying a string id.
const recordSchemaJSON = `{
	"type": "object",
	"properties": {
		"id": {"type": "string"}
	}
}`

var recordSchemaV1 = mustSchema(recordSchemaJSON)

func mustSchema(raw string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("rules: invalid record schema: %v", err))
	}
	return schema
}

// Script is one discovered rule executable.
type Script struct {
	Name string // path relative to the rules directory
	Path string
}

// Policy selects what Apply does when a script fails.
type Policy int

const (
	// PolicyAbort stops the chain on the first failure and returns the
	// sequence as it was when the pass started.
	PolicyAbort Policy = iota
	// PolicyContinue skips the failing script and feeds the last good
	// sequence to the next one. Failures are reported once at the end.
	PolicyContinue
)

// Options configures a rule chain run. Callbacks are optional.
type Options struct {
	Policy    Policy
	RunID     string
	OnSuccess func(script string)
	OnError   func(script string, err error)
}

// Discover walks dir and returns every regular file with an executable bit,
// in lexical walk order. An empty directory yields an empty chain, not an
// error.
func Discover(dir string) ([]Script, error) {
	var scripts []Script

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() || info.Mode().Perm()&0o111 == 0 {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = d.Name()
		}
		scripts = append(scripts, Script{Name: rel, Path: path})
		return nil
	})
	if walkErr != nil {
		return nil, errors.WrapConfig(walkErr, "Rules", "Discover", fmt.Sprintf("walk %q", dir))
	}

	return scripts, nil
}

// Apply threads the sequence through every script in order. Under
// PolicyAbort the first failure returns the input sequence untouched along
// with the error; under PolicyContinue failing scripts are skipped and the
// last good sequence is returned with an aggregate error.
func Apply(ctx context.Context, seq record.Sequence, scripts []Script, opts Options) (record.Sequence, error) {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}

	result := seq
	var failures []string

	for _, script := range scripts {
		replaced, err := runScript(ctx, script, result, opts.RunID)
		if err != nil {
			err = errors.WrapData(err, "Rules", "Apply", fmt.Sprintf("script %q", script.Name))
			if opts.OnError != nil {
				opts.OnError(script.Name, err)
			}
			if opts.Policy == PolicyAbort {
				return seq, err
			}
			failures = append(failures, fmt.Sprintf("%s: %v", script.Name, err))
			continue
		}

		if opts.OnSuccess != nil {
			opts.OnSuccess(script.Name)
		}
		result = replaced
	}

	if len(failures) > 0 {
		return result, errors.WrapData(
			fmt.Errorf("%d of %d rule scripts failed: %s",
				len(failures), len(scripts), strings.Join(failures, "; ")),
			"Rules", "Apply", "run rule chain")
	}

	return result, nil
}

func runScript(ctx context.Context, script Script, seq record.Sequence, runID string) (record.Sequence, error) {
	input, err := encodeSequence(seq)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, script.Path)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Env = append(os.Environ(),
		"PDH_RULES_PROTOCOL="+ProtocolVersion,
		"PDH_RUN_ID="+runID,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return nil, fmt.Errorf("%w: %s", err, lastLines(detail, 3))
		}
		return nil, err
	}

	return decodeSequence(stdout.Bytes())
}

func encodeSequence(seq record.Sequence) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range seq {
		if err := enc.Encode(rec); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func decodeSequence(data []byte) (record.Sequence, error) {
	seq := record.Sequence{}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		result, err := recordSchemaV1.Validate(gojsonschema.NewBytesLoader(line))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", errors.ErrBadScriptOutput, lineNo, err)
		}
		if !result.Valid() {
			return nil, fmt.Errorf("%w: line %d: %s", errors.ErrBadScriptOutput, lineNo, result.Errors()[0])
		}

		var rec record.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", errors.ErrBadScriptOutput, lineNo, err)
		}
		seq = append(seq, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrBadScriptOutput, err)
	}

	return seq, nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
