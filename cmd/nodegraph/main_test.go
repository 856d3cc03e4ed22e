package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const linearGraph = `
name: linear
nodes:
  - id: a
    type: constant
    params: {value: 5}
  - id: b
    type: math.scale
    params: {factor: 2}
  - id: c
    type: math.scale
    params: {offset: 1}
connections:
  - {from: a.value, to: b.x}
  - {from: b.y, to: c.x}
`

const failingGraph = `
name: broken
nodes:
  - id: a
    type: constant
    params: {value: 1}
  - id: boom
    type: fail
    params: {message: nope}
  - id: after
    type: text.format
connections:
  - {from: a.value, to: boom.in}
  - {from: boom.out, to: after.in1}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func exitCode(err error) int {
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	return -1
}

func TestRun_NoArgs(t *testing.T) {
	var out, errOut bytes.Buffer
	err := run(context.Background(), &out, &errOut, nil)
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))
	assert.Contains(t, errOut.String(), "Usage:")
}

func TestRun_UnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	err := run(context.Background(), &out, &errOut, []string{"frobnicate"})
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))
	assert.Contains(t, err.Error(), "frobnicate")
}

func TestValidate(t *testing.T) {
	path := writeFile(t, t.TempDir(), "linear.yaml", linearGraph)

	var out, errOut bytes.Buffer
	err := run(context.Background(), &out, &errOut, []string{"validate", path})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "linear: ok (3 nodes, 2 connections, 3 layers)")
	assert.Contains(t, out.String(), "layer 0: [a]")
}

func TestValidate_ReportsBuildErrors(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.yaml", `
name: bad
nodes:
  - id: a
    type: no.such.type
`)
	var out, errOut bytes.Buffer
	err := run(context.Background(), &out, &errOut, []string{"validate", path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no.such.type")
}

func TestRunCommand_Table(t *testing.T) {
	path := writeFile(t, t.TempDir(), "linear.yaml", linearGraph)

	var out, errOut bytes.Buffer
	err := run(context.Background(), &out, &errOut, []string{"run", "-run-id", "r1", path})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "run r1 of linear: succeeded")
	assert.Contains(t, out.String(), "y=11")
}

func TestRunCommand_JSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "linear.yaml", linearGraph)

	var out, errOut bytes.Buffer
	err := run(context.Background(), &out, &errOut, []string{"run", "-json", path})
	require.NoError(t, err)

	var report struct {
		Success bool `json:"success"`
		Results map[string]struct {
			Status string `json:"status"`
		} `json:"results"`
		Skipped []string `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.True(t, report.Success)
	assert.Len(t, report.Results, 3)
	assert.Equal(t, "succeeded", report.Results["c"].Status)
	assert.Empty(t, report.Skipped)
}

func TestRunCommand_FailureExitsOne(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "broken.yaml", failingGraph)

	var out, errOut bytes.Buffer
	err := run(context.Background(), &out, &errOut, []string{"run", path})
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, out.String(), "incomplete")
	assert.Contains(t, out.String(), "nope")
	assert.Contains(t, out.String(), "skipped")
}

func TestHistory_SQLite(t *testing.T) {
	dir := t.TempDir()
	graph := writeFile(t, dir, "linear.yaml", linearGraph)
	settings := writeFile(t, dir, "settings.yaml", `
history:
  driver: sqlite
  path: `+filepath.Join(dir, "history.db")+`
log:
  level: error
`)

	ctx := context.Background()
	var out, errOut bytes.Buffer
	require.NoError(t, run(ctx, &out, &errOut, []string{"run", "-config", settings, "-run-id", "first", graph}))
	require.NoError(t, run(ctx, &out, &errOut, []string{"run", "-config", settings, "-run-id", "second", graph}))

	out.Reset()
	require.NoError(t, run(ctx, &out, &errOut, []string{"history", "-config", settings, "linear"}))
	assert.Contains(t, out.String(), "first")
	assert.Contains(t, out.String(), "second")

	out.Reset()
	require.NoError(t, run(ctx, &out, &errOut, []string{"history", "-config", settings, "-show", "second"}))
	assert.Contains(t, out.String(), `"run_id":"second"`)

	err := run(ctx, &out, &errOut, []string{"history", "-config", settings, "-show", "missing"})
	assert.Equal(t, 1, exitCode(err))
}

func TestHistory_RequiresDriver(t *testing.T) {
	var out, errOut bytes.Buffer
	err := run(context.Background(), &out, &errOut, []string{"history", "linear"})
	assert.Equal(t, 2, exitCode(err))
}

func TestTypes(t *testing.T) {
	var out, errOut bytes.Buffer
	require.NoError(t, run(context.Background(), &out, &errOut, []string{"types"}))
	assert.Contains(t, out.String(), "math.scale")
	assert.Contains(t, out.String(), "constant")
}
