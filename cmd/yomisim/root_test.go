package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const duel = `
name: cli
seed: 11
fighters:
  - id: A
  - id: B
steps:
  - at_ms: 0
    fighter: A
    action: attack
    target: B
run_until_ms: 3000
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeDuel(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "duel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(duel), 0o600))
	return path
}

func TestRunText(t *testing.T) {
	out, err := execute(t, "run", writeDuel(t))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "scenario: cli\n"))
	assert.Contains(t, out, "[+0.000s] ATTACK_BEGUN A -> B")
	assert.Contains(t, out, "ATTACK_LANDED A -> B")
	assert.Contains(t, out, "final:\n")
}

func TestRunJSON(t *testing.T) {
	out, err := execute(t, "run", "--format", "json", writeDuel(t))
	require.NoError(t, err)

	var result struct {
		Name  string `json:"name"`
		Trace []struct {
			AtMS int64  `json:"at_ms"`
			Type string `json:"type"`
		} `json:"trace"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "cli", result.Name)
	require.NotEmpty(t, result.Trace)
	assert.Equal(t, "ATTACK_BEGUN", result.Trace[0].Type)
	assert.Equal(t, int64(3000), result.Trace[len(result.Trace)-1].AtMS)
}

func TestRunErrors(t *testing.T) {
	_, err := execute(t, "run", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = execute(t, "run")
	assert.Error(t, err)

	_, err = execute(t, "run", "--format", "xml", writeDuel(t))
	assert.ErrorContains(t, err, "invalid format")
}

func TestProcsMatchesClosedForm(t *testing.T) {
	out, err := execute(t, "procs", "--format", "json", "--ppm", "10", "--elapsed", "6", "--trials", "50000", "--seed", "3")
	require.NoError(t, err)

	var report procsReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 50000, report.Trials)
	assert.InDelta(t, 0.6321, report.Expected, 1e-4)
	assert.InDelta(t, report.Expected, report.Observed, 0.01)
}

func TestProcsText(t *testing.T) {
	out, err := execute(t, "procs", "--trials", "1000")
	require.NoError(t, err)
	assert.Contains(t, out, "expected=0.100000")
	assert.Contains(t, out, "trials=1000")
}

func TestProcsRejectsBadFlags(t *testing.T) {
	_, err := execute(t, "procs", "--ppm", "0")
	assert.Error(t, err)
	_, err = execute(t, "procs", "--elapsed", "-1")
	assert.Error(t, err)
	_, err = execute(t, "procs", "--trials", "0")
	assert.Error(t, err)
}
