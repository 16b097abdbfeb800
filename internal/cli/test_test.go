package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/roach88/blocksync/internal/harness"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: startup
description: "A fresh install blocks the default category set"
events: []
expect:
  categories: [advertising, adult_advertising, analytics]
  resyncs: 1
`

const failingScenario = `name: wrong_mode
description: "Expects a mode the engine never selects"
events:
  - event: pause
expect:
  fallback: true
  mode: custom
`

// writeScenario writes a scenario file named name into dir.
func writeScenario(t *testing.T, dir, name, content string) (path string) {
	t.Helper()

	path = filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := execute(t, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := execute(t, "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenarios directory not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	out, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "test", t.TempDir())
	require.NoError(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)
}

func TestTestCommandGolden(t *testing.T) {
	dir := t.TempDir()
	scenarioFile := writeScenario(t, dir, "startup.yaml", passingScenario)

	// Without a golden file only the expectations are checked.
	out, err := execute(t, "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "PASS startup")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")

	out, err = execute(t, "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "PASS startup (golden updated)")

	golden, err := os.ReadFile(goldenFilePath(scenarioFile))
	require.NoError(t, err)

	s, err := harness.LoadScenario(scenarioFile)
	require.NoError(t, err)
	res, err := harness.Run(t.Context(), s)
	require.NoError(t, err)
	assert.Equal(t, string(harness.Snapshot(s.Name, res)), string(golden))

	_, err = execute(t, "test", dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(goldenFilePath(scenarioFile), []byte("scenario: stale\n"), 0o644))

	out, err = execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "FAIL startup")
	assert.Contains(t, out, "does not match golden file")
}

func TestTestCommandHarnessScenarios(t *testing.T) {
	dir := filepath.Join("..", "harness", "testdata", "scenarios")

	out, err := execute(t, "--format", "json", "test", dir)
	require.NoError(t, err)

	var resp struct {
		Data TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotZero(t, resp.Data.Total)
	assert.Equal(t, resp.Data.Total, resp.Data.Passed)

	for _, s := range resp.Data.Scenarios {
		assert.Equal(t, goldenMatch, s.Golden, s.Name)
	}
}

func TestTestCommandFailure(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "startup.yaml", passingScenario)
	writeScenario(t, dir, "wrong_mode.yaml", failingScenario)

	out, err := execute(t, "--format", "json", "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string `json:"status"`
		Error  struct {
			Code    string     `json:"code"`
			Message string     `json:"message"`
			Details TestResult `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeTestFailed, resp.Error.Code)
	assert.Equal(t, "1 scenario(s) failed", resp.Error.Message)
	assert.Equal(t, 1, resp.Error.Details.Passed)
	assert.Equal(t, 1, resp.Error.Details.Failed)

	failed := resp.Error.Details.Scenarios[1]
	assert.Equal(t, "wrong_mode", failed.Name)
	assert.Equal(t, []string{`mode: got "default", want "custom"`}, failed.Errors)
}

func TestTestCommandFilter(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "startup.yaml", passingScenario)
	writeScenario(t, dir, "wrong_mode.yaml", failingScenario)

	out, err := execute(t, "test", dir, "--filter", "start*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommandLoadError(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "broken.yml", "name: broken\nunknown: true\n")

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "FAIL broken.yml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	writeScenario(t, dir, "a.yaml", passingScenario)
	writeScenario(t, sub, "b.yml", passingScenario)
	writeScenario(t, dir, "notes.txt", "not a scenario")

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yaml"), filepath.Join(sub, "b.yml")}, files)

	files, err = findScenarioFiles(dir, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(sub, "b.yml")}, files)

	_, err = findScenarioFiles(dir, "[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}

func TestTestHelpText(t *testing.T) {
	out, err := execute(t, "test", "--help")
	require.NoError(t, err)

	assert.Contains(t, out, "conformance")
	assert.Contains(t, out, "--update")
	assert.Contains(t, out, "--filter")
	assert.Contains(t, out, "scenarios-dir")
}
