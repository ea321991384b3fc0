package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: notes
steps:
  - sql: CREATE TABLE notes (body TEXT, pinned BOOL)
  - sql: INSERT INTO notes (body, pinned) VALUES ('first', true)
    expect:
      row_indexes: [0]
  - sql: SELECT body FROM notes WHERE pinned = true
    expect:
      rows:
        - [first]
assertions:
  - type: chain_count
    op: insertOne
    count: 1
`

const failingScenario = `name: wrong_rows
steps:
  - sql: CREATE TABLE notes (body TEXT)
  - sql: SELECT body FROM notes
    expect:
      rows:
        - [missing]
`

func writeScenarios(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := run(t, writeConfig(t), "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentDir(t *testing.T) {
	_, err := run(t, writeConfig(t), "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyDir(t *testing.T) {
	cfg := writeConfig(t)
	dir := t.TempDir()

	out, err := run(t, cfg, "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")

	resp, err := runJSON(t, cfg, "test", dir)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp["status"])
}

func TestTestCommandPassAndFail(t *testing.T) {
	cfg := writeConfig(t)
	dir := writeScenarios(t, map[string]string{
		"notes.yaml":      passingScenario,
		"wrong_rows.yaml": failingScenario,
		"README.md":       "not a scenario",
	})

	out, err := run(t, cfg, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✓ notes")
	assert.Contains(t, out, "✗ wrong_rows")
	assert.Contains(t, out, "1 passed, 1 failed, 2 total")

	out, err = run(t, cfg, "test", dir, "--filter", "note*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommandJSON(t *testing.T) {
	cfg := writeConfig(t)
	dir := writeScenarios(t, map[string]string{"wrong_rows.yaml": failingScenario})

	out, err := run(t, cfg, "--format", "json", "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "TEST_FAILED", resp.Error.Code)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.False(t, resp.Data.Scenarios[0].Pass)
	assert.NotEmpty(t, resp.Data.Scenarios[0].Errors)
}

func TestTestCommandGolden(t *testing.T) {
	cfg := writeConfig(t)
	dir := writeScenarios(t, map[string]string{"notes.yaml": passingScenario})
	golden := filepath.Join(dir, "golden", "notes.golden")

	_, err := run(t, cfg, "test", dir, "--update")
	require.NoError(t, err)
	require.FileExists(t, golden)

	// An unchanged scenario reproduces the recorded trace.
	_, err = run(t, cfg, "test", dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(golden, []byte(`{"name":"notes"}`), 0o644))
	out, err := run(t, cfg, "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "does not match golden file")
}

func TestTestCommandBadScenario(t *testing.T) {
	cfg := writeConfig(t)
	dir := writeScenarios(t, map[string]string{"broken.yaml": "name: broken\nsteps: not-a-list\n"})

	out, err := run(t, cfg, "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "failed to load scenario")
}

func TestFindScenarioFiles(t *testing.T) {
	dir := writeScenarios(t, map[string]string{
		"a.yaml": passingScenario,
		"b.yml":  passingScenario,
		"c.json": "{}",
	})
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "x.yaml"), []byte("x"), 0o644))

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	files, err = findScenarioFiles(dir, "a")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "a.yaml", filepath.Base(files[0]))

	_, err = findScenarioFiles(dir, "[")
	require.Error(t, err)
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("s", "golden", "notes.golden"), goldenFilePath(filepath.Join("s", "notes.yaml")))
}
