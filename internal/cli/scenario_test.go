package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	harnessScenarios = "../harness/testdata/scenarios"
	harnessGolden    = "../harness/testdata/golden"
)

func TestScenario_MatchesGoldens(t *testing.T) {
	env := newTestEnv(t, nil)

	stdout, _, code := env.run(t, "scenario", harnessScenarios, "--golden", harnessGolden)
	require.Equal(t, ExitSuccess, code, stdout)
	assert.Contains(t, stdout, "✓ new_requisitions_alert\n")
	assert.Contains(t, stdout, "Scenario Summary: 4 passed, 0 failed, 4 total")
	assert.Contains(t, stdout, "✓ All scenarios passed")
}

func TestScenario_UpdateThenCompare(t *testing.T) {
	env := newTestEnv(t, nil)
	golden := t.TempDir()

	stdout, _, code := env.run(t, "scenario", harnessScenarios, "--golden", golden, "--update", "--filter", "quiet_*")
	require.Equal(t, ExitSuccess, code, stdout)
	assert.Contains(t, stdout, "✓ quiet_polls (golden updated)")

	written, err := os.ReadFile(filepath.Join(golden, "quiet_polls.golden"))
	require.NoError(t, err)
	want, err := os.ReadFile(filepath.Join(harnessGolden, "quiet_polls.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(written))

	require.NoError(t, os.WriteFile(filepath.Join(golden, "quiet_polls.golden"), []byte("{}\n"), 0o644))
	stdout, _, code = env.run(t, "scenario", harnessScenarios, "--golden", golden, "--filter", "quiet_*", "--format", "json")
	assert.Equal(t, ExitFailure, code)

	var resp struct {
		Status string            `json:"status"`
		Data   ScenarioRunResult `json:"data"`
		Error  *CLIError         `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeScenario, resp.Error.Code)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Contains(t, resp.Data.Scenarios[0].Errors[0], "does not match golden")
}

func TestScenario_AssertionsWithoutGolden(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte(`
name: broken
user: { username: gestora, name: Gestora, role: manager }
remote: 2
steps:
  - do: start
assertions:
  - type: final_state
    expect:
      count: 7
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	env := newTestEnv(t, nil)
	stdout, _, code := env.run(t, "scenario", dir)
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stdout, "✗ broken")
	assert.Contains(t, stdout, "Scenario Summary: 0 passed, 1 failed, 1 total")
}

func TestScenario_BadInput(t *testing.T) {
	env := newTestEnv(t, nil)

	_, stderr, code := env.run(t, "scenario", filepath.Join(t.TempDir(), "nope"))
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "scenarios directory not found")

	stdout, _, code := env.run(t, "scenario", t.TempDir())
	assert.Equal(t, ExitSuccess, code)
	assert.Equal(t, "No scenarios found.\n", stdout)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("name: bad\nbogus: 1\n"), 0o644))
	stdout, _, code = env.run(t, "scenario", dir)
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stdout, "failed to load scenario")
}
