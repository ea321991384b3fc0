package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOwner = "0x00000000000000000000000000000000000000a1"

// writeConfig writes a config that keeps all state under a temp dir.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := "mirror_dir: " + filepath.Join(dir, "mirrors") + "\n" +
		"registry:\n  driver: sqlite\n  path: " + filepath.Join(dir, "state", "registry.db") + "\n" +
		"chain:\n  state_file: " + filepath.Join(dir, "state", "chain.json") + "\n  timeout: 5s\n" +
		"log:\n  level: error\n"
	path := filepath.Join(dir, "seiql.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

// run executes the root command with args and returns stdout and the error.
func run(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// runJSON executes args with --format json and decodes the envelope.
func runJSON(t *testing.T, configPath string, args ...string) (map[string]any, error) {
	t.Helper()
	out, err := run(t, configPath, append([]string{"--format", "json"}, args...)...)
	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp, err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "seiql", cmd.Use)
	assert.Contains(t, cmd.Long, "ADDRESS")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"exec"},
		{"augment"},
		{"encode"},
		{"decode"},
		{"db", "create"},
		{"db", "register"},
		{"db", "resolve"},
		{"test"},
	}

	for _, path := range commands {
		t.Run(path[len(path)-1], func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestCodecCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"encode", "decode"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			typeFlag := sub.Flags().Lookup("type")
			require.NotNil(t, typeFlag)
			assert.Equal(t, "t", typeFlag.Shorthand)
		})
	}
}

func TestInvalidFormat(t *testing.T) {
	_, err := run(t, writeConfig(t), "--format", "xml", "encode", "-t", "BOOL", "true")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

func TestUnreadableConfig(t *testing.T) {
	_, err := run(t, filepath.Join(t.TempDir(), "missing.yaml"), "encode", "-t", "BOOL", "true")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestInvalidOwner(t *testing.T) {
	_, err := run(t, writeConfig(t), "exec", "--owner", "0x12", "--db", "ledger", "SELECT 1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestMissingRequiredFlags(t *testing.T) {
	_, err := run(t, writeConfig(t), "exec", "SELECT 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}
