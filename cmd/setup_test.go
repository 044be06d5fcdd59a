package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readServerEntry(t *testing.T, path string) map[string]any {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)

	var loaded map[string]any
	require.NoError(t, json.Unmarshal(content, &loaded))
	servers := loaded["mcpServers"].(map[string]any)
	return servers[serverName].(map[string]any)
}

func TestSetupCmd_Run(t *testing.T) {
	t.Run("SetupQwenLocal", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Chdir(tmpDir)

		cmd := &SetupCmd{Qwen: true, Local: true, Format: "json"}
		require.NoError(t, cmd.Run(&Globals{Dir: tmpDir}))

		entry := readServerEntry(t, filepath.Join(tmpDir, ".qwen", "mcp.json"))
		assert.Equal(t, serverName, entry["command"])
		assert.Equal(t, []any{"--dir", tmpDir, "serve"}, entry["args"])
	})

	t.Run("SetupQwenGlobal", func(t *testing.T) {
		tmpHome := t.TempDir()
		t.Setenv("HOME", tmpHome)

		cmd := &SetupCmd{Qwen: true, Global: true, Format: "json"}
		require.NoError(t, cmd.Run(nil))

		_, err := os.Stat(filepath.Join(tmpHome, ".qwen", "global", "mcp.json"))
		assert.NoError(t, err)
	})

	t.Run("SetupClaudeAndCursor", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Chdir(tmpDir)

		cmd := &SetupCmd{Claude: true, Cursor: true, Format: "json"}
		require.NoError(t, cmd.Run(nil))

		for _, dir := range []string{".claude", ".cursor"} {
			_, err := os.Stat(filepath.Join(tmpDir, dir, "mcp.json"))
			assert.NoError(t, err, dir)
		}
	})

	t.Run("CustomFilePathWithWatch", func(t *testing.T) {
		tmpDir := t.TempDir()
		inputs := filepath.Join(tmpDir, "inputs")

		cmd := &SetupCmd{Cursor: true, Format: "json", FilePath: tmpDir, Watch: inputs}
		require.NoError(t, cmd.Run(&Globals{Dir: tmpDir}))

		entry := readServerEntry(t, filepath.Join(tmpDir, "mcp.json"))
		assert.Equal(t, []any{"--dir", tmpDir, "serve", "--watch", inputs}, entry["args"])
	})

	t.Run("SetupDefault", func(t *testing.T) {
		cmd := &SetupCmd{Format: "text"}
		assert.NoError(t, cmd.Run(nil))
	})

	t.Run("InvalidFormat", func(t *testing.T) {
		cmd := &SetupCmd{Qwen: true, Format: "invalid"}
		assert.Error(t, cmd.Run(nil))
	})
}

func TestGenerateServerConfig(t *testing.T) {
	t.Parallel()

	config := generateServerConfig("/data", "")
	servers := config["mcpServers"].(map[string]any)
	entry := servers[serverName].(map[string]any)
	assert.Equal(t, serverName, entry["command"])
	assert.Equal(t, []string{"--dir", "/data", "serve"}, entry["args"])
}

func TestConfigPaths(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	assert.Equal(t, filepath.Join(tmpDir, ".qwen", "mcp.json"), getLocalConfigPath(tmpDir, "qwen"))
	assert.Equal(t, ".qwen", getClientConfigDir("qwen"))
	assert.Equal(t, ".claude", getClientConfigDir("claude"))
	assert.Equal(t, ".cursor", getClientConfigDir("cursor"))
}

func TestWriteConfig(t *testing.T) {
	t.Parallel()

	t.Run("WriteJSONConfig", func(t *testing.T) {
		t.Parallel()
		configPath := filepath.Join(t.TempDir(), "nested", "dir", "config.json")

		require.NoError(t, writeConfig(configPath, generateServerConfig("/data", ""), "json"))
		entry := readServerEntry(t, configPath)
		assert.Equal(t, serverName, entry["command"])
	})

	t.Run("WriteTextConfig", func(t *testing.T) {
		t.Parallel()
		configPath := filepath.Join(t.TempDir(), "config.txt")

		require.NoError(t, writeConfig(configPath, map[string]any{"b": 2, "a": "x"}, "text"))
		content, err := os.ReadFile(configPath)
		require.NoError(t, err)
		assert.Contains(t, string(content), "a: \"x\"\nb: 2\n")
	})
}
