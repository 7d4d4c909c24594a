package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		viper.Reset()
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	output, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, output, "liveserve")
}

func TestVersionCommandJSON(t *testing.T) {
	output, err := runCommand(t, "version", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, output, `"version"`)
	assert.Contains(t, output, `"platform"`)
}

func TestVersionCommandRejectsUnknownFormat(t *testing.T) {
	_, err := runCommand(t, "version", "--format", "toml")
	assert.Error(t, err)
}

func TestConfigInitWritesStarterFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, ".liveserve.yml")

	_, err := runCommand(t, "config", "init", "--output", target)
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)

	var starter map[string]any
	require.NoError(t, yaml.Unmarshal(data, &starter))
	assert.Contains(t, starter, "server")
	assert.Contains(t, starter, "watch")
}

func TestConfigInitRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, ".liveserve.yml")
	require.NoError(t, os.WriteFile(target, []byte("server:\n  port: 1234\n"), 0o644))

	_, err := runCommand(t, "config", "init", "--output", target)
	assert.Error(t, err)
}

func TestConfigSnippetPrintsClientScript(t *testing.T) {
	output, err := runCommand(t, "config", "snippet")
	require.NoError(t, err)

	assert.Contains(t, output, "<script>")
	assert.Contains(t, output, "location.reload()")
	assert.Contains(t, output, "ws://localhost:7331/")
}
