//go:build !lua

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestRun(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Run("InlineCode", func(t *testing.T) {
		out, _, err := executeCommand(newRootCmd(), "run", "-c", "40 + 2")
		require.NoError(t, err)
		assert.Equal(t, "42\n", out)
	})

	t.Run("File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "script.rhai")
		require.NoError(t, os.WriteFile(path, []byte(`print("hi"); [1, 2]`), 0o600))
		out, _, err := executeCommand(newRootCmd(), "run", path)
		require.NoError(t, err)
		assert.Equal(t, "hi\n[1, 2]\n", out)
	})

	t.Run("Stdin", func(t *testing.T) {
		root := newRootCmd()
		root.SetIn(strings.NewReader("1 + 1"))
		out, _, err := executeCommand(root, "run")
		require.NoError(t, err)
		assert.Equal(t, "2\n", out)
	})

	t.Run("EmptyStdin", func(t *testing.T) {
		root := newRootCmd()
		root.SetIn(strings.NewReader(""))
		_, _, err := executeCommand(root, "run")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no script given")
	})

	t.Run("LimitExceeded", func(t *testing.T) {
		out, errOut, err := executeCommand(newRootCmd(), "run", "-c", "loop { }", "--max-operations", "10")
		require.ErrorIs(t, err, errScriptFailed)
		assert.Empty(t, out)
		assert.Contains(t, errOut, "LimitExceeded(Operations)")
	})

	t.Run("JSON", func(t *testing.T) {
		out, _, err := executeCommand(newRootCmd(), "run", "-c", `#{a: 1, b: "x"}`, "-o", "json")
		require.NoError(t, err)

		var r report
		require.NoError(t, json.Unmarshal([]byte(out), &r))
		assert.True(t, r.OK)
		assert.Equal(t, map[string]any{"a": float64(1), "b": "x"}, r.Value)
		assert.Equal(t, "completed", r.State)
		assert.NotEmpty(t, r.SessionID)
	})

	t.Run("YAMLFailure", func(t *testing.T) {
		out, _, err := executeCommand(newRootCmd(), "run", "-c", "1 / 0", "-o", "yaml")
		require.ErrorIs(t, err, errScriptFailed)

		var r report
		require.NoError(t, yaml.Unmarshal([]byte(out), &r))
		assert.False(t, r.OK)
		require.NotNil(t, r.Error)
		assert.Equal(t, "RuntimeError", r.Error.Kind)
	})
}

func TestCall(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Run("InlineCode", func(t *testing.T) {
		out, _, err := executeCommand(newRootCmd(), "call", "add", "1", "2", "-c", "fn add(a, b) { a + b }")
		require.NoError(t, err)
		assert.Equal(t, "3\n", out)
	})

	t.Run("FileWithBareStringArgument", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "greet.rhai")
		require.NoError(t, os.WriteFile(path, []byte(`fn greet(name) { "Hello, " + name + "!" }`), 0o600))
		out, _, err := executeCommand(newRootCmd(), "call", "greet", "World", "-f", path)
		require.NoError(t, err)
		assert.Equal(t, "Hello, World!\n", out)
	})

	t.Run("FunctionNotFound", func(t *testing.T) {
		_, errOut, err := executeCommand(newRootCmd(), "call", "missing", "-c", "fn f() { 1 }")
		require.ErrorIs(t, err, errScriptFailed)
		assert.Contains(t, errOut, "FunctionNotFound")
	})

	t.Run("MissingEntry", func(t *testing.T) {
		_, _, err := executeCommand(newRootCmd(), "call")
		require.Error(t, err)
	})
}
