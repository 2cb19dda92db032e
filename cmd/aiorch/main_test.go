package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/aiorch/agent/builtin"
	"github.com/BaSui01/aiorch/config"
)

func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCmd(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "aiorch "+Version)
	assert.Contains(t, out, "Git Commit:")
}

func TestAgentsCommand(t *testing.T) {
	out, err := runCmd(t, "", "agents")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, len(builtin.Catalog())+1)
	assert.True(t, strings.HasPrefix(lines[0], "TYPE"))
	for _, def := range builtin.Catalog() {
		assert.Contains(t, out, def.Name)
	}
}

func TestProcessCommand_NoProvider(t *testing.T) {
	out, err := runCmd(t, `{"content":"hello"}`, "process", builtin.Scorer, "--input", "-")
	require.Error(t, err)

	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "error", res["status"])
	assert.Equal(t, builtin.Scorer, res["agent_type"])
	assert.Equal(t, "permanent_error", res["error"].(map[string]any)["kind"])
}

func TestProcessCommand_BadInput(t *testing.T) {
	_, err := runCmd(t, "", "process", builtin.Scorer, "--input", "[1,2]")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JSON object")
}

func TestMigrateCommandTree(t *testing.T) {
	root := newRootCmd()
	migrate, _, err := root.Find([]string{"migrate"})
	require.NoError(t, err)

	var names []string
	for _, c := range migrate.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"up", "down", "steps", "force", "version", "status"}, names)
}

func TestMigrateCommand_SQLiteRejected(t *testing.T) {
	_, err := runCmd(t, "", "migrate", "status", "--db-type", "sqlite", "--db-url", "file::memory:")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal table is created when serve starts")
}

func TestReadInput(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		stdin   string
		want    map[string]any
		wantErr bool
	}{
		{name: "inline", raw: `{"content":"x"}`, want: map[string]any{"content": "x"}},
		{name: "stdin", raw: "-", stdin: `{"a":1}`, want: map[string]any{"a": float64(1)}},
		{name: "null becomes empty", raw: "null", want: map[string]any{}},
		{name: "array rejected", raw: `[1]`, wantErr: true},
		{name: "garbage rejected", raw: `{`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readInput(tt.raw, strings.NewReader(tt.stdin))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInitLogger_Levels(t *testing.T) {
	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := initLogger(config.LogConfig{Level: tt.level, Format: "json", OutputPaths: []string{"stderr"}})
			assert.True(t, logger.Core().Enabled(tt.want))
			if tt.want > zapcore.DebugLevel {
				assert.False(t, logger.Core().Enabled(tt.want-1))
			}
		})
	}
}
