package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamxurulin/xu-AI-Zero/internal/core"
)

// fakeCLI writes an executable shell script and returns its path.
func fakeCLI(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "fake-cli")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755)) // #nosec G306 -- test executable
	return path
}

func domainCode(t *testing.T, err error) string {
	t.Helper()
	var domErr *core.DomainError
	require.True(t, errors.As(err, &domErr), "expected DomainError, got %T: %v", err, err)
	return domErr.Code
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{name: "bare object", output: `{"a":1}`, want: `{"a":1}`},
		{name: "surrounded", output: "Here you go:\n{\"a\":{\"b\":2}}\nDone", want: `{"a":{"b":2}}`},
		{name: "braces in strings", output: `x {"a":"}{"} y`, want: `{"a":"}{"}`},
		{name: "escaped quote", output: `{"a":"say \"hi\" }"}`, want: `{"a":"say \"hi\" }"}`},
		{name: "array", output: `list: [1,[2],3] end`, want: `[1,[2],3]`},
		{name: "none", output: "no json here", want: ""},
		{name: "unbalanced", output: `{"a":1`, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.output))
		})
	}
}

func TestParseJSON(t *testing.T) {
	var v struct {
		IsValid bool `json:"isValid"`
	}
	require.NoError(t, ParseJSON("```json\n{\"isValid\":true}\n```", &v))
	assert.True(t, v.IsValid)

	err := ParseJSON("nothing", &v)
	require.Error(t, err)
	assert.Equal(t, core.CodeParseFailed, domainCode(t, err))
}

func TestClassifyError(t *testing.T) {
	b := NewBaseAdapter(AgentConfig{Name: "test"}, nil)
	tests := []struct {
		name      string
		result    CommandResult
		wantCode  string
		retryable bool
	}{
		{name: "rate limit", result: CommandResult{Stderr: "Error: 429 Too Many Requests"}, wantCode: "RATE_LIMIT", retryable: true},
		{name: "auth", result: CommandResult{Stderr: "invalid API key"}, wantCode: "AUTH"},
		{name: "network", result: CommandResult{Stderr: "connection refused"}, wantCode: "NETWORK", retryable: true},
		{name: "json on stdout", result: CommandResult{Stdout: `{"type":"result","is_error":true,"result":"boom"}`, ExitCode: 1}, wantCode: "CLI_ERROR", retryable: true},
		{name: "generic", result: CommandResult{ExitCode: 2}, wantCode: "CLI_ERROR", retryable: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.result
			err := b.classifyError(&result)
			assert.Equal(t, tt.wantCode, domainCode(t, err))
			assert.Equal(t, tt.retryable, core.IsRetryable(err))
		})
	}
}

func TestExtractErrorFromOutput(t *testing.T) {
	assert.Equal(t, "nested", extractErrorFromOutput("log\n{\"error\":{\"message\":\"nested\"}}\n"))
	assert.Equal(t, "flat", extractErrorFromOutput(`{"error":"flat"}`))
	assert.Empty(t, extractErrorFromOutput("plain text"))
}

func TestExecuteCommand(t *testing.T) {
	path := fakeCLI(t, `cat; echo " args:$*"`)
	b := NewBaseAdapter(AgentConfig{Name: "test", Path: path}, nil)

	result, err := b.ExecuteCommand(context.Background(), []string{"-x", "y"}, "input", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "input args:-x y\n", result.Stdout)
	assert.Zero(t, result.ExitCode)
}

func TestExecuteCommand_ExitCode(t *testing.T) {
	path := fakeCLI(t, `echo "rate limit reached" >&2; exit 3`)
	b := NewBaseAdapter(AgentConfig{Name: "test", Path: path}, nil)

	result, err := b.ExecuteCommand(context.Background(), nil, "", "", 0)
	require.Error(t, err)
	assert.Equal(t, 3, result.ExitCode)
	assert.Equal(t, "RATE_LIMIT", domainCode(t, err))
}

func TestExecuteCommand_Timeout(t *testing.T) {
	path := fakeCLI(t, `sleep 5`)
	b := NewBaseAdapter(AgentConfig{Name: "test", Path: path}, nil)

	start := time.Now()
	_, err := b.ExecuteCommand(context.Background(), nil, "", "", 100*time.Millisecond)
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatTimeout))
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestExecuteCommand_Cancelled(t *testing.T) {
	path := fakeCLI(t, `sleep 5`)
	b := NewBaseAdapter(AgentConfig{Name: "test", Path: path}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	_, err := b.ExecuteCommand(ctx, nil, "", "", 0)
	require.Error(t, err)
	assert.Equal(t, core.CodeCancelled, domainCode(t, err))
}

func TestExecuteCommand_NoPath(t *testing.T) {
	b := NewBaseAdapter(AgentConfig{Name: "test"}, nil)
	_, err := b.ExecuteCommand(context.Background(), nil, "", "", 0)
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

func TestStreamLines(t *testing.T) {
	path := fakeCLI(t, `echo one; echo two; echo three`)
	b := NewBaseAdapter(AgentConfig{Name: "test", Path: path}, nil)

	var lines []string
	result, err := b.StreamLines(context.Background(), nil, "", "", 0, func(line string) {
		lines = append(lines, line)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, lines)
	assert.Equal(t, "one\ntwo\nthree\n", result.Stdout)
}

func TestCommand_SplitsMultiWordPath(t *testing.T) {
	path := fakeCLI(t, `echo "$*"`)
	b := NewBaseAdapter(AgentConfig{Name: "test", Path: "sh " + path}, nil)

	result, err := b.ExecuteCommand(context.Background(), []string{"a"}, "", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "a\n", result.Stdout)
}

func TestCheckAvailability(t *testing.T) {
	b := NewBaseAdapter(AgentConfig{Path: "definitely-not-a-real-binary-xyz"}, nil)
	assert.True(t, core.IsCategory(b.CheckAvailability(context.Background()), core.ErrCatNotFound))

	b = NewBaseAdapter(AgentConfig{}, nil)
	assert.True(t, core.IsCategory(b.CheckAvailability(context.Background()), core.ErrCatValidation))
}
