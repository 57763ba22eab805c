// Package cli drives external command-line tools: the Claude CLI for
// planning, classification, quality review and code generation, and npm for
// building generated projects.
package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/iamxurulin/xu-AI-Zero/internal/core"
	"github.com/iamxurulin/xu-AI-Zero/internal/logging"
)

// DefaultTimeout applies when neither the call nor the config sets one.
const DefaultTimeout = 10 * time.Minute

// AgentConfig holds adapter configuration.
type AgentConfig struct {
	Name    string
	Path    string
	Model   string
	Timeout time.Duration
	WorkDir string
}

// BaseAdapter provides common CLI execution functionality.
type BaseAdapter struct {
	config AgentConfig
	logger *logging.Logger

	// ExtraEnv holds additional environment variables to set for command execution.
	ExtraEnv map[string]string
}

// NewBaseAdapter creates a new base adapter.
func NewBaseAdapter(cfg AgentConfig, logger *logging.Logger) *BaseAdapter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &BaseAdapter{config: cfg, logger: logger}
}

// Config returns the adapter configuration.
func (b *BaseAdapter) Config() AgentConfig {
	return b.config
}

// CommandResult holds the result of a CLI execution.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

func (b *BaseAdapter) timeout(opt time.Duration) time.Duration {
	if opt > 0 {
		return opt
	}
	if b.config.Timeout > 0 {
		return b.config.Timeout
	}
	return DefaultTimeout
}

// command builds an exec.Cmd, splitting multi-word paths such as "npx claude".
func (b *BaseAdapter) command(ctx context.Context, args []string, stdin, workDir string) (*exec.Cmd, error) {
	cmdPath := b.config.Path
	if cmdPath == "" {
		return nil, core.ErrValidation("NO_PATH", "adapter path not configured")
	}
	cmdParts := strings.Fields(cmdPath)
	if len(cmdParts) > 1 {
		cmdPath = cmdParts[0]
		args = append(cmdParts[1:], args...)
	}

	// #nosec G204 -- command path and args come from validated config
	cmd := exec.CommandContext(ctx, cmdPath, args...)
	if workDir != "" {
		cmd.Dir = workDir
	} else if b.config.WorkDir != "" {
		cmd.Dir = b.config.WorkDir
	}
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	cmd.Env = append(os.Environ(), "SITEGEN_MANAGED=true")
	for k, v := range b.ExtraEnv {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	// Cancellation signals the whole process group; stragglers are killed
	// after the wait delay.
	configureProcAttr(cmd)
	cmd.Cancel = func() error { return terminateProcess(cmd) }
	cmd.WaitDelay = 5 * time.Second
	return cmd, nil
}

// ExecuteCommand runs a CLI command to completion, capturing its output.
// optTimeout overrides the configured timeout; pass 0 to use the default.
func (b *BaseAdapter) ExecuteCommand(ctx context.Context, args []string, stdin, workDir string, optTimeout time.Duration) (*CommandResult, error) {
	timeout := b.timeout(optTimeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd, err := b.command(ctx, args, stdin, workDir)
	if err != nil {
		return nil, err
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	b.logger.Info("cli: executing command",
		"adapter", b.config.Name,
		"path", cmd.Path,
		"args", truncateArgs(cmd.Args[1:]),
		"work_dir", cmd.Dir,
		"stdin_length", len(stdin),
		"timeout", timeout,
	)

	start := time.Now()
	err = cmd.Run()
	result := &CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	return result, b.finish(ctx, timeout, result, err)
}

// StreamLines runs a CLI command and calls onLine for every stdout line as
// it arrives. Stderr is captured for error reporting.
func (b *BaseAdapter) StreamLines(ctx context.Context, args []string, stdin, workDir string, optTimeout time.Duration, onLine func(line string)) (*CommandResult, error) {
	timeout := b.timeout(optTimeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd, err := b.command(ctx, args, stdin, workDir)
	if err != nil {
		return nil, err
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	b.logger.Debug("cli: executing command with streaming",
		"adapter", b.config.Name,
		"path", cmd.Path,
		"args", truncateArgs(cmd.Args[1:]),
	)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		// Close pipe if Start() fails to prevent FD leak
		_ = stdoutPipe.Close()
		return nil, fmt.Errorf("starting command: %w", err)
	}
	b.logger.Info("cli: streaming process started", "adapter", b.config.Name, "pid", cmd.Process.Pid)

	// All output must be read before Wait closes the pipe
	var stdout bytes.Buffer
	scanLines(stdoutPipe, &stdout, onLine)
	err = cmd.Wait()

	result := &CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	return result, b.finish(ctx, timeout, result, err)
}

func scanLines(r io.Reader, buf *bytes.Buffer, onLine func(string)) {
	scanner := bufio.NewScanner(r)
	// Increase buffer size for large JSON lines
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteString(line)
		buf.WriteString("\n")
		if onLine != nil {
			onLine(line)
		}
	}
	// Scanner errors are ignored; the pipe may close abruptly on timeout
}

// finish maps the outcome of a finished command onto domain errors.
func (b *BaseAdapter) finish(ctx context.Context, timeout time.Duration, result *CommandResult, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		b.logger.Error("cli: command timeout",
			"adapter", b.config.Name,
			"duration", result.Duration,
			"timeout", timeout,
			"stderr_preview", truncate(result.Stderr, 1000),
		)
		return core.ErrTimeout(fmt.Sprintf("command timed out after %v", timeout))
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		b.logger.Info("cli: command cancelled", "adapter", b.config.Name, "duration", result.Duration)
		return core.ErrExecution(core.CodeCancelled, "command cancelled").WithCause(ctx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			b.logger.Error("cli: command failed",
				"adapter", b.config.Name,
				"exit_code", result.ExitCode,
				"duration", result.Duration,
				"stderr", truncate(result.Stderr, 2000),
			)
			return b.classifyError(result)
		}
		return fmt.Errorf("executing command: %w", err)
	}

	b.logger.Info("cli: command completed",
		"adapter", b.config.Name,
		"duration", result.Duration,
		"stdout_length", len(result.Stdout),
	)
	return nil
}

// classifyError builds a domain error from a failed command's output.
func (b *BaseAdapter) classifyError(result *CommandResult) error {
	errorMsg := strings.TrimSpace(result.Stderr)
	if errorMsg == "" {
		// Some CLIs report errors as JSON on stdout
		errorMsg = extractErrorFromOutput(result.Stdout)
	}
	if errorMsg == "" {
		errorMsg = "(no error message captured)"
	}

	lower := strings.ToLower(errorMsg)
	switch {
	case containsAny(lower, []string{"rate limit", "too many requests", "429", "quota"}):
		return core.ErrExecution("RATE_LIMIT", errorMsg)
	case containsAny(lower, []string{"unauthorized", "authentication", "api key"}):
		e := core.ErrExecution("AUTH", errorMsg)
		e.Retryable = false
		return e
	case containsAny(lower, []string{"connection", "network", "unreachable"}):
		return core.ErrExecution("NETWORK", errorMsg)
	}
	return core.ErrExecution("CLI_ERROR",
		fmt.Sprintf("command failed with exit code %d: %s", result.ExitCode, errorMsg))
}

// extractErrorFromOutput scans stdout from the end for a JSON error field.
func extractErrorFromOutput(stdout string) string {
	lines := strings.Split(stdout, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			continue
		}
		if msg, ok := obj["error"].(string); ok && msg != "" {
			return msg
		}
		if errObj, ok := obj["error"].(map[string]interface{}); ok {
			if msg, ok := errObj["message"].(string); ok && msg != "" {
				return msg
			}
		}
		// {"type":"result","is_error":true,"result":"..."}
		if isErr, _ := obj["is_error"].(bool); isErr {
			if msg, ok := obj["result"].(string); ok && msg != "" {
				return msg
			}
		}
	}
	return ""
}

func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// ParseJSON decodes output into v, falling back to the first balanced JSON
// value embedded in surrounding text.
func ParseJSON(output string, v interface{}) error {
	if err := json.Unmarshal([]byte(output), v); err == nil {
		return nil
	}
	if extracted := ExtractJSON(output); extracted != "" {
		if err := json.Unmarshal([]byte(extracted), v); err == nil {
			return nil
		}
	}
	return core.ErrExecution(core.CodeParseFailed, "no valid JSON found in output")
}

// ExtractJSON finds the first balanced JSON object or array in output.
func ExtractJSON(output string) string {
	start := strings.IndexAny(output, "{[")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	openChar := output[start]
	closeChar := byte('}')
	if openChar == '[' {
		closeChar = ']'
	}

	for i := start; i < len(output); i++ {
		c := output[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		if c == openChar {
			depth++
		} else if c == closeChar {
			depth--
			if depth == 0 {
				return output[start : i+1]
			}
		}
	}
	return ""
}

// CheckAvailability verifies the CLI is installed and accessible.
func (b *BaseAdapter) CheckAvailability(_ context.Context) error {
	cmdParts := strings.Fields(b.config.Path)
	if len(cmdParts) == 0 {
		return core.ErrValidation("NO_PATH", "adapter path not configured")
	}
	if _, err := exec.LookPath(cmdParts[0]); err != nil {
		return core.ErrNotFound("CLI", cmdParts[0])
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "... [truncated]"
}

// truncateArgs shortens long arguments such as inline prompts for logging.
func truncateArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = truncate(a, 200)
	}
	return out
}
