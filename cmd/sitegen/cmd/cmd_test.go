package cmd

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamxurulin/xu-AI-Zero/internal/config"
	"github.com/iamxurulin/xu-AI-Zero/internal/core"
	"github.com/iamxurulin/xu-AI-Zero/internal/events"
	"github.com/iamxurulin/xu-AI-Zero/internal/logging"
	"github.com/iamxurulin/xu-AI-Zero/internal/service/workflow"
)

const testConfig = `
history:
  backend: memory
assets:
  pexels_api_key: super-secret-key
workflow:
  max_quality_retries: 1
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".sitegen.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))
	return path
}

// execute runs the root command and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		cfgFile = ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	SetVersion("v1.2.3", "abc123def", "2026-01-15")
	t.Cleanup(func() { SetVersion("dev", "none", "unknown") })

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "sitegen v1.2.3")
	assert.Contains(t, out, "commit: abc123def")
	assert.Contains(t, out, "built:  2026-01-15")
	assert.Equal(t, "v1.2.3", GetVersion())
}

func TestRootCommand_Flags(t *testing.T) {
	for _, name := range []string{"config", "log-level", "log-format"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), name)
	}
	assert.Equal(t, "info", rootCmd.PersistentFlags().Lookup("log-level").DefValue)

	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "serve", "graph", "config", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestConfigCommand_RedactsSecrets(t *testing.T) {
	out, err := execute(t, "--config", writeConfig(t), "config")
	require.NoError(t, err)
	assert.Contains(t, out, "backend: memory")
	assert.Contains(t, out, "max_quality_retries: 1")
	assert.Contains(t, out, "[REDACTED]")
	assert.NotContains(t, out, "super-secret-key")
}

func TestGraphCommand(t *testing.T) {
	t.Run("mermaid", func(t *testing.T) {
		out, err := execute(t, "--config", writeConfig(t), "graph")
		require.NoError(t, err)
		assert.Contains(t, out, "flowchart TD")
		assert.Contains(t, out, "|skip_build|")
		assert.Contains(t, out, "|fail|")
	})

	t.Run("yaml", func(t *testing.T) {
		out, err := execute(t, "--config", writeConfig(t), "graph", "--format", "yaml")
		graphFormat = "mermaid"
		require.NoError(t, err)
		assert.Contains(t, out, "nodes:")
		assert.Contains(t, out, workflow.StageProjectBuild)
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := execute(t, "graph", "--format", "dot")
		graphFormat = "mermaid"
		assert.Error(t, err)
	})
}

func TestRunCommand_RequiresPrompt(t *testing.T) {
	_, err := execute(t, "--config", writeConfig(t), "run")
	assert.ErrorContains(t, err, "prompt")
}

func TestRunCommand_RejectsUnknownType(t *testing.T) {
	_, err := execute(t, "--config", writeConfig(t), "run", "--type", "flash", "a page")
	runType = ""
	assert.Error(t, err)
}

func TestServerConfig_FlagsOverrideConfig(t *testing.T) {
	t.Cleanup(func() { serveHost, servePort, serveNoCORS = "", 0, false })

	cfg := serverConfig("0.0.0.0", 9000, []string{"https://example.com"})
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, []string{"https://example.com"}, cfg.CORSOrigins)
	assert.True(t, cfg.EnableCORS)

	serveHost, servePort, serveNoCORS = "127.0.0.1", 9100, true
	cfg = serverConfig("0.0.0.0", 9000, nil)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 9100, cfg.Port)
	assert.False(t, cfg.EnableCORS)
}

func TestNewApp_WiresMemoryBackend(t *testing.T) {
	cfg, err := config.NewLoader().WithConfigFile(writeConfig(t)).Load()
	require.NoError(t, err)
	cfg.Workflow.OutputDir = t.TempDir()

	a, err := newApp(context.Background(), cfg, &bytes.Buffer{})
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.workflow)
	assert.Contains(t, a.workflow.Mermaid(), "flowchart TD")

	require.NoError(t, a.history.AppendHistory(context.Background(), "s1", core.RoleUser, "hello"))
	msgs, err := a.history.LoadHistory(context.Background(), "s1", 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestProgressOutput_ReturnsWorkflowError(t *testing.T) {
	ch := make(chan workflow.Progress, 3)
	ch <- workflow.Progress{Event: events.TypeWorkflowStart, RunID: "r1"}
	ch <- workflow.Progress{Event: events.TypeStepCompleted, RunID: "r1", StepNumber: 1, CurrentStep: "plan"}
	ch <- workflow.Progress{Event: events.TypeWorkflowError, RunID: "r1", Error: "generation timed out",
		Context: &core.WorkflowContext{GeneratedCodeDir: "/out/plain_page_s1"}}
	close(ch)

	var errOut bytes.Buffer
	runCmd.SetErr(&errOut)
	runOutput = "plain"
	t.Cleanup(func() {
		runCmd.SetErr(nil)
		runOutput = ""
	})

	err := progressOutput(runCmd).Render(ch)
	assert.ErrorContains(t, err, "generation timed out")
	assert.Contains(t, errOut.String(), "[ 1] plan")
	assert.Contains(t, errOut.String(), "partial output kept in /out/plain_page_s1")
}

func TestReloadLogLevel(t *testing.T) {
	a := &app{logger: logging.New(logging.Config{Level: "info", Format: "text", Output: &bytes.Buffer{}})}
	v := viper.New()
	v.Set("log.level", "debug")

	reloadLogLevel(v, a, fsnotify.Event{Name: ".sitegen.yaml", Op: fsnotify.Chmod})
	assert.Equal(t, slog.LevelInfo, a.logger.Level())

	reloadLogLevel(v, a, fsnotify.Event{Name: ".sitegen.yaml", Op: fsnotify.Write})
	assert.Equal(t, slog.LevelDebug, a.logger.Level())
}
