package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamxurulin/xu-AI-Zero/internal/core"
)

// fakeClaude returns an agent whose CLI records its args and stdin, then
// prints output.
func fakeClaude(t *testing.T, output string) (*ClaudeAgent, string) {
	t.Helper()
	record := filepath.Join(t.TempDir(), "record")
	outFile := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.WriteFile(outFile, []byte(output), 0o600))
	path := fakeCLI(t, `echo "$*" > `+record+`.args; pwd > `+record+`.pwd; cat > `+record+`.stdin; cat `+outFile)
	return NewClaudeAgent(AgentConfig{Path: path, Model: "sonnet"}, nil), record
}

func readRecord(t *testing.T, record, suffix string) string {
	t.Helper()
	data, err := os.ReadFile(record + suffix)
	require.NoError(t, err)
	return strings.TrimSpace(string(data))
}

func collect(ch <-chan core.GenerationEvent) []core.GenerationEvent {
	var out []core.GenerationEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestClaudeAgent_StreamCodePlainPage(t *testing.T) {
	agent, record := fakeClaude(t, strings.Join([]string{
		`{"type":"system","subtype":"init"}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"` + "```html\\n" + `"}]}}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"<h1>Hi</h1>\n` + "```" + `"}]}}`,
		`{"type":"result","subtype":"success","result":"done"}`,
	}, "\n"))

	ch, err := agent.StreamCode(context.Background(), core.GenerationRequest{
		Type:    core.GenerationPlainPage,
		Prompt:  "make a page",
		History: []core.HistoryMessage{{Role: core.RoleUser, Content: "earlier"}},
	})
	require.NoError(t, err)
	events := collect(ch)

	require.Len(t, events, 2)
	assert.Equal(t, "```html\n<h1>Hi</h1>\n```", events[0].Text+events[1].Text)

	args := readRecord(t, record, ".args")
	assert.Contains(t, args, "--output-format stream-json --verbose --model sonnet")
	assert.Contains(t, args, "--disallowedTools "+disallowedTools)
	assert.NotContains(t, args, "--dangerously-skip-permissions")
	stdin := readRecord(t, record, ".stdin")
	assert.Contains(t, stdin, "<user>\nearlier\n</user>")
	assert.Contains(t, stdin, "<current_message>\nmake a page\n</current_message>")
}

func TestClaudeAgent_StreamCodeStructuredRunsInOutputDir(t *testing.T) {
	agent, record := fakeClaude(t, strings.Join([]string{
		`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"t1","name":"Write","input":{"file_path":"package.json"}}]}}`,
		`{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":"ok"}]}}`,
	}, "\n"))
	outDir := filepath.Join(t.TempDir(), "structured_project_s1")

	ch, err := agent.StreamCode(context.Background(), core.GenerationRequest{
		Type:      core.GenerationStructuredProject,
		Prompt:    "app",
		OutputDir: outDir,
	})
	require.NoError(t, err)
	events := collect(ch)

	require.Len(t, events, 2)
	assert.Equal(t, core.EventToolRequest, events[0].Kind)
	assert.Equal(t, core.EventToolExecuted, events[1].Kind)
	assert.Contains(t, readRecord(t, record, ".args"), "--dangerously-skip-permissions")

	wantDir, err := filepath.EvalSymlinks(outDir)
	require.NoError(t, err)
	gotDir, err := filepath.EvalSymlinks(readRecord(t, record, ".pwd"))
	require.NoError(t, err)
	assert.Equal(t, wantDir, gotDir)
}

func TestClaudeAgent_StreamCodeFailureEndsWithError(t *testing.T) {
	path := fakeCLI(t, `cat > /dev/null; echo '{"type":"assistant","message":{"content":[{"type":"text","text":"part"}]}}'; echo "unauthorized" >&2; exit 1`)
	agent := NewClaudeAgent(AgentConfig{Path: path}, nil)

	ch, err := agent.StreamCode(context.Background(), core.GenerationRequest{Type: core.GenerationPlainPage, Prompt: "x"})
	require.NoError(t, err)
	events := collect(ch)

	require.Len(t, events, 2)
	assert.Equal(t, core.EventPartial, events[0].Kind)
	assert.Equal(t, core.EventError, events[1].Kind)
	assert.Equal(t, "AUTH", domainCode(t, events[1].Err))
}

func TestClaudeAgent_StreamCodeValidation(t *testing.T) {
	agent := NewClaudeAgent(AgentConfig{Path: "claude"}, nil)

	_, err := agent.StreamCode(context.Background(), core.GenerationRequest{Type: "bogus"})
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))

	_, err = agent.StreamCode(context.Background(), core.GenerationRequest{Type: core.GenerationStructuredProject})
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

func TestClaudeAgent_PlanAssets(t *testing.T) {
	agent, record := fakeClaude(t, `{"type":"result","subtype":"success","result":"Plan:\n{\"contentImageTasks\":[{\"query\":\"coffee\"}],\"diagramTasks\":[{\"mermaidCode\":\"graph TD;A-->B\",\"description\":\"flow\"}]}"}`)

	plan, err := agent.PlanAssets(context.Background(), "coffee shop")
	require.NoError(t, err)
	require.Len(t, plan.ContentTasks, 1)
	assert.Equal(t, "coffee", plan.ContentTasks[0].Query)
	require.Len(t, plan.DiagramTasks, 1)
	assert.Equal(t, "graph TD;A-->B", plan.DiagramTasks[0].MermaidCode)
	assert.Empty(t, plan.LogoTasks)

	assert.Contains(t, readRecord(t, record, ".args"), "--output-format json")
	assert.Equal(t, "coffee shop", readRecord(t, record, ".stdin"))
}

func TestClaudeAgent_ClassifyGenerationType(t *testing.T) {
	agent, _ := fakeClaude(t, `{"type":"result","result":"{\"generationType\":\"multi_file\"}"}`)
	got, err := agent.ClassifyGenerationType(context.Background(), "landing page")
	require.NoError(t, err)
	assert.Equal(t, core.GenerationMultiFile, got)

	agent, _ = fakeClaude(t, `{"type":"result","result":"{\"generationType\":\"spreadsheet\"}"}`)
	_, err = agent.ClassifyGenerationType(context.Background(), "x")
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

func TestClaudeAgent_CheckQuality(t *testing.T) {
	agent, _ := fakeClaude(t, `{"type":"result","result":"{\"isValid\":false,\"errors\":[\"missing </div>\"],\"suggestions\":[\"close the div\"]}"}`)

	result, err := agent.CheckQuality(context.Background(), "// File: index.html\n<div>\n\n")
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Equal(t, []string{"missing </div>"}, result.Errors)
	assert.Equal(t, []string{"close the div"}, result.Suggestions)
}

func TestClaudeAgent_AskParseFailure(t *testing.T) {
	agent, _ := fakeClaude(t, `{"type":"result","result":"I cannot answer that"}`)
	_, err := agent.CheckQuality(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, core.CodeParseFailed, domainCode(t, err))
}
