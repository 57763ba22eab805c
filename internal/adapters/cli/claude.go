package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/iamxurulin/xu-AI-Zero/internal/core"
	"github.com/iamxurulin/xu-AI-Zero/internal/logging"
)

// disallowedTools keeps text-only generation from touching the filesystem.
const disallowedTools = "Bash,Edit,Write,MultiEdit,NotebookEdit,WebFetch,WebSearch"

// ClaudeAgent drives the Claude CLI. It plans assets, classifies prompts,
// reviews generated code and streams code generation.
type ClaudeAgent struct {
	*BaseAdapter
}

var (
	_ core.CodeModel      = (*ClaudeAgent)(nil)
	_ core.AssetPlanner   = (*ClaudeAgent)(nil)
	_ core.Classifier     = (*ClaudeAgent)(nil)
	_ core.QualityChecker = (*ClaudeAgent)(nil)
)

// NewClaudeAgent creates a Claude CLI agent.
func NewClaudeAgent(cfg AgentConfig, logger *logging.Logger) *ClaudeAgent {
	if cfg.Path == "" {
		cfg.Path = "claude"
	}
	if cfg.Name == "" {
		cfg.Name = "claude"
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ClaudeAgent{BaseAdapter: NewBaseAdapter(cfg, logger.WithComponent("claude"))}
}

func (c *ClaudeAgent) baseArgs(format, systemPrompt string) []string {
	args := []string{"--print", "--output-format", format}
	if format == "stream-json" {
		args = append(args, "--verbose")
	}
	if c.config.Model != "" {
		args = append(args, "--model", c.config.Model)
	}
	if systemPrompt != "" {
		args = append(args, "--append-system-prompt", systemPrompt)
	}
	return args
}

// StreamCode starts a generation and returns its events. The channel closes
// when the CLI exits. A CLI failure arrives as a final EventError.
func (c *ClaudeAgent) StreamCode(ctx context.Context, req core.GenerationRequest) (<-chan core.GenerationEvent, error) {
	if !req.Type.Valid() {
		return nil, core.ErrValidation(core.CodeInvalidGenerationType, fmt.Sprintf("unknown generation type %q", req.Type))
	}

	args := c.baseArgs("stream-json", systemPromptFor(req.Type))
	workDir := ""
	if req.Type.UsesTools() {
		if req.OutputDir == "" {
			return nil, core.ErrValidation("NO_OUTPUT_DIR", "tool-based generation needs an output directory")
		}
		if err := os.MkdirAll(req.OutputDir, 0o750); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
		workDir = req.OutputDir
		args = append(args, "--dangerously-skip-permissions")
	} else {
		args = append(args, "--disallowedTools", disallowedTools)
	}
	prompt := buildPromptWithHistory(req.Prompt, req.History)

	out := make(chan core.GenerationEvent, 16)
	go func() {
		defer close(out)
		send := func(ev core.GenerationEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		parser := NewClaudeStreamParser()
		_, err := c.StreamLines(ctx, args, prompt, workDir, 0, func(line string) {
			for _, ev := range parser.ParseLine(line) {
				if !send(ev) {
					return
				}
			}
		})
		if err != nil && ctx.Err() == nil {
			send(core.GenerationEvent{Kind: core.EventError, Text: err.Error(), Err: err})
		}
	}()
	return out, nil
}

// ask runs a one-shot JSON exchange and decodes the answer into v.
func (c *ClaudeAgent) ask(ctx context.Context, systemPrompt, prompt string, v interface{}) error {
	args := append(c.baseArgs("json", systemPrompt), "--disallowedTools", disallowedTools)
	result, err := c.ExecuteCommand(ctx, args, prompt, "", 0)
	if err != nil {
		return err
	}
	text, err := resultText(result.Stdout)
	if err != nil {
		return err
	}
	return ParseJSON(text, v)
}

// PlanAssets asks the model which assets the described site needs.
func (c *ClaudeAgent) PlanAssets(ctx context.Context, prompt string) (core.ImageCollectionPlan, error) {
	var plan core.ImageCollectionPlan
	if err := c.ask(ctx, planSystemPrompt, prompt, &plan); err != nil {
		return core.ImageCollectionPlan{}, err
	}
	return plan, nil
}

// ClassifyGenerationType asks the model how the site should be generated.
func (c *ClaudeAgent) ClassifyGenerationType(ctx context.Context, prompt string) (core.GenerationType, error) {
	var answer struct {
		GenerationType string `json:"generationType"`
	}
	if err := c.ask(ctx, classifySystemPrompt, prompt, &answer); err != nil {
		return "", err
	}
	return core.ParseGenerationType(answer.GenerationType)
}

// CheckQuality asks the model to review concatenated source files.
func (c *ClaudeAgent) CheckQuality(ctx context.Context, source string) (core.QualityResult, error) {
	var result core.QualityResult
	if err := c.ask(ctx, qualitySystemPrompt, source, &result); err != nil {
		return core.QualityResult{}, err
	}
	return result, nil
}
