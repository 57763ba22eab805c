package cli

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/iamxurulin/xu-AI-Zero/internal/core"
)

// ClaudeStreamParser converts Claude CLI stream-json output into generation
// events. It remembers tool_use blocks so the matching tool_result can be
// reported with the tool's name and arguments. Use one parser per stream.
type ClaudeStreamParser struct {
	pending map[string]core.ToolCall
}

// NewClaudeStreamParser creates a parser for one stream.
func NewClaudeStreamParser() *ClaudeStreamParser {
	return &ClaudeStreamParser{pending: make(map[string]core.ToolCall)}
}

// claudeStreamEvent represents a Claude stream-json event.
type claudeStreamEvent struct {
	Type    string         `json:"type"`
	Subtype string         `json:"subtype,omitempty"`
	Message *claudeMessage `json:"message,omitempty"`
	Result  string         `json:"result,omitempty"`
	IsError bool           `json:"is_error,omitempty"`
	Error   string         `json:"error,omitempty"`
}

type claudeMessage struct {
	Content []claudeContent `json:"content"`
}

type claudeContent struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// ParseLine parses one stdout line. Lines that are not JSON events, and
// event kinds with no visible output, yield nothing.
func (p *ClaudeStreamParser) ParseLine(line string) []core.GenerationEvent {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "{") {
		return nil
	}

	var event claudeStreamEvent
	if err := json.Unmarshal([]byte(line), &event); err != nil {
		return nil
	}

	var events []core.GenerationEvent
	switch event.Type {
	case "assistant":
		if event.Message == nil {
			return nil
		}
		for _, content := range event.Message.Content {
			switch content.Type {
			case "text":
				if content.Text != "" {
					events = append(events, core.GenerationEvent{Kind: core.EventPartial, Text: content.Text})
				}
			case "tool_use":
				call := core.ToolCall{ID: content.ID, Name: content.Name, Arguments: string(content.Input)}
				p.pending[content.ID] = call
				events = append(events, core.GenerationEvent{Kind: core.EventToolRequest, Tool: &call})
			}
		}

	case "user":
		if event.Message == nil {
			return nil
		}
		for _, content := range event.Message.Content {
			if content.Type != "tool_result" {
				continue
			}
			call, ok := p.pending[content.ToolUseID]
			if !ok {
				call = core.ToolCall{ID: content.ToolUseID}
			}
			delete(p.pending, content.ToolUseID)
			call.Result = toolResultText(content.Content)
			events = append(events, core.GenerationEvent{Kind: core.EventToolExecuted, Tool: &call})
		}

	case "result":
		if event.IsError || (event.Subtype != "" && event.Subtype != "success") {
			msg := event.Result
			if msg == "" {
				msg = event.Error
			}
			if msg == "" {
				msg = "generation ended with " + event.Subtype
			}
			events = append(events, core.GenerationEvent{Kind: core.EventError, Text: msg, Err: errors.New(msg)})
		}

	case "error":
		events = append(events, core.GenerationEvent{Kind: core.EventError, Text: event.Error, Err: errors.New(event.Error)})
	}

	return events
}

// toolResultText flattens a tool_result content field, which is either a
// string or a list of text blocks.
func toolResultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	var sb strings.Builder
	for _, b := range blocks {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// resultText extracts the final answer from --output-format json output.
func resultText(stdout string) (string, error) {
	var event claudeStreamEvent
	if err := json.Unmarshal([]byte(strings.TrimSpace(stdout)), &event); err != nil || event.Type != "result" {
		// Plain --print output
		return stdout, nil
	}
	if event.IsError {
		return "", core.ErrExecution(core.CodeAgentFailed, event.Result)
	}
	return event.Result, nil
}
