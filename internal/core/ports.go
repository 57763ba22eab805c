package core

import (
	"context"
	"time"
)

// AssetPlanner decides which assets a page needs.
type AssetPlanner interface {
	PlanAssets(ctx context.Context, prompt string) (ImageCollectionPlan, error)
}

// ImageSearcher finds photographic content images.
type ImageSearcher interface {
	SearchContentImages(ctx context.Context, query string) ([]ImageResource, error)
}

// IllustrationSearcher finds vector illustrations.
type IllustrationSearcher interface {
	SearchIllustrations(ctx context.Context, query string) ([]ImageResource, error)
}

// DiagramRenderer turns diagram source into an image.
type DiagramRenderer interface {
	RenderDiagram(ctx context.Context, code, description string) ([]ImageResource, error)
}

// LogoGenerator synthesizes a logo.
type LogoGenerator interface {
	GenerateLogo(ctx context.Context, description string) ([]ImageResource, error)
}

// Classifier picks a generation type for a prompt.
type Classifier interface {
	ClassifyGenerationType(ctx context.Context, prompt string) (GenerationType, error)
}

// QualityChecker reviews concatenated source text.
type QualityChecker interface {
	CheckQuality(ctx context.Context, source string) (QualityResult, error)
}

// ProjectBuilder builds a generated project in place. A nil error means the
// build output exists.
type ProjectBuilder interface {
	BuildProject(ctx context.Context, dir string) error
}

// MessageRole identifies the author of a history message.
type MessageRole string

const (
	RoleUser MessageRole = "user"
	RoleAI   MessageRole = "ai"
)

// HistoryMessage is one persisted conversation turn.
type HistoryMessage struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"createdAt"`
}

// HistoryStore persists conversation turns per session.
type HistoryStore interface {
	AppendHistory(ctx context.Context, sessionKey string, role MessageRole, text string) error
	// LoadHistory returns at most limit of the newest messages, oldest first.
	LoadHistory(ctx context.Context, sessionKey string, limit int) ([]HistoryMessage, error)
}

// GenerationEventKind discriminates GenerationEvent.
type GenerationEventKind string

const (
	EventPartial      GenerationEventKind = "partial"
	EventToolRequest  GenerationEventKind = "tool_request"
	EventToolExecuted GenerationEventKind = "tool_executed"
	EventError        GenerationEventKind = "error"
)

// ToolCall describes a tool invocation by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Result    string `json:"result,omitempty"`
}

// GenerationEvent is one item on a model stream. Plain-text generators only
// emit EventPartial. The stream ends when the channel closes.
type GenerationEvent struct {
	Kind GenerationEventKind
	Text string
	Tool *ToolCall
	Err  error
}

// GenerationRequest is what a generator handle sends to the model.
type GenerationRequest struct {
	SessionKey string
	Type       GenerationType
	Prompt     string
	History    []HistoryMessage
	OutputDir  string
}

// CodeModel streams generated code.
type CodeModel interface {
	StreamCode(ctx context.Context, req GenerationRequest) (<-chan GenerationEvent, error)
}
