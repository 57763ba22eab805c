package core

import (
	"fmt"
	"strings"
)

// GenerationType selects how code is generated, parsed and saved.
type GenerationType string

const (
	GenerationPlainPage         GenerationType = "plain_page"
	GenerationMultiFile         GenerationType = "multi_file"
	GenerationStructuredProject GenerationType = "structured_project"
)

// GenerationTypes lists every supported generation type.
func GenerationTypes() []GenerationType {
	return []GenerationType{GenerationPlainPage, GenerationMultiFile, GenerationStructuredProject}
}

// Valid reports whether g is one of the known generation types.
func (g GenerationType) Valid() bool {
	switch g {
	case GenerationPlainPage, GenerationMultiFile, GenerationStructuredProject:
		return true
	}
	return false
}

// RequiresBuild reports whether output of this type must be built before use.
func (g GenerationType) RequiresBuild() bool {
	return g == GenerationStructuredProject
}

// UsesTools reports whether generation of this type emits tool-call events.
func (g GenerationType) UsesTools() bool {
	return g == GenerationStructuredProject
}

// ParseGenerationType accepts the canonical names plus a few common aliases.
func ParseGenerationType(s string) (GenerationType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "plain_page", "html", "plain", "single":
		return GenerationPlainPage, nil
	case "multi_file", "multi", "multifile":
		return GenerationMultiFile, nil
	case "structured_project", "vue_project", "vue", "project":
		return GenerationStructuredProject, nil
	}
	return "", ErrValidation(CodeInvalidGenerationType, fmt.Sprintf("unknown generation type %q", s))
}

// ImageCategory tags collected assets so they can be grouped downstream.
type ImageCategory string

const (
	ImageCategoryContent      ImageCategory = "CONTENT"
	ImageCategoryIllustration ImageCategory = "ILLUSTRATION"
	ImageCategoryArchitecture ImageCategory = "ARCHITECTURE"
	ImageCategoryLogo         ImageCategory = "LOGO"
)

// ImageResource is one asset the generator may embed.
type ImageResource struct {
	Category    ImageCategory `json:"category"`
	Description string        `json:"description"`
	URL         string        `json:"url"`
}

// ImageTask is a single collection request produced by the planner.
type ImageTask struct {
	Query       string `json:"query,omitempty"`
	Description string `json:"description,omitempty"`
	MermaidCode string `json:"mermaidCode,omitempty"`
}

// ImageCollectionPlan holds the four independent task lists.
type ImageCollectionPlan struct {
	ContentTasks      []ImageTask `json:"contentImageTasks"`
	IllustrationTasks []ImageTask `json:"illustrationTasks"`
	DiagramTasks      []ImageTask `json:"diagramTasks"`
	LogoTasks         []ImageTask `json:"logoTasks"`
}

// TaskCount returns the total number of tasks across all lists.
func (p ImageCollectionPlan) TaskCount() int {
	return len(p.ContentTasks) + len(p.IllustrationTasks) + len(p.DiagramTasks) + len(p.LogoTasks)
}

// QualityResult is the outcome of a quality check.
type QualityResult struct {
	IsValid     bool     `json:"isValid"`
	Errors      []string `json:"errors"`
	Suggestions []string `json:"suggestions"`
}

// Failed reports whether the result should send generation around again.
// An invalid result with no errors gives the generator nothing to fix.
func (q *QualityResult) Failed() bool {
	return q != nil && !q.IsValid && len(q.Errors) > 0
}

// BuildOutcome records a build attempt for a generated directory.
type BuildOutcome struct {
	SourceDir string `json:"sourceDir"`
	OutputDir string `json:"outputDir,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Succeeded reports whether the build produced output.
func (b *BuildOutcome) Succeeded() bool {
	return b != nil && b.Error == "" && b.OutputDir != ""
}

// WorkflowContext is the run state threaded through every stage. Stages
// receive it by value and return the updated copy.
type WorkflowContext struct {
	RunID      string `json:"runId"`
	SessionKey string `json:"sessionKey"`

	CurrentStep    string         `json:"currentStep"`
	OriginalPrompt string         `json:"originalPrompt"`
	EnhancedPrompt string         `json:"enhancedPrompt"`
	GenerationType GenerationType `json:"generationType"`

	Plan             ImageCollectionPlan `json:"imageCollectionPlan"`
	ContentImages    []ImageResource     `json:"contentImages,omitempty"`
	Illustrations    []ImageResource     `json:"illustrations,omitempty"`
	Diagrams         []ImageResource     `json:"diagrams,omitempty"`
	Logos            []ImageResource     `json:"logos,omitempty"`
	AggregatedAssets []ImageResource     `json:"aggregatedAssets,omitempty"`

	GeneratedCodeDir string         `json:"generatedCodeDir,omitempty"`
	BuildResultDir   string         `json:"buildResultDir,omitempty"`
	QualityResult    *QualityResult `json:"qualityResult,omitempty"`
	LastBuild        *BuildOutcome  `json:"lastBuild,omitempty"`

	// Attempts counts entries into the generate stage.
	Attempts         int    `json:"attempts"`
	RetriesExhausted bool   `json:"retriesExhausted,omitempty"`
	ErrorMessage     string `json:"errorMessage,omitempty"`
}

// NewWorkflowContext creates the initial context for a run.
func NewWorkflowContext(runID, sessionKey, prompt string) WorkflowContext {
	if sessionKey == "" {
		sessionKey = runID
	}
	return WorkflowContext{
		RunID:          runID,
		SessionKey:     sessionKey,
		OriginalPrompt: prompt,
	}
}

// WithGenerationType assigns the generation type. Once set it never changes.
func (c WorkflowContext) WithGenerationType(t GenerationType) (WorkflowContext, error) {
	if !t.Valid() {
		return c, ErrValidation(CodeInvalidGenerationType, fmt.Sprintf("unknown generation type %q", t))
	}
	if c.GenerationType != "" && c.GenerationType != t {
		return c, ErrState(CodeGenerationTypeLocked,
			fmt.Sprintf("generation type already %s, cannot change to %s", c.GenerationType, t))
	}
	c.GenerationType = t
	return c, nil
}

// Clone returns a deep copy safe to hand to another goroutine.
func (c WorkflowContext) Clone() WorkflowContext {
	out := c
	out.Plan = ImageCollectionPlan{
		ContentTasks:      cloneSlice(c.Plan.ContentTasks),
		IllustrationTasks: cloneSlice(c.Plan.IllustrationTasks),
		DiagramTasks:      cloneSlice(c.Plan.DiagramTasks),
		LogoTasks:         cloneSlice(c.Plan.LogoTasks),
	}
	out.ContentImages = cloneSlice(c.ContentImages)
	out.Illustrations = cloneSlice(c.Illustrations)
	out.Diagrams = cloneSlice(c.Diagrams)
	out.Logos = cloneSlice(c.Logos)
	out.AggregatedAssets = cloneSlice(c.AggregatedAssets)
	if c.QualityResult != nil {
		q := *c.QualityResult
		q.Errors = cloneSlice(q.Errors)
		q.Suggestions = cloneSlice(q.Suggestions)
		out.QualityResult = &q
	}
	if c.LastBuild != nil {
		b := *c.LastBuild
		out.LastBuild = &b
	}
	return out
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}
