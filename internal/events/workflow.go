package events

// Event type constants. The first four are also the stable names of the
// progress payloads sent to HTTP clients.
const (
	TypeWorkflowStart   = "workflow_start"
	TypeStepCompleted   = "step_completed"
	TypeWorkCompleted   = "work_completed"
	TypeWorkflowError   = "workflow_error"
	TypeGenerationChunk = "generation_chunk"
	TypeBuildFailed     = "build_failed"
	TypeGeneratorEvict  = "generator_evicted"
)

// WorkflowStartEvent is emitted once per run before the first stage.
type WorkflowStartEvent struct {
	BaseEvent
	Prompt         string `json:"originalPrompt"`
	SessionKey     string `json:"sessionKey"`
	GenerationType string `json:"generationType"`
}

// NewWorkflowStartEvent creates a new workflow start event.
func NewWorkflowStartEvent(runID, sessionKey, prompt, generationType string) WorkflowStartEvent {
	return WorkflowStartEvent{
		BaseEvent:      NewBaseEvent(TypeWorkflowStart, runID),
		Prompt:         prompt,
		SessionKey:     sessionKey,
		GenerationType: generationType,
	}
}

// StepCompletedEvent is emitted after each stage finishes.
type StepCompletedEvent struct {
	BaseEvent
	StepNumber  int    `json:"stepNumber"`
	CurrentStep string `json:"currentStep"`
}

// NewStepCompletedEvent creates a new step completed event.
func NewStepCompletedEvent(runID string, step int, stage string) StepCompletedEvent {
	return StepCompletedEvent{
		BaseEvent:   NewBaseEvent(TypeStepCompleted, runID),
		StepNumber:  step,
		CurrentStep: stage,
	}
}

// WorkCompletedEvent is the terminal success event. Published as priority.
type WorkCompletedEvent struct {
	BaseEvent
	Message          string `json:"message"`
	GeneratedCodeDir string `json:"generatedCodeDir,omitempty"`
	BuildResultDir   string `json:"buildResultDir,omitempty"`
}

// NewWorkCompletedEvent creates a new work completed event.
func NewWorkCompletedEvent(runID, message, codeDir, buildDir string) WorkCompletedEvent {
	return WorkCompletedEvent{
		BaseEvent:        NewBaseEvent(TypeWorkCompleted, runID),
		Message:          message,
		GeneratedCodeDir: codeDir,
		BuildResultDir:   buildDir,
	}
}

// WorkflowErrorEvent is the terminal failure event. Published as priority.
type WorkflowErrorEvent struct {
	BaseEvent
	Stage   string `json:"currentStep,omitempty"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewWorkflowErrorEvent creates a new workflow error event.
func NewWorkflowErrorEvent(runID, stage string, err error) WorkflowErrorEvent {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return WorkflowErrorEvent{
		BaseEvent: NewBaseEvent(TypeWorkflowError, runID),
		Stage:     stage,
		Error:     msg,
		Message:   "workflow execution failed",
	}
}

// GenerationChunkEvent carries live generator output.
type GenerationChunkEvent struct {
	BaseEvent
	Text string `json:"text"`
}

// NewGenerationChunkEvent creates a new generation chunk event.
func NewGenerationChunkEvent(runID, text string) GenerationChunkEvent {
	return GenerationChunkEvent{
		BaseEvent: NewBaseEvent(TypeGenerationChunk, runID),
		Text:      text,
	}
}

// BuildFailedEvent reports a non-fatal project build failure.
type BuildFailedEvent struct {
	BaseEvent
	Dir   string `json:"dir"`
	Error string `json:"error"`
}

// NewBuildFailedEvent creates a new build failed event.
func NewBuildFailedEvent(runID, dir string, err error) BuildFailedEvent {
	return BuildFailedEvent{
		BaseEvent: NewBaseEvent(TypeBuildFailed, runID),
		Dir:       dir,
		Error:     err.Error(),
	}
}

// GeneratorEvictedEvent reports a generator handle leaving the cache.
type GeneratorEvictedEvent struct {
	BaseEvent
	Key   string `json:"key"`
	Cause string `json:"cause"`
}

// NewGeneratorEvictedEvent creates a new eviction event. It is not tied to a run.
func NewGeneratorEvictedEvent(key, cause string) GeneratorEvictedEvent {
	return GeneratorEvictedEvent{
		BaseEvent: NewBaseEvent(TypeGeneratorEvict, ""),
		Key:       key,
		Cause:     cause,
	}
}
