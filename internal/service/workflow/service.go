package workflow

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/iamxurulin/xu-AI-Zero/internal/core"
	"github.com/iamxurulin/xu-AI-Zero/internal/events"
	"github.com/iamxurulin/xu-AI-Zero/internal/graph"
	"github.com/iamxurulin/xu-AI-Zero/internal/logging"
)

// Run outcomes recorded in metrics.
const (
	outcomeSuccess = "success"
	outcomeFailed  = "failed"
)

// Request starts a run.
type Request struct {
	Prompt string `json:"prompt"`
	// SessionKey groups runs that share a generator and history. Empty
	// means a fresh session per run.
	SessionKey string `json:"sessionKey,omitempty"`
	// GenerationType skips classification when set.
	GenerationType core.GenerationType `json:"generationType,omitempty"`
}

// Progress is one observable run event. Field names are stable.
type Progress struct {
	Event       string `json:"event"`
	RunID       string `json:"runId"`
	StepNumber  int    `json:"stepNumber,omitempty"`
	CurrentStep string `json:"currentStep,omitempty"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`

	// Context is the state after the step. Not serialized.
	Context *core.WorkflowContext `json:"-"`
}

// Service runs the compiled workflow.
type Service struct {
	deps     *Deps
	runnable *graph.Runnable[core.WorkflowContext]
	logger   *logging.Logger
	now      func() time.Time
}

// NewService compiles the graph once; runs share it.
func NewService(deps *Deps) (*Service, error) {
	runnable, err := BuildGraph(deps)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		deps:     deps,
		runnable: runnable,
		logger:   logger.WithComponent("workflow"),
		now:      now,
	}, nil
}

// Mermaid renders the compiled graph.
func (s *Service) Mermaid() string {
	return s.runnable.Mermaid()
}

// Describe returns the compiled graph structure.
func (s *Service) Describe() graph.Description {
	return s.runnable.Describe()
}

// ValidatePrompt rejects empty and oversized prompts.
func ValidatePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return core.ErrValidation(core.CodeEmptyPrompt, "prompt cannot be empty")
	}
	if utf8.RuneCountInString(prompt) > core.MaxPromptLength {
		return core.ErrValidation(core.CodePromptTooLong, "prompt exceeds maximum length")
	}
	return nil
}

// ValidateSessionKey rejects keys that cannot be used as part of a single
// directory name under the output root. An empty key is allowed.
func ValidateSessionKey(key string) error {
	if key == "" {
		return nil
	}
	if utf8.RuneCountInString(key) > core.MaxSessionKeyLength {
		return core.ErrValidation(core.CodeInvalidSessionKey, "session key exceeds maximum length")
	}
	if key == "." || strings.Contains(key, "..") || strings.ContainsAny(key, "/\\\x00") {
		return core.ErrValidation(core.CodeInvalidSessionKey,
			"session key must not contain path separators or '..'")
	}
	return nil
}

// prepare validates the request and builds the initial context. The
// generation type is chosen here so it is fixed before the graph runs.
func (s *Service) prepare(ctx context.Context, req Request) (core.WorkflowContext, error) {
	if err := ValidatePrompt(req.Prompt); err != nil {
		return core.WorkflowContext{}, err
	}
	if err := ValidateSessionKey(req.SessionKey); err != nil {
		return core.WorkflowContext{}, err
	}
	wc := core.NewWorkflowContext(uuid.NewString(), req.SessionKey, req.Prompt)

	t := req.GenerationType
	if t == "" {
		t = s.classify(ctx, wc)
	}
	return wc.WithGenerationType(t)
}

func (s *Service) classify(ctx context.Context, wc core.WorkflowContext) core.GenerationType {
	if s.deps.Classifier == nil {
		return core.GenerationPlainPage
	}
	t, err := s.deps.Classifier.ClassifyGenerationType(ctx, wc.OriginalPrompt)
	if err != nil || !t.Valid() {
		s.logger.WithRun(wc.RunID).Warn("classification failed, using plain page", "error", err)
		return core.GenerationPlainPage
	}
	return t
}

func (s *Service) started(wc core.WorkflowContext) {
	s.logger.WithRun(wc.RunID).Info("workflow started",
		"session", wc.SessionKey, "type", string(wc.GenerationType))
	if s.deps.Bus != nil {
		s.deps.Bus.Publish(events.NewWorkflowStartEvent(wc.RunID, wc.SessionKey,
			wc.OriginalPrompt, string(wc.GenerationType)))
	}
}

func (s *Service) finished(wc core.WorkflowContext, start time.Time, err error) {
	log := s.logger.WithRun(wc.RunID)
	elapsed := s.now().Sub(start)
	if err != nil {
		log.Error("workflow failed", "stage", core.StageOf(err), "error", err, "elapsed", elapsed)
		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordRun(outcomeFailed)
		}
		if s.deps.Bus != nil {
			s.deps.Bus.PublishPriority(events.NewWorkflowErrorEvent(wc.RunID, core.StageOf(err), err))
		}
		return
	}
	log.Info("workflow completed", "code_dir", wc.GeneratedCodeDir,
		"build_dir", wc.BuildResultDir, "attempts", wc.Attempts, "elapsed", elapsed)
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordRun(outcomeSuccess)
	}
	if s.deps.Bus != nil {
		s.deps.Bus.PublishPriority(events.NewWorkCompletedEvent(wc.RunID, completionMessage(wc),
			wc.GeneratedCodeDir, wc.BuildResultDir))
	}
}

func completionMessage(wc core.WorkflowContext) string {
	if wc.ErrorMessage != "" {
		return "workflow completed with warnings: " + wc.ErrorMessage
	}
	return "workflow completed"
}

// RunSync drives a run to completion. On failure the returned context holds
// whatever the run produced before the failing stage.
func (s *Service) RunSync(ctx context.Context, req Request) (core.WorkflowContext, error) {
	wc, err := s.prepare(ctx, req)
	if err != nil {
		return wc, err
	}
	start := s.now()
	s.started(wc)

	final, err := s.runnable.Run(ctx, wc)
	if err != nil && final.ErrorMessage == "" {
		final.ErrorMessage = err.Error()
	}
	s.finished(final, start, err)
	return final, err
}

// RunObservable starts a run in the background. The channel carries
// workflow_start, one step_completed per stage, and always ends with
// work_completed or workflow_error before closing. Callers must drain it.
func (s *Service) RunObservable(ctx context.Context, req Request) <-chan Progress {
	out := make(chan Progress, 16)
	go func() {
		defer close(out)

		wc, err := s.prepare(ctx, req)
		if err != nil {
			out <- Progress{Event: events.TypeWorkflowError, Error: err.Error()}
			return
		}
		start := s.now()
		s.started(wc)
		out <- Progress{Event: events.TypeWorkflowStart, RunID: wc.RunID, Message: "workflow started"}

		for ev := range s.runnable.Stream(ctx, wc) {
			state := ev.State
			switch ev.Kind {
			case graph.EventStep:
				if s.deps.Bus != nil {
					s.deps.Bus.Publish(events.NewStepCompletedEvent(wc.RunID, ev.Index, ev.Stage))
				}
				out <- Progress{
					Event:       events.TypeStepCompleted,
					RunID:       wc.RunID,
					StepNumber:  ev.Index,
					CurrentStep: ev.Stage,
					Context:     &state,
				}
			case graph.EventDone:
				s.finished(state, start, nil)
				out <- Progress{
					Event:   events.TypeWorkCompleted,
					RunID:   wc.RunID,
					Message: completionMessage(state),
					Context: &state,
				}
			case graph.EventError:
				if state.ErrorMessage == "" {
					state.ErrorMessage = ev.Err.Error()
				}
				s.finished(state, start, ev.Err)
				out <- Progress{
					Event:       events.TypeWorkflowError,
					RunID:       wc.RunID,
					StepNumber:  ev.Index,
					CurrentStep: ev.Stage,
					Error:       ev.Err.Error(),
					Context:     &state,
				}
			}
		}
	}()
	return out
}
