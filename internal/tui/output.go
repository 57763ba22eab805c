package tui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/iamxurulin/xu-AI-Zero/internal/core"
	"github.com/iamxurulin/xu-AI-Zero/internal/events"
	"github.com/iamxurulin/xu-AI-Zero/internal/service/workflow"
)

// Output renders workflow progress for a non-interactive terminal.
type Output struct {
	writer    io.Writer
	mode      OutputMode
	styles    Styles
	mu        sync.Mutex
	startTime time.Time
	now       func() time.Time
}

// NewOutput creates a progress renderer.
func NewOutput(w io.Writer, mode OutputMode, useColor bool) *Output {
	styles := PlainStyles()
	if useColor {
		styles = ColorStyles()
	}
	return &Output{
		writer:    w,
		mode:      mode,
		styles:    styles,
		startTime: time.Now(),
		now:       time.Now,
	}
}

// Render prints every progress event and returns the run's failure, if any.
func (o *Output) Render(progress <-chan workflow.Progress) error {
	var runErr error
	for p := range progress {
		if p.Event == events.TypeWorkflowError {
			runErr = fmt.Errorf("workflow failed: %s", p.Error)
		}
		o.Handle(p)
	}
	return runErr
}

// Handle prints a single progress event.
func (o *Output) Handle(p workflow.Progress) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.mode == ModeJSON {
		o.printJSON(p)
		return
	}

	switch p.Event {
	case events.TypeWorkflowStart:
		o.startTime = o.now()
		if o.mode != ModeQuiet {
			o.printf("%s %s\n", o.styles.Header.Render(">>> run"), p.RunID)
		}
	case events.TypeStepCompleted:
		if o.mode != ModeQuiet {
			o.printf("  %s %s\n",
				o.styles.Step.Render(fmt.Sprintf("[%2d]", p.StepNumber)),
				o.styles.Stage.Render(p.CurrentStep))
		}
	case events.TypeWorkCompleted:
		o.printf("\n%s %s\n", o.styles.Success.Render("✓"), p.Message)
		if p.Context != nil {
			o.printResult(*p.Context)
		}
	case events.TypeWorkflowError:
		o.printf("\n%s %s\n", o.styles.Error.Render("✗ workflow failed:"), p.Error)
		if p.Context != nil && p.Context.GeneratedCodeDir != "" {
			o.printf("  %s\n", o.styles.Muted.Render("partial output kept in "+p.Context.GeneratedCodeDir))
		}
	}
}

func (o *Output) printResult(wc core.WorkflowContext) {
	o.printf("  type:      %s\n", wc.GenerationType)
	o.printf("  attempts:  %d\n", wc.Attempts)
	o.printf("  assets:    %d\n", len(wc.AggregatedAssets))
	o.printf("  code:      %s\n", wc.GeneratedCodeDir)
	if wc.BuildResultDir != "" {
		o.printf("  build:     %s\n", wc.BuildResultDir)
	}
	o.printf("  duration:  %s\n", o.now().Sub(o.startTime).Round(time.Second))
	if wc.QualityResult != nil && len(wc.QualityResult.Errors) > 0 {
		o.printf("  %s\n", o.styles.Warning.Render("⚠ remaining issues:"))
		o.printf("    - %s\n", strings.Join(wc.QualityResult.Errors, "\n    - "))
	}
}

// jsonProgress adds the final context, which Progress does not serialize.
type jsonProgress struct {
	workflow.Progress
	Context *core.WorkflowContext `json:"context,omitempty"`
}

func (o *Output) printJSON(p workflow.Progress) {
	out := jsonProgress{Progress: p}
	if p.Event == events.TypeWorkCompleted || p.Event == events.TypeWorkflowError {
		out.Context = p.Context
	}
	data, err := json.Marshal(out)
	if err != nil {
		o.printf("{\"event\":\"%s\",\"error\":%q}\n", p.Event, err.Error())
		return
	}
	o.printf("%s\n", data)
}

func (o *Output) printf(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, format, args...)
}
