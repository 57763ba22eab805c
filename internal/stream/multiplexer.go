// Package stream turns a generator's event channel into one user-visible text
// stream, persists the generated result, and records the reply in history.
package stream

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/iamxurulin/xu-AI-Zero/internal/codegen"
	"github.com/iamxurulin/xu-AI-Zero/internal/core"
	"github.com/iamxurulin/xu-AI-Zero/internal/events"
	"github.com/iamxurulin/xu-AI-Zero/internal/logging"
	"github.com/iamxurulin/xu-AI-Zero/internal/tools"
)

// DefaultTimeout bounds one generation stream.
const DefaultTimeout = 10 * time.Minute

// failureMarker prefixes the error note persisted with a partial reply.
const failureMarker = "[Generation failed]"

// Memory receives the final reply so the next call on the same handle sees it.
type Memory interface {
	Remember(role core.MessageRole, text string)
}

// Run identifies the generation a stream belongs to.
type Run struct {
	RunID      string
	SessionKey string
	Type       core.GenerationType
	OutputDir  string
	// Memory is optional.
	Memory Memory
	// OnChunk is called with every piece of visible output, in order.
	OnChunk func(text string)
}

// Result is what a completed stream produced.
type Result struct {
	Text  string
	Files codegen.FileSet
	// Build is set for types that build on completion.
	Build *core.BuildOutcome
}

// Multiplexer consumes generation streams. It is safe for concurrent use;
// each call keeps its own accumulator and seen-id set.
type Multiplexer struct {
	parsers *codegen.Registry
	tools   *tools.Registry
	history core.HistoryStore
	builder core.ProjectBuilder
	bus     *events.EventBus
	logger  *logging.Logger
	timeout time.Duration
}

// Option configures a Multiplexer.
type Option func(*Multiplexer)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(m *Multiplexer) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithEventBus publishes chunks and build failures.
func WithEventBus(bus *events.EventBus) Option {
	return func(m *Multiplexer) { m.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Multiplexer) { m.logger = l }
}

// New creates a multiplexer. builder may be nil when no type needs a build.
func New(parsers *codegen.Registry, renderers *tools.Registry, history core.HistoryStore, builder core.ProjectBuilder, opts ...Option) *Multiplexer {
	m := &Multiplexer{
		parsers: parsers,
		tools:   renderers,
		history: history,
		builder: builder,
		logger:  logging.NewNop(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Consume reads src until it closes, the generation fails, or the timeout
// fires. The reply is appended to history exactly once on every path.
func (m *Multiplexer) Consume(ctx context.Context, run Run, src <-chan core.GenerationEvent) (Result, error) {
	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	s := &session{
		m:      m,
		run:    run,
		parent: parent,
		seen:   make(map[string]struct{}),
		log:    m.logger.WithRun(run.RunID).WithSession(run.SessionKey),
	}

	for {
		select {
		case <-ctx.Done():
			var err error
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				err = core.ErrGenerationTimeout(fmt.Sprintf("generation exceeded %s", m.timeout))
			} else {
				err = core.ErrExecution(core.CodeCancelled, "generation cancelled").WithCause(ctx.Err())
			}
			return s.fail(ctx, err)
		case ev, ok := <-src:
			if !ok {
				return s.complete(ctx)
			}
			if ev.Kind == core.EventError {
				cause := ev.Err
				if cause == nil {
					cause = errors.New(ev.Text)
				}
				return s.fail(ctx, core.ErrExecution(core.CodeGenerationFailed, "generation stream failed").WithCause(cause))
			}
			s.handle(ev)
		}
	}
}

type session struct {
	m      *Multiplexer
	run    Run
	parent context.Context
	acc    strings.Builder
	seen   map[string]struct{}
	log    *logging.Logger
}

func (s *session) emit(text string) {
	if text == "" {
		return
	}
	if s.run.OnChunk != nil {
		s.run.OnChunk(text)
	}
	if s.m.bus != nil {
		s.m.bus.Publish(events.NewGenerationChunkEvent(s.run.RunID, text))
	}
}

func (s *session) handle(ev core.GenerationEvent) {
	switch ev.Kind {
	case core.EventPartial:
		s.acc.WriteString(ev.Text)
		s.emit(ev.Text)
	case core.EventToolRequest:
		if ev.Tool == nil || ev.Tool.ID == "" {
			return
		}
		if _, dup := s.seen[ev.Tool.ID]; dup {
			return
		}
		s.seen[ev.Tool.ID] = struct{}{}
		// The notice is shown live but not persisted.
		s.emit(s.m.tools.RenderRequest(ev.Tool.Name))
	case core.EventToolExecuted:
		if ev.Tool == nil {
			return
		}
		out := fmt.Sprintf("\n\n%s\n\n", s.m.tools.RenderResult(*ev.Tool))
		s.acc.WriteString(out)
		s.emit(out)
	default:
		s.log.Warn("ignoring unknown generation event", "kind", string(ev.Kind))
	}
}

func (s *session) complete(ctx context.Context) (Result, error) {
	res := Result{Text: s.acc.String()}

	if s.run.Type.UsesTools() {
		// The build has its own timeouts and is not bound by the stream's.
		res.Build = s.build(s.parent)
	} else {
		files, err := s.m.parsers.ParseAndSave(s.run.Type, res.Text, s.run.OutputDir)
		if err != nil {
			return s.fail(ctx, core.ErrExecution(core.CodeGenerationFailed, "saving generated code").WithCause(err))
		}
		res.Files = files
	}

	s.record(ctx, res.Text)
	s.log.Info("generation completed", "type", string(s.run.Type), "chars", len(res.Text), "files", len(res.Files))
	return res, nil
}

func (s *session) fail(ctx context.Context, err error) (Result, error) {
	text := s.acc.String()
	note := fmt.Sprintf("%s %v", failureMarker, err)
	if text != "" {
		note = text + "\n\n" + note
	}
	// The run context may already be done; persisting must still happen.
	s.record(context.WithoutCancel(ctx), note)
	s.log.Error("generation failed", "error", err, "partial_chars", len(text))
	return Result{Text: text}, err
}

func (s *session) record(ctx context.Context, text string) {
	if s.run.Memory != nil {
		s.run.Memory.Remember(core.RoleAI, text)
	}
	if s.m.history == nil {
		return
	}
	if err := s.m.history.AppendHistory(ctx, s.run.SessionKey, core.RoleAI, text); err != nil {
		s.log.Warn("appending reply to history failed", "error", err)
	}
}

// build runs the project build before the stream reports completion so that
// a preview taken afterwards sees the built output.
func (s *session) build(ctx context.Context) *core.BuildOutcome {
	out := &core.BuildOutcome{SourceDir: s.run.OutputDir}
	if s.m.builder == nil {
		out.Error = "no project builder configured"
		return out
	}
	if err := s.m.builder.BuildProject(ctx, s.run.OutputDir); err != nil {
		out.Error = err.Error()
		s.log.Warn("project build failed", "dir", s.run.OutputDir, "error", err)
		if s.m.bus != nil {
			s.m.bus.Publish(events.NewBuildFailedEvent(s.run.RunID, s.run.OutputDir, err))
		}
		return out
	}
	out.OutputDir = filepath.Join(s.run.OutputDir, "dist")
	return out
}
