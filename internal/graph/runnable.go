package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/iamxurulin/xu-AI-Zero/internal/core"
	"github.com/iamxurulin/xu-AI-Zero/internal/logging"
)

// DefaultMaxSteps bounds node executions per run so a conditional loop that
// never converges still terminates.
const DefaultMaxSteps = 100

// EventKind discriminates StepEvent.
type EventKind string

const (
	EventStep  EventKind = "step"
	EventDone  EventKind = "done"
	EventError EventKind = "error"
)

// StepEvent reports one completed node, or the terminal outcome of a run.
type StepEvent[S any] struct {
	Kind  EventKind
	Index int
	Stage string
	State S
	Err   error
}

// ObserverFunc is called after every node execution.
type ObserverFunc func(stage string, elapsed time.Duration, err error)

// Option configures a Runnable.
type Option[S any] func(*Runnable[S])

// WithMaxSteps overrides DefaultMaxSteps.
func WithMaxSteps[S any](n int) Option[S] {
	return func(r *Runnable[S]) {
		if n > 0 {
			r.maxSteps = n
		}
	}
}

// WithLogger sets the logger used for node tracing.
func WithLogger[S any](l *logging.Logger) Option[S] {
	return func(r *Runnable[S]) { r.logger = l }
}

// WithObserver registers a per-node callback, typically for metrics.
func WithObserver[S any](fn ObserverFunc) Option[S] {
	return func(r *Runnable[S]) { r.observer = fn }
}

// WithSnapshot sets the function used to copy state into step events.
func WithSnapshot[S any](fn func(S) S) Option[S] {
	return func(r *Runnable[S]) { r.snapshot = fn }
}

// Runnable is a compiled, immutable graph. It is safe for concurrent runs.
type Runnable[S any] struct {
	nodes       map[string]NodeFunc[S]
	order       []string
	transitions map[string]transition[S]
	maxSteps    int
	logger      *logging.Logger
	observer    ObserverFunc
	snapshot    func(S) S
}

// Run drives the graph to completion and returns the final state. On error
// the state reached so far is returned alongside it.
func (r *Runnable[S]) Run(ctx context.Context, initial S) (S, error) {
	return r.execute(ctx, initial, nil)
}

// Stream runs the graph in the background and reports every completed node.
// The channel always ends with exactly one EventDone or EventError and is
// then closed; callers must drain it.
func (r *Runnable[S]) Stream(ctx context.Context, initial S) <-chan StepEvent[S] {
	ch := make(chan StepEvent[S], 16)
	go func() {
		defer close(ch)
		var last int
		final, err := r.execute(ctx, initial, func(ev StepEvent[S]) {
			last = ev.Index
			select {
			case ch <- ev:
			case <-ctx.Done():
			}
		})
		if err != nil {
			ch <- StepEvent[S]{Kind: EventError, Index: last, Stage: core.StageOf(err), State: final, Err: err}
			return
		}
		ch <- StepEvent[S]{Kind: EventDone, Index: last, Stage: End, State: final}
	}()
	return ch
}

type stepCounter struct {
	mu    sync.Mutex
	steps int
}

func (r *Runnable[S]) execute(ctx context.Context, state S, emit func(StepEvent[S])) (S, error) {
	counter := &stepCounter{}
	report := func(stage string, out S) error {
		counter.mu.Lock()
		defer counter.mu.Unlock()
		counter.steps++
		if counter.steps > r.maxSteps {
			return core.ErrExecution(core.CodeMaxStepsExceeded,
				fmt.Sprintf("run exceeded %d steps", r.maxSteps))
		}
		if emit != nil {
			emit(StepEvent[S]{Kind: EventStep, Index: counter.steps, Stage: stage, State: r.copyState(out)})
		}
		return nil
	}

	current, err := r.advance(ctx, Start, state, report)
	if err != nil {
		return state, err
	}
	for current != End {
		if err := ctx.Err(); err != nil {
			return state, core.NewNodeError(current,
				core.ErrState(core.CodeCancelled, "run cancelled").WithCause(err))
		}
		next, err := r.invoke(ctx, current, state)
		if err != nil {
			return next, err
		}
		state = next
		if err := report(current, state); err != nil {
			return state, core.NewNodeError(current, err)
		}

		var nextNode string
		state, nextNode, err = r.follow(ctx, current, state, report)
		if err != nil {
			return state, err
		}
		current = nextNode
	}
	return state, nil
}

// advance resolves the transition out of the start sentinel.
func (r *Runnable[S]) advance(ctx context.Context, from string, state S, report func(string, S) error) (string, error) {
	_, next, err := r.follow(ctx, from, state, report)
	return next, err
}

// follow resolves the transition out of from, running any fan-out on the way.
func (r *Runnable[S]) follow(ctx context.Context, from string, state S, report func(string, S) error) (S, string, error) {
	t := r.transitions[from]
	switch {
	case t.edge != "":
		return state, t.edge, nil
	case t.conditional != nil:
		label := t.conditional.branch(state)
		target, ok := t.conditional.routes[label]
		if !ok {
			return state, "", core.NewNodeError(from, core.ErrConfiguration(core.CodeUnmappedLabel,
				fmt.Sprintf("branch returned undeclared label %q", label)))
		}
		if r.logger != nil {
			r.logger.Debug("graph: branch selected", "from", from, "label", label, "to", target)
		}
		return state, target, nil
	case t.fanOut != nil:
		merged, err := r.runFanOut(ctx, t.fanOut, state, report)
		if err != nil {
			return state, "", err
		}
		return merged, t.fanOut.join, nil
	}
	return state, "", core.NewNodeError(from, core.ErrConfiguration(core.CodeMissingEdge, "no transition"))
}

type branchResult[S any] struct {
	name  string
	state S
}

// runFanOut executes every branch concurrently and waits for all of them.
// Results are discarded if the run was cancelled before the join.
func (r *Runnable[S]) runFanOut(ctx context.Context, fo *fanOut[S], base S, report func(string, S) error) (S, error) {
	p := pool.NewWithResults[branchResult[S]]().WithErrors()
	for _, name := range fo.branches {
		name := name
		input := r.copyState(base)
		p.Go(func() (branchResult[S], error) {
			out, err := r.invoke(ctx, name, input)
			if err != nil {
				return branchResult[S]{}, err
			}
			if err := report(name, out); err != nil {
				return branchResult[S]{}, core.NewNodeError(name, err)
			}
			return branchResult[S]{name: name, state: out}, nil
		})
	}
	results, err := p.Wait()
	if cerr := ctx.Err(); cerr != nil {
		return base, core.NewNodeError(fo.join,
			core.ErrState(core.CodeCancelled, "run cancelled before join").WithCause(cerr))
	}
	if err != nil {
		return base, err
	}

	byName := make(map[string]S, len(results))
	for _, res := range results {
		byName[res.name] = res.state
	}
	merged := base
	for _, name := range fo.branches {
		if out, ok := byName[name]; ok {
			merged = fo.merge(merged, name, out)
		}
	}
	return merged, nil
}

// invoke runs one node, converting panics and errors into NodeErrors.
func (r *Runnable[S]) invoke(ctx context.Context, name string, state S) (out S, err error) {
	fn := r.nodes[name]
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			out = state
			err = core.NewNodeError(name, core.ErrExecution(core.CodeNodePanic, fmt.Sprintf("panic: %v", rec)))
		}
		if r.observer != nil {
			r.observer(name, time.Since(start), err)
		}
		if r.logger != nil {
			if err != nil {
				r.logger.Warn("graph: node failed", "stage", name, "error", err, "duration", time.Since(start))
			} else {
				r.logger.Debug("graph: node completed", "stage", name, "duration", time.Since(start))
			}
		}
	}()

	out, err = fn(ctx, state)
	if err != nil && core.StageOf(err) == "" {
		err = core.NewNodeError(name, err)
	}
	return out, err
}

func (r *Runnable[S]) copyState(s S) S {
	if r.snapshot != nil {
		return r.snapshot(s)
	}
	return s
}

// Nodes returns node names in registration order.
func (r *Runnable[S]) Nodes() []string {
	return append([]string(nil), r.order...)
}
