package graph

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamxurulin/xu-AI-Zero/internal/core"
)

type counterState struct {
	Visits []string
	N      int
	Parts  map[string]int
}

func visit(name string) NodeFunc[counterState] {
	return func(_ context.Context, s counterState) (counterState, error) {
		s.Visits = append(append([]string(nil), s.Visits...), name)
		s.N++
		return s, nil
	}
}

func TestCompile_UnmappedLabelIsConfigurationError(t *testing.T) {
	g := New[counterState]().
		AddNode("a", visit("a")).
		AddEdge(Start, "a").
		AddConditionalEdge("a", func(counterState) string { return "yes" },
			map[string]string{"yes": End}, "yes", "no")

	_, err := g.Compile()
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatConfiguration))
	assert.True(t, errors.Is(err, core.ErrConfiguration(core.CodeUnmappedLabel, "")))
}

func TestCompile_StructuralErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Graph[counterState]
		code  string
	}{
		{
			name: "unknown target",
			build: func() *Graph[counterState] {
				return New[counterState]().AddNode("a", visit("a")).AddEdge(Start, "a").AddEdge("a", "b")
			},
			code: core.CodeUnknownNode,
		},
		{
			name: "missing outgoing edge",
			build: func() *Graph[counterState] {
				return New[counterState]().AddNode("a", visit("a")).AddEdge(Start, "a")
			},
			code: core.CodeMissingEdge,
		},
		{
			name: "unreachable node",
			build: func() *Graph[counterState] {
				return New[counterState]().
					AddNode("a", visit("a")).AddNode("orphan", visit("orphan")).
					AddEdge(Start, "a").AddEdge("a", End).AddEdge("orphan", End)
			},
			code: core.CodeUnreachableNode,
		},
		{
			name: "reserved name",
			build: func() *Graph[counterState] {
				return New[counterState]().AddNode(End, visit("x")).AddEdge(Start, End)
			},
			code: core.CodeReservedNode,
		},
		{
			name: "two transitions",
			build: func() *Graph[counterState] {
				return New[counterState]().AddNode("a", visit("a")).
					AddEdge(Start, "a").AddEdge("a", End).AddEdge("a", End)
			},
			code: core.CodeAmbiguousEdge,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build().Compile()
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrConfiguration(tt.code, "")), "got %v", err)
		})
	}
}

func TestRun_ConditionalLoop(t *testing.T) {
	g := New[counterState]().
		AddNode("work", visit("work")).
		AddNode("check", visit("check")).
		AddEdge(Start, "work").
		AddEdge("work", "check").
		AddConditionalEdge("check", func(s counterState) string {
			if s.N < 6 {
				return "again"
			}
			return "done"
		}, map[string]string{"again": "work", "done": End})

	r, err := g.Compile()
	require.NoError(t, err)

	final, err := r.Run(context.Background(), counterState{})
	require.NoError(t, err)
	assert.Equal(t, []string{"work", "check", "work", "check", "work", "check"}, final.Visits)
}

func TestRun_MaxStepsStopsRunawayLoop(t *testing.T) {
	g := New[counterState]().
		AddNode("spin", visit("spin")).
		AddEdge(Start, "spin").
		AddConditionalEdge("spin", func(counterState) string { return "again" },
			map[string]string{"again": "spin", "never": End})

	r, err := g.Compile(WithMaxSteps[counterState](5))
	require.NoError(t, err)

	_, err = r.Run(context.Background(), counterState{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrExecution(core.CodeMaxStepsExceeded, "")))
}

func fanOutGraph(branch func(name string) NodeFunc[counterState]) *Graph[counterState] {
	names := []string{"b1", "b2", "b3"}
	g := New[counterState]().AddNode("root", visit("root")).AddNode("join", visit("join"))
	for _, n := range names {
		g.AddNode(n, branch(n))
	}
	return g.AddEdge(Start, "root").
		AddFanOut("root", names, "join", func(base counterState, name string, out counterState) counterState {
			parts := make(map[string]int, len(base.Parts)+1)
			for k, v := range base.Parts {
				parts[k] = v
			}
			parts[name] = out.Parts[name]
			base.Parts = parts
			return base
		}).
		AddEdge("join", End)
}

func TestRun_FanOutRunsConcurrentlyAndMerges(t *testing.T) {
	var running, peak int32
	g := fanOutGraph(func(name string) NodeFunc[counterState] {
		return func(_ context.Context, s counterState) (counterState, error) {
			cur := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			s.Parts = map[string]int{name: len(name)}
			return s, nil
		}
	})
	r, err := g.Compile()
	require.NoError(t, err)

	final, err := r.Run(context.Background(), counterState{})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"b1": 2, "b2": 2, "b3": 2}, final.Parts)
	assert.Equal(t, []string{"root", "join"}, final.Visits)
	assert.Greater(t, atomic.LoadInt32(&peak), int32(1), "branches should overlap")
}

func TestRun_FanOutWaitsForAllBranchesOnFailure(t *testing.T) {
	var finished int32
	g := fanOutGraph(func(name string) NodeFunc[counterState] {
		return func(_ context.Context, s counterState) (counterState, error) {
			if name == "b1" {
				return s, errors.New("boom")
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&finished, 1)
			return s, nil
		}
	})
	r, err := g.Compile()
	require.NoError(t, err)

	_, err = r.Run(context.Background(), counterState{})
	require.Error(t, err)
	assert.Equal(t, "b1", core.StageOf(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(&finished))
}

func TestRun_CancelledBeforeJoinDiscardsBranches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := fanOutGraph(func(name string) NodeFunc[counterState] {
		return func(_ context.Context, s counterState) (counterState, error) {
			if name == "b2" {
				cancel()
			}
			s.Parts = map[string]int{name: 1}
			return s, nil
		}
	})
	r, err := g.Compile()
	require.NoError(t, err)

	final, err := r.Run(ctx, counterState{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Nil(t, final.Parts)
	assert.NotContains(t, final.Visits, "join")
}

func TestRun_PanicBecomesNodeError(t *testing.T) {
	g := New[counterState]().
		AddNode("bad", func(context.Context, counterState) (counterState, error) { panic("oops") }).
		AddEdge(Start, "bad").AddEdge("bad", End)
	r, err := g.Compile()
	require.NoError(t, err)

	_, err = r.Run(context.Background(), counterState{})
	require.Error(t, err)
	assert.Equal(t, "bad", core.StageOf(err))
	assert.True(t, errors.Is(err, core.ErrExecution(core.CodeNodePanic, "")))
}

func TestStream_EmitsStepsThenDone(t *testing.T) {
	g := fanOutGraph(func(name string) NodeFunc[counterState] { return visit(name) })
	r, err := g.Compile()
	require.NoError(t, err)

	var stages []string
	var terminal StepEvent[counterState]
	for ev := range r.Stream(context.Background(), counterState{}) {
		if ev.Kind == EventStep {
			stages = append(stages, ev.Stage)
			continue
		}
		terminal = ev
	}
	require.Len(t, stages, 5)
	assert.Equal(t, "root", stages[0])
	assert.Equal(t, "join", stages[4])
	middle := append([]string(nil), stages[1:4]...)
	sort.Strings(middle)
	assert.Equal(t, []string{"b1", "b2", "b3"}, middle)
	assert.Equal(t, EventDone, terminal.Kind)
	assert.Equal(t, 5, terminal.Index)
}

func TestStream_ErrorIsTerminal(t *testing.T) {
	g := New[counterState]().
		AddNode("a", visit("a")).
		AddNode("b", func(_ context.Context, s counterState) (counterState, error) {
			return s, core.ErrGenerationTimeout("slow")
		}).
		AddEdge(Start, "a").AddEdge("a", "b").AddEdge("b", End)
	r, err := g.Compile()
	require.NoError(t, err)

	var events []StepEvent[counterState]
	for ev := range r.Stream(context.Background(), counterState{}) {
		events = append(events, ev)
	}
	require.Len(t, events, 2)
	last := events[1]
	assert.Equal(t, EventError, last.Kind)
	assert.Equal(t, "b", last.Stage)
	assert.Equal(t, []string{"a"}, last.State.Visits)
	assert.True(t, core.IsCategory(last.Err, core.ErrCatTimeout))
}

func TestMermaid(t *testing.T) {
	g := New[counterState]().
		AddNode("a", visit("a")).
		AddEdge(Start, "a").
		AddConditionalEdge("a", func(counterState) string { return "ok" },
			map[string]string{"ok": End, "retry": "a"})
	r, err := g.Compile()
	require.NoError(t, err)

	out := r.Mermaid()
	assert.True(t, strings.HasPrefix(out, "flowchart TD\n"))
	assert.Contains(t, out, "start --> a")
	assert.Contains(t, out, "a -->|ok| stop")
	assert.Contains(t, out, "a -->|retry| a")
}

func TestRun_FailedNodeKeepsPartialState(t *testing.T) {
	g := New[counterState]().
		AddNode("a", visit("a")).
		AddNode("b", func(_ context.Context, s counterState) (counterState, error) {
			s.N = 42
			return s, errors.New("late failure")
		}).
		AddEdge(Start, "a").AddEdge("a", "b").AddEdge("b", End)
	r, err := g.Compile()
	require.NoError(t, err)

	final, err := r.Run(context.Background(), counterState{})
	require.Error(t, err)
	assert.Equal(t, "b", core.StageOf(err))
	assert.Equal(t, 42, final.N)
	assert.Equal(t, []string{"a"}, final.Visits)
}
