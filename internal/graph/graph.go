// Package graph implements a small compiled state graph. Nodes are functions
// over a state value, joined by plain edges, conditional edges with a fixed
// label set, and fan-outs that run several nodes concurrently before a join.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/iamxurulin/xu-AI-Zero/internal/core"
)

// Sentinel node names. Neither executes.
const (
	Start = "__start__"
	End   = "__end__"
)

// NodeFunc transforms the state. It must not retain or mutate the input
// beyond returning an updated copy. On error the returned state becomes the
// run's partial result, so a node with nothing to keep returns its input.
type NodeFunc[S any] func(ctx context.Context, state S) (S, error)

// BranchFunc inspects the state and returns one of the declared labels.
type BranchFunc[S any] func(state S) string

// MergeFunc folds a fan-out branch's output into the base state.
type MergeFunc[S any] func(base S, branch string, out S) S

type conditional[S any] struct {
	branch BranchFunc[S]
	routes map[string]string
	labels []string
}

type fanOut[S any] struct {
	branches []string
	join     string
	merge    MergeFunc[S]
}

// Graph collects nodes and transitions. Builder methods record problems
// instead of failing immediately; Compile reports all of them.
type Graph[S any] struct {
	nodes        map[string]NodeFunc[S]
	order        []string
	edges        map[string][]string
	conditionals map[string][]*conditional[S]
	fanOuts      map[string][]*fanOut[S]
	errs         []error
}

// New creates an empty graph.
func New[S any]() *Graph[S] {
	return &Graph[S]{
		nodes:        make(map[string]NodeFunc[S]),
		edges:        make(map[string][]string),
		conditionals: make(map[string][]*conditional[S]),
		fanOuts:      make(map[string][]*fanOut[S]),
	}
}

// AddNode registers a named node.
func (g *Graph[S]) AddNode(name string, fn NodeFunc[S]) *Graph[S] {
	switch {
	case name == "" || name == Start || name == End:
		g.errs = append(g.errs, core.ErrConfiguration(core.CodeReservedNode,
			fmt.Sprintf("node name %q is reserved or empty", name)))
	case fn == nil:
		g.errs = append(g.errs, core.ErrConfiguration(core.CodeUnknownNode,
			fmt.Sprintf("node %q has no function", name)))
	default:
		if _, exists := g.nodes[name]; exists {
			g.errs = append(g.errs, core.ErrConfiguration(core.CodeDuplicateNode,
				fmt.Sprintf("node %q registered twice", name)))
			return g
		}
		g.nodes[name] = fn
		g.order = append(g.order, name)
	}
	return g
}

// AddEdge adds an unconditional transition.
func (g *Graph[S]) AddEdge(from, to string) *Graph[S] {
	g.edges[from] = append(g.edges[from], to)
	return g
}

// AddConditionalEdge routes from a node by label. labels declares every value
// branch may return; when omitted the route keys are the declared labels. A
// declared label without a route fails Compile.
func (g *Graph[S]) AddConditionalEdge(from string, branch BranchFunc[S], routes map[string]string, labels ...string) *Graph[S] {
	if branch == nil {
		g.errs = append(g.errs, core.ErrConfiguration(core.CodeMissingEdge,
			fmt.Sprintf("conditional edge from %q has no branch function", from)))
		return g
	}
	if len(labels) == 0 {
		for label := range routes {
			labels = append(labels, label)
		}
		sort.Strings(labels)
	}
	copied := make(map[string]string, len(routes))
	for k, v := range routes {
		copied[k] = v
	}
	g.conditionals[from] = append(g.conditionals[from], &conditional[S]{
		branch: branch,
		routes: copied,
		labels: labels,
	})
	return g
}

// AddFanOut runs branches concurrently after from, then continues at join
// once every branch has finished. merge is applied in branch order.
func (g *Graph[S]) AddFanOut(from string, branches []string, join string, merge MergeFunc[S]) *Graph[S] {
	if merge == nil {
		g.errs = append(g.errs, core.ErrConfiguration(core.CodeMissingEdge,
			fmt.Sprintf("fan-out from %q has no merge function", from)))
		return g
	}
	g.fanOuts[from] = append(g.fanOuts[from], &fanOut[S]{
		branches: append([]string(nil), branches...),
		join:     join,
		merge:    merge,
	})
	return g
}

// transition is the single resolved outgoing transition of a node.
type transition[S any] struct {
	edge        string
	conditional *conditional[S]
	fanOut      *fanOut[S]
}

// Compile validates the graph and returns an executable form.
func (g *Graph[S]) Compile(opts ...Option[S]) (*Runnable[S], error) {
	errs := append([]error(nil), g.errs...)

	branchOf := make(map[string]string)
	for from, list := range g.fanOuts {
		for _, fo := range list {
			for _, b := range fo.branches {
				if prev, dup := branchOf[b]; dup {
					errs = append(errs, core.ErrConfiguration(core.CodeAmbiguousEdge,
						fmt.Sprintf("node %q is a branch of both %q and %q", b, prev, from)))
				}
				branchOf[b] = from
			}
		}
	}

	transitions := make(map[string]transition[S])
	sources := append([]string{Start}, g.order...)
	for _, src := range sources {
		n := len(g.edges[src]) + len(g.conditionals[src]) + len(g.fanOuts[src])
		if _, isBranch := branchOf[src]; isBranch {
			if n > 0 {
				errs = append(errs, core.ErrConfiguration(core.CodeAmbiguousEdge,
					fmt.Sprintf("fan-out branch %q must not have its own outgoing edges", src)))
			}
			continue
		}
		switch {
		case n == 0:
			errs = append(errs, core.ErrConfiguration(core.CodeMissingEdge,
				fmt.Sprintf("node %q has no outgoing edge", src)))
			continue
		case n > 1:
			errs = append(errs, core.ErrConfiguration(core.CodeAmbiguousEdge,
				fmt.Sprintf("node %q has %d outgoing transitions", src, n)))
			continue
		}
		var t transition[S]
		switch {
		case len(g.edges[src]) == 1:
			t.edge = g.edges[src][0]
			errs = append(errs, g.checkTarget(src, t.edge)...)
		case len(g.conditionals[src]) == 1:
			t.conditional = g.conditionals[src][0]
			for _, label := range t.conditional.labels {
				target, ok := t.conditional.routes[label]
				if !ok {
					errs = append(errs, core.ErrConfiguration(core.CodeUnmappedLabel,
						fmt.Sprintf("label %q from %q has no route", label, src)))
					continue
				}
				errs = append(errs, g.checkTarget(src, target)...)
			}
		default:
			t.fanOut = g.fanOuts[src][0]
			for _, b := range t.fanOut.branches {
				if _, ok := g.nodes[b]; !ok {
					errs = append(errs, core.ErrConfiguration(core.CodeUnknownNode,
						fmt.Sprintf("fan-out from %q references unknown node %q", src, b)))
				}
			}
			errs = append(errs, g.checkTarget(src, t.fanOut.join)...)
		}
		transitions[src] = t
	}

	// Edges registered from names that are not nodes.
	for from := range g.edges {
		if _, ok := g.nodes[from]; !ok && from != Start {
			errs = append(errs, core.ErrConfiguration(core.CodeUnknownNode,
				fmt.Sprintf("edge from unknown node %q", from)))
		}
	}
	for from := range g.conditionals {
		if _, ok := g.nodes[from]; !ok && from != Start {
			errs = append(errs, core.ErrConfiguration(core.CodeUnknownNode,
				fmt.Sprintf("conditional edge from unknown node %q", from)))
		}
	}
	for from := range g.fanOuts {
		if _, ok := g.nodes[from]; !ok && from != Start {
			errs = append(errs, core.ErrConfiguration(core.CodeUnknownNode,
				fmt.Sprintf("fan-out from unknown node %q", from)))
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	reached := g.reachable(transitions)
	for _, name := range g.order {
		if !reached[name] {
			errs = append(errs, core.ErrConfiguration(core.CodeUnreachableNode,
				fmt.Sprintf("node %q is unreachable from start", name)))
		}
	}
	if !reached[End] {
		errs = append(errs, core.ErrConfiguration(core.CodeNoPathToEnd, "no path from start to end"))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	r := &Runnable[S]{
		nodes:       g.nodes,
		order:       append([]string(nil), g.order...),
		transitions: transitions,
		maxSteps:    DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (g *Graph[S]) checkTarget(from, to string) []error {
	if to == End {
		return nil
	}
	if to == Start {
		return []error{core.ErrConfiguration(core.CodeReservedNode,
			fmt.Sprintf("edge from %q points back to start", from))}
	}
	if _, ok := g.nodes[to]; !ok {
		return []error{core.ErrConfiguration(core.CodeUnknownNode,
			fmt.Sprintf("edge from %q references unknown node %q", from, to))}
	}
	return nil
}

func (g *Graph[S]) reachable(transitions map[string]transition[S]) map[string]bool {
	seen := map[string]bool{Start: true}
	queue := []string{Start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range successors(transitions[cur]) {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return seen
}

func successors[S any](t transition[S]) []string {
	switch {
	case t.edge != "":
		return []string{t.edge}
	case t.conditional != nil:
		out := make([]string, 0, len(t.conditional.labels))
		for _, label := range t.conditional.labels {
			out = append(out, t.conditional.routes[label])
		}
		return out
	case t.fanOut != nil:
		return append(append([]string(nil), t.fanOut.branches...), t.fanOut.join)
	}
	return nil
}
