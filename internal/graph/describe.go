package graph

import (
	"fmt"
	"strings"
)

// EdgeDescription is one rendered transition.
type EdgeDescription struct {
	From     string `yaml:"from" json:"from"`
	To       string `yaml:"to" json:"to"`
	Label    string `yaml:"label,omitempty" json:"label,omitempty"`
	Parallel bool   `yaml:"parallel,omitempty" json:"parallel,omitempty"`
}

// Description is a static view of a compiled graph.
type Description struct {
	Nodes []string          `yaml:"nodes" json:"nodes"`
	Edges []EdgeDescription `yaml:"edges" json:"edges"`
}

// Describe lists nodes and transitions in a stable order.
func (r *Runnable[S]) Describe() Description {
	d := Description{Nodes: r.Nodes()}
	for _, from := range append([]string{Start}, r.order...) {
		t, ok := r.transitions[from]
		if !ok {
			continue
		}
		switch {
		case t.edge != "":
			d.Edges = append(d.Edges, EdgeDescription{From: from, To: t.edge})
		case t.conditional != nil:
			for _, label := range t.conditional.labels {
				d.Edges = append(d.Edges, EdgeDescription{From: from, To: t.conditional.routes[label], Label: label})
			}
		case t.fanOut != nil:
			for _, b := range t.fanOut.branches {
				d.Edges = append(d.Edges, EdgeDescription{From: from, To: b, Parallel: true})
				d.Edges = append(d.Edges, EdgeDescription{From: b, To: t.fanOut.join, Parallel: true})
			}
		}
	}
	return d
}

// Mermaid renders the graph as a mermaid flowchart.
func (r *Runnable[S]) Mermaid() string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	fmt.Fprintf(&b, "    %s([START])\n", mermaidID(Start))
	fmt.Fprintf(&b, "    %s([END])\n", mermaidID(End))
	for _, e := range r.Describe().Edges {
		switch {
		case e.Label != "":
			fmt.Fprintf(&b, "    %s -->|%s| %s\n", mermaidID(e.From), e.Label, mermaidID(e.To))
		case e.Parallel:
			fmt.Fprintf(&b, "    %s -.-> %s\n", mermaidID(e.From), mermaidID(e.To))
		default:
			fmt.Fprintf(&b, "    %s --> %s\n", mermaidID(e.From), mermaidID(e.To))
		}
	}
	return b.String()
}

func mermaidID(name string) string {
	switch name {
	case Start:
		return "start"
	case End:
		return "stop"
	}
	return name
}
