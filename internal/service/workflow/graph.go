package workflow

import (
	"github.com/iamxurulin/xu-AI-Zero/internal/core"
	"github.com/iamxurulin/xu-AI-Zero/internal/graph"
	"github.com/iamxurulin/xu-AI-Zero/internal/logging"
)

// collectors are the fan-out branches run after planning.
var collectors = []string{StageContent, StageIllustration, StageDiagram, StageLogo}

// BuildGraph wires the stages into the fixed workflow graph and compiles it.
func BuildGraph(deps *Deps) (*graph.Runnable[core.WorkflowContext], error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	cfg := deps.Config
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultConfig().OutputDir
	}
	if cfg.MaxQualityRetries < 0 {
		cfg.MaxQualityRetries = 0
	}
	n := &nodes{deps: deps, cfg: cfg, logger: logger.WithComponent("workflow")}

	g := graph.New[core.WorkflowContext]().
		AddNode(StagePlan, n.plan).
		AddNode(StageContent, n.contentImages).
		AddNode(StageIllustration, n.illustrations).
		AddNode(StageDiagram, n.diagrams).
		AddNode(StageLogo, n.logos).
		AddNode(StageAggregate, n.aggregate).
		AddNode(StageEnhance, n.enhance).
		AddNode(StageRoute, n.route).
		AddNode(StageGenerate, n.generate).
		AddNode(StageQualityCheck, n.qualityCheck).
		AddNode(StageProjectBuild, n.projectBuild)

	g.AddEdge(graph.Start, StagePlan).
		AddFanOut(StagePlan, collectors, StageAggregate, mergeCollected).
		AddEdge(StageAggregate, StageEnhance).
		AddEdge(StageEnhance, StageRoute).
		AddEdge(StageRoute, StageGenerate).
		AddEdge(StageGenerate, StageQualityCheck).
		AddConditionalEdge(StageQualityCheck, routeAfterQuality, map[string]string{
			LabelFail:      StageGenerate,
			LabelBuild:     StageProjectBuild,
			LabelSkipBuild: graph.End,
		}, LabelFail, LabelBuild, LabelSkipBuild).
		AddEdge(StageProjectBuild, graph.End)

	opts := []graph.Option[core.WorkflowContext]{
		graph.WithMaxSteps[core.WorkflowContext](cfg.MaxSteps),
		graph.WithLogger[core.WorkflowContext](logger.WithComponent("graph")),
		graph.WithSnapshot(core.WorkflowContext.Clone),
	}
	if deps.Metrics != nil {
		opts = append(opts, graph.WithObserver[core.WorkflowContext](deps.Metrics.ObserveNode))
	}
	return g.Compile(opts...)
}
