// Package workflow assembles the site generation graph and runs it. Each
// stage is a closure over explicit dependencies; the graph owns the only
// copy of the run context between stages.
package workflow

import (
	"time"

	"github.com/iamxurulin/xu-AI-Zero/internal/core"
	"github.com/iamxurulin/xu-AI-Zero/internal/events"
	"github.com/iamxurulin/xu-AI-Zero/internal/generator"
	"github.com/iamxurulin/xu-AI-Zero/internal/graph"
	"github.com/iamxurulin/xu-AI-Zero/internal/logging"
	"github.com/iamxurulin/xu-AI-Zero/internal/metrics"
	"github.com/iamxurulin/xu-AI-Zero/internal/stream"
	"github.com/iamxurulin/xu-AI-Zero/internal/workerpool"
)

// Stage names.
const (
	StagePlan         = "plan"
	StageContent      = "content"
	StageIllustration = "illustration"
	StageDiagram      = "diagram"
	StageLogo         = "logo"
	StageAggregate    = "aggregate"
	StageEnhance      = "enhance"
	StageRoute        = "route"
	StageGenerate     = "generate"
	StageQualityCheck = "quality_check"
	StageProjectBuild = "project_build"
)

// Quality routing labels.
const (
	LabelFail      = "fail"
	LabelBuild     = "build"
	LabelSkipBuild = "skip_build"
)

// Config holds workflow settings.
type Config struct {
	// OutputDir is the root under which each run's code directory is created.
	OutputDir         string
	MaxQualityRetries int
	MaxSteps          int
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		OutputDir:         ".sitegen/output",
		MaxQualityRetries: 3,
		MaxSteps:          graph.DefaultMaxSteps,
	}
}

// Deps holds every collaborator of the workflow. Builder, Classifier, Bus
// and Metrics are optional.
type Deps struct {
	Config Config

	Planner       core.AssetPlanner
	Images        core.ImageSearcher
	Illustrations core.IllustrationSearcher
	Diagrams      core.DiagramRenderer
	Logos         core.LogoGenerator
	Classifier    core.Classifier
	Checker       core.QualityChecker
	Builder       core.ProjectBuilder
	History       core.HistoryStore

	Generators  *generator.Cache
	Multiplexer *stream.Multiplexer
	Pool        *workerpool.Pool

	Bus     *events.EventBus
	Metrics *metrics.Metrics
	Logger  *logging.Logger

	// Now is the clock used for run timing; nil means time.Now.
	Now func() time.Time
}

func (d *Deps) validate() error {
	missing := func(name string) error {
		return core.ErrConfiguration(core.CodeInvalidConfig, "workflow dependency not set: "+name)
	}
	switch {
	case d.Planner == nil:
		return missing("Planner")
	case d.Images == nil:
		return missing("Images")
	case d.Illustrations == nil:
		return missing("Illustrations")
	case d.Diagrams == nil:
		return missing("Diagrams")
	case d.Logos == nil:
		return missing("Logos")
	case d.Checker == nil:
		return missing("Checker")
	case d.History == nil:
		return missing("History")
	case d.Generators == nil:
		return missing("Generators")
	case d.Multiplexer == nil:
		return missing("Multiplexer")
	case d.Pool == nil:
		return missing("Pool")
	}
	return nil
}
