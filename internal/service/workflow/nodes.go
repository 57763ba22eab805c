package workflow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/iamxurulin/xu-AI-Zero/internal/codegen"
	"github.com/iamxurulin/xu-AI-Zero/internal/core"
	"github.com/iamxurulin/xu-AI-Zero/internal/events"
	"github.com/iamxurulin/xu-AI-Zero/internal/logging"
	"github.com/iamxurulin/xu-AI-Zero/internal/stream"
	"github.com/iamxurulin/xu-AI-Zero/internal/workerpool"
)

// nodes binds stage functions to their dependencies.
type nodes struct {
	deps   *Deps
	cfg    Config
	logger *logging.Logger
}

func (n *nodes) log(wc core.WorkflowContext, stage string) *logging.Logger {
	return n.logger.WithRun(wc.RunID).WithStage(stage)
}

// plan asks the planner for asset tasks. A planner failure degrades to an
// empty plan.
func (n *nodes) plan(ctx context.Context, wc core.WorkflowContext) (core.WorkflowContext, error) {
	wc.CurrentStep = StagePlan
	plan, err := n.deps.Planner.PlanAssets(ctx, wc.OriginalPrompt)
	if err != nil {
		n.log(wc, StagePlan).Warn("asset planning failed, continuing without assets", "error", err)
		plan = core.ImageCollectionPlan{}
	}
	wc.Plan = plan
	n.log(wc, StagePlan).Info("asset plan ready", "tasks", plan.TaskCount())
	return wc, nil
}

type collectFunc func(ctx context.Context, task core.ImageTask) ([]core.ImageResource, error)

// collect runs every task on the shared pool and waits for all of them. A
// failed task contributes nothing; the others are kept.
func (n *nodes) collect(ctx context.Context, wc core.WorkflowContext, stage string, tasks []core.ImageTask, fn collectFunc) []core.ImageResource {
	if len(tasks) == 0 {
		return nil
	}
	log := n.log(wc, stage)
	futures := make([]*workerpool.Future[[]core.ImageResource], len(tasks))
	for i, task := range tasks {
		futures[i] = workerpool.Submit(n.deps.Pool, ctx, func(ctx context.Context) ([]core.ImageResource, error) {
			return fn(ctx, task)
		})
	}

	var out []core.ImageResource
	failed := 0
	for i, f := range futures {
		res, err := f.Await(ctx)
		if err != nil {
			failed++
			log.Warn("asset task failed", "task", i, "error", err)
			continue
		}
		out = append(out, res...)
	}
	log.Info("assets collected", "tasks", len(tasks), "failed", failed, "assets", len(out))
	return out
}

func (n *nodes) contentImages(ctx context.Context, wc core.WorkflowContext) (core.WorkflowContext, error) {
	wc.ContentImages = n.collect(ctx, wc, StageContent, wc.Plan.ContentTasks,
		func(ctx context.Context, t core.ImageTask) ([]core.ImageResource, error) {
			return n.deps.Images.SearchContentImages(ctx, t.Query)
		})
	return wc, nil
}

func (n *nodes) illustrations(ctx context.Context, wc core.WorkflowContext) (core.WorkflowContext, error) {
	wc.Illustrations = n.collect(ctx, wc, StageIllustration, wc.Plan.IllustrationTasks,
		func(ctx context.Context, t core.ImageTask) ([]core.ImageResource, error) {
			return n.deps.Illustrations.SearchIllustrations(ctx, t.Query)
		})
	return wc, nil
}

func (n *nodes) diagrams(ctx context.Context, wc core.WorkflowContext) (core.WorkflowContext, error) {
	wc.Diagrams = n.collect(ctx, wc, StageDiagram, wc.Plan.DiagramTasks,
		func(ctx context.Context, t core.ImageTask) ([]core.ImageResource, error) {
			return n.deps.Diagrams.RenderDiagram(ctx, t.MermaidCode, t.Description)
		})
	return wc, nil
}

func (n *nodes) logos(ctx context.Context, wc core.WorkflowContext) (core.WorkflowContext, error) {
	wc.Logos = n.collect(ctx, wc, StageLogo, wc.Plan.LogoTasks,
		func(ctx context.Context, t core.ImageTask) ([]core.ImageResource, error) {
			return n.deps.Logos.GenerateLogo(ctx, t.Description)
		})
	return wc, nil
}

// mergeCollected copies the list owned by one collector into the base.
func mergeCollected(base core.WorkflowContext, branch string, out core.WorkflowContext) core.WorkflowContext {
	switch branch {
	case StageContent:
		base.ContentImages = out.ContentImages
	case StageIllustration:
		base.Illustrations = out.Illustrations
	case StageDiagram:
		base.Diagrams = out.Diagrams
	case StageLogo:
		base.Logos = out.Logos
	}
	return base
}

func (n *nodes) aggregate(_ context.Context, wc core.WorkflowContext) (core.WorkflowContext, error) {
	wc.CurrentStep = StageAggregate
	all := make([]core.ImageResource, 0,
		len(wc.ContentImages)+len(wc.Illustrations)+len(wc.Diagrams)+len(wc.Logos))
	all = append(all, wc.ContentImages...)
	all = append(all, wc.Illustrations...)
	all = append(all, wc.Diagrams...)
	all = append(all, wc.Logos...)
	wc.AggregatedAssets = all
	return wc, nil
}

func (n *nodes) enhance(_ context.Context, wc core.WorkflowContext) (core.WorkflowContext, error) {
	wc.CurrentStep = StageEnhance
	wc.EnhancedPrompt = BuildEnhancedPrompt(wc.OriginalPrompt, wc.AggregatedAssets)
	return wc, nil
}

// route fixes the generation type. It is already set when the caller or the
// classifier chose one; otherwise the plain page strategy is used.
func (n *nodes) route(_ context.Context, wc core.WorkflowContext) (core.WorkflowContext, error) {
	wc.CurrentStep = StageRoute
	t := wc.GenerationType
	if t == "" {
		t = core.GenerationPlainPage
	}
	return wc.WithGenerationType(t)
}

// generate streams code from the session's cached generator into the run's
// output directory. After a failed quality check the fix prompt replaces
// the enhanced prompt.
func (n *nodes) generate(ctx context.Context, wc core.WorkflowContext) (core.WorkflowContext, error) {
	wc.CurrentStep = StageGenerate
	wc.Attempts++
	log := n.log(wc, StageGenerate)

	prompt := wc.EnhancedPrompt
	if prompt == "" {
		prompt = wc.OriginalPrompt
	}
	if wc.QualityResult.Failed() {
		prompt = BuildFixPrompt(*wc.QualityResult)
	}

	dir, err := codegen.OutputDir(n.cfg.OutputDir, wc.GenerationType, wc.SessionKey)
	if err != nil {
		wc.ErrorMessage = err.Error()
		return wc, err
	}
	wc.GeneratedCodeDir = dir

	handle, err := n.deps.Generators.Get(ctx, wc.SessionKey, wc.GenerationType)
	if err != nil {
		wc.ErrorMessage = err.Error()
		return wc, err
	}
	if err := n.deps.History.AppendHistory(ctx, wc.SessionKey, core.RoleUser, prompt); err != nil {
		log.Warn("appending prompt to history failed", "error", err)
	}

	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	src, err := handle.Generate(genCtx, prompt, dir)
	if err != nil {
		wc.ErrorMessage = err.Error()
		return wc, core.ErrExecution(core.CodeGenerationFailed, "starting generation").WithCause(err)
	}

	run := stream.Run{
		RunID:      wc.RunID,
		SessionKey: wc.SessionKey,
		Type:       wc.GenerationType,
		OutputDir:  dir,
		Memory:     handle,
	}
	if n.deps.Metrics != nil {
		run.OnChunk = func(string) { n.deps.Metrics.GeneratedChunks.Inc() }
	}
	log.Info("generation started", "attempt", wc.Attempts, "generator", handle.ID(), "dir", dir)
	res, err := n.deps.Multiplexer.Consume(genCtx, run, src)
	wc.LastBuild = res.Build
	if err != nil {
		wc.ErrorMessage = err.Error()
		return wc, err
	}
	wc.ErrorMessage = ""
	return wc, nil
}

// qualityCheck reviews the generated sources. A checker failure is treated
// as a pass.
func (n *nodes) qualityCheck(ctx context.Context, wc core.WorkflowContext) (core.WorkflowContext, error) {
	wc.CurrentStep = StageQualityCheck
	log := n.log(wc, StageQualityCheck)

	result := n.check(ctx, wc, log)
	wc.QualityResult = &result

	if !result.Failed() {
		log.Info("quality check passed")
		return wc, nil
	}
	if wc.Attempts-1 >= n.cfg.MaxQualityRetries {
		wc.RetriesExhausted = true
		wc.ErrorMessage = fmt.Sprintf("quality issues remain after %d retries: %s",
			n.cfg.MaxQualityRetries, strings.Join(result.Errors, "; "))
		log.Warn("quality retries exhausted, keeping last generation", "errors", len(result.Errors))
		return wc, nil
	}
	if n.deps.Metrics != nil {
		n.deps.Metrics.QualityRetries.Inc()
	}
	log.Info("quality check failed, regenerating", "errors", len(result.Errors), "attempt", wc.Attempts)
	return wc, nil
}

func (n *nodes) check(ctx context.Context, wc core.WorkflowContext, log *logging.Logger) core.QualityResult {
	source, err := CollectSources(ctx, wc.GeneratedCodeDir)
	if errors.Is(err, fs.ErrNotExist) {
		source, err = "", nil
	}
	if err != nil {
		log.Warn("reading generated sources failed, skipping quality check", "error", err)
		return core.QualityResult{IsValid: true}
	}
	if source == "" {
		return core.QualityResult{IsValid: false, Errors: []string{"no code files found"}}
	}
	result, err := n.deps.Checker.CheckQuality(ctx, source)
	if err != nil {
		log.Warn("quality checker failed, treating result as valid", "error", err)
		return core.QualityResult{IsValid: true}
	}
	return result
}

// routeAfterQuality picks the transition out of the quality check.
func routeAfterQuality(wc core.WorkflowContext) string {
	if wc.QualityResult.Failed() && !wc.RetriesExhausted {
		return LabelFail
	}
	if wc.GenerationType.RequiresBuild() {
		return LabelBuild
	}
	return LabelSkipBuild
}

// projectBuild produces the distributable output. A build that already ran
// for this directory during generation is reused. Build failure leaves the
// run pointing at the sources and does not fail it.
func (n *nodes) projectBuild(ctx context.Context, wc core.WorkflowContext) (core.WorkflowContext, error) {
	wc.CurrentStep = StageProjectBuild
	log := n.log(wc, StageProjectBuild)
	dir := wc.GeneratedCodeDir

	outcome := wc.LastBuild
	if outcome == nil || outcome.SourceDir != dir || !outcome.Succeeded() {
		outcome = n.build(ctx, wc, dir)
	}
	wc.LastBuild = outcome

	if outcome.Succeeded() {
		wc.BuildResultDir = outcome.OutputDir
		log.Info("project built", "output", outcome.OutputDir)
		return wc, nil
	}
	wc.BuildResultDir = dir
	wc.ErrorMessage = "build failed: " + outcome.Error
	log.Warn("project build failed, returning sources", "error", outcome.Error)
	return wc, nil
}

func (n *nodes) build(ctx context.Context, wc core.WorkflowContext, dir string) *core.BuildOutcome {
	out := &core.BuildOutcome{SourceDir: dir}
	if n.deps.Builder == nil {
		out.Error = "no project builder configured"
		return out
	}
	if err := n.deps.Builder.BuildProject(ctx, dir); err != nil {
		out.Error = err.Error()
		if n.deps.Bus != nil {
			n.deps.Bus.Publish(events.NewBuildFailedEvent(wc.RunID, dir, err))
		}
		return out
	}
	out.OutputDir = filepath.Join(dir, "dist")
	return out
}
