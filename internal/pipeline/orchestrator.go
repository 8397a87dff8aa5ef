package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Invoker is the single model operation the pipeline needs.
type Invoker interface {
	Invoke(ctx context.Context, prompt string) (string, error)
	Name() string
}

// StageResult records how one stage finished.
type StageResult struct {
	Name     string
	Status   StageStatus
	Duration time.Duration
	Reason   string // set for skipped stages
}

// Result is the outcome of a pipeline run. Context always carries the
// outputs of every completed stage, including the stages that ran before
// a failure.
type Result struct {
	Context *Context
	Stages  []StageResult
	Failed  string // name of the failed stage, empty on success
}

func (r *Result) Success() bool { return r.Failed == "" }

// Orchestrator runs the reasoning stages sequentially, feeding each stage
// only the outputs of its declared dependencies.
type Orchestrator struct {
	provider     Invoker
	stages       []Stage
	stageTimeout time.Duration
}

func NewOrchestrator(provider Invoker, stages []Stage, stageTimeout time.Duration) (*Orchestrator, error) {
	if err := validateStages(stages); err != nil {
		return nil, err
	}
	return &Orchestrator{
		provider:     provider,
		stages:       stages,
		stageTimeout: stageTimeout,
	}, nil
}

// validateStages checks that every dependency refers to an earlier stage.
func validateStages(stages []Stage) error {
	seen := make(map[string]bool, len(stages))
	for _, stage := range stages {
		if stage.Name == "" {
			return fmt.Errorf("stage with empty name")
		}
		if seen[stage.Name] {
			return fmt.Errorf("duplicate stage %q", stage.Name)
		}
		for _, dep := range stage.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("stage %q depends on %q which does not precede it", stage.Name, dep)
			}
		}
		seen[stage.Name] = true
	}
	return nil
}

// Run executes the stages in order. The returned Result carries the partial
// context even when a stage fails; the error in that case is a *StageError.
func (o *Orchestrator) Run(ctx context.Context, machine *Machine) (*Result, error) {
	result := &Result{Context: NewContext()}
	skipped := make(map[string]bool, len(o.stages))

	for _, stage := range o.stages {
		if state, ok := stageState(stage.Name); ok {
			if err := machine.Advance(state); err != nil {
				return result, &StageError{Stage: stage.Name, Err: err}
			}
		}

		if stage.Skip != nil {
			if skip, reason := stage.Skip(ctx); skip {
				skipped[stage.Name] = true
				result.Stages = append(result.Stages, StageResult{
					Name:   stage.Name,
					Status: StatusSkipped,
					Reason: reason,
				})
				log.Info().Str("stage", stage.Name).Str("reason", reason).Msg("stage skipped")
				continue
			}
		}

		// A dependency that was skipped is satisfied with no entry; a
		// dependency that is simply missing means the run is broken.
		for _, dep := range stage.DependsOn {
			if !result.Context.Has(dep) && !skipped[dep] {
				err := fmt.Errorf("dependency %q has no output", dep)
				result.Failed = stage.Name
				result.Stages = append(result.Stages, StageResult{Name: stage.Name, Status: StatusFailed})
				machine.Fail(stage.Name)
				return result, &StageError{Stage: stage.Name, Err: err}
			}
		}

		output, dur, err := o.runStage(ctx, stage, result.Context)
		if err != nil {
			result.Failed = stage.Name
			result.Stages = append(result.Stages, StageResult{Name: stage.Name, Status: StatusFailed, Duration: dur})
			machine.Fail(stage.Name)
			log.Error().Err(err).Str("stage", stage.Name).Msg("stage failed")
			return result, &StageError{Stage: stage.Name, Err: err}
		}

		if err := result.Context.Set(stage.Name, output); err != nil {
			result.Failed = stage.Name
			machine.Fail(stage.Name)
			return result, &StageError{Stage: stage.Name, Err: err}
		}
		result.Stages = append(result.Stages, StageResult{Name: stage.Name, Status: StatusCompleted, Duration: dur})
		log.Debug().
			Str("stage", stage.Name).
			Dur("duration", dur).
			Int("output_chars", len(output)).
			Msg("stage completed")
	}

	if err := machine.Advance(StateCompleted); err != nil {
		return result, err
	}
	return result, nil
}

func (o *Orchestrator) runStage(ctx context.Context, stage Stage, pctx *Context) (string, time.Duration, error) {
	prompt, err := stage.Build(pctx.View(stage.DependsOn...))
	if err != nil {
		return "", 0, fmt.Errorf("build prompt: %w", err)
	}

	runCtx := ctx
	if o.stageTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.stageTimeout)
		defer cancel()
	}

	start := time.Now()
	output, err := o.provider.Invoke(runCtx, prompt)
	dur := time.Since(start)
	if err != nil {
		return "", dur, err
	}
	return output, dur, nil
}
