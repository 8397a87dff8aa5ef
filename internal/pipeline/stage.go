package pipeline

import (
	"context"
	"fmt"
)

// Stage names, in execution order.
const (
	StageAnalyze    = "Analyze"
	StageRetrieve   = "Retrieve"
	StageCritique   = "Critique"
	StageSynthesize = "Synthesize"
)

// StageStatus tracks how a stage finished.
type StageStatus string

const (
	StatusPending   StageStatus = "pending"
	StatusCompleted StageStatus = "completed"
	StatusSkipped   StageStatus = "skipped"
	StatusFailed    StageStatus = "failed"
)

// BuildFunc produces a stage prompt from the outputs of the stages it
// depends on. deps contains exactly the declared dependencies that have
// recorded output; a skipped dependency is simply absent.
type BuildFunc func(deps map[string]string) (string, error)

// Stage is one step of the reasoning pipeline.
type Stage struct {
	Name      string
	DependsOn []string
	Build     BuildFunc

	// Skip, when set, is consulted before the stage runs. A stage that
	// skips records no output and makes no model call.
	Skip func(ctx context.Context) (bool, string)
}

// StageError wraps a stage failure with the stage name that caused it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
