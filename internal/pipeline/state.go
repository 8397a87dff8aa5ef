package pipeline

import "fmt"

// State is the lifecycle position of a review run.
type State string

const (
	StateCreated          State = "created"
	StatePlatformDetected State = "platform_detected"
	StateFetched          State = "fetched"
	StateContextPrepared  State = "context_prepared"
	StateAnalyzing        State = "analyzing"
	StateRetrieving       State = "retrieving"
	StateCritiquing       State = "critiquing"
	StateSynthesizing     State = "synthesizing"
	StateCompleted        State = "completed"
	StateFailed           State = "failed"
)

// transitions lists the legal successor states for each state. Failed is
// reachable from any non-terminal state and is handled separately.
var transitions = map[State][]State{
	StateCreated:          {StatePlatformDetected},
	StatePlatformDetected: {StateFetched},
	StateFetched:          {StateContextPrepared},
	StateContextPrepared:  {StateAnalyzing},
	StateAnalyzing:        {StateRetrieving},
	StateRetrieving:       {StateCritiquing},
	StateCritiquing:       {StateSynthesizing},
	StateSynthesizing:     {StateCompleted},
}

// Machine enforces the review lifecycle. It is not safe for concurrent
// use; a review run advances it from a single goroutine.
type Machine struct {
	current     State
	failedStage string
}

func NewMachine() *Machine {
	return &Machine{current: StateCreated}
}

func (m *Machine) Current() State { return m.current }

// FailedStage names the stage that triggered the Failed state, if any.
func (m *Machine) FailedStage() string { return m.failedStage }

func (m *Machine) Terminal() bool {
	return m.current == StateCompleted || m.current == StateFailed
}

// Advance moves to the next state, rejecting illegal transitions.
func (m *Machine) Advance(next State) error {
	if m.Terminal() {
		return fmt.Errorf("state machine is terminal at %s", m.current)
	}
	for _, allowed := range transitions[m.current] {
		if allowed == next {
			m.current = next
			return nil
		}
	}
	return fmt.Errorf("illegal transition %s -> %s", m.current, next)
}

// Fail moves to the Failed terminal state, recording the failing stage.
func (m *Machine) Fail(stage string) error {
	if m.Terminal() {
		return fmt.Errorf("state machine is terminal at %s", m.current)
	}
	m.current = StateFailed
	m.failedStage = stage
	return nil
}

// stageState maps a pipeline stage to the state entered while it runs.
func stageState(name string) (State, bool) {
	switch name {
	case StageAnalyze:
		return StateAnalyzing, true
	case StageRetrieve:
		return StateRetrieving, true
	case StageCritique:
		return StateCritiquing, true
	case StageSynthesize:
		return StateSynthesizing, true
	}
	return "", false
}
