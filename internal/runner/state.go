package runner

import "time"

// State is a run lifecycle state.
type State string

const (
	StateInit         State = "INIT"
	StateBuilding     State = "BUILDING"
	StateWaitingReady State = "WAITING_READY"
	StateWarmup       State = "WARMUP"
	StateMeasuring    State = "MEASURING"
	StateTeardown     State = "TEARDOWN"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
)

// Terminal reports whether no further transitions are allowed.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

var allowed = map[State][]State{
	StateInit:         {StateBuilding},
	StateBuilding:     {StateWaitingReady},
	StateWaitingReady: {StateWarmup},
	StateWarmup:       {StateMeasuring},
	StateMeasuring:    {StateWarmup, StateTeardown},
	StateTeardown:     {StateDone},
}

// CanTransition reports whether from → to is a legal edge. FAILED is reachable
// from every non-terminal state.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition records one state change.
type Transition struct {
	From  State     `json:"from"`
	To    State     `json:"to"`
	At    time.Time `json:"at"`
	Error string    `json:"error,omitempty"`
}
