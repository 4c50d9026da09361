// File: internal/loop/state.go
package loop

// State is the controller's lifecycle position. Transitions only move
// forward within a run; terminal states are Completed, Cancelled,
// BudgetExhausted and Failed.
type State int

const (
	StateIdle State = iota
	StateSending
	StateParsing
	StateExecuting
	StateAwaitingContinuation
	StateCompleted
	StateCancelled
	StateBudgetExhausted
	// StateFailed means a transport failure talking to the LLM aborted the
	// run. Distinct from Cancelled, which is a requested stop.
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:                 "idle",
	StateSending:              "sending",
	StateParsing:              "parsing",
	StateExecuting:            "executing",
	StateAwaitingContinuation: "awaiting_continuation",
	StateCompleted:            "completed",
	StateCancelled:            "cancelled",
	StateBudgetExhausted:      "budget_exhausted",
	StateFailed:               "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether the state ends the run.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateBudgetExhausted, StateFailed:
		return true
	}
	return false
}
