package persona

import "fmt"

// State tracks a candidate through the pipeline lifecycle:
//
//	Drafted → Scored → {Accepted | Rejected} → [Refining → Scored → {Accepted | BestEffort}]*
//
// Terminal states are Accepted, BestEffort and UnrefinedBudgetExceeded.
// No candidate ever returns to Drafted.
type State string

const (
	StateDrafted                 State = "drafted"
	StateScored                  State = "scored"
	StateAccepted                State = "accepted"
	StateRejected                State = "rejected"
	StateRefining                State = "refining"
	StateBestEffort              State = "best_effort"
	StateUnrefinedBudgetExceeded State = "unrefined_budget_exceeded"
)

var validTransitions = map[State][]State{
	StateDrafted: {StateScored},
	StateScored:  {StateAccepted, StateRejected, StateBestEffort},
	// Rejected -> BestEffort covers refinement that fails irrecoverably
	// (backend down mid-loop): the last scored version is still delivered.
	StateRejected: {StateRefining, StateUnrefinedBudgetExceeded, StateBestEffort},
	StateRefining: {StateScored},
}

// IsTerminal reports whether no further transition is allowed from s.
func (s State) IsTerminal() bool {
	switch s {
	case StateAccepted, StateBestEffort, StateUnrefinedBudgetExceeded:
		return true
	}
	return false
}

// TransitionTo moves the candidate to next, rejecting transitions the
// lifecycle does not allow.
func (c *Candidate) TransitionTo(next State) error {
	for _, allowed := range validTransitions[c.State] {
		if allowed == next {
			c.State = next
			return nil
		}
	}
	return fmt.Errorf("invalid candidate state transition %s -> %s (candidate %s)", c.State, next, c.ID)
}
