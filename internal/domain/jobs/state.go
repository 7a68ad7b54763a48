package jobs

// State is a position in the ingestion job lifecycle.
type State string

const (
	StateQueued             State = "QUEUED"
	StateValidating         State = "VALIDATING"
	StateExtracting         State = "EXTRACTING"
	StateAIParsing          State = "AI_PARSING"
	StateCheckingDuplicates State = "CHECKING_DUPLICATES"
	StateAwaitingDecision   State = "AWAITING_DECISION"
	StateCreatingCourse     State = "CREATING_COURSE"
	StateCompleted          State = "COMPLETED"
	StateFailed             State = "FAILED"
	StateStale              State = "STALE"
)

var AllStates = []State{
	StateQueued,
	StateValidating,
	StateExtracting,
	StateAIParsing,
	StateCheckingDuplicates,
	StateAwaitingDecision,
	StateCreatingCourse,
	StateCompleted,
	StateFailed,
	StateStale,
}

// forward lists the non-failure edges of the lifecycle DAG.
var forward = map[State][]State{
	StateQueued:             {StateValidating},
	StateValidating:         {StateExtracting},
	StateExtracting:         {StateAIParsing},
	StateAIParsing:          {StateCheckingDuplicates},
	StateCheckingDuplicates: {StateAwaitingDecision, StateCreatingCourse},
	StateAwaitingDecision:   {StateCreatingCourse},
	StateCreatingCourse:     {StateCompleted},
}

// InFlightStates are the states a live worker holds a job in. The stale
// sweep only looks at these.
var InFlightStates = []State{
	StateValidating,
	StateExtracting,
	StateAIParsing,
	StateCheckingDuplicates,
}

// CancellableStates are the states a user cancel is honoured from.
var CancellableStates = []State{
	StateQueued,
	StateValidating,
	StateExtracting,
	StateAIParsing,
	StateCheckingDuplicates,
	StateAwaitingDecision,
}

func (s State) Valid() bool {
	for _, st := range AllStates {
		if st == s {
			return true
		}
	}
	return false
}

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateStale
}

func (s State) InFlight() bool { return containsState(InFlightStates, s) }

func (s State) Cancellable() bool { return containsState(CancellableStates, s) }

// CanTransition reports whether from -> to is an edge of the lifecycle DAG.
// Same-state "transitions" are never edges; in-stage retries are expressed as
// guarded updates that keep the state.
func CanTransition(from, to State) bool {
	if !from.Valid() || !to.Valid() || from.Terminal() {
		return false
	}
	switch to {
	case StateFailed:
		return true
	case StateStale:
		return from.InFlight()
	}
	return containsState(forward[from], to)
}

// StageProgress is the advisory progress reported on entering a state.
func StageProgress(s State) int {
	switch s {
	case StateQueued:
		return 0
	case StateValidating:
		return 5
	case StateExtracting:
		return 15
	case StateAIParsing:
		return 40
	case StateCheckingDuplicates:
		return 70
	case StateAwaitingDecision:
		return 80
	case StateCreatingCourse:
		return 85
	case StateCompleted:
		return 100
	default:
		return -1
	}
}

func containsState(list []State, s State) bool {
	for _, st := range list {
		if st == s {
			return true
		}
	}
	return false
}

func StateStrings(states []State) []string {
	out := make([]string, 0, len(states))
	for _, s := range states {
		out = append(out, string(s))
	}
	return out
}
