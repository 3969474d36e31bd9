package report

// Phase is a run's position in its state machine:
// Pending → Fetching → Normalizing → Matching → Resolving → Publishing → Completed,
// with Failed reachable from every non-terminal phase.
type Phase string

// Run phases.
const (
	Pending     Phase = "pending"
	Fetching    Phase = "fetching"
	Normalizing Phase = "normalizing"
	Matching    Phase = "matching"
	Resolving   Phase = "resolving"
	Publishing  Phase = "publishing"
	Completed   Phase = "completed"
	Failed      Phase = "failed"
)

var phaseOrder = map[Phase]int{
	Pending:     0,
	Fetching:    1,
	Normalizing: 2,
	Matching:    3,
	Resolving:   4,
	Publishing:  5,
	Completed:   6,
}

// String returns the phase name.
func (p Phase) String() string {
	return string(p)
}

// Terminal reports whether p ends a run.
func (p Phase) Terminal() bool {
	return p == Completed || p == Failed
}

// Cancellable reports whether a run in phase p still honors cancellation.
func (p Phase) Cancellable() bool {
	return !p.Terminal() && phaseOrder[p] < phaseOrder[Publishing]
}

// CanTransition reports whether a run may move from p to next.
func (p Phase) CanTransition(next Phase) bool {
	if p.Terminal() {
		return false
	}
	if next == Failed {
		return true
	}
	cur, ok := phaseOrder[p]
	if !ok {
		return false
	}
	n, ok := phaseOrder[next]
	return ok && n == cur+1
}
