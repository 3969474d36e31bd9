package syncflow

import (
	"sync"

	"github.com/agentstation/syncflow/pkg/logging"
	"github.com/agentstation/syncflow/pkg/report"
)

// Compile-time interface check to ensure proper implementation.
var _ Hooks = (*client)(nil)

// Hook function types for run events
type (
	// RunStartedHook is called when a run is accepted
	RunStartedHook func(runID, trigger string)

	// PhaseChangedHook is called each time the active run enters a phase
	PhaseChangedHook func(runID string, phase report.Phase)

	// RunCompletedHook is called with the finished run, including addenda
	RunCompletedHook func(entry *report.Entry)
)

// Hooks provides event callback registration.
type Hooks interface {
	// OnRunStarted registers a callback for accepted runs
	OnRunStarted(fn RunStartedHook)

	// OnPhaseChanged registers a callback for phase transitions
	OnPhaseChanged(fn PhaseChangedHook)

	// OnRunCompleted registers a callback for finished runs
	OnRunCompleted(fn RunCompletedHook)
}

// OnRunStarted implements Hooks.
func (c *client) OnRunStarted(fn RunStartedHook) {
	c.hooks.onStarted(fn)
}

// OnPhaseChanged implements Hooks.
func (c *client) OnPhaseChanged(fn PhaseChangedHook) {
	c.hooks.onPhase(fn)
}

// OnRunCompleted implements Hooks.
func (c *client) OnRunCompleted(fn RunCompletedHook) {
	c.hooks.onCompleted(fn)
}

// hooks manages event callbacks for runs
type hooks struct {
	mu        sync.RWMutex
	started   []RunStartedHook
	phase     []PhaseChangedHook
	completed []RunCompletedHook
}

// newHooks creates a new hooks instance
func newHooks() *hooks {
	return &hooks{}
}

func (h *hooks) onStarted(fn RunStartedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started = append(h.started, fn)
}

func (h *hooks) onPhase(fn PhaseChangedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.phase = append(h.phase, fn)
}

func (h *hooks) onCompleted(fn RunCompletedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.completed = append(h.completed, fn)
}

// Callbacks run on the run's goroutine, outside the hooks lock, so a callback
// may register further hooks or query the client. A panicking callback is
// logged and skipped; it never takes the run down with it.

func (h *hooks) runStarted(runID, trigger string) {
	h.mu.RLock()
	fns := append([]RunStartedHook(nil), h.started...)
	h.mu.RUnlock()
	for _, fn := range fns {
		safely("run_started", runID, func() { fn(runID, trigger) })
	}
}

func (h *hooks) phaseChanged(runID string, phase report.Phase) {
	h.mu.RLock()
	fns := append([]PhaseChangedHook(nil), h.phase...)
	h.mu.RUnlock()
	for _, fn := range fns {
		safely("phase_changed", runID, func() { fn(runID, phase) })
	}
}

func (h *hooks) runCompleted(entry *report.Entry) {
	h.mu.RLock()
	fns := append([]RunCompletedHook(nil), h.completed...)
	h.mu.RUnlock()
	for _, fn := range fns {
		safely("run_completed", entry.Report.RunID, func() { fn(entry) })
	}
}

// safely calls fn, recovering and logging a panic.
func safely(event, runID string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Str("hook", event).
				Str("run_id", runID).
				Interface("panic", r).
				Msg("Run hook panicked")
		}
	}()
	fn()
}
