package orchestrator

import (
	"sync"
	"sync/atomic"

	"github.com/alphaforge/engine/internal/apperr"
	"github.com/alphaforge/engine/internal/events"
)

// Run is one in-flight or terminal run, keyed by RunHash. Concurrent
// identical submissions attach to the same Run and its event Buffer (spec
// §4.10 "Concurrent identical submissions").
type Run struct {
	RunHash string
	Config  RunConfig
	Buffer  *events.Buffer

	mu       sync.Mutex
	state    State
	atPhase  State // phase being executed at cancellation/failure
	failErr  *apperr.Error
	reused   bool

	cancelRequested atomic.Bool
	done            chan struct{}
}

func newRun(runHash string, cfg RunConfig) *Run {
	return &Run{
		RunHash: runHash,
		Config:  cfg,
		Buffer:  events.NewBuffer(runHash),
		state:   StateInit,
		done:    make(chan struct{}),
	}
}

// State returns the run's current state under lock.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Error returns the structured failure, if the run is in StateFailed.
func (r *Run) Error() *apperr.Error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failErr
}

// Reused reports whether this submission attached to an already-terminal
// run rather than starting a new execution (spec §6 POST /runs "reused?").
func (r *Run) Reused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reused
}

// RequestCancel sets the cooperative cancellation flag (spec §4.10
// "Cancellation"). A no-op if the run is already terminal.
func (r *Run) RequestCancel() {
	r.mu.Lock()
	terminal := isTerminal(r.state)
	r.mu.Unlock()
	if terminal {
		return
	}
	r.cancelRequested.Store(true)
}

// Done returns a channel closed when the run reaches a terminal state.
func (r *Run) Done() <-chan struct{} { return r.done }

func (r *Run) transition(s State) {
	r.mu.Lock()
	r.state = s
	r.atPhase = s
	r.mu.Unlock()
}

func (r *Run) finishTerminal(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
	close(r.done)
}

func isTerminal(s State) bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}
