package runner

import (
	"errors"
	"fmt"
)

var (
	// ErrPoolTooSmall is returned when a round asks for more workers than
	// the Orchestrator's pool can run at once.
	ErrPoolTooSmall = errors.New("worker pool too small")
	// ErrInterrupted is returned when a round is cancelled while sleeping or
	// waiting for its workers to finish.
	ErrInterrupted = errors.New("interrupted")
)

// Phase names a stage of a session.
type Phase string

const (
	PhaseInit    Phase = "initializing"
	PhaseWarmup  Phase = "warm-up"
	PhaseMeasure Phase = "measuring"
)

// PhaseError reports the phase in which a session ended. Level and Round
// are set for PhaseMeasure (Round is 1-based); Round is also set for
// PhaseWarmup.
type PhaseError struct {
	Phase Phase
	Level int
	Round int
	Err   error
}

func (e *PhaseError) Error() string {
	switch e.Phase {
	case PhaseMeasure:
		return fmt.Sprintf("%s failed at %d workers, round %d: %v", e.Phase, e.Level, e.Round, e.Err)
	case PhaseWarmup:
		return fmt.Sprintf("%s failed in round %d: %v", e.Phase, e.Round, e.Err)
	default:
		return fmt.Sprintf("%s failed: %v", e.Phase, e.Err)
	}
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// PanicError wraps a value recovered from a panicking Next call.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("workload panic: %v", e.Value)
}

func (e *PanicError) ErrorKind() string { return "Workload panic" }
