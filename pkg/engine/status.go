package engine

import "fmt"

// RunStatus represents the overall status of a run.
type RunStatus string

const (
	// RunStatusPlanned indicates the queue was built but not executed.
	RunStatusPlanned RunStatus = "planned"

	// RunStatusRunning indicates the queue is executing.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded indicates every call completed successfully.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates the run stopped on a fatal error.
	RunStatusFailed RunStatus = "failed"

	// RunStatusDeclined indicates the confirmation was not given. No call ran.
	RunStatusDeclined RunStatus = "declined"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusDeclined
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusPlanned, RunStatusRunning, RunStatusSucceeded,
		RunStatusFailed, RunStatusDeclined:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// CallStatus represents the state of one queued call.
type CallStatus string

const (
	// CallStatusPending indicates the call has not started.
	CallStatusPending CallStatus = "pending"

	// CallStatusSucceeded indicates the action signalled success.
	CallStatusSucceeded CallStatus = "succeeded"

	// CallStatusFailed indicates the action signalled an error.
	CallStatusFailed CallStatus = "failed"

	// CallStatusSkipped indicates the call never started because an earlier call failed.
	CallStatusSkipped CallStatus = "skipped"
)
