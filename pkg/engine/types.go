package engine

import (
	"time"

	"github.com/openfroyo/froyo-setup/pkg/actions"
	"github.com/openfroyo/froyo-setup/pkg/config"
	"github.com/openfroyo/froyo-setup/pkg/template"
)

// RunParams selects what a run processes.
type RunParams struct {
	// Groups lists the groups to process in order. Empty selects every
	// group whose name does not start with an underscore.
	Groups []string

	// Steps lists, per selected group, the steps to process in order.
	// When set it must have one entry per selected group; an empty entry
	// falls back to the group's own step list.
	Steps [][]string

	// Payload supplies the variable values for template resolution.
	Payload template.Payload

	// Execute skips the interactive confirmation.
	Execute bool
}

// Call is a deferred action invocation with its resolved configuration.
type Call struct {
	// Index is the zero-based position in the queue.
	Index int `json:"index"`

	Group string `json:"group"`

	Step string `json:"step"`

	// Action is the identifier of the action to invoke.
	Action string `json:"action"`

	// Config is the fully resolved configuration passed to the action.
	Config config.Value `json:"config"`

	action actions.Action
}

// Name returns the "group.step" name of the call.
func (c *Call) Name() string {
	return c.Group + "." + c.Step
}

// Queue is the ordered list of calls a run executes.
type Queue []*Call

// CallResult records the outcome of one call.
type CallResult struct {
	Call *Call `json:"call"`

	Status CallStatus `json:"status"`

	Duration time.Duration `json:"duration"`

	Error string `json:"error,omitempty"`
}

// RunResult describes a finished run.
type RunResult struct {
	// ID is the unique identifier for this run.
	ID string `json:"id"`

	Status RunStatus `json:"status"`

	StartedAt time.Time `json:"started_at"`

	CompletedAt time.Time `json:"completed_at"`

	Duration time.Duration `json:"duration"`

	Calls []CallResult `json:"calls"`

	Summary RunSummary `json:"summary"`
}

// RunSummary provides statistics about a run.
type RunSummary struct {
	// Total is the number of queued calls.
	Total int `json:"total"`

	Succeeded int `json:"succeeded"`

	Failed int `json:"failed"`

	// Skipped counts calls that never started.
	Skipped int `json:"skipped"`
}
