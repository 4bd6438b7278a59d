package policy

import (
	"fmt"
	"strings"
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for errors that block the run.
	SeverityError Severity = "error"

	// SeverityCritical is for critical violations that block the run.
	SeverityCritical Severity = "critical"
)

// Blocks reports whether a violation of this severity denies the run.
func (s Severity) Blocks() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a policy rule with its Rego code. The module must
// define a "deny" set; each element is a message string or an object with
// "message" and optionally "severity".
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Call is the "group.step" name of the offending call.
	Call string `json:"call"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`

	// Details contains additional violation details.
	Details map[string]interface{} `json:"details,omitempty"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s [%s] %s: %s", v.Policy, v.Severity, v.Call, v.Message)
}

// Result represents the result of a queue evaluation.
type Result struct {
	// Allowed indicates if the queue may execute.
	Allowed bool `json:"allowed"`

	// Violations lists the blocking violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists violations that do not block the run.
	Warnings []Violation `json:"warnings,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when the policy was evaluated.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Input is the document a policy sees as "input".
type Input struct {
	Call CallInput `json:"call"`

	Context Context `json:"context"`
}

// CallInput describes the call under evaluation.
type CallInput struct {
	Index  int         `json:"index"`
	Group  string      `json:"group"`
	Step   string      `json:"step"`
	Action string      `json:"action"`
	Config interface{} `json:"config"`
}

// Context provides context information for policy evaluation.
type Context struct {
	// Operation is the phase being checked, currently always "queue".
	Operation string `json:"operation"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`
}

// DeniedError is returned by CheckQueue when a blocking violation exists.
type DeniedError struct {
	Violations []Violation
}

func (e *DeniedError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return fmt.Sprintf("%d policy violation(s): %s", len(e.Violations), strings.Join(msgs, "; "))
}
