package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/rs/zerolog"

	"github.com/openfroyo/froyo-setup/pkg/engine"
)

// Engine evaluates Rego policies against built queues. It implements
// engine.QueueChecker.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   zerolog.Logger
}

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy *Policy
	query  rego.PreparedEvalQuery
}

var _ engine.QueueChecker = (*Engine)(nil)

// NewEngine creates a new policy engine holding the built-in policies.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}

	if err := e.loadBuiltinPolicies(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load built-in policies: %w", err)
	}

	return e, nil
}

// CheckQueue evaluates every enabled policy against every call of queue.
// Non-blocking violations are logged as warnings; blocking ones are
// returned as a *DeniedError.
func (e *Engine) CheckQueue(ctx context.Context, queue engine.Queue) error {
	result, err := e.EvaluateQueue(ctx, queue)
	if err != nil {
		return err
	}

	for _, w := range result.Warnings {
		e.logger.Warn().
			Str("policy", w.Policy).
			Str("step", w.Call).
			Msg(w.Message)
	}

	if !result.Allowed {
		return &DeniedError{Violations: result.Violations}
	}
	return nil
}

// EvaluateQueue evaluates every enabled policy against every call of queue.
func (e *Engine) EvaluateQueue(ctx context.Context, queue engine.Queue) (*Result, error) {
	startTime := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := &Result{
		Allowed:     true,
		EvaluatedAt: startTime,
	}

	for _, name := range e.names() {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}
		result.EvaluatedPolicies = append(result.EvaluatedPolicies, name)

		for _, call := range queue {
			input := Input{
				Call: CallInput{
					Index:  call.Index,
					Group:  call.Group,
					Step:   call.Step,
					Action: call.Action,
					Config: call.Config.ToAny(),
				},
				Context: Context{
					Operation: "queue",
					Timestamp: startTime,
				},
			}

			violations, err := e.evaluatePolicy(ctx, cp, call, input)
			if err != nil {
				return nil, fmt.Errorf("policy %s failed on step %s: %w", name, call.Name(), err)
			}

			for _, v := range violations {
				if v.Severity.Blocks() {
					result.Allowed = false
					result.Violations = append(result.Violations, v)
				} else {
					result.Warnings = append(result.Warnings, v)
				}
			}
		}
	}

	result.Duration = time.Since(startTime)
	e.logger.Debug().
		Int("calls", len(queue)).
		Int("violations", len(result.Violations)).
		Int("warnings", len(result.Warnings)).
		Dur("duration", result.Duration).
		Msg("queue policy evaluation completed")

	return result, nil
}

// evaluatePolicy evaluates a single compiled policy for one call.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, call *engine.Call, input Input) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(toInput(input)))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, r := range results {
		if len(r.Expressions) == 0 {
			continue
		}
		// A set evaluates to a slice
		denySet, ok := r.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, d := range denySet {
			violations = append(violations, createViolation(cp.policy, call, d))
		}
	}

	return violations, nil
}

// toInput converts input to plain JSON types for the evaluator.
func toInput(input Input) map[string]interface{} {
	return map[string]interface{}{
		"call": map[string]interface{}{
			"index":  input.Call.Index,
			"group":  input.Call.Group,
			"step":   input.Call.Step,
			"action": input.Call.Action,
			"config": input.Call.Config,
		},
		"context": map[string]interface{}{
			"operation": input.Context.Operation,
			"timestamp": input.Context.Timestamp.Format(time.RFC3339),
		},
	}
}

// createViolation creates a Violation from a deny set element.
func createViolation(policy *Policy, call *engine.Call, result interface{}) Violation {
	violation := Violation{
		Policy:   policy.Name,
		Call:     call.Name(),
		Severity: policy.Severity,
	}

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			violation.Severity = Severity(sev)
		}
		for key, value := range v {
			if key == "message" || key == "severity" {
				continue
			}
			if violation.Details == nil {
				violation.Details = make(map[string]interface{})
			}
			violation.Details[key] = value
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}

	return violation
}

// AddPolicy compiles policy and adds it, replacing a policy of the same name.
func (e *Engine) AddPolicy(ctx context.Context, policy Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.compileAndStorePolicy(ctx, &policy)
}

// LoadPolicies loads policy files and directories.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	loader := NewLoader(e.logger)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range policies {
		if err := e.compileAndStorePolicy(ctx, &policies[i]); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}

	e.logger.Debug().
		Int("count", len(policies)).
		Msg("policies loaded")

	return nil
}

// compileAndStorePolicy compiles a policy and stores it.
func (e *Engine) compileAndStorePolicy(ctx context.Context, policy *Policy) error {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}

	r := rego.New(
		rego.ParsedModule(module),
		rego.Query(module.Package.Path.String()+".deny"),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare query: %w", err)
	}

	e.policies[policy.Name] = &compiledPolicy{
		policy: policy,
		query:  query,
	}

	e.logger.Debug().
		Str("policy", policy.Name).
		Msg("policy compiled")

	return nil
}

// loadBuiltinPolicies loads the built-in policies.
func (e *Engine) loadBuiltinPolicies(ctx context.Context) error {
	builtin := GetBuiltinPolicies()
	for i := range builtin {
		if err := e.compileAndStorePolicy(ctx, &builtin[i]); err != nil {
			return fmt.Errorf("failed to compile built-in policy %s: %w", builtin[i].Name, err)
		}
	}
	return nil
}

// names returns the policy names in sorted order. Callers hold the lock.
func (e *Engine) names() []string {
	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}

	return cp.policy, nil
}

// ListPolicies returns all loaded policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, name := range e.names() {
		policies = append(policies, *e.policies[name].policy)
	}

	return policies
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}

	cp.policy.Enabled = enabled
	e.logger.Debug().Str("policy", name).Bool("enabled", enabled).Msg("policy toggled")

	return nil
}
