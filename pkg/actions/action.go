// Package actions provides the catalog of actions a step can run and the
// Task type through which the orchestrator waits for them.
package actions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/openfroyo/froyo-setup/pkg/config"
)

var (
	// ErrActionNotFound is returned when no action is registered under a name.
	ErrActionNotFound = errors.New("action not found")

	// ErrInvalidConfig is returned when an action rejects its configuration.
	ErrInvalidConfig = errors.New("invalid action config")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Action is an external operation invoked with a resolved configuration.
type Action interface {
	// Invoke starts the action. The returned task completes when the
	// action signals success or failure.
	Invoke(ctx context.Context, cfg config.Value) *Task
}

// ActionFunc adapts a blocking function to Action.
type ActionFunc func(ctx context.Context, cfg config.Value) error

// Invoke runs f in its own goroutine.
func (f ActionFunc) Invoke(ctx context.Context, cfg config.Value) *Task {
	return Go(ctx, func(ctx context.Context) error {
		return f(ctx, cfg)
	})
}

// CallbackAction adapts an action reporting through continuations.
type CallbackAction func(cfg config.Value, onSuccess func(), onError func(error))

// Invoke calls f with continuations completing the returned task.
func (f CallbackAction) Invoke(_ context.Context, cfg config.Value) *Task {
	return FromCallback(func(onSuccess func(), onError func(error)) {
		f(cfg, onSuccess, onError)
	})
}

// Registry holds actions by identifier.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]Action)}
}

// Register adds or replaces the action registered under name.
func (r *Registry) Register(name string, action Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[name] = action
}

// Get returns the action registered under name.
func (r *Registry) Get(name string) (Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	action, ok := r.actions[name]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrActionNotFound, name)
	}
	return action, nil
}

// Has reports whether an action is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.actions[name]
	return ok
}

// Names returns the registered identifiers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// decodeParams decodes cfg into params and validates the result.
func decodeParams(cfg config.Value, params any) error {
	if err := cfg.Decode(params); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := validate.Struct(params); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
