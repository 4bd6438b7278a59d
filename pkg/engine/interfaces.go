package engine

import (
	"context"
	"time"

	"github.com/openfroyo/froyo-setup/pkg/actions"
	"github.com/openfroyo/froyo-setup/pkg/config"
	"github.com/openfroyo/froyo-setup/pkg/mapping"
	"github.com/openfroyo/froyo-setup/pkg/template"
)

// StepResolver maps a step name to its action and configuration block.
type StepResolver interface {
	Resolve(step string) (mapping.Entry, error)
}

// ConfigResolver resolves a raw configuration block against a payload.
// It must not modify its input.
type ConfigResolver interface {
	Resolve(v config.Value, payload template.Payload) (config.Value, error)
}

// ActionProvider looks up action implementations.
type ActionProvider interface {
	Get(name string) (actions.Action, error)
}

// QueueChecker inspects a built queue before it executes. A non-nil error
// denies the run.
type QueueChecker interface {
	CheckQueue(ctx context.Context, queue Queue) error
}

// Observer receives run lifecycle notifications. Implementations must not
// block; they are called from the run goroutine.
type Observer interface {
	// RunStarted is called before the queue executes. The returned context
	// is used for the rest of the run.
	RunStarted(ctx context.Context, runID string, queue Queue) context.Context

	// CallStarted is called before a call is invoked. The returned context
	// is passed to the action.
	CallStarted(ctx context.Context, runID string, call *Call) context.Context

	// CallFinished is called once the call's task completed.
	CallFinished(ctx context.Context, runID string, call *Call, duration time.Duration, err error)

	// RunFinished is called with the final result.
	RunFinished(ctx context.Context, result *RunResult, err error)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) RunStarted(ctx context.Context, _ string, _ Queue) context.Context { return ctx }

func (NopObserver) CallStarted(ctx context.Context, _ string, _ *Call) context.Context { return ctx }

func (NopObserver) CallFinished(context.Context, string, *Call, time.Duration, error) {}

func (NopObserver) RunFinished(context.Context, *RunResult, error) {}
