package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/froyo-setup/pkg/engine"
)

// Observer reports run lifecycle notifications to every telemetry
// component.
type Observer struct {
	t *Telemetry
}

// NewObserver creates an engine observer backed by t.
func NewObserver(t *Telemetry) *Observer {
	return &Observer{t: t}
}

var _ engine.Observer = (*Observer)(nil)

// RunStarted opens the run span and records the queue size.
func (o *Observer) RunStarted(ctx context.Context, runID string, queue engine.Queue) context.Context {
	ctx, _ = o.t.Tracer.StartRunSpan(ctx, runID, len(queue))

	o.t.Metrics.RecordRunStarted()
	o.t.Metrics.SetQueuedCalls(float64(len(queue)))

	o.t.Logger.WithRunID(runID).Debugf("run started with %d queued call(s)", len(queue))

	o.publish(Event{
		Type:    EventTypeRunStarted,
		RunID:   runID,
		TraceID: TraceID(ctx),
		Message: fmt.Sprintf("Run %s started", runID),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"queued": len(queue),
		},
	})
	return ctx
}

// CallStarted opens a span for the call.
func (o *Observer) CallStarted(ctx context.Context, runID string, call *engine.Call) context.Context {
	ctx, _ = o.t.Tracer.StartCallSpan(ctx, call.Group, call.Step, call.Action, call.Index)

	o.publish(Event{
		Type:    EventTypeCallStarted,
		RunID:   runID,
		Call:    call.Name(),
		TraceID: TraceID(ctx),
		Message: fmt.Sprintf("Call %s started", call.Name()),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"action": call.Action,
			"index":  call.Index,
		},
	})
	return ctx
}

// CallFinished closes the call span and records the call outcome.
func (o *Observer) CallFinished(ctx context.Context, runID string, call *engine.Call, duration time.Duration, err error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	status := string(engine.CallStatusSucceeded)
	event := Event{
		Type:    EventTypeCallCompleted,
		RunID:   runID,
		Call:    call.Name(),
		TraceID: TraceID(ctx),
		Message: fmt.Sprintf("Call %s completed", call.Name()),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"action":   call.Action,
			"duration": duration.Seconds(),
		},
	}

	if err != nil {
		status = string(engine.CallStatusFailed)
		RecordError(span, err)
		event.Type = EventTypeCallFailed
		event.Level = EventLevelError
		event.Message = fmt.Sprintf("Call %s failed: %v", call.Name(), err)
	} else {
		RecordSuccess(span)
	}

	o.t.Metrics.RecordCallExecution(call.Action, status, duration)
	o.t.Logger.WithRunID(runID).WithCall(call.Name(), call.Action).Debugf("call %s in %s", status, duration)
	o.publish(event)
}

// RunFinished closes the run span and records the run outcome.
func (o *Observer) RunFinished(ctx context.Context, result *engine.RunResult, err error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	span.SetAttributes(AttrRunStatus.String(string(result.Status)))

	event := Event{
		Type:    EventTypeRunCompleted,
		RunID:   result.ID,
		TraceID: TraceID(ctx),
		Message: fmt.Sprintf("Run %s completed with status: %s", result.ID, result.Status),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"status":    string(result.Status),
			"duration":  result.Duration.Seconds(),
			"succeeded": result.Summary.Succeeded,
			"failed":    result.Summary.Failed,
			"skipped":   result.Summary.Skipped,
		},
	}

	if err != nil {
		class, code := classify(err)
		span.SetAttributes(AttrErrorClass.String(class), AttrErrorCode.String(code))
		RecordError(span, err)
		o.t.Metrics.RecordError(class, code)

		event.Type = EventTypeRunFailed
		event.Level = EventLevelError
		event.Message = fmt.Sprintf("Run %s failed: %v", result.ID, err)
		event.Data["code"] = code
	} else {
		RecordSuccess(span)
	}

	o.t.Metrics.RecordRunCompleted(string(result.Status), result.Duration)
	o.t.Metrics.SetQueuedCalls(0)
	o.publish(event)
}

func (o *Observer) publish(event Event) {
	if err := o.t.Events.Publish(event); err != nil {
		o.t.Logger.WithError(err).Warn("event not published")
	}
}

// classify returns the class and code of err for metrics labels.
func classify(err error) (string, string) {
	var engineErr *engine.EngineError
	if errors.As(err, &engineErr) {
		return string(engineErr.Class), engineErr.Code
	}
	return string(engine.ErrorClassFatal), "UNKNOWN"
}
