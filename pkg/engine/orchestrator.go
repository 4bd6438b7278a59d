package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfroyo/froyo-setup/pkg/actions"
	"github.com/openfroyo/froyo-setup/pkg/config"
	"github.com/openfroyo/froyo-setup/pkg/formatters"
	"github.com/openfroyo/froyo-setup/pkg/mapping"
	"github.com/openfroyo/froyo-setup/pkg/template"
)

// confirmAnswer is the only input that proceeds past the confirmation gate.
const confirmAnswer = "y\n"

// Options configures an Orchestrator.
type Options struct {
	Steps StepResolver

	Resolver ConfigResolver

	Actions ActionProvider

	// Checker, when set, inspects the queue before confirmation.
	Checker QueueChecker

	// Observer receives lifecycle notifications. Defaults to NopObserver.
	Observer Observer

	// Input supplies the confirmation answer. Defaults to os.Stdin.
	Input io.Reader

	// Output receives the confirmation prompt. Defaults to os.Stdout.
	Output io.Writer

	Logger zerolog.Logger
}

// Orchestrator builds the call queue for a setup and executes it in order.
type Orchestrator struct {
	steps    StepResolver
	resolver ConfigResolver
	actions  ActionProvider
	checker  QueueChecker
	observer Observer
	input    io.Reader
	output   io.Writer
	logger   zerolog.Logger
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		steps:    opts.Steps,
		resolver: opts.Resolver,
		actions:  opts.Actions,
		checker:  opts.Checker,
		observer: opts.Observer,
		input:    opts.Input,
		output:   opts.Output,
		logger:   opts.Logger.With().Str("component", "orchestrator").Logger(),
	}
	if o.observer == nil {
		o.observer = NopObserver{}
	}
	if o.input == nil {
		o.input = os.Stdin
	}
	if o.output == nil {
		o.output = os.Stdout
	}
	return o
}

// selectGroups returns the explicit groups, or every group not starting
// with an underscore.
func (o *Orchestrator) selectGroups(setup *config.Setup, params RunParams) []string {
	groups := params.Groups
	if len(groups) == 0 {
		o.logger.Debug().Msg("no group set, use all groups")
		for _, name := range setup.Groups() {
			if strings.HasPrefix(name, "_") {
				continue
			}
			groups = append(groups, name)
		}
	}
	o.logger.Debug().Msgf("%d group(s) found", len(groups))
	return groups
}

// groupSteps returns the group's steps field, or its keys in order.
func groupSteps(group string, block *config.Mapping) ([]string, error) {
	v, ok := block.Get("steps")
	if !ok || v.IsNull() {
		return block.Keys(), nil
	}

	if v.Kind() != config.KindSequence {
		return nil, NewFatalError("steps must be a list of step names", nil).
			WithCode(ErrCodeSetupInvalid).WithGroup(group)
	}

	steps := make([]string, 0, len(v.Items()))
	for _, item := range v.Items() {
		if item.Kind() != config.KindString {
			return nil, NewFatalError("steps must be a list of step names", nil).
				WithCode(ErrCodeSetupInvalid).WithGroup(group).WithDetail("item", item.Text())
		}
		steps = append(steps, item.AsString())
	}
	return steps, nil
}

// BuildQueue resolves the selected groups and steps of setup into calls.
// The setup content is not modified.
func (o *Orchestrator) BuildQueue(ctx context.Context, setup *config.Setup, params RunParams) (Queue, error) {
	groups := o.selectGroups(setup, params)

	if params.Steps != nil && len(params.Steps) != len(groups) {
		return nil, NewFatalError("steps and groups cannot be matched", nil).
			WithCode(ErrCodeGroupStepMismatch).
			WithDetail("groups", len(groups)).
			WithDetail("steps", len(params.Steps))
	}

	blocks := make([]*config.Mapping, len(groups))
	selected := make([][]string, len(groups))
	total := 0
	for i, group := range groups {
		block, ok := setup.Group(group)
		if !ok {
			return nil, NewFatalError(fmt.Sprintf("group '%s' not found", group), nil).
				WithCode(ErrCodeUnknownGroup).WithGroup(group)
		}
		blocks[i] = block

		if params.Steps != nil && len(params.Steps[i]) > 0 {
			selected[i] = params.Steps[i]
		} else {
			steps, err := groupSteps(group, block)
			if err != nil {
				return nil, err
			}
			selected[i] = steps
		}
		total += len(selected[i])
	}
	o.logger.Debug().Msgf("%d step(s) found", total)

	queue := make(Queue, 0, total)
	for i, group := range groups {
		for _, step := range selected[i] {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			call, err := o.buildCall(group, blocks[i], step, params.Payload)
			if err != nil {
				return nil, err
			}
			call.Index = len(queue)
			queue = append(queue, call)

			o.logger.Info().Msgf("queue step '%s.%s'", group, step)
		}
	}

	return queue, nil
}

func (o *Orchestrator) buildCall(group string, block *config.Mapping, step string, payload template.Payload) (*Call, error) {
	entry, err := o.steps.Resolve(step)
	if err != nil {
		code := ErrCodeUnknownStep
		if !errors.Is(err, mapping.ErrUnknownStep) {
			code = ErrCodeSetupInvalid
		}
		return nil, NewFatalError("cannot resolve step", err).
			WithCode(code).WithGroup(group).WithStep(step)
	}

	raw, ok := block.Get(entry.Config)
	if !ok {
		return nil, NewFatalError(fmt.Sprintf("config '%s' not found", entry.Config), nil).
			WithCode(ErrCodeConfigNotFound).WithGroup(group).WithStep(step)
	}

	resolved, err := o.resolver.Resolve(raw, payload)
	if err != nil {
		code := ErrCodeFormatterFailed
		if errors.Is(err, formatters.ErrFormatterNotFound) {
			code = ErrCodeFormatterNotFound
		}
		return nil, NewFatalError("cannot resolve config", err).
			WithCode(code).WithGroup(group).WithStep(step)
	}

	action, err := o.actions.Get(entry.Action)
	if err != nil {
		return nil, NewFatalError(fmt.Sprintf("action '%s' not available", entry.Action), err).
			WithCode(ErrCodeActionNotFound).WithGroup(group).WithStep(step)
	}

	return &Call{
		Group:  group,
		Step:   step,
		Action: entry.Action,
		Config: resolved,
		action: action,
	}, nil
}

// Confirm prints the confirmation prompt and reads one line of input.
// Only the exact answer "y" followed by a newline proceeds; any other
// input, including end of input, declines.
func (o *Orchestrator) Confirm(ctx context.Context) (bool, error) {
	if _, err := fmt.Fprintln(o.output, "\nProcess queue? (y/n)"); err != nil {
		return false, NewFatalError("cannot write prompt", err).WithCode(ErrCodeInput)
	}

	type answer struct {
		line string
		err  error
	}
	answers := make(chan answer, 1)
	go func() {
		line, err := bufio.NewReader(o.input).ReadString('\n')
		answers <- answer{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a := <-answers:
		if a.err != nil && !errors.Is(a.err, io.EOF) {
			return false, NewFatalError("cannot read confirmation", a.err).WithCode(ErrCodeInput)
		}
		return a.line == confirmAnswer, nil
	}
}

// Execute runs the queue strictly in order, one call in flight at a time.
// The first failing call stops the run; later calls never start. Calls
// that never complete stall the run until ctx is cancelled.
func (o *Orchestrator) Execute(ctx context.Context, queue Queue) (*RunResult, error) {
	result := &RunResult{
		ID:        uuid.New().String(),
		Status:    RunStatusRunning,
		StartedAt: time.Now(),
		Calls:     make([]CallResult, len(queue)),
		Summary:   RunSummary{Total: len(queue)},
	}
	for i, call := range queue {
		result.Calls[i] = CallResult{Call: call, Status: CallStatusPending}
	}

	logger := o.logger.With().Str("run_id", result.ID).Logger()
	ctx = o.observer.RunStarted(ctx, result.ID, queue)

	logger.Info().Msg("Executing ...")

	runErr := o.execute(ctx, logger, queue, result)

	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)
	if runErr != nil {
		result.Status = RunStatusFailed
	} else {
		result.Status = RunStatusSucceeded
		logger.Info().Msg("done")
	}

	o.observer.RunFinished(ctx, result, runErr)
	return result, runErr
}

func (o *Orchestrator) execute(ctx context.Context, logger zerolog.Logger, queue Queue, result *RunResult) error {
	for i, call := range queue {
		if call.action == nil {
			return NewFatalError(fmt.Sprintf("call '%s' has no action bound", call.Name()), nil).
				WithCode(ErrCodeActionNotFound).WithGroup(call.Group).WithStep(call.Step)
		}

		callCtx := o.observer.CallStarted(ctx, result.ID, call)
		logger.Debug().Str("step", call.Name()).Str("action", call.Action).Msg("invoking action")

		start := time.Now()
		err := call.action.Invoke(callCtx, call.Config).Wait(callCtx)
		duration := time.Since(start)

		o.observer.CallFinished(callCtx, result.ID, call, duration, err)
		result.Calls[i].Duration = duration

		if err != nil {
			// error continuation
			logger.Error().Err(err).Str("step", call.Name()).Str("action", call.Action).Msg("call failed")

			result.Calls[i].Status = CallStatusFailed
			result.Calls[i].Error = err.Error()
			result.Summary.Failed++
			for j := i + 1; j < len(queue); j++ {
				result.Calls[j].Status = CallStatusSkipped
				result.Summary.Skipped++
			}

			return NewFatalError(fmt.Sprintf("call '%s' failed", call.Name()), err).
				WithCode(ErrCodeCallFailed).
				WithGroup(call.Group).
				WithStep(call.Step).
				WithDetail("action", call.Action).
				WithDetail("index", call.Index)
		}

		result.Calls[i].Status = CallStatusSucceeded
		result.Summary.Succeeded++
	}
	return nil
}

// Run builds the queue, checks it, asks for confirmation unless
// params.Execute is set and executes it. A declined confirmation returns
// a result with status declined and a nil error.
func (o *Orchestrator) Run(ctx context.Context, setup *config.Setup, params RunParams) (*RunResult, error) {
	queue, err := o.BuildQueue(ctx, setup, params)
	if err != nil {
		return nil, err
	}

	if o.checker != nil {
		if err := o.checker.CheckQueue(ctx, queue); err != nil {
			return nil, NewFatalError("queue denied by policy", err).WithCode(ErrCodePolicyDenied)
		}
	}

	if !params.Execute {
		ok, err := o.Confirm(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			o.logger.Debug().Msg("queue not confirmed")
			return declined(queue), nil
		}
	}

	return o.Execute(ctx, queue)
}

func declined(queue Queue) *RunResult {
	now := time.Now()
	result := &RunResult{
		ID:          uuid.New().String(),
		Status:      RunStatusDeclined,
		StartedAt:   now,
		CompletedAt: now,
		Calls:       make([]CallResult, len(queue)),
		Summary:     RunSummary{Total: len(queue), Skipped: len(queue)},
	}
	for i, call := range queue {
		result.Calls[i] = CallResult{Call: call, Status: CallStatusSkipped}
	}
	return result
}

var _ ActionProvider = (*actions.Registry)(nil)
var _ StepResolver = (*mapping.Registry)(nil)
var _ ConfigResolver = (*template.Engine)(nil)
