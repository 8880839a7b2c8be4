// Package coordinator runs multi-write operations as sagas: steps execute in
// order and, when one fails, the steps that already succeeded are
// compensated in reverse.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
)

// Step represents a single unit of work in the Saga.
// Each step must have a compensating action to undo its effects.
type Step interface {
	Name() string
	Execute(ctx context.Context) error
	Compensate(ctx context.Context) error
}

// StepError is returned by Start when a step fails. Compensated lists the
// steps that were rolled back; Unrecovered the ones whose compensation failed.
type StepError struct {
	Step        string
	Err         error
	Compensated []string
	Unrecovered []string
}

func (e *StepError) Error() string {
	if len(e.Unrecovered) > 0 {
		return fmt.Sprintf("saga step %s: %v (compensation failed for %v)", e.Step, e.Err, e.Unrecovered)
	}
	return fmt.Sprintf("saga step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Orchestrator manages the execution of a collection of Steps.
type Orchestrator struct {
	name   string
	steps  []Step
	logger *slog.Logger
}

func NewOrchestrator(name string, steps []Step, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{name: name, steps: steps, logger: logger.With("saga", name)}
}

// Start runs the saga steps sequentially.
// If a step fails, it triggers the compensation of all previously successful steps.
func (o *Orchestrator) Start(ctx context.Context) error {
	var successfulSteps []Step

	for _, step := range o.steps {
		o.logger.DebugContext(ctx, "executing step", "step", step.Name())
		if err := step.Execute(ctx); err != nil {
			o.logger.WarnContext(ctx, "step failed, rolling back", "step", step.Name(), "error", err, "completed", len(successfulSteps))
			serr := &StepError{Step: step.Name(), Err: err}
			o.rollback(ctx, successfulSteps, serr)
			return serr
		}
		// LIFO
		successfulSteps = append(successfulSteps, step)
	}

	o.logger.InfoContext(ctx, "saga completed", "steps", len(successfulSteps))
	return nil
}

func (o *Orchestrator) rollback(ctx context.Context, steps []Step, serr *StepError) {
	// the caller's deadline may be what failed the step
	ctx = context.WithoutCancel(ctx)
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		if err := step.Compensate(ctx); err != nil {
			o.logger.ErrorContext(ctx, "compensation failed", "step", step.Name(), "error", err)
			serr.Unrecovered = append(serr.Unrecovered, step.Name())
			continue
		}
		serr.Compensated = append(serr.Compensated, step.Name())
	}
}
