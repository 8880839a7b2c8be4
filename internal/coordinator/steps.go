package coordinator

import "context"

// FuncStep builds a Step from two closures.
type FuncStep struct {
	StepName     string
	ExecuteFn    func(ctx context.Context) error
	CompensateFn func(ctx context.Context) error
}

func NewStep(name string, execute, compensate func(ctx context.Context) error) *FuncStep {
	return &FuncStep{StepName: name, ExecuteFn: execute, CompensateFn: compensate}
}

func (s *FuncStep) Name() string { return s.StepName }

func (s *FuncStep) Execute(ctx context.Context) error { return s.ExecuteFn(ctx) }

// Compensate is a no-op for steps built without a compensation.
func (s *FuncStep) Compensate(ctx context.Context) error {
	if s.CompensateFn == nil {
		return nil
	}
	return s.CompensateFn(ctx)
}
