// Package chain runs ordered tool pipelines and owns the editable chain state.
package chain

import (
	"context"
	"log/slog"
	"time"

	"omnitool/internal/bus"
	"omnitool/internal/domain"
	"omnitool/internal/metrics"
)

// EngineConfig configures an Engine.
type EngineConfig struct {
	Executor    domain.ToolExecutor
	StepTimeout time.Duration // per executor call; zero means no limit
	Events      *bus.EventBus // optional
	Metrics     *metrics.ChainMetrics
	Logger      *slog.Logger
}

// Engine feeds a value through a sequence of tool executions.
type Engine struct {
	exec        domain.ToolExecutor
	stepTimeout time.Duration
	events      *bus.EventBus
	metrics     *metrics.ChainMetrics
	logger      *slog.Logger
}

var _ domain.ChainRunner = (*Engine)(nil)

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Default
	}
	return &Engine{
		exec:        cfg.Executor,
		stepTimeout: cfg.StepTimeout,
		events:      cfg.Events,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}
}

// Run executes steps in order, each receiving the previous step's result.
//
// Once a step reports a domain error, every later step is skipped and gets an
// empty placeholder result; the error is not copied onto the placeholders.
// A transport failure from the executor instead ends the run immediately, so
// the returned slice is shorter than steps only in that case.
func (e *Engine) Run(ctx context.Context, input string, steps []domain.ChainStep) []domain.StepResult {
	e.metrics.Runs.Inc()
	e.metrics.RunsInFlight.Inc()
	defer e.metrics.RunsInFlight.Dec()

	results := make([]domain.StepResult, 0, len(steps))
	current := input
	halted := false

	for i, step := range steps {
		if halted {
			results = append(results, domain.StepResult{})
			e.metrics.SkippedSteps.Inc()
			continue
		}

		out, err := e.execute(ctx, step, current)
		if err != nil {
			e.metrics.TransportFailures.Inc()
			e.logger.Warn("tool executor failed, aborting chain", "step", i, "tool", step.ToolID, "err", err)
			results = append(results, domain.StepResult{Error: err.Error()})
			e.emitStep(i, step, results[len(results)-1])
			break
		}

		if out.Error != "" {
			halted = true
			e.metrics.DomainErrors.Inc()
			e.logger.Debug("step reported error", "step", i, "tool", step.ToolID, "error", out.Error)
		}
		results = append(results, domain.StepResult{Output: out.Result, Error: out.Error})
		current = out.Result
		e.emitStep(i, step, results[len(results)-1])
	}

	return results
}

func (e *Engine) execute(ctx context.Context, step domain.ChainStep, value string) (domain.ToolOutput, error) {
	if e.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.stepTimeout)
		defer cancel()
	}

	start := time.Now()
	out, err := e.exec.Execute(ctx, step.ToolID, value, step.Options.Clone())
	e.metrics.StepExecutions.Inc()
	e.metrics.StepLatency.Observe(time.Since(start).Seconds())
	return out, err
}

func (e *Engine) emitStep(index int, step domain.ChainStep, res domain.StepResult) {
	e.events.Emit(bus.Event{
		Type:   bus.EventStepExecuted,
		Source: "chain.engine",
		Payload: map[string]any{
			"index":  index,
			"tool":   step.ToolID,
			"failed": res.Failed(),
		},
	})
}
