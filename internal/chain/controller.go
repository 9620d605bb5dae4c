package chain

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"omnitool/internal/bus"
	"omnitool/internal/domain"
	"omnitool/internal/metrics"
)

// DefaultDebounce is the quiet period after the last edit before a chain re-runs.
const DefaultDebounce = 150 * time.Millisecond

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	Runner   domain.ChainRunner
	Catalog  domain.ToolCatalog
	Debounce time.Duration
	Input    string // initial input text
	Events   *bus.EventBus
	Metrics  *metrics.ChainMetrics
	Logger   *slog.Logger
}

// State is a snapshot of a chain definition and its latest results.
type State struct {
	Input   string              `json:"input"`
	Steps   []domain.ChainStep  `json:"steps"`
	Results []domain.StepResult `json:"results"`
	Running bool                `json:"running"`
}

// Controller owns one chain. Edits return immediately and schedule a
// debounced re-run; each edit cancels the previously scheduled run so only the
// latest definition is executed. At most one run executes at a time, and a run
// whose definition was edited while it executed has its results discarded.
type Controller struct {
	runner   domain.ChainRunner
	catalog  domain.ToolCatalog
	debounce time.Duration
	events   *bus.EventBus
	metrics  *metrics.ChainMetrics
	logger   *slog.Logger

	mu      sync.Mutex
	input   string
	steps   []domain.ChainStep
	results []domain.StepResult
	running bool
	version uint64
	timer   *time.Timer
	closed  bool

	runMu  sync.Mutex // held for the duration of a run
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewController(cfg ControllerConfig) *Controller {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Default
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		runner:   cfg.Runner,
		catalog:  cfg.Catalog,
		debounce: cfg.Debounce,
		events:   cfg.Events,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		input:    cfg.Input,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetInput replaces the chain's initial input.
func (c *Controller) SetInput(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input = text
	c.scheduleLocked()
}

// AddStep appends a step for toolID with the catalog's default options,
// shallow-merged with any overrides in order. Unknown tools are ignored.
func (c *Controller) AddStep(toolID string, overrides ...domain.Options) {
	step, ok := c.newStep(toolID, overrides...)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, step)
	c.scheduleLocked()
}

// RemoveStep deletes the step at index; later steps shift down by one.
// Out-of-range indexes are ignored.
func (c *Controller) RemoveStep(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.steps) {
		return
	}
	next := make([]domain.ChainStep, 0, len(c.steps)-1)
	next = append(next, c.steps[:index]...)
	next = append(next, c.steps[index+1:]...)
	c.steps = next
	c.scheduleLocked()
}

// UpdateStepOptions shallow-merges patch into the options of the step at index.
// Out-of-range indexes are ignored.
func (c *Controller) UpdateStepOptions(index int, patch domain.Options) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.steps) {
		return
	}
	c.steps[index].Options = c.steps[index].Options.Merge(patch)
	c.scheduleLocked()
}

// Start replaces the whole chain with a single step for toolID over input,
// the way a workspace is opened from the tool gallery or a suggestion.
func (c *Controller) Start(toolID, input string, opts domain.Options) {
	step, ok := c.newStep(toolID, opts)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.input = input
	c.steps = nil
	c.results = nil
	if ok {
		c.steps = []domain.ChainStep{step}
	}
	c.scheduleLocked()
}

// State returns a deep copy of the current chain.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Input:   c.input,
		Steps:   domain.CloneSteps(c.steps),
		Results: append([]domain.StepResult(nil), c.results...),
		Running: c.running,
	}
}

func (c *Controller) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

func (c *Controller) Steps() []domain.ChainStep {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.CloneSteps(c.steps)
}

func (c *Controller) Results() []domain.StepResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.StepResult(nil), c.results...)
}

func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Flush starts a pending scheduled run right away and waits until no run is
// in flight. Call it from the goroutine that issues edits.
func (c *Controller) Flush() {
	c.mu.Lock()
	if c.timer != nil && c.timer.Stop() {
		v := c.version
		c.timer = nil
		c.mu.Unlock()
		c.fire(v)
	} else {
		c.mu.Unlock()
	}
	c.wg.Wait()
}

// Close drops any pending run, cancels the one in flight, and waits for it.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	if c.timer != nil && c.timer.Stop() {
		c.wg.Done()
	}
	c.timer = nil
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

func (c *Controller) newStep(toolID string, overrides ...domain.Options) (domain.ChainStep, bool) {
	desc, ok := c.catalog.Get(toolID)
	if !ok {
		c.logger.Debug("ignoring unknown tool", "tool", toolID)
		return domain.ChainStep{}, false
	}
	opts := desc.DefaultOptions.Clone()
	for _, o := range overrides {
		opts = opts.Merge(o)
	}
	return domain.ChainStep{ToolID: desc.ID, Options: opts}, true
}

// scheduleLocked bumps the definition version and restarts the debounce timer.
// c.mu must be held.
func (c *Controller) scheduleLocked() {
	c.version++
	if c.closed {
		return
	}
	if c.timer != nil && c.timer.Stop() {
		c.metrics.SupersededRuns.Inc()
		c.wg.Done()
	}
	v := c.version
	c.wg.Add(1)
	c.timer = time.AfterFunc(c.debounce, func() { c.fire(v) })
}

// fire runs the chain for definition version v unless a newer edit has
// arrived. It releases one wg slot.
func (c *Controller) fire(v uint64) {
	defer c.wg.Done()

	c.runMu.Lock()
	defer c.runMu.Unlock()

	c.mu.Lock()
	if v != c.version || c.closed {
		c.mu.Unlock()
		c.metrics.SupersededRuns.Inc()
		return
	}
	c.timer = nil
	input := c.input
	steps := domain.CloneSteps(c.steps)
	if len(steps) == 0 {
		c.results = nil
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	c.events.Emit(bus.Event{
		Type:    bus.EventRunStarted,
		Source:  "chain.controller",
		Payload: map[string]any{"steps": len(steps)},
	})

	start := time.Now()
	results := c.runner.Run(c.ctx, input, steps)
	elapsed := time.Since(start)

	c.mu.Lock()
	c.running = false
	stale := v != c.version
	if !stale {
		c.results = results
	}
	c.mu.Unlock()

	if stale {
		c.metrics.SupersededRuns.Inc()
		c.logger.Debug("discarding results of outdated chain run", "version", v)
		return
	}

	c.logger.Debug("chain run complete", "steps", len(steps), "results", len(results), "elapsed", elapsed)
	c.events.Emit(bus.Event{
		Type:   bus.EventRunCompleted,
		Source: "chain.controller",
		Payload: map[string]any{
			"input":    input,
			"steps":    steps,
			"results":  append([]domain.StepResult(nil), results...),
			"duration": elapsed,
		},
	})
}
