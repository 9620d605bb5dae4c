package chain

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omnitool/internal/bus"
	"omnitool/internal/domain"
	"omnitool/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type call struct {
	tool  string
	value string
	opts  domain.Options
}

// scriptedExecutor replays a fixed list of responses and records every call.
type scriptedExecutor struct {
	mu        sync.Mutex
	calls     []call
	responses []scriptedResponse
}

type scriptedResponse struct {
	out domain.ToolOutput
	err error
}

func (s *scriptedExecutor) Execute(_ context.Context, toolID, value string, opts domain.Options) (domain.ToolOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call{tool: toolID, value: value, opts: opts})
	if len(s.responses) == 0 {
		return domain.ToolOutput{Result: value}, nil
	}
	r := s.responses[0]
	s.responses = s.responses[1:]
	return r.out, r.err
}

func (s *scriptedExecutor) Calls() []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]call(nil), s.calls...)
}

func newTestEngine(exec domain.ToolExecutor) (*Engine, *metrics.ChainMetrics) {
	m := metrics.NewChainMetrics(metrics.NewMetricsCollector())
	return NewEngine(EngineConfig{Executor: exec, Metrics: m, Logger: testLogger()}), m
}

func TestEngine_FeedsOutputForward(t *testing.T) {
	exec := &scriptedExecutor{responses: []scriptedResponse{
		{out: domain.ToolOutput{Result: `{"a": 1}`}},
		{out: domain.ToolOutput{Result: "{\n  \"a\": 1\n}"}},
	}}
	eng, m := newTestEngine(exec)

	steps := []domain.ChainStep{
		{ToolID: "base64", Options: domain.Options{"action": "decode"}},
		{ToolID: "json_formatter", Options: domain.Options{"indent": 2, "minify": false}},
	}
	results := eng.Run(context.Background(), "eyJhIjogMX0=", steps)

	require.Len(t, results, 2)
	assert.Equal(t, domain.StepResult{Output: `{"a": 1}`}, results[0])
	assert.Equal(t, domain.StepResult{Output: "{\n  \"a\": 1\n}"}, results[1])

	calls := exec.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "base64", calls[0].tool)
	assert.Equal(t, "eyJhIjogMX0=", calls[0].value)
	assert.Equal(t, "decode", calls[0].opts["action"])
	assert.Equal(t, "json_formatter", calls[1].tool)
	assert.Equal(t, `{"a": 1}`, calls[1].value)

	assert.Equal(t, int64(1), m.Runs.Value())
	assert.Equal(t, int64(2), m.StepExecutions.Value())
	assert.Equal(t, int64(0), m.RunsInFlight.Value())
}

func TestEngine_DomainErrorSkipsLaterSteps(t *testing.T) {
	exec := &scriptedExecutor{responses: []scriptedResponse{
		{out: domain.ToolOutput{Error: "Invalid Base64"}},
	}}
	eng, m := newTestEngine(exec)

	steps := []domain.ChainStep{
		{ToolID: "base64", Options: domain.Options{"action": "decode"}},
		{ToolID: "json_formatter"},
		{ToolID: "url_encoder"},
	}
	results := eng.Run(context.Background(), "invalid-data", steps)

	assert.Equal(t, []domain.StepResult{
		{Output: "", Error: "Invalid Base64"},
		{},
		{},
	}, results)
	assert.Len(t, exec.Calls(), 1)
	assert.Equal(t, int64(1), m.DomainErrors.Value())
	assert.Equal(t, int64(2), m.SkippedSteps.Value())
}

func TestEngine_DomainErrorMidChainSkipsEveryLaterStep(t *testing.T) {
	exec := &scriptedExecutor{responses: []scriptedResponse{
		{out: domain.ToolOutput{Result: "ok"}},
		{out: domain.ToolOutput{Error: "Invalid Base64"}},
	}}
	eng, m := newTestEngine(exec)

	steps := []domain.ChainStep{
		{ToolID: "url_encoder"},
		{ToolID: "base64", Options: domain.Options{"action": "decode"}},
		{ToolID: "json_formatter"},
		{ToolID: "url_encoder"},
		{ToolID: "jwt_debugger"},
	}
	results := eng.Run(context.Background(), "x", steps)

	assert.Equal(t, []domain.StepResult{
		{Output: "ok"},
		{Error: "Invalid Base64"},
		{},
		{},
		{},
	}, results)
	calls := exec.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "base64", calls[1].tool)
	assert.Equal(t, int64(2), m.StepExecutions.Value())
	assert.Equal(t, int64(3), m.SkippedSteps.Value())
}

func TestEngine_DomainErrorResultStillFlows(t *testing.T) {
	// A failing step's (possibly empty) result becomes the current value,
	// but nothing downstream runs to observe it.
	exec := &scriptedExecutor{responses: []scriptedResponse{
		{out: domain.ToolOutput{Result: "partial", Error: "bad"}},
	}}
	eng, _ := newTestEngine(exec)

	results := eng.Run(context.Background(), "x", []domain.ChainStep{{ToolID: "a"}, {ToolID: "b"}})
	require.Len(t, results, 2)
	assert.Equal(t, "partial", results[0].Output)
	assert.Equal(t, "bad", results[0].Error)
	assert.False(t, results[1].Failed())
}

func TestEngine_TransportFailureAborts(t *testing.T) {
	exec := &scriptedExecutor{responses: []scriptedResponse{
		{out: domain.ToolOutput{Result: "first"}},
		{err: errors.New("connection refused")},
	}}
	eng, m := newTestEngine(exec)

	steps := []domain.ChainStep{{ToolID: "a"}, {ToolID: "b"}, {ToolID: "c"}, {ToolID: "d"}}
	results := eng.Run(context.Background(), "in", steps)

	assert.Equal(t, []domain.StepResult{
		{Output: "first"},
		{Error: "connection refused"},
	}, results)
	assert.Len(t, exec.Calls(), 2)
	assert.Equal(t, int64(1), m.TransportFailures.Value())
}

func TestEngine_EmptySteps(t *testing.T) {
	exec := &scriptedExecutor{}
	eng, _ := newTestEngine(exec)

	results := eng.Run(context.Background(), "anything", nil)
	assert.Empty(t, results)
	assert.Empty(t, exec.Calls())
}

func TestEngine_OptionsAreCopiedPerCall(t *testing.T) {
	mutating := executorFunc(func(_ context.Context, _, value string, opts domain.Options) (domain.ToolOutput, error) {
		opts["action"] = "changed"
		return domain.ToolOutput{Result: value}, nil
	})
	eng, _ := newTestEngine(mutating)

	steps := []domain.ChainStep{{ToolID: "base64", Options: domain.Options{"action": "encode"}}}
	eng.Run(context.Background(), "x", steps)
	assert.Equal(t, "encode", steps[0].Options["action"])
}

func TestEngine_StepTimeout(t *testing.T) {
	slow := executorFunc(func(ctx context.Context, _, _ string, _ domain.Options) (domain.ToolOutput, error) {
		select {
		case <-ctx.Done():
			return domain.ToolOutput{}, ctx.Err()
		case <-time.After(5 * time.Second):
			return domain.ToolOutput{Result: "late"}, nil
		}
	})
	m := metrics.NewChainMetrics(metrics.NewMetricsCollector())
	eng := NewEngine(EngineConfig{Executor: slow, StepTimeout: 20 * time.Millisecond, Metrics: m, Logger: testLogger()})

	results := eng.Run(context.Background(), "x", []domain.ChainStep{{ToolID: "a"}, {ToolID: "b"}})
	require.Len(t, results, 1)
	assert.Equal(t, context.DeadlineExceeded.Error(), results[0].Error)
}

func TestEngine_EmitsStepEvents(t *testing.T) {
	events := bus.NewEventBus(testLogger())
	var got []bus.Event
	events.On(bus.EventStepExecuted, func(e bus.Event) { got = append(got, e) })

	exec := &scriptedExecutor{responses: []scriptedResponse{
		{out: domain.ToolOutput{Error: "nope"}},
	}}
	eng := NewEngine(EngineConfig{
		Executor: exec,
		Events:   events,
		Metrics:  metrics.NewChainMetrics(metrics.NewMetricsCollector()),
		Logger:   testLogger(),
	})
	eng.Run(context.Background(), "x", []domain.ChainStep{{ToolID: "a"}, {ToolID: "b"}})

	// Skipped steps are not executed and so produce no event.
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].Payload["index"])
	assert.Equal(t, "a", got[0].Payload["tool"])
	assert.Equal(t, true, got[0].Payload["failed"])
}

type executorFunc func(ctx context.Context, toolID, value string, opts domain.Options) (domain.ToolOutput, error)

func (f executorFunc) Execute(ctx context.Context, toolID, value string, opts domain.Options) (domain.ToolOutput, error) {
	return f(ctx, toolID, value, opts)
}
