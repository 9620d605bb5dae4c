package suggest

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"omnitool/internal/bus"
	"omnitool/internal/clipboard"
	"omnitool/internal/detect"
	"omnitool/internal/domain"
	"omnitool/internal/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type countingDetector struct {
	calls atomic.Int64
	err   error
	next  domain.Detector
}

func (d *countingDetector) Detect(ctx context.Context, text string) (*domain.DetectionResult, error) {
	d.calls.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	return d.next.Detect(ctx, text)
}

func newTestBridge(src domain.TextSource, det domain.Detector, events *bus.EventBus) (*Bridge, *metrics.ChainMetrics) {
	m := metrics.NewChainMetrics(metrics.NewMetricsCollector())
	return NewBridge(BridgeConfig{
		Detector: det,
		Source:   src,
		Events:   events,
		Metrics:  m,
		Logger:   testLogger(),
	}), m
}

func TestBridge_CheckSetsSuggestion(t *testing.T) {
	src := clipboard.NewStatic("SGVsbG8gV29ybGQh")
	b, m := newTestBridge(src, detect.New(), nil)

	res := b.Check(context.Background())
	require.NotNil(t, res)
	assert.Equal(t, "base64", res.ToolID)

	cur := b.Current()
	require.NotNil(t, cur)
	assert.Equal(t, "SGVsbG8gV29ybGQh", cur.Text)
	assert.Equal(t, "base64", cur.Result.ToolID)
	assert.True(t, cur.Matches("SGVsbG8gV29ybGQh"))
	assert.Equal(t, int64(1), m.SuggestionHits.Value())
}

func TestBridge_EmptyTextKeepsSuggestion(t *testing.T) {
	src := clipboard.NewStatic(`{"a": 1}`)
	det := &countingDetector{next: detect.New()}
	b, _ := newTestBridge(src, det, nil)

	require.NotNil(t, b.Check(context.Background()))

	src.Set("")
	assert.Nil(t, b.Check(context.Background()))
	assert.Equal(t, int64(1), det.calls.Load(), "empty text must not reach the detector")
	require.NotNil(t, b.Current())
	assert.Equal(t, "json_formatter", b.Current().Result.ToolID)
}

func TestBridge_NoDetectionClearsSuggestion(t *testing.T) {
	src := clipboard.NewStatic(`[1, 2]`)
	b, _ := newTestBridge(src, detect.New(), nil)
	require.NotNil(t, b.Check(context.Background()))

	src.Set("just words")
	assert.Nil(t, b.Check(context.Background()))
	assert.Nil(t, b.Current())
}

func TestBridge_SourceFailureIsLoggedNotFatal(t *testing.T) {
	src := clipboard.NewStatic(`{}`)
	b, m := newTestBridge(src, detect.New(), nil)
	require.NotNil(t, b.Check(context.Background()))

	src.Fail(errors.New("clipboard locked"))
	assert.Nil(t, b.Check(context.Background()))
	assert.NotNil(t, b.Current(), "a failed read leaves the previous suggestion")
	assert.Equal(t, int64(1), m.SuggestionErrors.Value())
}

func TestBridge_DetectorFailureIsLoggedNotFatal(t *testing.T) {
	det := &countingDetector{err: errors.New("detector offline")}
	b, m := newTestBridge(clipboard.NewStatic("anything"), det, nil)

	assert.Nil(t, b.Check(context.Background()))
	assert.Nil(t, b.Current())
	assert.Equal(t, int64(1), m.SuggestionErrors.Value())
}

func TestBridge_MinConfidence(t *testing.T) {
	b := NewBridge(BridgeConfig{
		Detector:      detect.New(),
		Source:        clipboard.NewStatic("hello%20world"),
		MinConfidence: 0.7,
		Metrics:       metrics.NewChainMetrics(metrics.NewMetricsCollector()),
		Logger:        testLogger(),
	})
	assert.Nil(t, b.Check(context.Background()))
	assert.Nil(t, b.Current())

	assert.NotNil(t, b.Offer(context.Background(), `{"x": true}`))
}

func TestBridge_CurrentIsACopy(t *testing.T) {
	b, _ := newTestBridge(clipboard.NewStatic("SGVsbG8gV29ybGQh"), detect.New(), nil)
	b.Check(context.Background())

	cur := b.Current()
	cur.Result.InitialOptions["action"] = "encode"
	assert.Equal(t, "decode", b.Current().Result.InitialOptions["action"])
}

func TestBridge_EmitsOnlyOnChange(t *testing.T) {
	events := bus.NewEventBus(testLogger())
	var mu sync.Mutex
	var changes []bus.Event
	events.On(bus.EventSuggestionChanged, func(e bus.Event) {
		mu.Lock()
		changes = append(changes, e)
		mu.Unlock()
	})

	src := clipboard.NewStatic(`{"a": 1}`)
	b, _ := newTestBridge(src, detect.New(), events)
	b.Trigger(context.Background(), ReasonStart)
	b.Trigger(context.Background(), ReasonFocus)
	b.Trigger(context.Background(), ReasonPointer)

	src.Set("plain")
	b.Check(context.Background())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, changes, 2)
	assert.Equal(t, true, changes[0].Payload["active"])
	assert.Equal(t, "json_formatter", changes[0].Payload["tool"])
	assert.Equal(t, false, changes[1].Payload["active"])
}

func TestBridge_TriggersAreNotCoalesced(t *testing.T) {
	det := &countingDetector{next: detect.New()}
	b, _ := newTestBridge(clipboard.NewStatic("SGVsbG8gV29ybGQh"), det, nil)

	b.Trigger(context.Background(), ReasonStart)
	b.Trigger(context.Background(), ReasonFocus)
	b.Trigger(context.Background(), ReasonPointer)
	assert.Equal(t, int64(3), det.calls.Load())
}

func TestBridge_PollRespectsFocus(t *testing.T) {
	det := &countingDetector{next: detect.New()}
	b, _ := newTestBridge(clipboard.NewStatic(`{"a": 1}`), det, nil)

	var focused atomic.Bool
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Poll(ctx, 5*time.Millisecond, focused.Load)
		close(done)
	}()

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int64(0), det.calls.Load(), "no checks while unfocused")

	focused.Store(true)
	require.Eventually(t, func() bool { return det.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	assert.NotNil(t, b.Current())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Poll did not stop after cancel")
	}
}

func TestBridge_Dismiss(t *testing.T) {
	b, _ := newTestBridge(clipboard.NewStatic(`{}`), detect.New(), nil)
	b.Check(context.Background())
	require.NotNil(t, b.Current())
	b.Dismiss()
	assert.Nil(t, b.Current())
}

func TestPrefill(t *testing.T) {
	s := &domain.ActiveSuggestion{
		Result: domain.DetectionResult{ToolID: "base64", Confidence: 0.8, InitialOptions: domain.Options{"action": "decode"}},
		Text:   "SGVsbG8gV29ybGQh",
	}

	input, opts, ok := Prefill(s, "base64")
	require.True(t, ok)
	assert.Equal(t, "SGVsbG8gV29ybGQh", input)
	assert.Equal(t, domain.Options{"action": "decode"}, opts)

	opts["action"] = "encode"
	assert.Equal(t, "decode", s.Result.InitialOptions["action"])

	_, _, ok = Prefill(s, "json_formatter")
	assert.False(t, ok)
	_, _, ok = Prefill(nil, "base64")
	assert.False(t, ok)
}
