// Package suggest watches an external text source and keeps a single current
// tool suggestion for it.
package suggest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"omnitool/internal/bus"
	"omnitool/internal/domain"
	"omnitool/internal/metrics"
)

// DefaultPollInterval is how often Poll re-reads the source while focused.
const DefaultPollInterval = 3 * time.Second

// Reason names the stimulus behind a check. It is only used for logging.
type Reason string

const (
	ReasonStart   Reason = "start"
	ReasonFocus   Reason = "focus"
	ReasonPointer Reason = "pointer"
	ReasonPoll    Reason = "poll"
)

// BridgeConfig configures a Bridge.
type BridgeConfig struct {
	Detector      domain.Detector
	Source        domain.TextSource
	MinConfidence float64 // detections scoring below this are treated as none
	Events        *bus.EventBus
	Metrics       *metrics.ChainMetrics
	Logger        *slog.Logger
}

// Bridge calls the detector with the latest source text and exposes the
// result as the current suggestion. Failures are logged, never returned.
type Bridge struct {
	detector      domain.Detector
	source        domain.TextSource
	minConfidence float64
	events        *bus.EventBus
	metrics       *metrics.ChainMetrics
	logger        *slog.Logger

	mu      sync.Mutex
	current *domain.ActiveSuggestion
}

func NewBridge(cfg BridgeConfig) *Bridge {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Default
	}
	return &Bridge{
		detector:      cfg.Detector,
		source:        cfg.Source,
		minConfidence: cfg.MinConfidence,
		events:        cfg.Events,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
	}
}

// Check reads the source and classifies its text. It returns the detection
// for that text, or nil when there is none or the call failed.
//
// Empty text and failures leave the current suggestion untouched; a
// successful detection that finds nothing clears it.
func (b *Bridge) Check(ctx context.Context) *domain.DetectionResult {
	text, err := b.source.ReadText(ctx)
	if err != nil {
		b.metrics.SuggestionErrors.Inc()
		b.logger.Warn("reading suggestion source failed", "err", err)
		return nil
	}
	return b.Offer(ctx, text)
}

// Offer classifies text directly, bypassing the source.
func (b *Bridge) Offer(ctx context.Context, text string) *domain.DetectionResult {
	if text == "" {
		return nil
	}

	b.metrics.SuggestionChecks.Inc()
	res, err := b.detector.Detect(ctx, text)
	if err != nil {
		b.metrics.SuggestionErrors.Inc()
		b.logger.Warn("detector failed", "err", err)
		return nil
	}
	if res != nil && res.Confidence < b.minConfidence {
		b.logger.Debug("dropping low-confidence detection", "tool", res.ToolID, "confidence", res.Confidence)
		res = nil
	}

	if res == nil {
		b.set(nil)
		return nil
	}

	b.metrics.SuggestionHits.Inc()
	active := &domain.ActiveSuggestion{Result: *res, Text: text}
	active.Result.InitialOptions = res.InitialOptions.Clone()
	b.set(active)
	return res
}

// Current returns a copy of the current suggestion, or nil.
func (b *Bridge) Current() *domain.ActiveSuggestion {
	b.mu.Lock()
	defer b.mu.Unlock()
	return copySuggestion(b.current)
}

// Dismiss clears the current suggestion.
func (b *Bridge) Dismiss() {
	b.set(nil)
}

// Trigger runs one check for a start, focus, or pointer stimulus. Triggers are
// not coalesced; each one reads the source and calls the detector.
func (b *Bridge) Trigger(ctx context.Context, reason Reason) *domain.DetectionResult {
	b.logger.Debug("suggestion check", "reason", reason)
	return b.Check(ctx)
}

// Poll checks the source every interval while focused reports true.
// Blocks until ctx is cancelled. A nil focused means always focused.
func (b *Bridge) Poll(ctx context.Context, interval time.Duration, focused func() bool) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	b.logger.Info("suggestion polling started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("suggestion polling stopped")
			return
		case <-ticker.C:
			if focused != nil && !focused() {
				continue
			}
			b.Trigger(ctx, ReasonPoll)
		}
	}
}

func (b *Bridge) set(s *domain.ActiveSuggestion) {
	b.mu.Lock()
	prev := b.current
	b.current = s
	b.mu.Unlock()

	if sameSuggestion(prev, s) {
		return
	}
	payload := map[string]any{"active": s != nil}
	if s != nil {
		payload["tool"] = s.Result.ToolID
		payload["confidence"] = s.Result.Confidence
		payload["text"] = s.Text
	}
	b.events.Emit(bus.Event{
		Type:    bus.EventSuggestionChanged,
		Source:  "suggest.bridge",
		Payload: payload,
	})
}

func sameSuggestion(a, b *domain.ActiveSuggestion) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Text == b.Text && a.Result.ToolID == b.Result.ToolID && a.Result.Confidence == b.Result.Confidence
}

func copySuggestion(s *domain.ActiveSuggestion) *domain.ActiveSuggestion {
	if s == nil {
		return nil
	}
	out := *s
	out.Result.InitialOptions = s.Result.InitialOptions.Clone()
	return &out
}

// Prefill returns the text and options a new workspace for toolID should start
// with. Only a suggestion that targets toolID contributes; otherwise ok is false.
func Prefill(s *domain.ActiveSuggestion, toolID string) (input string, opts domain.Options, ok bool) {
	if s == nil || s.Result.ToolID != toolID {
		return "", nil, false
	}
	return s.Text, s.Result.InitialOptions.Clone(), true
}
