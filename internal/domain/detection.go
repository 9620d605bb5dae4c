package domain

import "context"

// DetectionResult is a detector's recommendation for a piece of text.
type DetectionResult struct {
	ToolID         string  `json:"tool_id"`
	Confidence     float64 `json:"confidence"`
	InitialOptions Options `json:"initial_options,omitempty"`
}

// ActiveSuggestion pairs a detection with the exact text it was computed from,
// so consumers can check the source still holds that text before acting.
type ActiveSuggestion struct {
	Result DetectionResult `json:"result"`
	Text   string          `json:"text"`
}

// Matches reports whether text is the same text the suggestion was built from.
func (s ActiveSuggestion) Matches(text string) bool { return s.Text == text }

// Detector classifies arbitrary text. A nil result with a nil error means
// nothing applicable was found; an error means the call itself failed.
type Detector interface {
	Detect(ctx context.Context, text string) (*DetectionResult, error)
}

// TextSource yields the latest external text, typically the clipboard.
type TextSource interface {
	ReadText(ctx context.Context) (string, error)
}
