// Package detect classifies free text and recommends the catalog tool most
// likely to apply to it.
package detect

import (
	"context"
	"encoding/base64"
	"net/url"
	"regexp"
	"strings"

	"omnitool/internal/domain"
	"omnitool/internal/jsonx"
	"omnitool/internal/toolexec"
)

// Confidence scores of the builtin rules.
const (
	ConfidenceJSON    = 1.0
	ConfidenceJWT     = 0.9
	ConfidenceBase64  = 0.8
	ConfidenceURLText = 0.6
)

// minBase64Len keeps ordinary words out of the Base64 rule.
const minBase64Len = 12

var (
	base64Alphabet = regexp.MustCompile(`^[A-Za-z0-9+/=]+$`)
	jwtShape       = regexp.MustCompile(`^[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]*$`)
	percentEscape  = regexp.MustCompile(`%[0-9A-Fa-f]{2}`)
)

// Detector applies the builtin rules in order and returns the first match.
type Detector struct{}

var _ domain.Detector = Detector{}

func New() Detector { return Detector{} }

// Detect never fails; it honors ctx only to satisfy the collaborator contract.
func (Detector) Detect(ctx context.Context, text string) (*domain.DetectionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Classify(text), nil
}

// Classify returns the best recommendation for text, or nil.
func Classify(text string) *domain.DetectionResult {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil
	}
	switch {
	case isJSON(s):
		return &domain.DetectionResult{
			ToolID:         "json_formatter",
			Confidence:     ConfidenceJSON,
			InitialOptions: domain.Options{"indent": 2, "minify": false},
		}
	case isJWT(s):
		return &domain.DetectionResult{
			ToolID:         "jwt_debugger",
			Confidence:     ConfidenceJWT,
			InitialOptions: domain.Options{},
		}
	case isBase64(s):
		return &domain.DetectionResult{
			ToolID:         "base64",
			Confidence:     ConfidenceBase64,
			InitialOptions: domain.Options{"action": "decode"},
		}
	case isPercentEncoded(s):
		return &domain.DetectionResult{
			ToolID:         "url_encoder",
			Confidence:     ConfidenceURLText,
			InitialOptions: domain.Options{"action": "decode"},
		}
	}
	return nil
}

func isJSON(s string) bool {
	object := strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")
	array := strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]")
	if !object && !array {
		return false
	}
	var v any
	return jsonx.Unmarshal([]byte(s), &v) == nil
}

func isJWT(s string) bool {
	if !jwtShape.MatchString(s) {
		return false
	}
	header, ok := toolexec.DecodeSegment(strings.SplitN(s, ".", 2)[0]).(map[string]any)
	if !ok {
		return false
	}
	_, hasAlg := header["alg"]
	return hasAlg
}

func isBase64(s string) bool {
	if len(s) < minBase64Len || !base64Alphabet.MatchString(s) {
		return false
	}
	_, err := base64.StdEncoding.Strict().DecodeString(s)
	return err == nil
}

func isPercentEncoded(s string) bool {
	if !percentEscape.MatchString(s) {
		return false
	}
	decoded, err := url.PathUnescape(s)
	return err == nil && decoded != s
}
