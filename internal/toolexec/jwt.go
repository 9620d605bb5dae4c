package toolexec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"

	"omnitool/internal/domain"
	"omnitool/internal/jsonx"
)

// JWTDebuggerTool decodes the header and payload of a JSON Web Token without
// verifying the signature.
type JWTDebuggerTool struct{}

func (JWTDebuggerTool) ID() string { return "jwt_debugger" }

type jwtView struct {
	Header           any  `json:"header"`
	Payload          any  `json:"payload"`
	SignaturePresent bool `json:"signature_present"`
}

func (JWTDebuggerTool) Execute(value string, _ domain.Options) domain.ToolOutput {
	parts := strings.Split(strings.TrimSpace(value), ".")
	if len(parts) < 2 {
		return domain.ToolOutput{Error: "Invalid JWT format: Missing segments"}
	}

	compact, err := jsonx.Marshal(jwtView{
		Header:           DecodeSegment(parts[0]),
		Payload:          DecodeSegment(parts[1]),
		SignaturePresent: len(parts) > 2,
	})
	if err != nil {
		return domain.ToolOutput{Error: err.Error()}
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, compact, "", "  "); err != nil {
		return domain.ToolOutput{Error: err.Error()}
	}
	return domain.ToolOutput{Result: buf.String()}
}

// DecodeSegment base64url-decodes one JWT segment (padding optional) and
// parses it as JSON. It returns nil when either step fails.
func DecodeSegment(seg string) any {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(seg, "="))
	if err != nil {
		return nil
	}
	var v any
	if err := jsonx.UnmarshalNumbers(raw, &v); err != nil {
		return nil
	}
	return v
}
