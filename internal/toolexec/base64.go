package toolexec

import (
	"encoding/base64"
	"strings"

	"omnitool/internal/domain"
)

// Base64Tool encodes or decodes with the standard padded alphabet.
type Base64Tool struct{}

func (Base64Tool) ID() string { return "base64" }

func (Base64Tool) Execute(value string, opts domain.Options) domain.ToolOutput {
	if optString(opts, "action", "encode") == "decode" {
		raw, err := base64.StdEncoding.Strict().DecodeString(value)
		if err != nil {
			return domain.ToolOutput{Error: "Decoding failed: " + err.Error()}
		}
		return domain.ToolOutput{Result: strings.ToValidUTF8(string(raw), "\uFFFD")}
	}
	return domain.ToolOutput{Result: base64.StdEncoding.EncodeToString([]byte(value))}
}
