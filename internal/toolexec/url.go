package toolexec

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"omnitool/internal/domain"
)

// URLEncoderTool percent-encodes everything except RFC 3986 unreserved
// characters, or reverses that.
type URLEncoderTool struct{}

func (URLEncoderTool) ID() string { return "url_encoder" }

func (URLEncoderTool) Execute(value string, opts domain.Options) domain.ToolOutput {
	if optString(opts, "action", "encode") == "decode" {
		s, err := url.PathUnescape(value)
		if err != nil {
			return domain.ToolOutput{Error: "Decoding failed: " + err.Error()}
		}
		if !utf8.ValidString(s) {
			return domain.ToolOutput{Error: "Decoding failed: invalid utf-8 sequence"}
		}
		return domain.ToolOutput{Result: s}
	}
	// QueryEscape leaves exactly the unreserved set alone but writes spaces as '+'.
	return domain.ToolOutput{Result: strings.ReplaceAll(url.QueryEscape(value), "+", "%20")}
}
