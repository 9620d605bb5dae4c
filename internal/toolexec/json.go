package toolexec

import (
	"bytes"
	"encoding/json"
	"strings"

	"omnitool/internal/domain"
)

// JSONFormatterTool re-indents or minifies a JSON document. Key order and
// number literals are kept as written.
type JSONFormatterTool struct{}

func (JSONFormatterTool) ID() string { return "json_formatter" }

func (JSONFormatterTool) Execute(value string, opts domain.Options) domain.ToolOutput {
	src := []byte(strings.TrimSpace(value))
	var buf bytes.Buffer

	if optBool(opts, "minify", false) {
		if err := json.Compact(&buf, src); err != nil {
			return domain.ToolOutput{Error: "Invalid JSON: " + err.Error()}
		}
		return domain.ToolOutput{Result: buf.String()}
	}

	indent := strings.Repeat(" ", optUint(opts, "indent", 2))
	if err := json.Indent(&buf, src, "", indent); err != nil {
		return domain.ToolOutput{Error: "Invalid JSON: " + err.Error()}
	}
	return domain.ToolOutput{Result: buf.String()}
}
