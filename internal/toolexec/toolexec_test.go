package toolexec

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omnitool/internal/domain"
)

const (
	sampleJWTHeader  = "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9"
	sampleJWTPayload = "eyJzdWIiOiIxMjM0NTY3ODkwIiwibmFtZSI6IkpvaG4gRG9lIiwiaWF0IjoxNTE2MjM5MDIyfQ"
	sampleJWTSig     = "SflKxwRJSMeKKF2QT4fwpMeJf36POk6yJV_adQssw5c"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestBuiltinTools(t *testing.T) {
	tests := []struct {
		name    string
		tool    Tool
		value   string
		opts    domain.Options
		want    string
		wantErr string // prefix of the domain error, empty for success
	}{
		{"base64 encode", Base64Tool{}, "Hello World!", domain.Options{"action": "encode"}, "SGVsbG8gV29ybGQh", ""},
		{"base64 default action", Base64Tool{}, "Hello World!", nil, "SGVsbG8gV29ybGQh", ""},
		{"base64 decode", Base64Tool{}, "eyJhIjogMX0=", domain.Options{"action": "decode"}, `{"a": 1}`, ""},
		{"base64 decode invalid", Base64Tool{}, "invalid-data", domain.Options{"action": "decode"}, "", "Decoding failed: "},

		{"json indent", JSONFormatterTool{}, `{"a":1,"b":2}`, domain.Options{"indent": 2}, "{\n  \"a\": 1,\n  \"b\": 2\n}", ""},
		{"json indent string option", JSONFormatterTool{}, `{"a":1}`, domain.Options{"indent": "4"}, "{\n    \"a\": 1\n}", ""},
		{"json indent float option", JSONFormatterTool{}, `[1]`, domain.Options{"indent": 1.0}, "[\n 1\n]", ""},
		{"json keeps key order", JSONFormatterTool{}, `{"z":1,"a":2}`, domain.Options{"minify": true}, `{"z":1,"a":2}`, ""},
		{"json minify", JSONFormatterTool{}, "{\n  \"a\": 1\n}", domain.Options{"minify": true}, `{"a":1}`, ""},
		{"json surrounding whitespace", JSONFormatterTool{}, "  {\"a\": 1}\n", nil, "{\n  \"a\": 1\n}", ""},
		{"json invalid", JSONFormatterTool{}, "not json", nil, "", "Invalid JSON: "},
		{"json trailing data", JSONFormatterTool{}, `{} {}`, nil, "", "Invalid JSON: "},

		{"url encode", URLEncoderTool{}, "a b&c=d/é~-_.", nil, "a%20b%26c%3Dd%2F%C3%A9~-_.", ""},
		{"url decode", URLEncoderTool{}, "a%20b%26c%3Dd%2F%C3%A9", domain.Options{"action": "decode"}, "a b&c=d/é", ""},
		{"url decode keeps plus", URLEncoderTool{}, "a+b", domain.Options{"action": "decode"}, "a+b", ""},
		{"url decode malformed", URLEncoderTool{}, "100%zz", domain.Options{"action": "decode"}, "", "Decoding failed: "},
		{"url decode invalid utf8", URLEncoderTool{}, "%FF", domain.Options{"action": "decode"}, "", "Decoding failed: "},

		{"jwt missing segments", JWTDebuggerTool{}, "abc", nil, "", "Invalid JWT format: Missing segments"},
		{"jwt undecodable segments", JWTDebuggerTool{}, "garbage.stuff", nil,
			"{\n  \"header\": null,\n  \"payload\": null,\n  \"signature_present\": false\n}", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.tool.Execute(tt.value, tt.opts)
			if tt.wantErr != "" {
				assert.True(t, strings.HasPrefix(out.Error, tt.wantErr), "error %q should start with %q", out.Error, tt.wantErr)
				assert.Empty(t, out.Result)
				return
			}
			assert.Empty(t, out.Error)
			assert.Equal(t, tt.want, out.Result)
		})
	}
}

func TestJWTDebugger_DecodesSegments(t *testing.T) {
	token := sampleJWTHeader + "." + sampleJWTPayload + "." + sampleJWTSig
	out := JWTDebuggerTool{}.Execute("  "+token+"\n", nil)

	require.Empty(t, out.Error)
	assert.Equal(t, `{
  "header": {
    "alg": "HS256",
    "typ": "JWT"
  },
  "payload": {
    "iat": 1516239022,
    "name": "John Doe",
    "sub": "1234567890"
  },
  "signature_present": true
}`, out.Result)
}

func TestJWTDebugger_NoSignature(t *testing.T) {
	out := JWTDebuggerTool{}.Execute(sampleJWTHeader+"."+sampleJWTPayload, nil)
	require.Empty(t, out.Error)
	assert.Contains(t, out.Result, `"signature_present": false`)
}

func TestDecodeSegment_AcceptsPadding(t *testing.T) {
	v := DecodeSegment("eyJhbGciOiJub25lIn0=")
	require.NotNil(t, v)
	assert.Equal(t, map[string]any{"alg": "none"}, v)
	assert.Nil(t, DecodeSegment("!!!"))
}

func TestRegistry_Execute(t *testing.T) {
	reg := New(testLogger())
	assert.Equal(t, []string{"base64", "json_formatter", "jwt_debugger", "url_encoder"}, reg.IDs())

	out, err := reg.Execute(context.Background(), "base64", "hi", domain.Options{"action": "encode"})
	require.NoError(t, err)
	assert.Equal(t, domain.ToolOutput{Result: "aGk="}, out)
}

func TestRegistry_UnknownToolIsDomainError(t *testing.T) {
	reg := New(testLogger())
	out, err := reg.Execute(context.Background(), "uuid_generator", "x", nil)
	require.NoError(t, err)
	assert.Equal(t, "Tool 'uuid_generator' not found", out.Error)
	assert.Empty(t, out.Result)
}

func TestRegistry_CancelledContextIsTransportFailure(t *testing.T) {
	reg := New(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := reg.Execute(ctx, "base64", "x", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
