package domain

import "context"

// Category groups tools in the catalog.
type Category string

const (
	CategoryEncoders   Category = "Encoders"
	CategoryFormatters Category = "Formatters"
	CategoryGenerators Category = "Generators"
	CategoryConverters Category = "Converters"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryEncoders, CategoryFormatters, CategoryGenerators, CategoryConverters:
		return true
	}
	return false
}

// Options is the opaque per-tool configuration passed to the executor.
type Options map[string]any

// Clone returns a shallow copy. A nil receiver yields an empty, non-nil map.
func (o Options) Clone() Options {
	out := make(Options, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Merge returns a copy of o with every key in patch overwriting o's value.
// Keys absent from patch keep their previous value.
func (o Options) Merge(patch Options) Options {
	out := o.Clone()
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// ToolDescriptor is the catalog entry for a tool.
type ToolDescriptor struct {
	ID             string   `json:"id" yaml:"id"`
	Name           string   `json:"name" yaml:"name"`
	Description    string   `json:"description" yaml:"description"`
	Category       Category `json:"category" yaml:"category"`
	DefaultOptions Options  `json:"default_options" yaml:"default_options"`
}

// ToolOutput is what the executor reports for a completed call.
// A non-empty Error is a domain error: the tool ran but rejected its input.
type ToolOutput struct {
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

// ToolExecutor runs a single tool. A returned error is a transport failure,
// meaning the call could not complete at all.
type ToolExecutor interface {
	Execute(ctx context.Context, toolID, value string, opts Options) (ToolOutput, error)
}

// ToolCatalog is the read-only view of registered tools.
type ToolCatalog interface {
	Get(id string) (ToolDescriptor, bool)
	List() []ToolDescriptor
}
