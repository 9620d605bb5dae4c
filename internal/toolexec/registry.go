// Package toolexec is the builtin Tool Executor: the transformations behind
// the catalog's tool IDs, run in-process.
package toolexec

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"omnitool/internal/domain"
)

// Tool is one transformation. Failures the user should see are reported in
// the returned output, not as Go errors.
type Tool interface {
	ID() string
	Execute(value string, opts domain.Options) domain.ToolOutput
}

// Registry holds the available tools and executes them by ID.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger *slog.Logger
}

var _ domain.ToolExecutor = (*Registry)(nil)

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logger,
	}
}

// New returns a registry with every builtin tool registered.
func New(logger *slog.Logger) *Registry {
	r := NewRegistry(logger)
	r.Register(Base64Tool{})
	r.Register(JSONFormatterTool{})
	r.Register(URLEncoderTool{})
	r.Register(JWTDebuggerTool{})
	return r
}

func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.ID()] = t
	r.logger.Debug("registered tool executor", "id", t.ID())
}

func (r *Registry) Get(id string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[id]
}

// Execute runs the tool registered under toolID. An unknown ID is a domain
// error; only context cancellation is returned as a Go error.
func (r *Registry) Execute(ctx context.Context, toolID, value string, opts domain.Options) (domain.ToolOutput, error) {
	if err := ctx.Err(); err != nil {
		return domain.ToolOutput{}, err
	}
	t := r.Get(toolID)
	if t == nil {
		return domain.ToolOutput{Error: fmt.Sprintf("Tool '%s' not found", toolID)}, nil
	}
	out := t.Execute(value, opts)
	if err := ctx.Err(); err != nil {
		return domain.ToolOutput{}, err
	}
	return out, nil
}

// IDs returns the registered tool IDs, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.tools))
	for id := range r.tools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
