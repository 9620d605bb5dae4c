// Package catalog holds the static registry of tools the chain can reference.
package catalog

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"omnitool/internal/domain"
)

//go:embed catalog.yaml
var builtinCatalog []byte

// Registry maps tool IDs to descriptors and remembers registration order.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	tools  map[string]domain.ToolDescriptor
	logger *slog.Logger
}

var _ domain.ToolCatalog = (*Registry)(nil)

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]domain.ToolDescriptor),
		logger: logger,
	}
}

// Default returns a registry populated from the embedded catalog.
func Default(logger *slog.Logger) *Registry {
	r := NewRegistry(logger)
	if err := r.Load(builtinCatalog); err != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
	}
	return r
}

// catalogFile is the YAML shape of a catalog document.
type catalogFile struct {
	Tools []domain.ToolDescriptor `yaml:"tools"`
}

// Load registers every tool in a YAML catalog document, in document order.
func (r *Registry) Load(data []byte) error {
	var doc catalogFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse catalog: %w", err)
	}
	for _, t := range doc.Tools {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// LoadFile registers the tools in a catalog file on disk.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read catalog %s: %w", path, err)
	}
	return r.Load(data)
}

// Register adds a descriptor. IDs must be unique and non-empty.
func (r *Registry) Register(t domain.ToolDescriptor) error {
	t.ID = strings.TrimSpace(t.ID)
	if t.ID == "" {
		return fmt.Errorf("tool id is required")
	}
	if !t.Category.Valid() {
		return fmt.Errorf("tool %s: unknown category %q", t.ID, t.Category)
	}
	t.DefaultOptions = t.DefaultOptions.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.ID]; exists {
		return fmt.Errorf("tool %s already registered", t.ID)
	}
	r.tools[t.ID] = t
	r.order = append(r.order, t.ID)
	r.logger.Debug("registered tool", "id", t.ID, "category", t.Category)
	return nil
}

// Get returns the descriptor for id. The returned options are a private copy.
func (r *Registry) Get(id string) (domain.ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[id]
	if !ok {
		return domain.ToolDescriptor{}, false
	}
	t.DefaultOptions = t.DefaultOptions.Clone()
	return t, true
}

// List returns all descriptors in registration order.
func (r *Registry) List() []domain.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ToolDescriptor, 0, len(r.order))
	for _, id := range r.order {
		t := r.tools[id]
		t.DefaultOptions = t.DefaultOptions.Clone()
		out = append(out, t)
	}
	return out
}

// ByCategory filters List by category, case-insensitively. "all" or "" returns everything.
func (r *Registry) ByCategory(category string) []domain.ToolDescriptor {
	all := r.List()
	if category == "" || strings.EqualFold(category, "all") {
		return all
	}
	out := make([]domain.ToolDescriptor, 0, len(all))
	for _, t := range all {
		if strings.EqualFold(string(t.Category), category) {
			out = append(out, t)
		}
	}
	return out
}

// IDs returns tool IDs in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}
