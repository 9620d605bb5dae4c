package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"omnitool/internal/config"
	"omnitool/internal/domain"
)

// stepSpec is a step as written on the command line or in a chain file,
// before catalog defaults are applied.
type stepSpec struct {
	Tool    string         `yaml:"tool"`
	Options domain.Options `yaml:"options"`
}

// chainFile is the YAML document accepted by run --chain.
//
//	input: eyJhIjogMX0=
//	steps:
//	  - tool: base64
//	    options: {action: decode}
//	  - tool: json_formatter
type chainFile struct {
	Input string     `yaml:"input"`
	Steps []stepSpec `yaml:"steps"`
}

// parseStepSpec parses "tool" or "tool:key=value,key=value".
func parseStepSpec(s string) (stepSpec, error) {
	tool, rest, hasOpts := strings.Cut(strings.TrimSpace(s), ":")
	tool = strings.TrimSpace(tool)
	if tool == "" {
		return stepSpec{}, fmt.Errorf("invalid step %q: missing tool id", s)
	}
	spec := stepSpec{Tool: tool}
	if !hasOpts || strings.TrimSpace(rest) == "" {
		return spec, nil
	}

	spec.Options = domain.Options{}
	for _, pair := range strings.Split(rest, ",") {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return stepSpec{}, fmt.Errorf("invalid option %q in step %q: want key=value", pair, s)
		}
		spec.Options[k] = config.ParseValue(strings.TrimSpace(v))
	}
	return spec, nil
}

func parseStepSpecs(args []string) ([]stepSpec, error) {
	specs := make([]stepSpec, 0, len(args))
	for _, a := range args {
		spec, err := parseStepSpec(a)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func loadChainFile(path string) (*chainFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chain file: %w", err)
	}
	var cf chainFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse chain file %s: %w", path, err)
	}
	for i, s := range cf.Steps {
		if strings.TrimSpace(s.Tool) == "" {
			return nil, fmt.Errorf("chain file %s: step %d has no tool", path, i+1)
		}
	}
	return &cf, nil
}

// buildSteps resolves specs against the catalog, layering each spec's
// options over the tool's defaults. Unknown tools are an error here; the
// controller would silently drop them.
func buildSteps(cat domain.ToolCatalog, specs []stepSpec) ([]domain.ChainStep, error) {
	steps := make([]domain.ChainStep, 0, len(specs))
	for _, s := range specs {
		desc, ok := cat.Get(s.Tool)
		if !ok {
			return nil, fmt.Errorf("unknown tool %q (see 'omnitool tools')", s.Tool)
		}
		steps = append(steps, domain.ChainStep{
			ToolID:  desc.ID,
			Options: desc.DefaultOptions.Merge(s.Options),
		})
	}
	return steps, nil
}

// formatOptions renders options as "k=v, k=v" in key order.
func formatOptions(opts domain.Options) string {
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, opts[k]))
	}
	return strings.Join(parts, ", ")
}

// printResults writes one block per step. Steps past a transport failure
// have no result and are reported as not run.
func printResults(w io.Writer, steps []domain.ChainStep, results []domain.StepResult) {
	skipping := false
	for i, step := range steps {
		header := fmt.Sprintf("[%d] %s", i+1, step.ToolID)
		switch {
		case i >= len(results):
			fmt.Fprintf(w, "%s  not run (executor unavailable)\n", header)
		case results[i].Failed():
			fmt.Fprintf(w, "%s  error: %s\n", header, results[i].Error)
			skipping = true
		case skipping:
			fmt.Fprintf(w, "%s  skipped\n", header)
		default:
			fmt.Fprintf(w, "%s\n%s\n", header, results[i].Output)
		}
	}
}

// finalOutput returns the last step's output when every step succeeded.
func finalOutput(steps []domain.ChainStep, results []domain.StepResult) (string, bool) {
	if len(steps) == 0 || len(results) != len(steps) {
		return "", false
	}
	for _, r := range results {
		if r.Failed() {
			return "", false
		}
	}
	return results[len(results)-1].Output, true
}
