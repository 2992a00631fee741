package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"engram/internal/logging"
)

// Tool is the single operation every processing step implements.
type Tool interface {
	Name() string
	Version() string
	Execute(ctx context.Context, env *Envelope) (map[string]any, error)
}

// Factory produces a tool instance per dispatch.
type Factory func() Tool

// Registration describes one named tool.
type Registration struct {
	Name         string
	Version      string
	Description  string
	InputSchema  map[string]any
	OutputSchema map[string]any
	Factory      Factory

	compiled *jsonschema.Schema
}

// Registry maps tool names to registrations. It lives for the process.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: map[string]*Registration{}}
}

// Register adds a tool. The input schema is compiled once here so every
// dispatch validates against it cheaply.
func (r *Registry) Register(reg *Registration) error {
	if reg.Name == "" || reg.Factory == nil {
		return fmt.Errorf("registration requires a name and a factory")
	}
	if reg.InputSchema != nil {
		raw, err := json.Marshal(reg.InputSchema)
		if err != nil {
			return fmt.Errorf("failed to encode input schema for %s: %w", reg.Name, err)
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(reg.Name+".json", strings.NewReader(string(raw))); err != nil {
			return fmt.Errorf("failed to add input schema for %s: %w", reg.Name, err)
		}
		compiled, err := compiler.Compile(reg.Name + ".json")
		if err != nil {
			return fmt.Errorf("failed to compile input schema for %s: %w", reg.Name, err)
		}
		reg.compiled = compiled
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[reg.Name]; exists {
		return fmt.Errorf("tool %s already registered", reg.Name)
	}
	r.tools[reg.Name] = reg
	logging.ToolsDebug("Registered tool %s v%s", reg.Name, reg.Version)
	return nil
}

// Get returns the registration for a tool name.
func (r *Registry) Get(name string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	return reg, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateInputs checks inputs against the tool's declared schema.
// Inputs pass through a JSON round trip so Go-native numeric types
// validate the way wire payloads would.
func (reg *Registration) ValidateInputs(inputs map[string]any) error {
	if reg.compiled == nil {
		return nil
	}
	raw, err := json.Marshal(inputs)
	if err != nil {
		return fmt.Errorf("failed to encode inputs: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to decode inputs: %w", err)
	}
	if err := reg.compiled.Validate(doc); err != nil {
		return fmt.Errorf("inputs failed schema validation: %w", err)
	}
	return nil
}

// ObjectSchema is a shorthand for the common object-with-properties
// JSON schema shape used by tool registrations.
func ObjectSchema(required []string, props map[string]any) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
