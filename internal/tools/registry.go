package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/bluehawksai/bluehawks-cli/internal/llm"
)

// Handler executes a tool with parsed arguments.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Property describes a single typed parameter of a tool.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// Schema describes a tool's parameter object.
type Schema struct {
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Descriptor is the registration contract for a tool: name, schema,
// invocation handler, and whether it is exempt from approval under the
// unsafe-only mode.
type Descriptor struct {
	Name        string
	Description string
	Parameters  Schema
	AutoSafe    bool
	Handler     Handler
}

// Validate checks parsed arguments against the descriptor schema.
func (d *Descriptor) Validate(args map[string]any) error {
	for _, req := range d.Parameters.Required {
		if _, ok := args[req]; !ok {
			return fmt.Errorf("%s is required", req)
		}
	}
	for name, val := range args {
		prop, ok := d.Parameters.Properties[name]
		if !ok {
			continue
		}
		switch prop.Type {
		case "string":
			if _, ok := val.(string); !ok {
				return fmt.Errorf("%s must be string", name)
			}
		case "boolean":
			if _, ok := val.(bool); !ok {
				return fmt.Errorf("%s must be boolean", name)
			}
		case "array":
			if _, ok := val.([]any); !ok {
				return fmt.Errorf("%s must be array", name)
			}
		case "integer", "number":
			switch val.(type) {
			case float64, int, int64:
			default:
				return fmt.Errorf("%s must be %s", name, prop.Type)
			}
		}
		if len(prop.Enum) > 0 {
			s, _ := val.(string)
			valid := false
			for _, allowed := range prop.Enum {
				if s == allowed {
					valid = true
					break
				}
			}
			if !valid {
				return fmt.Errorf("%s must be one of %v", name, prop.Enum)
			}
		}
	}
	return nil
}

// Registry maps tool names to descriptors. Registration is idempotent
// for the same name (last write wins). Startup registers before the
// first lookup; the external-tool bridge adds entries during initialize
// and does not remove them when a helper closes.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Descriptor)}
}

// Register adds or replaces a tool.
func (r *Registry) Register(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[d.Name] = &d
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a descriptor by name.
func (r *Registry) Get(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	return d, ok
}

// IsAutoSafe reports whether a tool needs no approval under the
// unsafe-only approval mode. Unknown names are never auto-safe.
func (r *Registry) IsAutoSafe(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	return ok && d.AutoSafe
}

// Names returns the registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// List returns all descriptors.
func (r *Registry) List() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, 0, len(r.tools))
	for _, d := range r.tools {
		out = append(out, d)
	}
	return out
}

// Schemas renders the schema-only view sent to the completion service.
func (r *Registry) Schemas() []llm.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]llm.ToolSchema, 0, len(r.tools))
	for _, d := range r.tools {
		props := make(map[string]any, len(d.Parameters.Properties))
		for name, p := range d.Parameters.Properties {
			entry := map[string]any{"type": p.Type}
			if p.Description != "" {
				entry["description"] = p.Description
			}
			if len(p.Enum) > 0 {
				entry["enum"] = p.Enum
			}
			props[name] = entry
		}
		required := d.Parameters.Required
		if required == nil {
			required = []string{}
		}
		out = append(out, llm.ToolSchema{
			Type: "function",
			Function: llm.ToolFunctionSchema{
				Name:        d.Name,
				Description: d.Description,
				Parameters: map[string]any{
					"type":       "object",
					"properties": props,
					"required":   required,
				},
			},
		})
	}
	return out
}
