package tools

import (
	"sort"
	"sync"

	"github.com/iancoleman/strcase"
	"github.com/pkg/errors"
)

// CanonicalName is the snake_case form under which tools are registered,
// advertised and looked up, so "weatherLookup" and "weather_lookup" name
// the same tool.
func CanonicalName(name string) string {
	return strcase.ToSnake(name)
}

// ToolRegistry manages available tools with thread-safe operations
type ToolRegistry interface {
	RegisterTool(name string, def ToolDefinition) error
	GetTool(name string) (*ToolDefinition, error)
	ListTools() []ToolDefinition
	UnregisterTool(name string) error
}

// InMemoryToolRegistry is a thread-safe in-memory implementation of ToolRegistry
type InMemoryToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]ToolDefinition
}

var _ ToolRegistry = (*InMemoryToolRegistry)(nil)

func NewInMemoryToolRegistry() *InMemoryToolRegistry {
	return &InMemoryToolRegistry{
		tools: make(map[string]ToolDefinition),
	}
}

func (r *InMemoryToolRegistry) RegisterTool(name string, def ToolDefinition) error {
	if name == "" {
		return errors.New("tool name cannot be empty")
	}
	name = CanonicalName(name)
	if def.Name != "" && CanonicalName(def.Name) != name {
		return errors.Errorf("tool definition name (%s) does not match registry name (%s)", def.Name, name)
	}
	def.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = def
	return nil
}

func (r *InMemoryToolRegistry) GetTool(name string) (*ToolDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[CanonicalName(name)]
	if !exists {
		return nil, errors.Wrap(ErrToolNotFound, name)
	}
	toolCopy := tool
	return &toolCopy, nil
}

// ListTools returns all registered tools sorted by name.
func (r *InMemoryToolRegistry) ListTools() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

func (r *InMemoryToolRegistry) UnregisterTool(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := CanonicalName(name)
	if _, exists := r.tools[key]; !exists {
		return errors.Wrap(ErrToolNotFound, name)
	}
	delete(r.tools, key)
	return nil
}

// Register adds each definition under its own name.
func Register(r ToolRegistry, defs ...*ToolDefinition) error {
	for _, d := range defs {
		if err := r.RegisterTool(d.Name, *d); err != nil {
			return err
		}
	}
	return nil
}
