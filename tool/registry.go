package tool

import (
	"context"
	"fmt"
	"sync"
)

// Executor runs one tool invocation. The arguments are the decoded JSON
// object the model produced. The returned value must be JSON-serializable.
type Executor func(ctx context.Context, args map[string]any) (any, error)

// ErrUnknown is returned when the service requests a tool that was never
// registered (or was removed while a response was in flight).
type ErrUnknown struct {
	Name string
}

func (e *ErrUnknown) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

// Registry maps tool names to their definitions and executors. Safe for
// concurrent use: registration happens from the UI side while lookups come
// from the protocol event handler.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]entry
	order []string
}

type entry struct {
	tool    Tool
	execute Executor
}

func NewRegistry() *Registry {
	return &Registry{tools: map[string]entry{}}
}

func (r *Registry) Add(t Tool, fn Executor) {
	if t.Type == "" {
		t.Type = "function"
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[t.Name]; !ok {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = entry{tool: t, execute: fn}
}

func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		return
	}
	delete(r.tools, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Definitions returns the advertised tools in registration order.
func (r *Registry) Definitions() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].tool)
	}
	return out
}

// Execute runs the named tool, returning ErrUnknown if it is not registered.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &ErrUnknown{Name: name}
	}
	return e.execute(ctx, args)
}
