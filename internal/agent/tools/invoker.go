package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// ExecutionError signals a failure inside the remote tool boundary. The
// executor converts it to a result string; it is never graph-fatal.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Invoker is the uniform tool execution boundary. The core does not know
// about HTTP, OAuth, or any specific provider behind it.
type Invoker interface {
	ExecuteTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// ToolFunc is one in-process tool implementation. Structured return values
// are serialized to JSON by the invoker.
type ToolFunc func(ctx context.Context, args map[string]any) (any, error)

// FuncInvoker dispatches tool calls to registered Go functions. It backs the
// demo driver and tests; production deployments put an API client behind the
// Invoker interface instead.
type FuncInvoker struct {
	mu    sync.RWMutex
	funcs map[string]ToolFunc
}

// NewFuncInvoker creates an empty function-backed invoker.
func NewFuncInvoker() *FuncInvoker {
	return &FuncInvoker{funcs: make(map[string]ToolFunc)}
}

// Handle registers a function for a tool name, replacing any existing one.
func (f *FuncInvoker) Handle(name string, fn ToolFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.funcs[name] = fn
}

// ExecuteTool implements Invoker. Results are serialized to a string: JSON
// when structured, plain coercion otherwise.
func (f *FuncInvoker) ExecuteTool(ctx context.Context, name string, args map[string]any) (string, error) {
	f.mu.RLock()
	fn, ok := f.funcs[name]
	f.mu.RUnlock()
	if !ok {
		return "", &ExecutionError{Tool: name, Err: fmt.Errorf("unknown tool")}
	}

	out, err := fn(ctx, args)
	if err != nil {
		return "", &ExecutionError{Tool: name, Err: err}
	}

	return Serialize(out), nil
}

// Serialize converts a tool return value into the single string shape the
// graph records.
func Serialize(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}

var _ Invoker = (*FuncInvoker)(nil)
