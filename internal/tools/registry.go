// Package tools defines the tools available to the agent and the
// dispatch contract the loop relies on: a dispatch never panics and
// never raises into the loop, it always produces a Result the model can
// read.
package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/izaki/koto-agent/internal/llm"
)

// Handler executes one tool call. Handlers must return within the
// deadline carried by ctx; errors come back as values, never panics.
type Handler func(ctx context.Context, userID string, args map[string]any) (map[string]any, error)

// Tool is one registered capability.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     Handler
}

// Result is what a dispatch produces. Failures are data for the model,
// not control flow: Success false plus Error text lets the model tell
// the user what went wrong.
type Result struct {
	Success bool
	Payload map[string]any
	Error   string
}

// AsResponse renders the result as a function-response payload.
func (r Result) AsResponse() map[string]any {
	if !r.Success {
		return map[string]any{"error": r.Error}
	}
	return r.Payload
}

// Registry holds the available tools keyed by name.
type Registry struct {
	tools  map[string]*Tool
	order  []string
	logger *slog.Logger
}

// NewRegistry creates an empty registry. Built-in tools are registered
// by the caller so each deployment only exposes what it has configured.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: logger,
	}
}

// Register adds a tool, replacing any previous tool of the same name.
func (r *Registry) Register(t *Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Declarations returns the tool declarations for the model, in
// registration order so the request payload is stable.
func (r *Registry) Declarations() []llm.Declaration {
	out := make([]llm.Declaration, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, llm.Declaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return out
}

// Dispatch executes one tool call. An unknown name, a handler error,
// and a handler panic all come back as a failed Result; dispatching is
// never fatal to the caller.
func (r *Registry) Dispatch(ctx context.Context, userID string, call *llm.FunctionCall) (result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool handler panicked", "tool", call.Name, "panic", rec)
			result = Result{Success: false, Error: fmt.Sprintf("tool %s failed internally", call.Name)}
		}
	}()

	tool, ok := r.tools[call.Name]
	if !ok {
		return Result{Success: false, Error: fmt.Sprintf("unknown tool: %s", call.Name)}
	}

	r.logger.Debug("dispatching tool", "tool", call.Name, "user_id", userID)
	payload, err := tool.Handler(ctx, userID, call.Args)
	if err != nil {
		r.logger.Warn("tool failed", "tool", call.Name, "error", err)
		return Result{Success: false, Error: err.Error()}
	}
	return Result{Success: true, Payload: payload}
}

// stringArg reads a string argument, falling back to def when the key
// is absent or not a string.
func stringArg(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return def
}

// intArg reads an integer argument. JSON numbers arrive as float64.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}
