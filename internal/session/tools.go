package session

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hanifka/lentera/domain/repositories"
)

// ToolHandler executes one registered capability.
type ToolHandler func(ctx context.Context, args map[string]any) (map[string]any, error)

type capability struct {
	declaration repositories.ToolDeclaration
	handler     ToolHandler
}

// ToolRegistry holds the capabilities advertised to the remote service and
// dispatches its invocations. Every invocation id receives exactly one
// result, including unknown tool names.
type ToolRegistry struct {
	mu     sync.RWMutex
	caps   map[string]capability
	logger *zap.Logger
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry(logger *zap.Logger) *ToolRegistry {
	return &ToolRegistry{
		caps:   make(map[string]capability),
		logger: logger,
	}
}

// Register adds a capability. Re-registering a name replaces the previous
// handler.
func (r *ToolRegistry) Register(decl repositories.ToolDeclaration, handler ToolHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caps[decl.Name] = capability{declaration: decl, handler: handler}
}

// Declarations returns the capability declarations for the connect config.
func (r *ToolRegistry) Declarations() []repositories.ToolDeclaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]repositories.ToolDeclaration, 0, len(r.caps))
	for _, c := range r.caps {
		out = append(out, c.declaration)
	}
	return out
}

// Dispatch validates and executes one invocation, then sends exactly one
// structured result back through the session, correlated by invocation id.
// Tool failures never close the channel.
func (r *ToolRegistry) Dispatch(ctx context.Context, call *repositories.ToolInvocation, sess repositories.LiveSession) {
	if call == nil {
		return
	}

	r.mu.RLock()
	entry, ok := r.caps[call.Name]
	r.mu.RUnlock()

	var payload map[string]any
	switch {
	case !ok:
		r.logger.Warn("Received invocation for unregistered tool",
			zap.String("invocationID", call.ID),
			zap.String("tool", call.Name))
		payload = errorPayload(fmt.Sprintf("tool %q is not implemented", call.Name))
	default:
		if err := validateArgs(entry.declaration.Parameters, call.Args); err != nil {
			r.logger.Warn("Tool invocation failed argument validation",
				zap.String("invocationID", call.ID),
				zap.String("tool", call.Name),
				zap.Error(err))
			payload = errorPayload(fmt.Sprintf("invalid arguments: %v", err))
			break
		}
		result, err := entry.handler(ctx, call.Args)
		if err != nil {
			r.logger.Error("Tool execution failed",
				zap.String("invocationID", call.ID),
				zap.String("tool", call.Name),
				zap.Error(err))
			payload = errorPayload(err.Error())
			break
		}
		if result == nil {
			result = map[string]any{}
		}
		payload = result
	}

	if err := sess.SendToolResult(call.ID, call.Name, payload); err != nil {
		r.logger.Error("Failed to send tool result",
			zap.String("invocationID", call.ID),
			zap.String("tool", call.Name),
			zap.Error(err))
	}
}

func errorPayload(message string) map[string]any {
	return map[string]any{"error": message}
}

// validateArgs checks an argument payload against the declared schema:
// required keys present, primitive types matching. Absent schema accepts
// anything.
func validateArgs(schema *repositories.Schema, args map[string]any) error {
	if schema == nil {
		return nil
	}
	for _, name := range schema.Required {
		if _, ok := args[name]; !ok {
			return fmt.Errorf("missing required argument %q", name)
		}
	}
	for name, value := range args {
		prop, ok := schema.Properties[name]
		if !ok {
			continue
		}
		if err := validateValue(prop, value); err != nil {
			return fmt.Errorf("argument %q: %w", name, err)
		}
	}
	return nil
}

func validateValue(schema *repositories.Schema, value any) error {
	if schema == nil || value == nil {
		return nil
	}
	switch schema.Type {
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
	case "number":
		switch value.(type) {
		case float64, float32, int, int32, int64:
		default:
			return fmt.Errorf("expected number, got %T", value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", value)
		}
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("expected object, got %T", value)
		}
		if err := validateArgs(schema, obj); err != nil {
			return err
		}
	case "array":
		items, ok := value.([]any)
		if !ok {
			return fmt.Errorf("expected array, got %T", value)
		}
		for i, item := range items {
			if err := validateValue(schema.Items, item); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
		}
	}
	return nil
}
