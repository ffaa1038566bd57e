package repositories

import "context"

// DiagramInstruction tells the external diagram collaborator what to draw.
type DiagramInstruction struct {
	Kind  string         `json:"kind"`
	Title string         `json:"title,omitempty"`
	Spec  map[string]any `json:"spec"`
}

// DiagramRenderer is the boundary to the rendering layer. Rendering itself
// is out of scope; the orchestrator only forwards instructions.
type DiagramRenderer interface {
	Render(ctx context.Context, instruction DiagramInstruction) error
}
