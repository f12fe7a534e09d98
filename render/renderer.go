package render

import (
	"golang.org/x/net/html"

	"github.com/conciergehq/concierge/types"
)

// Renderer builds the report body for one document shape.
type Renderer interface {
	// Key is the renderer identifier crews reference in their definitions.
	Key() string
	// Render builds the report body fragment from the crew document.
	Render(out *types.CrewOutput) (*html.Node, error)
}

// rendererFunc adapts a function to the Renderer interface.
type rendererFunc struct {
	key string
	fn  func(out *types.CrewOutput) (*html.Node, error)
}

func (r rendererFunc) Key() string { return r.key }

func (r rendererFunc) Render(out *types.CrewOutput) (*html.Node, error) {
	return r.fn(out)
}
