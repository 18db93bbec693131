package intervention

import (
	"context"
	"fmt"
	"sync"

	"github.com/dronefleet/orchestrator/internal/model"
)

// stubController is a BrowserController test double: records every Execute
// call and lets tests script the URL/DOM/screenshot returned at Initiate
// time, and optionally fail Execute for the command types listed in failOn.
type stubController struct {
	mu sync.Mutex

	url    string
	dom    model.Value
	shot   string
	failOn map[string]bool

	interactionEnabled bool
	executed           []model.CommandPayload
}

func newStubController() *stubController {
	return &stubController{
		url:    "https://example.com/checkout",
		dom:    model.NewValue(map[string]any{"title": "Checkout"}),
		shot:   "/tmp/shot.png",
		failOn: map[string]bool{},
	}
}

func (c *stubController) Screenshot(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shot, nil
}

func (c *stubController) CurrentURL(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url, nil
}

func (c *stubController) DOMContext(ctx context.Context) (model.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dom, nil
}

func (c *stubController) EnableInteraction(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interactionEnabled = true
	return nil
}

func (c *stubController) DisableInteraction(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interactionEnabled = false
	return nil
}

func (c *stubController) Execute(ctx context.Context, cmd model.CommandPayload) (model.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.executed = append(c.executed, cmd)
	if c.failOn[cmd.Type] {
		return model.Value{}, fmt.Errorf("stub controller: %s failed", cmd.Type)
	}
	return model.Value{}, nil
}

func (c *stubController) executedCommands() []model.CommandPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.CommandPayload, len(c.executed))
	copy(out, c.executed)
	return out
}

func (c *stubController) isInteractionEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interactionEnabled
}
