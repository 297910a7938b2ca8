// Package tabs maintains the read model of open windows for the dashboard
// tab strip.
package tabs

import (
	"context"
	"errors"
	"sync"

	"github.com/hbeckert/concierge/internal/models"
	"github.com/hbeckert/concierge/internal/registry"
)

// ErrNoOpenTabs means a cycle operation ran with nothing open.
var ErrNoOpenTabs = errors.New("tabs: no open tabs")

// Tab is one entry of the tab-strip read model.
type Tab struct {
	ID          string          `json:"id"`
	Platform    models.Platform `json:"platform"`
	DisplayName string          `json:"display_name"`
	Title       string          `json:"title"`
	Focused     bool            `json:"focused"`
}

// Controller performs window operations on behalf of the coordinator.
// Implemented by the window supervisor.
type Controller interface {
	Focus(ctx context.Context, id string) error
	Close(ctx context.Context, id string) error
}

// Coordinator derives the tab strip from the registry's live handles. The
// model is rebuilt on every registry notification and on a polling fallback;
// it is always safe to rebuild.
type Coordinator struct {
	reg  *registry.Registry
	ctrl Controller

	mu    sync.Mutex
	model []Tab
}

// New builds a coordinator and subscribes it to registry changes.
func New(reg *registry.Registry, ctrl Controller) *Coordinator {
	c := &Coordinator{reg: reg, ctrl: ctrl}
	reg.OnChange(c.Rebuild)
	c.Rebuild()
	return c
}

// Rebuild recomputes the read model from the registry. Cheap, idempotent,
// callable from notifications or a timer.
func (c *Coordinator) Rebuild() {
	open := c.reg.ListOpen()
	model := make([]Tab, 0, len(open))
	for _, s := range open {
		title := s.Title
		if title == "" {
			title = s.Binding.DisplayName
		}
		model = append(model, Tab{
			ID:          s.Binding.ID,
			Platform:    s.Binding.Platform,
			DisplayName: s.Binding.DisplayName,
			Title:       title,
			Focused:     s.Focused,
		})
	}
	c.mu.Lock()
	c.model = model
	c.mu.Unlock()
}

// List returns the current read model.
func (c *Coordinator) List() []Tab {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Tab, len(c.model))
	copy(out, c.model)
	return out
}

// Focus brings a tab's window to the front. A just-closed id is reported as
// not found, never a crash.
func (c *Coordinator) Focus(ctx context.Context, id string) error {
	return c.ctrl.Focus(ctx, id)
}

// Close closes a tab's window.
func (c *Coordinator) Close(ctx context.Context, id string) error {
	return c.ctrl.Close(ctx, id)
}

// CycleNext focuses the tab after the currently focused one, wrapping
// around. Resolution happens against the open list at invocation time.
func (c *Coordinator) CycleNext(ctx context.Context) (Tab, error) {
	return c.cycle(ctx, 1)
}

// CyclePrevious focuses the tab before the currently focused one, wrapping
// around.
func (c *Coordinator) CyclePrevious(ctx context.Context) (Tab, error) {
	return c.cycle(ctx, -1)
}

func (c *Coordinator) cycle(ctx context.Context, dir int) (Tab, error) {
	// Rebuild first so a stale snapshot cannot pick a window that is gone.
	c.Rebuild()
	model := c.List()
	if len(model) == 0 {
		return Tab{}, ErrNoOpenTabs
	}

	current := -1
	for i, t := range model {
		if t.Focused {
			current = i
			break
		}
	}
	next := 0
	if current >= 0 {
		next = (current + dir + len(model)) % len(model)
	} else if dir < 0 {
		next = len(model) - 1
	}

	target := model[next]
	if err := c.ctrl.Focus(ctx, target.ID); err != nil {
		// Lost the race against a concurrent close; the id is simply gone.
		return Tab{}, err
	}
	target.Focused = true
	return target, nil
}
