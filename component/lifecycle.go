package component

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SimioLLC/WebAPISync/errors"
)

// State represents the current lifecycle state of a component
type State int

const (
	StateCreated State = iota
	StateInitialized
	StateStarted
	StateStopped
	StateFailed
)

// String returns a string representation of the component state
func (cs State) String() string {
	switch cs {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LifecycleComponent is a Discoverable with the three-step lifecycle:
//   - Initialize() error                 validate and allocate, no context
//   - Start(ctx context.Context) error   start with the caller's context
//   - Stop(timeout time.Duration) error  bounded graceful stop
type LifecycleComponent interface {
	Discoverable
	Initialize() error
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}

type managed struct {
	comp      LifecycleComponent
	state     State
	lastError error
}

// Group starts components in the order they were added and stops them in
// reverse.
type Group struct {
	logger *slog.Logger

	mu         sync.Mutex
	components []*managed
}

// NewGroup creates an empty group.
func NewGroup(logger *slog.Logger) *Group {
	if logger == nil {
		logger = slog.Default()
	}
	return &Group{logger: logger.With("component", "lifecycle")}
}

// Add registers comp. Components must be added before Start.
func (g *Group) Add(comp LifecycleComponent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.components = append(g.components, &managed{comp: comp})
}

// Start initializes and starts every component. On failure the components
// already started are stopped again.
func (g *Group) Start(ctx context.Context, stopTimeout time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, m := range g.components {
		name := m.comp.Meta().Name
		if err := m.comp.Initialize(); err != nil {
			m.state, m.lastError = StateFailed, err
			g.stopUnlocked(i, stopTimeout)
			return errors.Wrap(err, "Group", "Start", fmt.Sprintf("initialize %s", name))
		}
		m.state = StateInitialized

		if err := m.comp.Start(ctx); err != nil {
			m.state, m.lastError = StateFailed, err
			g.stopUnlocked(i, stopTimeout)
			return errors.Wrap(err, "Group", "Start", fmt.Sprintf("start %s", name))
		}
		m.state = StateStarted
		g.logger.Debug("Component started", "name", name, "type", m.comp.Meta().Type)
	}
	return nil
}

// Stop stops every started component in reverse order and returns the
// first error.
func (g *Group) Stop(timeout time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopUnlocked(len(g.components), timeout)
}

func (g *Group) stopUnlocked(n int, timeout time.Duration) error {
	var first error
	for i := n - 1; i >= 0; i-- {
		m := g.components[i]
		if m.state != StateStarted {
			continue
		}
		if err := m.comp.Stop(timeout); err != nil {
			m.state, m.lastError = StateFailed, err
			g.logger.Warn("Component stop failed", "name", m.comp.Meta().Name, "error", err)
			if first == nil {
				first = err
			}
			continue
		}
		m.state = StateStopped
	}
	return first
}

// States reports the lifecycle state of each component by name.
func (g *Group) States() map[string]State {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]State, len(g.components))
	for _, m := range g.components {
		out[m.comp.Meta().Name] = m.state
	}
	return out
}

// Health reports each component's health by name.
func (g *Group) Health() map[string]HealthStatus {
	g.mu.Lock()
	comps := make([]LifecycleComponent, len(g.components))
	for i, m := range g.components {
		comps[i] = m.comp
	}
	g.mu.Unlock()

	out := make(map[string]HealthStatus, len(comps))
	for _, c := range comps {
		out[c.Meta().Name] = c.Health()
	}
	return out
}
