package view

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/starford/projects/internal/metrics"
)

type state int

const (
	unattached state = iota
	attached
	detached
)

// Controller owns one Element and the view instance bound to it.
//
// Transitions are serialized; hooks run while the transition lock is held, so
// a hook must not call back into the Controller. SaveConfig is safe to call
// from a hook.
type Controller struct {
	el     Element
	reg    Registry
	logger *slog.Logger

	mu        sync.Mutex
	state     state
	viewID    string
	projectID string
	instance  View
	// broken is set when the current view failed to open. It is not retried
	// until the view or project changes.
	broken bool

	// gen identifies the current instance. It moves on every open and close,
	// so a stale generation never matches again.
	gen atomic.Uint64
}

// NewController returns an unattached controller for el.
func NewController(el Element, reg Registry, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{el: el, reg: reg, logger: logger}
}

// Attach mounts the view named by props. An unregistered view type leaves
// the element empty. Attach on an attached controller behaves like Update;
// after Detach it does nothing.
func (c *Controller) Attach(props Props) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case attached:
		c.update(props)
		return
	case detached:
		return
	}
	c.state = attached
	c.viewID = props.View.ID
	c.projectID = props.Project.ID
	c.open(props)
}

// Update re-renders with props. When the view or project changed, the current
// instance is closed, the element cleared and the new view opened. Otherwise
// only the data is delivered; config, readonly and API changes are picked up
// on the next open.
func (c *Controller) Update(props Props) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case unattached:
		c.state = attached
		c.viewID = props.View.ID
		c.projectID = props.Project.ID
		c.open(props)
		return
	case detached:
		return
	}
	c.update(props)
}

func (c *Controller) update(props Props) {
	dirty := props.View.ID != c.viewID || props.Project.ID != c.projectID
	if dirty {
		c.close()
		c.el.Empty()
		c.viewID = props.View.ID
		c.projectID = props.Project.ID
		c.open(props)
		return
	}

	if c.instance == nil {
		// The view type may have been registered since the last attempt.
		if !c.broken {
			c.open(props)
		}
		return
	}
	inst := c.instance
	c.invoke("data", func() { inst.OnData(props.DataProps) })
}

// Detach closes the current instance. Nothing fires afterwards. Detach
// before Attach is a no-op.
func (c *Controller) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != attached {
		return
	}
	c.close()
	c.state = detached
}

// Generation returns the generation of the current instance. It is zero
// before the first open.
func (c *Controller) Generation() uint64 {
	return c.gen.Load()
}

// Deliver forwards result to the current instance if gen is still current.
// It reports whether the result was delivered.
func (c *Controller) Deliver(gen uint64, result DataQueryResult) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != attached || c.instance == nil || c.gen.Load() != gen {
		return false
	}
	inst := c.instance
	c.invoke("data", func() { inst.OnData(result) })
	return true
}

// ViewID returns the id of the tracked view.
func (c *Controller) ViewID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewID
}

func (c *Controller) open(props Props) {
	c.broken = false
	factory, ok := c.reg.Lookup(props.View.Type)
	if !ok {
		c.logger.Debug("view: type not registered",
			slog.String("view", props.View.ID),
			slog.String("type", props.View.Type))
		return
	}

	var inst View
	if !c.invoke("create", func() { inst = factory() }) || inst == nil {
		return
	}
	gen := c.gen.Add(1)
	c.instance = inst

	desc := Descriptor{
		ViewID:     props.View.ID,
		Project:    props.Project,
		ContentEl:  c.el,
		Config:     props.Config,
		SaveConfig: c.saveConfig(gen, props.OnConfigChange),
		ViewAPI:    props.ViewAPI,
		Readonly:   props.Readonly,
	}
	if !c.invoke("open", func() { inst.OnOpen(desc) }) {
		c.close()
		c.el.Empty()
		c.broken = true
		return
	}
	c.invoke("data", func() { inst.OnData(props.DataProps) })
}

func (c *Controller) close() {
	if c.instance == nil {
		return
	}
	inst := c.instance
	c.instance = nil
	c.gen.Add(1)
	c.invoke("close", inst.OnClose)
}

func (c *Controller) saveConfig(gen uint64, save func(map[string]any)) func(map[string]any) {
	return func(cfg map[string]any) {
		if save == nil || c.gen.Load() != gen {
			return
		}
		save(cfg)
	}
}

// invoke runs a view hook, recovering a panic. It reports whether fn
// returned normally.
func (c *Controller) invoke(hook string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("view: hook panicked",
				slog.String("hook", hook),
				slog.String("view", c.viewID),
				slog.String("error", fmt.Sprint(r)))
			metrics.ViewHooks.WithLabelValues(hook, "panic").Inc()
			ok = false
		}
	}()
	fn()
	metrics.ViewHooks.WithLabelValues(hook, "ok").Inc()
	return true
}
