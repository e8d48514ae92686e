// Package configurator owns the live assembly. A single goroutine (Run)
// applies queued user changes and geometry completions and rebuilds the
// assembly, so several changes arriving during a build collapse into one
// follow-up build.
package configurator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"maps"
	"sync"

	"github.com/chazu/linkage/pkg/assembly"
	"github.com/chazu/linkage/pkg/catalog"
	"github.com/chazu/linkage/pkg/resources"
	"github.com/chazu/linkage/pkg/selector"
)

// ErrNoDefinition is reported when a build is attempted before a product
// definition was set.
var ErrNoDefinition = errors.New("configurator: no product definition")

// State is the rebuild state.
type State int

const (
	Idle State = iota
	Building
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Building:
		return "building"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Signals are the configurator's outgoing notifications. They are called
// on the Run goroutine; nil fields are skipped.
type Signals struct {
	Built       func(*assembly.Assembly)
	BuildFailed func(error)
}

// Context is everything a configurator works against. Loader and Host may
// be nil.
type Context struct {
	Catalog *catalog.Catalog
	Cache   *resources.Cache
	Loader  *resources.Loader
	Host    assembly.Host
	Signals Signals
}

// Limits bounds the uniform scale.
type Limits struct {
	Min, Max float64
}

// DefaultLimits are the scale limits used when none are given.
var DefaultLimits = Limits{Min: 0.01, Max: 2}

// Clamp returns s limited to [Min, Max].
func (l Limits) Clamp(s float64) float64 {
	return min(max(s, l.Min), l.Max)
}

// Options configure a new configurator.
type Options struct {
	Definition *assembly.Definition
	Selection  assembly.Selection // missing parameters and types come from the catalog defaults
	Limits     Limits
	QuietLoad  bool
}

// mutation changes the build input and reports whether a rebuild is due.
type mutation func(ctx context.Context, c *Configurator) bool

// Configurator is the rebuild state machine.
type Configurator struct {
	env     Context
	builder *assembly.Builder
	limits  Limits

	mu    sync.Mutex
	queue []mutation
	state State
	wake  chan struct{}

	// Owned by the Run goroutine.
	def       *assembly.Definition
	sel       assembly.Selection
	current   *assembly.Assembly
	needBuild bool
}

// New returns a configurator. The first build happens once Run is started
// and the loader reports its eager assets ready.
func New(env Context, opts Options) *Configurator {
	limits := opts.Limits
	if limits == (Limits{}) {
		limits = DefaultLimits
	}

	sel := assembly.Selection{
		Parameters: selector.Parameters(env.Catalog.DefaultParameters()),
		Types:      env.Catalog.DefaultTypes(),
		Scale:      limits.Clamp(1),
	}
	maps.Copy(sel.Parameters, opts.Selection.Parameters)
	maps.Copy(sel.Types, opts.Selection.Types)
	if opts.Selection.Scale != 0 {
		sel.Scale = limits.Clamp(opts.Selection.Scale)
	}

	c := &Configurator{
		env:       env,
		limits:    limits,
		wake:      make(chan struct{}, 1),
		def:       opts.Definition,
		sel:       sel,
		needBuild: true,
		builder: &assembly.Builder{
			Catalog: env.Catalog,
			Cache:   env.Cache,
			Host:    env.Host,
		},
	}
	if env.Loader != nil {
		c.builder.Loads = env.Loader
	}
	if opts.QuietLoad {
		c.SetQuietLoad(true)
	}
	return c
}

// State returns the current rebuild state.
func (c *Configurator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Configurator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Limits returns the scale limits.
func (c *Configurator) Limits() Limits {
	return c.limits
}

// Wake makes Run re-check whether it can build, e.g. after the loader
// reported its eager assets ready.
func (c *Configurator) Wake() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Configurator) enqueue(m mutation) {
	c.mu.Lock()
	c.queue = append(c.queue, m)
	c.mu.Unlock()
	c.Wake()
}

// SetParameter sets one configuration parameter by readable name.
func (c *Configurator) SetParameter(name string, value float64) {
	c.enqueue(func(_ context.Context, c *Configurator) bool {
		if old, ok := c.sel.Parameters[name]; ok && old == value {
			return false
		}
		c.sel.Parameters[name] = value
		return true
	})
}

// SetType selects the type used for a part.
func (c *Configurator) SetType(part, typ string) {
	c.enqueue(func(_ context.Context, c *Configurator) bool {
		if c.sel.Types[part] == typ {
			return false
		}
		c.sel.Types[part] = typ
		return true
	})
}

// SetScale sets the uniform scale, clamped to the limits.
func (c *Configurator) SetScale(s float64) {
	c.enqueue(func(_ context.Context, c *Configurator) bool {
		clamped := c.limits.Clamp(s)
		if c.sel.Scale == clamped {
			return false
		}
		c.sel.Scale = clamped
		return true
	})
}

// SetDefinition replaces the product definition.
func (c *Configurator) SetDefinition(def *assembly.Definition) {
	c.enqueue(func(_ context.Context, c *Configurator) bool {
		c.def = def
		return true
	})
}

// SetQuietLoad turns the background batch load on or off.
func (c *Configurator) SetQuietLoad(on bool) {
	c.enqueue(func(ctx context.Context, c *Configurator) bool {
		if c.env.Loader != nil {
			c.env.Loader.SetQuiet(ctx, on)
		}
		return false
	})
}

// Selection returns a copy of the current build input. Only meaningful on
// the Run goroutine or before Run starts.
func (c *Configurator) Selection() assembly.Selection {
	return assembly.Selection{
		Parameters: maps.Clone(c.sel.Parameters),
		Types:      maps.Clone(c.sel.Types),
		Scale:      c.sel.Scale,
	}
}

// Run serves mutations and load completions until ctx is canceled, then
// tears the assembly down.
func (c *Configurator) Run(ctx context.Context) error {
	var completions <-chan resources.Completion
	if c.env.Loader != nil {
		completions = c.env.Loader.Completions()
	}
	defer func() {
		c.builder.Teardown(c.current)
		c.current = nil
	}()

	for {
		c.drain(ctx, completions)
		if c.needBuild && c.ready() {
			c.needBuild = false
			_ = c.Rebuild(ctx)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.wake:
		case comp := <-completions:
			c.apply(comp)
		}
	}
}

// drain applies everything that is already waiting so one build covers it.
func (c *Configurator) drain(ctx context.Context, completions <-chan resources.Completion) {
	for {
		c.mu.Lock()
		queue := c.queue
		c.queue = nil
		c.mu.Unlock()
		for _, m := range queue {
			if m(ctx, c) {
				c.needBuild = true
			}
		}

		select {
		case comp := <-completions:
			c.apply(comp)
		default:
			return
		}
	}
}

func (c *Configurator) apply(comp resources.Completion) {
	if c.env.Loader.Apply(comp) {
		c.needBuild = true
	}
}

func (c *Configurator) ready() bool {
	return c.env.Loader == nil || c.env.Loader.Ready()
}

// Rebuild tears the current assembly down and builds a new one from the
// current definition and selection. On failure the assembly stays absent
// and the error is signaled as well as returned. Call it only from the Run
// goroutine, or while Run is not running.
func (c *Configurator) Rebuild(ctx context.Context) error {
	c.setState(Building)
	defer c.setState(Idle)

	c.builder.Teardown(c.current)
	c.current = nil

	if c.def == nil {
		return c.fail(ErrNoDefinition)
	}
	a, err := c.builder.Build(ctx, c.def, c.Selection())
	if err != nil {
		return c.fail(err)
	}
	c.current = a
	log.Printf("configurator: built %q with %d instances (%d pending)",
		a.Product, len(a.Instances), len(a.Pending()))
	if c.env.Signals.Built != nil {
		c.env.Signals.Built(a)
	}
	return nil
}

func (c *Configurator) fail(err error) error {
	log.Printf("configurator: build failed: %v", err)
	if c.env.Signals.BuildFailed != nil {
		c.env.Signals.BuildFailed(err)
	}
	return err
}

// Assembly returns the current assembly, nil when absent. Only meaningful
// on the Run goroutine or while Run is not running.
func (c *Configurator) Assembly() *assembly.Assembly {
	return c.current
}
