package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"

	"github.com/chazu/linkage/pkg/assembly"
	"github.com/chazu/linkage/pkg/catalog"
	"github.com/chazu/linkage/pkg/config"
	"github.com/chazu/linkage/pkg/configurator"
	"github.com/chazu/linkage/pkg/kernel/sdfx"
	"github.com/chazu/linkage/pkg/product"
	"github.com/chazu/linkage/pkg/resources"
	"github.com/chazu/linkage/pkg/scene"
	"github.com/chazu/linkage/pkg/tessellate"
)

// App wires the catalog, loader, configurator and scene together. Its
// exported methods are the bindings a frontend (or the CLI) drives.
type App struct {
	cfg          config.Config
	catalog      *catalog.Catalog
	cache        *resources.Cache
	source       *sdfx.Source
	loader       *resources.Loader
	scene        *scene.Scene
	engine       *product.Engine
	configurator *configurator.Configurator

	mu       sync.Mutex
	snapshot Snapshot
	settled  bool
	updates  chan struct{}
	failed   map[string]EvalErrorData // variant name → load failure; failed loads are never retried
	waiting  []string                 // variants the latest build is missing
}

// MeshData is the JSON-serializable mesh format sent to the frontend.
type MeshData struct {
	Vertices []float32 `json:"vertices"`
	Normals  []float32 `json:"normals"`
	Indices  []uint32  `json:"indices"`
	PartName string    `json:"partName"`
	Color    string    `json:"color"`
}

// EvalErrorData is a JSON-serializable error for the frontend.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
}

// ProgressData is the load progress as sent to the frontend.
type ProgressData struct {
	Loaded int     `json:"loaded"`
	Total  int     `json:"total"`
	Ratio  float64 `json:"ratio"`
}

// Snapshot is the latest built state of the product.
type Snapshot struct {
	Product  string           `json:"product"`
	Meshes   []MeshData       `json:"meshes"`
	Pending  []string         `json:"pending"`
	Progress ProgressData     `json:"progress"`
	Controls []catalog.Folder `json:"controls"`
	Errors   []EvalErrorData  `json:"errors"`
}

// NewApp loads the catalog and the product definition named by cfg.
func NewApp(cfg config.Config) (*App, error) {
	cat, err := catalog.Load(cfg.Resolve(cfg.Catalog))
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:     cfg,
		catalog: cat,
		cache:   resources.NewCache(),
		source:  sdfx.New(cfg.Dir),
		scene:   scene.New(),
		engine:  product.NewEngine(),
		updates: make(chan struct{}, 1),
		failed:  make(map[string]EvalErrorData),
		snapshot: Snapshot{
			Meshes:  []MeshData{},
			Pending: []string{},
			Errors:  []EvalErrorData{},
		},
	}

	def, err := a.loadDefinition()
	if err != nil {
		return nil, err
	}

	a.loader = resources.NewLoader(a.source, a.cache, cat.Loadable(), resources.Signals{
		Progress:   a.onProgress,
		Ready:      func() { a.configurator.Wake() },
		LoadFailed: a.onLoadFailed,
	})
	a.snapshot.Progress = progressData(a.loader.Progress())

	a.configurator = configurator.New(configurator.Context{
		Catalog: cat,
		Cache:   a.cache,
		Loader:  a.loader,
		Host:    a.scene,
		Signals: configurator.Signals{
			Built:       a.onBuilt,
			BuildFailed: a.onBuildFailed,
		},
	}, configurator.Options{
		Definition: def,
		Selection: assembly.Selection{
			Parameters: cfg.Parameters,
			Types:      cfg.Types,
			Scale:      cfg.Scale,
		},
		Limits:    configurator.Limits{Min: cfg.ScaleMin, Max: cfg.ScaleMax},
		QuietLoad: cfg.QuietLoad,
	})
	return a, nil
}

// loadDefinition evaluates the configured product script, or the bundled
// table lamp when none is configured.
func (a *App) loadDefinition() (*assembly.Definition, error) {
	if a.cfg.Product == "" {
		return a.engine.Definition(product.TableLamp)
	}
	return a.engine.LoadFile(a.cfg.Resolve(a.cfg.Product))
}

// Run loads the eager assets and serves the configurator until ctx is
// canceled.
func (a *App) Run(ctx context.Context) error {
	assets := make([]resources.Asset, len(a.cfg.Eager))
	for i, e := range a.cfg.Eager {
		assets[i] = resources.Asset{Name: e.Name, Path: e.Path}
	}
	go func() {
		if err := a.loader.LoadEager(ctx, a.source, assets); err != nil {
			a.recordErrors(EvalErrorData{Message: err.Error()})
		}
	}()

	err := a.configurator.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Evaluate takes product script source and, when it evaluates cleanly,
// makes it the current definition. It returns the eval errors.
func (a *App) Evaluate(source string) []EvalErrorData {
	def, evalErrs, err := a.engine.Evaluate(source)
	if err != nil {
		errs := []EvalErrorData{{Message: err.Error()}}
		if errors.Is(err, product.ErrSuperseded) {
			// A newer Evaluate owns the snapshot now.
			return errs
		}
		log.Printf("Evaluate fatal error: %v", err)
		a.recordErrors(errs...)
		return errs
	}
	if len(evalErrs) > 0 {
		errs := make([]EvalErrorData, len(evalErrs))
		for i, e := range evalErrs {
			errs[i] = EvalErrorData{Line: e.Line, Col: e.Col, Message: e.Message}
		}
		a.recordErrors(errs...)
		return errs
	}
	a.setDefinition(def)
	return []EvalErrorData{}
}

// Reload re-reads the configured product script.
func (a *App) Reload() error {
	def, err := a.loadDefinition()
	if err != nil {
		a.recordErrors(EvalErrorData{Message: err.Error()})
		return err
	}
	log.Printf("Reloaded product %q", def.Name)
	a.setDefinition(def)
	return nil
}

// setDefinition always causes a rebuild, so the snapshot is unsettled
// until that build reports.
func (a *App) setDefinition(def *assembly.Definition) {
	a.mu.Lock()
	a.settled = false
	a.mu.Unlock()
	a.configurator.SetDefinition(def)
}

// SetParameter changes one configuration parameter by readable name.
func (a *App) SetParameter(name string, value float64) {
	a.configurator.SetParameter(name, value)
}

// SetType selects the type of a part.
func (a *App) SetType(part, typ string) error {
	p, ok := a.catalog.Part(part)
	if !ok {
		return fmt.Errorf("%w: %q", assembly.ErrUnknownPart, part)
	}
	if _, ok := p.Type(typ); !ok {
		return fmt.Errorf("%w: part %q has no type %q", assembly.ErrUnknownType, part, typ)
	}
	a.configurator.SetType(part, typ)
	return nil
}

// SetScale sets the uniform scale; it is clamped to the configured limits.
func (a *App) SetScale(s float64) {
	a.configurator.SetScale(s)
}

// SetQuietLoad turns the background batch load on or off.
func (a *App) SetQuietLoad(on bool) {
	a.configurator.SetQuietLoad(on)
}

// Snapshot returns the latest built state.
func (a *App) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot
}

// Updates is signaled whenever the snapshot changes.
func (a *App) Updates() <-chan struct{} {
	return a.updates
}

// WaitSettled blocks until the latest build has all of its geometry or
// failed, or ctx is done.
func (a *App) WaitSettled(ctx context.Context) (Snapshot, error) {
	for {
		a.mu.Lock()
		settled, snap := a.settled, a.snapshot
		a.mu.Unlock()
		if settled {
			return snap, nil
		}
		select {
		case <-a.updates:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

func (a *App) notify() {
	select {
	case a.updates <- struct{}{}:
	default:
	}
}

func (a *App) onProgress(p resources.Progress) {
	a.mu.Lock()
	a.snapshot.Progress = progressData(p)
	a.mu.Unlock()
	a.notify()
}

// onBuilt runs on the configurator goroutine.
func (a *App) onBuilt(asm *assembly.Assembly) {
	items := make([]tessellate.Placed, 0, len(asm.Instances))
	colors := make([]string, 0, len(asm.Instances))
	for _, inst := range asm.Instances {
		obj, ok := a.scene.Object(inst.Handle)
		if !ok || obj.Mesh == nil || obj.Mesh.IsEmpty() {
			continue
		}
		items = append(items, tessellate.Placed{Name: inst.Name, Mesh: obj.Mesh, Transform: obj.Transform})
		colors = append(colors, obj.Material.Color)
	}

	meshes := tessellate.World(items)
	data := make([]MeshData, len(meshes))
	for i, m := range meshes {
		data[i] = MeshData{
			Vertices: m.Vertices,
			Normals:  m.Normals,
			Indices:  m.Indices,
			PartName: m.PartName,
			Color:    colors[i],
		}
	}
	pending := []string{}
	var waiting []string
	for _, inst := range asm.Instances {
		if inst.Loaded() {
			continue
		}
		pending = append(pending, inst.Name)
		if !slices.Contains(waiting, inst.Variant.Name) {
			waiting = append(waiting, inst.Variant.Name)
		}
	}
	sel := a.configurator.Selection()

	a.mu.Lock()
	a.snapshot.Product = asm.Product
	a.snapshot.Meshes = data
	a.snapshot.Pending = pending
	a.snapshot.Errors = []EvalErrorData{}
	for _, name := range waiting {
		if e, ok := a.failed[name]; ok {
			a.snapshot.Errors = append(a.snapshot.Errors, e)
		}
	}
	a.waiting = waiting
	a.snapshot.Controls = a.catalog.Controls(sel.Types, catalog.ControlOptions{
		ExcludeParts:      a.cfg.ExcludeParts,
		ExcludeParameters: a.cfg.ExcludeParameters,
	})
	a.settled = a.allFailed()
	a.mu.Unlock()
	a.notify()
}

// onLoadFailed records a variant whose geometry could not be fetched. The
// instances using it stay pending for good, so once every missing variant
// of the latest build has failed the snapshot is settled. Eager asset
// failures are recorded by Run.
func (a *App) onLoadFailed(err error) {
	var le *resources.LoadError
	if !errors.As(err, &le) {
		return
	}
	if _, ok := a.catalog.Variant(le.Name); !ok {
		return
	}
	log.Printf("Load failed: %v", err)

	e := EvalErrorData{Message: err.Error()}
	a.mu.Lock()
	if _, seen := a.failed[le.Name]; seen {
		a.mu.Unlock()
		return
	}
	a.failed[le.Name] = e
	if slices.Contains(a.waiting, le.Name) {
		a.snapshot.Errors = append(a.snapshot.Errors, e)
		a.settled = a.allFailed()
	}
	a.mu.Unlock()
	a.notify()
}

// allFailed reports whether every variant the latest build is missing has
// failed to load. Callers hold a.mu.
func (a *App) allFailed() bool {
	for _, name := range a.waiting {
		if _, ok := a.failed[name]; !ok {
			return false
		}
	}
	return true
}

func (a *App) onBuildFailed(err error) {
	a.mu.Lock()
	a.snapshot.Meshes = []MeshData{}
	a.snapshot.Pending = []string{}
	a.waiting = nil
	a.mu.Unlock()
	a.recordErrors(EvalErrorData{Message: err.Error()})
}

func (a *App) recordErrors(errs ...EvalErrorData) {
	a.mu.Lock()
	a.snapshot.Errors = append(a.snapshot.Errors, errs...)
	a.settled = true
	a.mu.Unlock()
	a.notify()
}

func progressData(p resources.Progress) ProgressData {
	return ProgressData{Loaded: p.Loaded, Total: p.Total, Ratio: p.Ratio()}
}
