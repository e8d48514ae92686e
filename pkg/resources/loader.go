package resources

import (
	"context"
	"log"
	"sync"

	"github.com/chazu/linkage/pkg/catalog"
	"github.com/chazu/linkage/pkg/kernel"
	"golang.org/x/sync/errgroup"
)

// completionBuffer bounds how many finished fetches can wait for the
// controlling goroutine before fetch goroutines block.
const completionBuffer = 64

// Completion is the outcome of one geometry fetch. Fetch goroutines only
// produce completions; the controlling goroutine applies them.
type Completion struct {
	Variant string
	Path    string
	Mesh    *kernel.Mesh
	Err     error
	Quiet   bool // issued by the quiet batch rather than by a build
}

// Asset is an always-needed auxiliary file loaded at startup.
type Asset struct {
	Name string
	Path string
}

// Loader fetches geometry for catalog variants. Every variant is fetched at
// most once per process, whichever mode asks first.
type Loader struct {
	source  kernel.Source
	cache   *Cache
	signals Signals

	loadable map[string]bool
	total    int

	mu           sync.Mutex
	attempted    map[string]bool
	wanted       map[string]bool // requested by a build while a quiet fetch was in flight
	queue        []*catalog.Variant
	quietOn      bool
	quietRunning bool
	loaded       int
	assets       map[string][]byte
	ready        bool

	completions chan Completion
}

// NewLoader returns a loader for the given loadable variants (normally
// catalog.Loadable()).
func NewLoader(source kernel.Source, cache *Cache, loadable []*catalog.Variant, signals Signals) *Loader {
	l := &Loader{
		source:      source,
		cache:       cache,
		signals:     signals,
		loadable:    make(map[string]bool, len(loadable)),
		attempted:   make(map[string]bool),
		wanted:      make(map[string]bool),
		queue:       append([]*catalog.Variant(nil), loadable...),
		assets:      make(map[string][]byte),
		completions: make(chan Completion, completionBuffer),
	}
	for _, v := range loadable {
		if l.loadable[v.Name] {
			continue
		}
		l.loadable[v.Name] = true
		l.total++
		if cache.Has(v.Name) {
			l.loaded++
		}
	}
	return l
}

// Completions delivers finished fetches. The owner must pass each one to
// Apply from a single goroutine.
func (l *Loader) Completions() <-chan Completion {
	return l.completions
}

// Request starts an on-demand fetch of v unless it was already attempted.
// It returns true when a fetch was started.
func (l *Loader) Request(ctx context.Context, v *catalog.Variant) bool {
	if !v.Loadable() {
		return false
	}
	l.mu.Lock()
	if l.attempted[v.Name] {
		if !l.cache.Has(v.Name) {
			l.wanted[v.Name] = true
		}
		l.mu.Unlock()
		return false
	}
	l.attempted[v.Name] = true
	l.mu.Unlock()

	go l.fetch(ctx, v, false)
	return true
}

func (l *Loader) fetch(ctx context.Context, v *catalog.Variant, quiet bool) {
	mesh, err := l.source.Load(ctx, v.Path)
	l.deliver(ctx, Completion{Variant: v.Name, Path: v.Path, Mesh: mesh, Err: err, Quiet: quiet})
}

func (l *Loader) deliver(ctx context.Context, c Completion) bool {
	select {
	case l.completions <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

// Apply stores a completed fetch, emits progress, and reports whether the
// current assembly is now stale. On-demand completions always make it
// stale; quiet ones only when a build asked for the variant meanwhile.
// Failures are logged and signaled, never retried.
func (l *Loader) Apply(c Completion) (dirty bool) {
	l.mu.Lock()
	wanted := l.wanted[c.Variant]
	delete(l.wanted, c.Variant)
	l.mu.Unlock()

	if c.Err != nil {
		err := &LoadError{Name: c.Variant, Path: c.Path, Err: c.Err}
		log.Printf("resources: %v", err)
		l.signals.loadFailed(err)
		return false
	}

	stored := l.cache.Put(c.Variant, c.Mesh)
	l.mu.Lock()
	if stored && l.loadable[c.Variant] {
		l.loaded++
	}
	p := Progress{Loaded: l.loaded, Total: l.total}
	l.mu.Unlock()

	if stored {
		log.Printf("resources: loaded %s (%s)", c.Variant, p)
	}
	l.signals.progress(p)

	dirty = stored && (!c.Quiet || wanted)
	if dirty {
		l.signals.dirty()
	}
	return dirty
}

// Progress returns the current load progress.
func (l *Loader) Progress() Progress {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Progress{Loaded: l.loaded, Total: l.total}
}

// SetQuiet turns the quiet batch load on or off. While on, one goroutine
// fetches the not-yet-attempted loadable variants one at a time. Turning it
// off takes effect before the next item starts; turning it on again resumes
// where it stopped.
func (l *Loader) SetQuiet(ctx context.Context, on bool) {
	l.mu.Lock()
	l.quietOn = on
	start := on && !l.quietRunning
	if start {
		l.quietRunning = true
	}
	l.mu.Unlock()

	if start {
		go l.quietLoop(ctx)
	}
}

// Quiet reports whether the quiet batch load is switched on.
func (l *Loader) Quiet() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.quietOn
}

func (l *Loader) quietLoop(ctx context.Context) {
	for {
		v, ok := l.nextQuiet(ctx)
		if !ok {
			return
		}
		mesh, err := l.source.Load(ctx, v.Path)
		if !l.deliver(ctx, Completion{Variant: v.Name, Path: v.Path, Mesh: mesh, Err: err, Quiet: true}) {
			l.mu.Lock()
			l.quietRunning = false
			l.mu.Unlock()
			return
		}
	}
}

// nextQuiet pops the next variant to fetch, or reports that the loop must
// stop because it was switched off, canceled, or ran out of work.
func (l *Loader) nextQuiet(ctx context.Context) (*catalog.Variant, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for {
		if !l.quietOn || ctx.Err() != nil || len(l.queue) == 0 {
			l.quietRunning = false
			return nil, false
		}
		v := l.queue[0]
		l.queue = l.queue[1:]
		if l.attempted[v.Name] || l.cache.Has(v.Name) {
			continue
		}
		l.attempted[v.Name] = true
		return v, true
	}
}

// LoadEager fetches the always-needed assets concurrently and emits Ready
// once all of them are in. With no assets Ready is emitted immediately.
func (l *Loader) LoadEager(ctx context.Context, src kernel.RawSource, assets []Asset) error {
	g, gctx := errgroup.WithContext(ctx)
	data := make([][]byte, len(assets))
	for i, a := range assets {
		g.Go(func() error {
			b, err := src.LoadRaw(gctx, a.Path)
			if err != nil {
				return &LoadError{Name: a.Name, Path: a.Path, Err: err}
			}
			data[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Printf("resources: %v", err)
		l.signals.loadFailed(err)
		return err
	}

	l.mu.Lock()
	for i, a := range assets {
		l.assets[a.Name] = data[i]
	}
	l.ready = true
	l.mu.Unlock()

	l.signals.ready()
	return nil
}

// Ready reports whether the eager assets have all loaded.
func (l *Loader) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ready
}

// Asset returns an eagerly loaded asset by name.
func (l *Loader) Asset(name string) ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.assets[name]
	return b, ok
}
