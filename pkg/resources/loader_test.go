package resources

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chazu/linkage/pkg/catalog"
	"github.com/chazu/linkage/pkg/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

// gatedSource blocks every Load on a per-path gate until the test releases
// it, and counts how often each path was fetched.
type gatedSource struct {
	mu    sync.Mutex
	calls map[string]int
	gates map[string]chan struct{}
	fail  map[string]error
}

func newGatedSource() *gatedSource {
	return &gatedSource{
		calls: make(map[string]int),
		gates: make(map[string]chan struct{}),
		fail:  make(map[string]error),
	}
}

func (s *gatedSource) gate(path string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gates[path]
	if !ok {
		g = make(chan struct{})
		s.gates[path] = g
	}
	return g
}

func (s *gatedSource) release(path string) {
	close(s.gate(path))
}

func (s *gatedSource) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

func (s *gatedSource) Load(ctx context.Context, path string) (*kernel.Mesh, error) {
	s.mu.Lock()
	s.calls[path]++
	err := s.fail[path]
	s.mu.Unlock()

	select {
	case <-s.gate(path):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return &kernel.Mesh{PartName: path}, nil
}

func variants(names ...string) []*catalog.Variant {
	out := make([]*catalog.Variant, len(names))
	for i, n := range names {
		out[i] = &catalog.Variant{Name: n, Path: n + ".stl"}
	}
	return out
}

func receive(t *testing.T, l *Loader) Completion {
	t.Helper()
	select {
	case c := <-l.Completions():
		return c
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for completion")
		return Completion{}
	}
}

func assertNoCompletion(t *testing.T, l *Loader) {
	t.Helper()
	select {
	case c := <-l.Completions():
		t.Fatalf("unexpected completion for %s", c.Variant)
	case <-time.After(50 * time.Millisecond):
	}
}

// ---------------------------------------------------------------------------
// On-demand loading
// ---------------------------------------------------------------------------

func TestRequestDeduplicates(t *testing.T) {
	src := newGatedSource()
	vs := variants("a")
	l := NewLoader(src, NewCache(), vs, Signals{})
	ctx := context.Background()

	assert.True(t, l.Request(ctx, vs[0]))
	assert.False(t, l.Request(ctx, vs[0]))

	src.release("a.stl")
	c := receive(t, l)
	require.NoError(t, c.Err)
	assert.False(t, c.Quiet)
	assert.Equal(t, 1, src.count("a.stl"))

	assert.False(t, l.Request(ctx, vs[0]), "completed variants are not fetched again")
}

func TestRequestSkipsPathless(t *testing.T) {
	l := NewLoader(newGatedSource(), NewCache(), nil, Signals{})
	assert.False(t, l.Request(context.Background(), &catalog.Variant{Name: "virtual"}))
}

func TestApplyMarksDirtyAndReportsProgress(t *testing.T) {
	src := newGatedSource()
	vs := variants("a", "b")
	cache := NewCache()

	var progress []Progress
	dirty := 0
	l := NewLoader(src, cache, vs, Signals{
		Progress: func(p Progress) { progress = append(progress, p) },
		Dirty:    func() { dirty++ },
	})

	l.Request(context.Background(), vs[0])
	src.release("a.stl")

	assert.True(t, l.Apply(receive(t, l)))
	assert.True(t, cache.Has("a"))
	assert.Equal(t, 1, dirty)
	require.Len(t, progress, 1)
	assert.Equal(t, Progress{Loaded: 1, Total: 2}, progress[0])
	assert.InDelta(t, 0.5, l.Progress().Ratio(), 1e-9)
}

func TestApplyFailureIsReportedOnce(t *testing.T) {
	src := newGatedSource()
	src.fail["a.stl"] = errors.New("disk on fire")
	vs := variants("a")

	var failures []error
	l := NewLoader(src, NewCache(), vs, Signals{
		LoadFailed: func(err error) { failures = append(failures, err) },
	})

	l.Request(context.Background(), vs[0])
	src.release("a.stl")
	assert.False(t, l.Apply(receive(t, l)))

	require.Len(t, failures, 1)
	var le *LoadError
	require.ErrorAs(t, failures[0], &le)
	assert.Equal(t, "a", le.Name)
	assert.Equal(t, "a.stl", le.Path)
	assert.Contains(t, le.Error(), "disk on fire")

	assert.False(t, l.Request(context.Background(), vs[0]), "failed fetches are not retried")
	assert.Equal(t, 1, src.count("a.stl"))
	assert.Equal(t, 0, l.Progress().Loaded)
}

func TestApplyDuplicateDoesNotCountTwice(t *testing.T) {
	vs := variants("a")
	cache := NewCache()
	l := NewLoader(newGatedSource(), cache, vs, Signals{})

	mesh := &kernel.Mesh{}
	assert.True(t, l.Apply(Completion{Variant: "a", Path: "a.stl", Mesh: mesh}))
	assert.False(t, l.Apply(Completion{Variant: "a", Path: "a.stl", Mesh: &kernel.Mesh{}}))
	assert.Equal(t, Progress{Loaded: 1, Total: 1}, l.Progress())

	got, err := cache.Get("a")
	require.NoError(t, err)
	assert.Same(t, mesh, got)
}

func TestNewLoaderCountsPrecachedVariants(t *testing.T) {
	cache := NewCache()
	cache.Put("a", &kernel.Mesh{})
	l := NewLoader(newGatedSource(), cache, variants("a", "b", "a"), Signals{})
	assert.Equal(t, Progress{Loaded: 1, Total: 2}, l.Progress())
}

func TestNewLoaderDuplicatesNeverExceedTotal(t *testing.T) {
	cache := NewCache()
	cache.Put("a", &kernel.Mesh{})
	l := NewLoader(newGatedSource(), cache, variants("a", "a", "a"), Signals{})
	p := l.Progress()
	assert.Equal(t, Progress{Loaded: 1, Total: 1}, p)
	assert.InDelta(t, 1.0, p.Ratio(), 1e-9)
	assert.True(t, p.Complete())
}

// ---------------------------------------------------------------------------
// Quiet loading
// ---------------------------------------------------------------------------

func TestQuietLoadsEverythingInOrder(t *testing.T) {
	src := newGatedSource()
	vs := variants("a", "b", "c")
	for _, v := range vs {
		src.release(v.Path)
	}

	var ratios []float64
	l := NewLoader(src, NewCache(), vs, Signals{
		Progress: func(p Progress) { ratios = append(ratios, p.Ratio()) },
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l.SetQuiet(ctx, true)
	assert.True(t, l.Quiet())
	for _, want := range []string{"a", "b", "c"} {
		c := receive(t, l)
		assert.Equal(t, want, c.Variant)
		assert.True(t, c.Quiet)
		assert.False(t, l.Apply(c), "quiet completions nobody asked for are not dirty")
	}

	require.Len(t, ratios, 3)
	for i := 1; i < len(ratios); i++ {
		assert.GreaterOrEqual(t, ratios[i], ratios[i-1])
	}
	assert.InDelta(t, 1.0, ratios[len(ratios)-1], 1e-9)
	assert.True(t, l.Progress().Complete())
}

func TestQuietSkipsAttempted(t *testing.T) {
	src := newGatedSource()
	vs := variants("a", "b")
	src.release("a.stl")
	src.release("b.stl")
	l := NewLoader(src, NewCache(), vs, Signals{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l.Request(ctx, vs[0])
	l.Apply(receive(t, l))

	l.SetQuiet(ctx, true)
	c := receive(t, l)
	assert.Equal(t, "b", c.Variant)
	assertNoCompletion(t, l)
	assert.Equal(t, 1, src.count("a.stl"))
}

func TestQuietOffStopsBeforeNextItem(t *testing.T) {
	src := newGatedSource()
	vs := variants("a", "b")
	l := NewLoader(src, NewCache(), vs, Signals{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l.SetQuiet(ctx, true)
	require.Eventually(t, func() bool { return src.count("a.stl") == 1 }, waitTimeout, time.Millisecond)

	l.SetQuiet(ctx, false)
	src.release("a.stl")
	src.release("b.stl")

	assert.Equal(t, "a", receive(t, l).Variant, "the item in flight still completes")
	assertNoCompletion(t, l)
	assert.Equal(t, 0, src.count("b.stl"))

	l.SetQuiet(ctx, true)
	assert.Equal(t, "b", receive(t, l).Variant, "resumes where it stopped")
}

func TestQuietFetchWantedByBuildIsDirty(t *testing.T) {
	src := newGatedSource()
	vs := variants("a")
	l := NewLoader(src, NewCache(), vs, Signals{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l.SetQuiet(ctx, true)
	require.Eventually(t, func() bool { return src.count("a.stl") == 1 }, waitTimeout, time.Millisecond)

	assert.False(t, l.Request(ctx, vs[0]), "already in flight")
	src.release("a.stl")
	c := receive(t, l)
	assert.True(t, c.Quiet)
	assert.True(t, l.Apply(c))
	assert.Equal(t, 1, src.count("a.stl"))
}

// ---------------------------------------------------------------------------
// Eager loading
// ---------------------------------------------------------------------------

type rawSource map[string][]byte

func (r rawSource) LoadRaw(_ context.Context, path string) ([]byte, error) {
	b, ok := r[path]
	if !ok {
		return nil, errors.New("not found")
	}
	return b, nil
}

func TestLoadEager(t *testing.T) {
	ready := 0
	l := NewLoader(newGatedSource(), NewCache(), nil, Signals{Ready: func() { ready++ }})
	src := rawSource{"env.hdr": []byte("sky"), "floor.png": []byte("wood")}

	require.NoError(t, l.LoadEager(context.Background(), src, []Asset{
		{Name: "environment", Path: "env.hdr"},
		{Name: "floor", Path: "floor.png"},
	}))
	assert.Equal(t, 1, ready)
	assert.True(t, l.Ready())

	b, ok := l.Asset("environment")
	require.True(t, ok)
	assert.Equal(t, "sky", string(b))
	_, ok = l.Asset("missing")
	assert.False(t, ok)
}

func TestLoadEagerEmpty(t *testing.T) {
	ready := 0
	l := NewLoader(newGatedSource(), NewCache(), nil, Signals{Ready: func() { ready++ }})
	require.NoError(t, l.LoadEager(context.Background(), rawSource{}, nil))
	assert.Equal(t, 1, ready)
}

func TestLoadEagerFailure(t *testing.T) {
	ready := 0
	var failed error
	l := NewLoader(newGatedSource(), NewCache(), nil, Signals{
		Ready:      func() { ready++ },
		LoadFailed: func(err error) { failed = err },
	})
	err := l.LoadEager(context.Background(), rawSource{}, []Asset{{Name: "environment", Path: "env.hdr"}})

	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "environment", le.Name)
	assert.Equal(t, err, failed)
	assert.Zero(t, ready)
	assert.False(t, l.Ready())
}
