package resources

import "fmt"

// Progress is the share of loadable variants whose geometry is cached.
type Progress struct {
	Loaded int
	Total  int
}

// Ratio returns Loaded/Total in [0, 1]. A catalog with nothing to load is
// complete.
func (p Progress) Ratio() float64 {
	if p.Total == 0 {
		return 1
	}
	return float64(p.Loaded) / float64(p.Total)
}

// Complete reports whether every loadable variant is cached.
func (p Progress) Complete() bool {
	return p.Loaded >= p.Total
}

func (p Progress) String() string {
	return fmt.Sprintf("%d/%d", p.Loaded, p.Total)
}

// LoadError reports a fetch that failed. Failed fetches are not retried.
type LoadError struct {
	Name string // variant or asset name
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("could not load %s (%s): %v", e.Name, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Signals are the loader's outgoing notifications. Nil fields are skipped.
type Signals struct {
	Progress   func(Progress)
	Ready      func()
	Dirty      func()
	LoadFailed func(error)
}

func (s Signals) progress(p Progress) {
	if s.Progress != nil {
		s.Progress(p)
	}
}

func (s Signals) ready() {
	if s.Ready != nil {
		s.Ready()
	}
}

func (s Signals) dirty() {
	if s.Dirty != nil {
		s.Dirty()
	}
}

func (s Signals) loadFailed(err error) {
	if s.LoadFailed != nil {
		s.LoadFailed(err)
	}
}
