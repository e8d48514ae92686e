// Package selector picks, among the discrete variants of a part type, the
// one whose parameters best approximate a requested configuration.
package selector

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/linkage/pkg/catalog"
	"gonum.org/v1/gonum/stat"
)

// Parameters maps readable parameter names to requested values.
type Parameters map[string]float64

// ErrNoCandidates is returned when a part type has no variants to choose from.
var ErrNoCandidates = errors.New("selector: no candidate variants")

// MissingParameterError reports a variant parameter that the configuration
// does not provide.
type MissingParameterError struct {
	Variant   string
	Parameter string // internal key
	Name      string // readable name looked up in the configuration
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("selector: variant %q needs parameter %q (%s) which is not configured",
		e.Variant, e.Name, e.Parameter)
}

// scorePrecision is the number of decimals each relative error is rounded to
// before averaging, so that variants differing only by float noise tie.
const scorePrecision = 1e4

// Score returns the mean relative error between a variant's parameters and
// the requested ones. names translates internal keys to readable names; a
// key without a readable name is looked up as-is. A requested value of zero
// scores by absolute error instead, so an exact zero match still scores 0.
func Score(v *catalog.Variant, requested Parameters, names map[string]string) (float64, error) {
	keys := v.ParameterKeys()
	if len(keys) == 0 {
		return 0, nil
	}
	errs := make([]float64, 0, len(keys))
	for _, key := range keys {
		name, ok := names[key]
		if !ok {
			name = key
		}
		want, ok := requested[name]
		if !ok {
			return 0, &MissingParameterError{Variant: v.Name, Parameter: key, Name: name}
		}
		diff := math.Abs(v.Parameters[key] - want)
		if want != 0 {
			diff /= math.Abs(want)
		}
		errs = append(errs, math.Round(diff*scorePrecision)/scorePrecision)
	}
	return stat.Mean(errs, nil), nil
}

// Select returns the candidate with the lowest score. Ties keep the
// earliest-declared candidate.
func Select(candidates []*catalog.Variant, requested Parameters, names map[string]string) (*catalog.Variant, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	var (
		best      *catalog.Variant
		bestScore = math.Inf(1)
	)
	for _, c := range candidates {
		s, err := Score(c, requested, names)
		if err != nil {
			return nil, err
		}
		if best == nil || s < bestScore {
			best, bestScore = c, s
		}
	}
	return best, nil
}
