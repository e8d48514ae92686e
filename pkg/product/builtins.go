package product

import (
	"fmt"
	"strings"

	"github.com/chazu/linkage/pkg/assembly"
	"github.com/chazu/linkage/pkg/kinematics"
	v3 "github.com/deadsy/sdfx/vec/v3"
	zygo "github.com/glycerine/zygomys/zygo"
)

// definitionBuilder accumulates a Definition while a script runs.
type definitionBuilder struct {
	def       assembly.Definition
	rotations []assembly.Rotation // running chain; each step takes a copy
}

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpVec3 wraps a fixed world point.
type sexpVec3 struct {
	vec v3.Vec
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// sexpAngle wraps an angle bound to a configuration parameter.
type sexpAngle struct {
	angle assembly.Angle
}

func (a *sexpAngle) SexpString(ps *zygo.PrintState) string {
	return a.angle.String()
}
func (a *sexpAngle) Type() *zygo.RegisteredType { return nil }

// sexpOutput wraps a reference to an earlier instance's output anchor.
type sexpOutput struct {
	target assembly.Target
}

func (o *sexpOutput) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(output %q %q)", o.target.Instance, o.target.Anchor)
}
func (o *sexpOutput) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok || !strings.HasPrefix(str.S, kwPrefix) {
		return "", false
	}
	return str.S[len(kwPrefix):], true
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	for i := 0; i < len(args); i++ {
		name, ok := isKW(args[i])
		if !ok {
			result.positional = append(result.positional, args[i])
			continue
		}
		if i+1 < len(args) {
			result.kw[name] = args[i+1]
			i++
		} else {
			result.kw[name] = zygo.SexpNull
		}
	}
	return result
}

// stringKW returns a string keyword argument, or "" when absent.
func (a kwArgs) stringKW(name string) (string, error) {
	v, ok := a.kw[name]
	if !ok {
		return "", nil
	}
	s, err := toString(v)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return s, nil
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toAngle accepts a number or a (param ...) form.
func toAngle(s zygo.Sexp) (assembly.Angle, error) {
	if a, ok := s.(*sexpAngle); ok {
		return a.angle, nil
	}
	f, err := toFloat64(s)
	if err != nil {
		return assembly.Angle{}, fmt.Errorf("expected number or (param ...): %w", err)
	}
	return assembly.Deg(f), nil
}

// toTriple reads exactly three values with conv.
func toTriple[T any](fn string, args []zygo.Sexp, conv func(zygo.Sexp) (T, error)) ([3]T, error) {
	var out [3]T
	if len(args) != 3 {
		return out, fmt.Errorf("%s requires 3 arguments, got %d", fn, len(args))
	}
	for i, a := range args {
		v, err := conv(a)
		if err != nil {
			return out, fmt.Errorf("%s: argument %d: %w", fn, i+1, err)
		}
		out[i] = v
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs the product DSL into a zygomys environment. The
// builtins populate b during evaluation.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, b *definitionBuilder) {

	// -----------------------------------------------------------------------
	// (product "table-lamp")
	// -----------------------------------------------------------------------
	env.AddFunction("product", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("product requires a name argument")
		}
		n, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("product: %w", err)
		}
		b.def.Name = n
		return args[0], nil
	})

	// -----------------------------------------------------------------------
	// (initial-rotation -90 0 0)
	// -----------------------------------------------------------------------
	env.AddFunction("initial_rotation", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		d, err := toTriple("initial-rotation", args, toFloat64)
		if err != nil {
			return zygo.SexpNull, err
		}
		b.def.InitialRotations = append(b.def.InitialRotations, kinematics.Euler{X: d[0], Y: d[1], Z: d[2]})
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (rotate 0 0 (param "Lamp Swivel Angle"))
	// -----------------------------------------------------------------------
	env.AddFunction("rotate", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		r, err := toTriple("rotate", args, toAngle)
		if err != nil {
			return zygo.SexpNull, err
		}
		b.rotations = append(b.rotations, assembly.Rotation(r))
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (param "Lamp Swivel Angle")
	// -----------------------------------------------------------------------
	env.AddFunction("param", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("param requires a parameter name")
		}
		n, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("param: %w", err)
		}
		return &sexpAngle{angle: assembly.Param(n)}, nil
	})

	// -----------------------------------------------------------------------
	// (vec3 0 0 0)
	// -----------------------------------------------------------------------
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		d, err := toTriple("vec3", args, toFloat64)
		if err != nil {
			return zygo.SexpNull, err
		}
		return &sexpVec3{vec: v3.Vec{X: d[0], Y: d[1], Z: d[2]}}, nil
	})

	// -----------------------------------------------------------------------
	// (output "lampBase" "OutputPoint1")
	// -----------------------------------------------------------------------
	env.AddFunction("output", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("output requires an instance and an anchor name")
		}
		inst, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("output: instance: %w", err)
		}
		anchor, err := toString(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("output: anchor: %w", err)
		}
		return &sexpOutput{target: assembly.From(inst, anchor)}, nil
	})

	// -----------------------------------------------------------------------
	// (step "lowerAxle" :part "LowerAxle" :from (output ...) :anchor "PlacementPoint1" :color "#154360")
	// -----------------------------------------------------------------------
	env.AddFunction("step", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("step requires an instance name")
		}
		inst, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("step: instance: %w", err)
		}

		s := assembly.Step{Instance: inst}
		for kw, dst := range map[string]*string{"part": &s.Part, "anchor": &s.Anchor, "color": &s.Color} {
			if *dst, err = pa.stringKW(kw); err != nil {
				return zygo.SexpNull, fmt.Errorf("step %q: %w", inst, err)
			}
		}
		if s.Part == "" || s.Anchor == "" {
			return zygo.SexpNull, fmt.Errorf("step %q requires :part and :anchor", inst)
		}

		at, hasAt := pa.kw["at"]
		from, hasFrom := pa.kw["from"]
		switch {
		case hasAt == hasFrom:
			return zygo.SexpNull, fmt.Errorf("step %q requires exactly one of :at and :from", inst)
		case hasAt:
			v, ok := at.(*sexpVec3)
			if !ok {
				return zygo.SexpNull, fmt.Errorf("step %q: at: expected vec3, got %s", inst, at.SexpString(nil))
			}
			s.Target = assembly.At(v.vec)
		default:
			o, ok := from.(*sexpOutput)
			if !ok {
				return zygo.SexpNull, fmt.Errorf("step %q: from: expected (output ...), got %s", inst, from.SexpString(nil))
			}
			s.Target = o.target
		}

		s.Rotations = append([]assembly.Rotation(nil), b.rotations...)
		b.def.Steps = append(b.def.Steps, s)
		return &zygo.SexpStr{S: inst}, nil
	})
}
