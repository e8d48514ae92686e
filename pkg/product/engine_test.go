package product

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEvaluateEmptyString(t *testing.T) {
	eng := NewEngine()

	for _, src := range []string{"", "   \n\t  \n  "} {
		def, evalErrs, err := eng.Evaluate(src)
		if err != nil {
			t.Fatalf("unexpected fatal error: %v", err)
		}
		if len(evalErrs) > 0 {
			t.Fatalf("unexpected eval errors: %v", evalErrs)
		}
		if def == nil {
			t.Fatal("expected non-nil definition")
		}
		if len(def.Steps) != 0 {
			t.Errorf("expected no steps, got %d", len(def.Steps))
		}
	}
}

func TestEvaluatePlainLisp(t *testing.T) {
	eng := NewEngine()

	source := `
(def x 10)
(def y 20)
(+ x y)
`
	def, evalErrs, err := eng.Evaluate(source)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("unexpected eval errors: %v", evalErrs)
	}
	if def == nil || len(def.Steps) != 0 {
		t.Fatalf("expected empty definition, got %+v", def)
	}
}

func TestEvaluateSyntaxError(t *testing.T) {
	eng := NewEngine()

	def, evalErrs, err := eng.Evaluate("(product \"x\"")
	if err != nil {
		t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
	}
	if def != nil {
		t.Fatal("expected nil definition on syntax error")
	}
	if len(evalErrs) == 0 || evalErrs[0].Message == "" {
		t.Fatalf("expected a populated eval error, got %v", evalErrs)
	}
}

func TestEvaluateUndefinedSymbol(t *testing.T) {
	eng := NewEngine()

	def, evalErrs, err := eng.Evaluate("(rotate 0 0 undefined-angle)")
	if err != nil {
		t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
	}
	if def != nil {
		t.Fatal("expected nil definition on eval error")
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected at least one eval error for undefined symbol")
	}
}

func TestDefinitionFoldsEvalErrors(t *testing.T) {
	_, err := NewEngine().Definition(`(step "a" :part "A")`)
	var evalErrs EvalErrors
	if !errors.As(err, &evalErrs) {
		t.Fatalf("expected EvalErrors, got %T (%v)", err, err)
	}
	if !strings.HasPrefix(err.Error(), "product: ") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lamp.lisp")
	if err := os.WriteFile(path, []byte(TableLamp), 0644); err != nil {
		t.Fatal(err)
	}

	def, err := NewEngine().LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if def.Name != "table-lamp" {
		t.Errorf("name = %q", def.Name)
	}

	if _, err := NewEngine().LoadFile(filepath.Join(dir, "missing.lisp")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestEvalErrorImplementsError(t *testing.T) {
	e := EvalError{Line: 5, Message: "something went wrong"}
	if s := e.Error(); !strings.Contains(s, "line 5") || !strings.Contains(s, "something went wrong") {
		t.Errorf("Error() = %q", s)
	}
	if s := (EvalError{Message: "no location"}).Error(); strings.Contains(s, "line") {
		t.Errorf("Error() with no line should not contain 'line', got: %s", s)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	eng := NewEngine()

	first, err := eng.Definition(TableLamp)
	if err != nil {
		t.Fatalf("first evaluation: %v", err)
	}
	for i := 0; i < 3; i++ {
		def, err := eng.Definition(TableLamp)
		if err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
		if len(def.Steps) != len(first.Steps) {
			t.Fatalf("iteration %d: %d steps, want %d", i, len(def.Steps), len(first.Steps))
		}
		for j := range def.Steps {
			if def.Steps[j].Instance != first.Steps[j].Instance ||
				len(def.Steps[j].Rotations) != len(first.Steps[j].Rotations) {
				t.Errorf("iteration %d: step %d differs", i, j)
			}
		}
	}
}

func TestEvaluateTimeout(t *testing.T) {
	e := &Engine{generation: 1}
	ch := make(chan evalResult) // never sends

	_, _, err := e.await(ch, 1, 20*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("expected timeout message, got: %v", err)
	}
}

func TestEvaluateGenerationDiscardsStale(t *testing.T) {
	e := &Engine{generation: 2}
	ch := make(chan evalResult, 1)
	ch <- evalResult{}

	_, _, err := e.await(ch, 1, time.Second)
	if !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
}

func TestParseZygomysError(t *testing.T) {
	tests := []struct {
		name     string
		msg      string
		wantLine int
		wantMsg  string
	}{
		{
			name:     "error on line format",
			msg:      "Error on line 5: unexpected token\n",
			wantLine: 5,
			wantMsg:  "unexpected token",
		},
		{
			name:     "no line info",
			msg:      "some generic error",
			wantLine: 0,
			wantMsg:  "some generic error",
		},
		{
			name:     "short line format",
			msg:      "line 12: missing paren",
			wantLine: 12,
			wantMsg:  "missing paren",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := parseZygomysError(errors.New(tt.msg))
			if len(errs) == 0 {
				t.Fatal("expected at least one error")
			}
			e := errs[0]
			if e.Line != tt.wantLine {
				t.Errorf("line = %d, want %d", e.Line, tt.wantLine)
			}
			if !strings.Contains(e.Message, tt.wantMsg) {
				t.Errorf("message = %q, want containing %q", e.Message, tt.wantMsg)
			}
		})
	}
}
