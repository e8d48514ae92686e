// Package product evaluates product definitions written in a small Lisp
// dialect. A script declares the product name, its initial alignment and the
// ordered assembly steps; evaluation produces an assembly.Definition.
package product

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chazu/linkage/pkg/assembly"
	zygo "github.com/glycerine/zygomys/zygo"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in a product script.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// EvalErrors joins the eval errors of one evaluation into a single error.
type EvalErrors []EvalError

func (es EvalErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return "product: " + strings.Join(msgs, "; ")
}

// EvalTimeout is the default hard limit for a single evaluation.
const EvalTimeout = 5 * time.Second

var (
	ErrTimeout    = errors.New("product: evaluation timed out")
	ErrSuperseded = errors.New("product: evaluation superseded by newer request")
)

type evalResult struct {
	def    *assembly.Definition
	errors []EvalError
	err    error
}

// Engine wraps the zygomys interpreter. It is safe for concurrent use; each
// call to Evaluate creates a fresh sandboxed environment for determinism.
type Engine struct {
	Timeout time.Duration

	mu         sync.Mutex
	generation uint64
}

// NewEngine creates a new Engine with the default timeout.
func NewEngine() *Engine {
	return &Engine{Timeout: EvalTimeout}
}

// Evaluate takes a product script and produces a new Definition.
//
// Return semantics:
//   - On success: returns definition + nil errors + nil error
//   - On parse/eval failure: returns nil definition + eval errors + nil error
//   - On fatal failure (timeout, panic, superseded): returns nil + nil + error
func (e *Engine) Evaluate(source string) (*assembly.Definition, []EvalError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		def, evalErrs, err := e.evaluate(source)
		ch <- evalResult{def: def, errors: evalErrs, err: err}
	}()

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = EvalTimeout
	}
	return e.await(ch, gen, timeout)
}

// await returns the result of evaluation gen, or ErrTimeout once timeout
// passes. A result that arrives after a newer Evaluate started is discarded
// with ErrSuperseded. A timed-out evaluation keeps running in the
// background; the generation check drops its result.
func (e *Engine) await(ch <-chan evalResult, gen uint64, timeout time.Duration) (*assembly.Definition, []EvalError, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil, nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	case res := <-ch:
		e.mu.Lock()
		stale := gen != e.generation
		e.mu.Unlock()
		if stale {
			return nil, nil, ErrSuperseded
		}
		return res.def, res.errors, res.err
	}
}

// Definition evaluates source and folds eval errors into the returned error.
func (e *Engine) Definition(source string) (*assembly.Definition, error) {
	def, evalErrs, err := e.Evaluate(source)
	if err != nil {
		return nil, err
	}
	if len(evalErrs) > 0 {
		return nil, EvalErrors(evalErrs)
	}
	return def, nil
}

// LoadFile reads and evaluates a product script.
func (e *Engine) LoadFile(path string) (*assembly.Definition, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("product: %w", err)
	}
	def, err := e.Definition(string(src))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func (e *Engine) evaluate(source string) (*assembly.Definition, []EvalError, error) {
	// Empty source is a valid script that declares nothing.
	if strings.TrimSpace(source) == "" {
		return &assembly.Definition{}, nil, nil
	}

	// Sandbox mode prevents scripts from touching the filesystem or syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()

	b := &definitionBuilder{}
	registerBuiltins(env, b)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return nil, parseZygomysError(err), nil
	}
	if _, err := env.Run(); err != nil {
		return nil, parseZygomysError(err), nil
	}

	if err := b.def.Validate(); err != nil {
		return nil, []EvalError{{Message: err.Error()}}, nil
	}
	return &b.def, nil, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values.
// It attempts to extract line number information from the error message.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{
				Line:    line,
				Message: strings.TrimSpace(m[2]),
			}}
		}
	}

	// Fallback: no line info available.
	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
