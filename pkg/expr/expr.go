// Package expr evaluates the small expression languages used by mechanism
// projects.
//
// Parameter expressions bind numeric model fields (point coordinates, link
// lengths, angle targets, offsets and load values) to the parameter table.
// Two syntaxes are accepted:
//
//   - infix, e.g. "w/2 + sin(pi/6)", compiled with expr-lang/expr;
//   - s-expressions, e.g. "(+ (/ w 2) (sin (/ pi 6)))", evaluated by a
//     sandboxed zygomys interpreter.
//
// Both expose the same whitelist: sin, cos, tan, asin, acos, atan, sqrt, abs,
// min, max and the constants pi and E. Any other name must be a parameter.
//
// Signal expressions (see [EvalSignal]) combine sweep signals such as
// measurements and joint loads, and add the aggregates mean, rms, first and
// last over signal histories.
package expr

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	lerrors "github.com/matzehuels/linkage/pkg/errors"
	"github.com/matzehuels/linkage/pkg/model"
)

var (
	// ErrEmpty is returned for blank expressions.
	ErrEmpty = errors.New("empty expression")

	// ErrNaN is returned when an expression evaluates to NaN.
	ErrNaN = errors.New("expression evaluated to NaN")

	// ErrNotNumber is returned when an expression yields a non-numeric value.
	ErrNotNumber = errors.New("expression is not numeric")
)

// Constants available to every parameter expression. Parameters with the
// same name take precedence.
var constants = map[string]float64{
	"pi": math.Pi,
	"E":  math.E,
}

// Evaluator evaluates parameter expressions. Compiled infix programs are
// cached per source and parameter-name set. An Evaluator is safe for
// concurrent use.
type Evaluator struct {
	mu       sync.Mutex
	programs map[string]*vm.Program
}

var _ model.Evaluator = (*Evaluator)(nil)

// New returns an Evaluator with an empty program cache.
func New() *Evaluator {
	return &Evaluator{programs: make(map[string]*vm.Program)}
}

// Eval evaluates src against params. Errors carry the INVALID_EXPRESSION code.
func (e *Evaluator) Eval(src string, params map[string]float64) (float64, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return 0, lerrors.Wrap(lerrors.ErrCodeInvalidExpression, ErrEmpty, "evaluate")
	}
	var (
		v   float64
		err error
	)
	if IsSExpr(src) {
		v, err = evalLisp(src, params)
	} else {
		v, err = e.evalInfix(src, params)
	}
	if err != nil {
		return 0, lerrors.Wrap(lerrors.ErrCodeInvalidExpression, err, "evaluate %q", src)
	}
	if math.IsNaN(v) {
		return 0, lerrors.Wrap(lerrors.ErrCodeInvalidExpression, ErrNaN, "evaluate %q", src)
	}
	return v, nil
}

// Check compiles src against the parameter names without evaluating it.
func (e *Evaluator) Check(src string, params map[string]float64) error {
	_, err := e.Eval(src, params)
	return err
}

// =============================================================================
// Infix
// =============================================================================

func (e *Evaluator) evalInfix(src string, params map[string]float64) (float64, error) {
	env := paramEnv(params)
	prog, err := e.compile(src, env)
	if err != nil {
		return 0, err
	}
	out, err := expr.Run(prog, env)
	if err != nil {
		return 0, err
	}
	return toFloat(out)
}

func (e *Evaluator) compile(src string, env map[string]any) (*vm.Program, error) {
	names := make([]string, 0, len(env))
	for k := range env {
		names = append(names, k)
	}
	slices.Sort(names)
	key := src + "\x00" + strings.Join(names, ",")

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.programs == nil {
		e.programs = make(map[string]*vm.Program)
	}
	if p, ok := e.programs[key]; ok {
		return p, nil
	}

	opts := []expr.Option{expr.Env(env), expr.DisableAllBuiltins()}
	opts = append(opts, paramFunctions()...)
	p, err := expr.Compile(src, opts...)
	if err != nil {
		return nil, err
	}
	e.programs[key] = p
	return p, nil
}

func paramEnv(params map[string]float64) map[string]any {
	env := make(map[string]any, len(params)+len(constants))
	for k, v := range constants {
		env[k] = v
	}
	for k, v := range params {
		env[k] = v
	}
	return env
}

func paramFunctions() []expr.Option {
	var opts []expr.Option
	for name, fn := range unary {
		opts = append(opts, expr.Function(name, func(args ...any) (any, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("%s() expects one argument", name)
			}
			x, err := toFloat(args[0])
			if err != nil {
				return nil, err
			}
			return fn(x), nil
		}))
	}
	for name, fn := range variadic {
		opts = append(opts, expr.Function(name, func(args ...any) (any, error) {
			xs, err := floats(args)
			if err != nil {
				return nil, err
			}
			if len(xs) == 0 {
				return nil, fmt.Errorf("%s() requires at least one value", name)
			}
			return fn(xs), nil
		}))
	}
	return opts
}

// unary and variadic are the whitelisted parameter functions.
var unary = map[string]func(float64) float64{
	"sin":  math.Sin,
	"cos":  math.Cos,
	"tan":  math.Tan,
	"asin": math.Asin,
	"acos": math.Acos,
	"atan": math.Atan,
	"sqrt": math.Sqrt,
	"abs":  math.Abs,
}

var variadic = map[string]func([]float64) float64{
	"min": func(xs []float64) float64 { return slices.Min(xs) },
	"max": func(xs []float64) float64 { return slices.Max(xs) },
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int32:
		return float64(x), nil
	}
	return 0, fmt.Errorf("%w: got %T", ErrNotNumber, v)
}

func floats(args []any) ([]float64, error) {
	out := make([]float64, 0, len(args))
	for _, a := range args {
		x, err := toFloat(a)
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, nil
}
