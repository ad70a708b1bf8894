package expr

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/expr-lang/expr"

	lerrors "github.com/matzehuels/linkage/pkg/errors"
)

// EvalSignal evaluates a signal expression. Each signal is either a scalar
// (float64) or a history ([]float64). Dotted names such as "load.P3.mag" are
// addressed with member syntax. Arithmetic applies to scalars only; histories
// must be reduced with one of max, min, mean, rms, first or last. Every
// function takes exactly one argument.
func EvalSignal(src string, signals map[string]any) (float64, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return 0, lerrors.Wrap(lerrors.ErrCodeInvalidExpression, ErrEmpty, "evaluate signal")
	}
	env := Nest(signals)
	opts := []expr.Option{expr.Env(env), expr.DisableAllBuiltins()}
	for name, fn := range aggregates {
		opts = append(opts, expr.Function(name, func(args ...any) (any, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("%s() expects one argument", name)
			}
			return fn(args[0])
		}))
	}
	prog, err := expr.Compile(src, opts...)
	if err != nil {
		return 0, lerrors.Wrap(lerrors.ErrCodeInvalidExpression, err, "compile signal %q", src)
	}
	out, err := expr.Run(prog, env)
	if err != nil {
		return 0, lerrors.Wrap(lerrors.ErrCodeInvalidExpression, err, "evaluate signal %q", src)
	}
	v, err := toFloat(out)
	if err != nil {
		return 0, lerrors.Wrap(lerrors.ErrCodeInvalidExpression, err, "evaluate signal %q", src)
	}
	return v, nil
}

// Nest converts flat dotted signal names into nested maps. When a name is
// both a value and a prefix ("a" and "a.b"), the plain value wins and the
// dotted one is unreachable.
func Nest(signals map[string]any) map[string]any {
	out := make(map[string]any, len(signals))
	names := make([]string, 0, len(signals))
	for k := range signals {
		names = append(names, k)
	}
	// Plain names sort before their dotted extensions.
	slices.Sort(names)
	for _, name := range names {
		parts := strings.Split(name, ".")
		cur := out
		ok := true
		for _, p := range parts[:len(parts)-1] {
			next, exists := cur[p]
			if !exists {
				m := make(map[string]any)
				cur[p] = m
				cur = m
				continue
			}
			m, isMap := next.(map[string]any)
			if !isMap {
				ok = false
				break
			}
			cur = m
		}
		if !ok {
			continue
		}
		leaf := parts[len(parts)-1]
		if _, exists := cur[leaf]; exists {
			continue
		}
		cur[leaf] = signals[name]
	}
	return out
}

var aggregates = map[string]func(any) (any, error){
	"max":   reduce("max", func(xs []float64) float64 { return slices.Max(xs) }),
	"min":   reduce("min", func(xs []float64) float64 { return slices.Min(xs) }),
	"mean":  reduce("mean", mean),
	"rms":   reduce("rms", rms),
	"first": reduce("first", func(xs []float64) float64 { return xs[0] }),
	"last":  reduce("last", func(xs []float64) float64 { return xs[len(xs)-1] }),
	"abs": func(v any) (any, error) {
		x, err := toFloat(v)
		if err != nil {
			return nil, fmt.Errorf("abs() expects a scalar: %w", err)
		}
		return math.Abs(x), nil
	},
}

// reduce lifts fn to accept a scalar (treated as a one-element history) or a
// history.
func reduce(name string, fn func([]float64) float64) func(any) (any, error) {
	return func(v any) (any, error) {
		var xs []float64
		switch x := v.(type) {
		case []float64:
			xs = x
		case []any:
			fs, err := floats(x)
			if err != nil {
				return nil, err
			}
			xs = fs
		default:
			f, err := toFloat(v)
			if err != nil {
				return nil, err
			}
			xs = []float64{f}
		}
		if len(xs) == 0 {
			return nil, fmt.Errorf("%s() requires at least one value", name)
		}
		return fn(xs), nil
	}
}

func mean(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func rms(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x * x
	}
	return math.Sqrt(s / float64(len(xs)))
}
