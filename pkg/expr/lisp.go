package expr

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	zygo "github.com/glycerine/zygomys/zygo"
)

// lispHeads are the operators that mark a parenthesised source as an
// s-expression rather than a grouped infix expression.
var lispHeads = []string{"+", "-", "*", "/", "let", "if", "sqrt", "abs", "min", "max",
	"sin", "cos", "tan", "asin", "acos", "atan"}

// IsSExpr reports whether src is written as an s-expression: it starts with
// "(", its head is an operator or whitelisted function followed by a space,
// and the opening parenthesis closes at the end of the source.
//
// "(a + b) * 2" and "(a + b)" are infix; "(+ a b)" and "(sin x)" are not.
func IsSExpr(src string) bool {
	src = strings.TrimSpace(src)
	if !strings.HasPrefix(src, "(") || !strings.HasSuffix(src, ")") {
		return false
	}
	depth := 0
	for i, r := range src {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(src)-1 {
				return false
			}
		}
	}
	fields := strings.Fields(src[1:])
	if len(fields) < 2 {
		return false
	}
	return slices.Contains(lispHeads, fields[0])
}

// evalLisp runs src in a fresh sandbox with every parameter bound by def.
// Parameters are bound as float literals so that division never truncates.
func evalLisp(src string, params map[string]float64) (float64, error) {
	env := zygo.NewZlispSandbox()
	defer env.Stop()
	registerLispMath(env)

	var b strings.Builder
	names := make([]string, 0, len(params)+len(constants))
	for k := range constants {
		if _, ok := params[k]; !ok {
			names = append(names, k)
		}
	}
	for k := range params {
		names = append(names, k)
	}
	slices.Sort(names)
	for _, k := range names {
		v, ok := params[k]
		if !ok {
			v = constants[k]
		}
		fmt.Fprintf(&b, "(def %s %s)\n", k, floatLiteral(v))
	}
	b.WriteString(src)

	if err := env.LoadString(b.String()); err != nil {
		return 0, fmt.Errorf("parse: %w", err)
	}
	out, err := env.Run()
	if err != nil {
		return 0, err
	}
	return sexpFloat(out)
}

func registerLispMath(env *zygo.Zlisp) {
	for name, fn := range unary {
		env.AddFunction(name, func(env *zygo.Zlisp, _ string, args []zygo.Sexp) (zygo.Sexp, error) {
			if len(args) != 1 {
				return zygo.SexpNull, fmt.Errorf("%s expects one argument", name)
			}
			x, err := sexpFloat(args[0])
			if err != nil {
				return zygo.SexpNull, err
			}
			return &zygo.SexpFloat{Val: fn(x)}, nil
		})
	}
	for name, fn := range variadic {
		env.AddFunction(name, func(env *zygo.Zlisp, _ string, args []zygo.Sexp) (zygo.Sexp, error) {
			if len(args) == 0 {
				return zygo.SexpNull, fmt.Errorf("%s requires at least one value", name)
			}
			xs := make([]float64, 0, len(args))
			for _, a := range args {
				x, err := sexpFloat(a)
				if err != nil {
					return zygo.SexpNull, err
				}
				xs = append(xs, x)
			}
			return &zygo.SexpFloat{Val: fn(xs)}, nil
		})
	}
}

func sexpFloat(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpFloat:
		return v.Val, nil
	case *zygo.SexpInt:
		return float64(v.Val), nil
	}
	return 0, fmt.Errorf("%w: got %T", ErrNotNumber, s)
}

// floatLiteral formats v so the reader always produces a float.
func floatLiteral(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}
