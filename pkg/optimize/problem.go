package optimize

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/linkage/pkg/errors"
	"github.com/matzehuels/linkage/pkg/sweep"
)

// Direction selects whether an objective is minimized or maximized.
type Direction string

const (
	Minimize Direction = "min"
	Maximize Direction = "max"
)

// Comparator bounds a constraint expression.
type Comparator string

const (
	AtMost  Comparator = "<="
	AtLeast Comparator = ">="
)

// Variable is a design variable sampled uniformly from [Lower, Upper].
//
// Name addresses a model quantity: "P3.x" or "P3.y" for a point coordinate,
// "Link2.L" for a link length, "PointLine1.s" for a point-line offset and
// "Param.name" for a parameter. Setting a parameter re-evaluates every
// expression-bound field before the other variables are applied.
type Variable struct {
	Name     string  `json:"name" toml:"name"`
	Lower    float64 `json:"lower" toml:"lower"`
	Upper    float64 `json:"upper" toml:"upper"`
	Disabled bool    `json:"disabled,omitempty" toml:"disabled"`
}

// Objective is a signal expression to minimize or maximize. Cases lists
// the case ids it is averaged over; empty means every case.
type Objective struct {
	Expr      string    `json:"expr" toml:"expr"`
	Direction Direction `json:"direction" toml:"direction"`
	Cases     []string  `json:"cases,omitempty" toml:"cases"`
	Disabled  bool      `json:"disabled,omitempty" toml:"disabled"`
}

// Constraint requires a signal expression to stay on one side of Limit in
// every case it applies to.
type Constraint struct {
	Expr       string     `json:"expr" toml:"expr"`
	Comparator Comparator `json:"comparator" toml:"comparator"`
	Limit      float64    `json:"limit" toml:"limit"`
	Cases      []string   `json:"cases,omitempty" toml:"cases"`
	Disabled   bool       `json:"disabled,omitempty" toml:"disabled"`
}

// Case is one sweep every candidate is evaluated with.
type Case struct {
	ID    string        `json:"id" toml:"id"`
	Sweep sweep.Options `json:"sweep" toml:"sweep"`
}

// Problem is a design optimization: the variables to sample, the cases to
// sweep and the objectives and constraints that score a candidate.
type Problem struct {
	Variables   []Variable   `json:"variables" toml:"variables"`
	Objectives  []Objective  `json:"objectives" toml:"objectives"`
	Constraints []Constraint `json:"constraints,omitempty" toml:"constraints"`
	Cases       []Case       `json:"cases" toml:"cases"`
}

var variablePattern = regexp.MustCompile(`^(P\d+\.[xy]|Link\d+\.L|PointLine\d+\.s|Param\.[A-Za-z_]\w*)$`)

// Validate checks the problem before any sweep runs.
func (p *Problem) Validate() error {
	if len(p.Cases) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "optimization needs at least one case")
	}
	ids := make(map[string]bool, len(p.Cases))
	for i, c := range p.Cases {
		if strings.TrimSpace(c.ID) == "" {
			return errors.New(errors.ErrCodeInvalidInput, "case %d has no id", i)
		}
		if ids[c.ID] {
			return errors.New(errors.ErrCodeInvalidInput, "duplicate case id %q", c.ID)
		}
		ids[c.ID] = true
		if err := c.Sweep.Validate(); err != nil {
			return fmt.Errorf("case %s: %w", c.ID, err)
		}
	}

	seen := make(map[string]bool, len(p.Variables))
	for _, v := range p.Variables {
		if !variablePattern.MatchString(v.Name) {
			return errors.New(errors.ErrCodeInvalidInput, "unknown design variable %q", v.Name)
		}
		if seen[v.Name] {
			return errors.New(errors.ErrCodeInvalidInput, "duplicate design variable %q", v.Name)
		}
		seen[v.Name] = true
		if math.IsNaN(v.Lower) || math.IsNaN(v.Upper) || math.IsInf(v.Lower, 0) || math.IsInf(v.Upper, 0) {
			return errors.New(errors.ErrCodeInvalidInput, "%s: bounds must be finite", v.Name)
		}
		if v.Lower > v.Upper {
			return errors.New(errors.ErrCodeInvalidInput, "%s: lower bound %g exceeds upper bound %g", v.Name, v.Lower, v.Upper)
		}
	}

	for i, o := range p.Objectives {
		if strings.TrimSpace(o.Expr) == "" {
			return errors.New(errors.ErrCodeInvalidInput, "objective %d has no expression", i)
		}
		switch o.Direction {
		case Minimize, Maximize:
		default:
			return errors.New(errors.ErrCodeInvalidInput, "objective %d: direction must be min or max, got %q", i, o.Direction)
		}
		if err := knownCases(ids, o.Cases); err != nil {
			return fmt.Errorf("objective %d: %w", i, err)
		}
	}
	for i, c := range p.Constraints {
		if strings.TrimSpace(c.Expr) == "" {
			return errors.New(errors.ErrCodeInvalidInput, "constraint %d has no expression", i)
		}
		switch c.Comparator {
		case AtMost, AtLeast:
		default:
			return errors.New(errors.ErrCodeInvalidInput, "constraint %d: comparator must be <= or >=, got %q", i, c.Comparator)
		}
		if err := knownCases(ids, c.Cases); err != nil {
			return fmt.Errorf("constraint %d: %w", i, err)
		}
	}
	return nil
}

func knownCases(ids map[string]bool, cases []string) error {
	for _, id := range cases {
		if !ids[id] {
			return errors.New(errors.ErrCodeInvalidInput, "unknown case %q", id)
		}
	}
	return nil
}

// LoadProblem reads a problem from a .toml or .json file and validates it.
func LoadProblem(path string) (*Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "problem file %s", path)
		}
		return nil, err
	}
	var p Problem
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &p)
	default:
		err = toml.Unmarshal(data, &p)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse problem %s", path)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
