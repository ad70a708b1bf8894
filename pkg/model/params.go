package model

import (
	"fmt"
	"slices"
	"strings"

	lerrors "github.com/matzehuels/linkage/pkg/errors"
)

// Parameter is one named value usable from field expressions.
type Parameter struct {
	Name  string
	Value float64
}

// Parameters is an ordered name → value table.
type Parameters struct {
	items []Parameter
}

// Len returns the number of parameters.
func (p *Parameters) Len() int { return len(p.items) }

// List returns a copy of the parameters in table order.
func (p *Parameters) List() []Parameter { return slices.Clone(p.items) }

// Get returns the value of name.
func (p *Parameters) Get(name string) (float64, bool) {
	if i := p.index(name); i >= 0 {
		return p.items[i].Value, true
	}
	return 0, false
}

// Set creates or updates name. Names must be identifiers.
func (p *Parameters) Set(name string, value float64) error {
	name = strings.TrimSpace(name)
	if err := lerrors.ValidateIdentifier(name); err != nil {
		return err
	}
	if err := lerrors.ValidateFinite(name, value); err != nil {
		return err
	}
	if i := p.index(name); i >= 0 {
		p.items[i].Value = value
		return nil
	}
	p.items = append(p.items, Parameter{Name: name, Value: value})
	return nil
}

// Delete removes name; absent names are ignored.
func (p *Parameters) Delete(name string) {
	if i := p.index(name); i >= 0 {
		p.items = slices.Delete(p.items, i, i+1)
	}
}

// Rename changes old to new keeping its position. Renaming an absent
// parameter is a no-op.
func (p *Parameters) Rename(old, new string) error {
	i := p.index(old)
	if i < 0 {
		return nil
	}
	new = strings.TrimSpace(new)
	if err := lerrors.ValidateIdentifier(new); err != nil {
		return err
	}
	if j := p.index(new); j >= 0 && j != i {
		return fmt.Errorf("rename %s: %w", old, ErrDuplicateID)
	}
	p.items[i].Name = new
	return nil
}

// Map returns the parameters as a map for expression evaluation.
func (p *Parameters) Map() map[string]float64 {
	out := make(map[string]float64, len(p.items))
	for _, it := range p.items {
		out[it.Name] = it.Value
	}
	return out
}

// Clone returns an independent copy.
func (p Parameters) Clone() Parameters {
	return Parameters{items: slices.Clone(p.items)}
}

func (p *Parameters) index(name string) int {
	return slices.IndexFunc(p.items, func(it Parameter) bool { return it.Name == name })
}
