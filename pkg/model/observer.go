package model

import (
	"slices"
	"strings"
)

// Change is a bit set describing what an [Event] reports.
type Change uint8

const (
	ChangePositions Change = 1 << iota
	ChangeTopology
	ChangeParameters
	ChangeDiagnostics
)

// Has reports whether c includes all bits of o.
func (c Change) Has(o Change) bool { return c&o == o }

func (c Change) String() string {
	var parts []string
	for _, x := range []struct {
		bit  Change
		name string
	}{
		{ChangePositions, "positions"},
		{ChangeTopology, "topology"},
		{ChangeParameters, "parameters"},
		{ChangeDiagnostics, "diagnostics"},
	} {
		if c&x.bit != 0 {
			parts = append(parts, x.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Event is delivered to observers after the model changed.
type Event struct {
	Change Change
	Source string // e.g. "projection", "accurate", "edit"
}

// Observer receives model change events.
type Observer interface {
	OnModelChanged(Event)
}

// ObserverFunc adapts a function to [Observer].
type ObserverFunc func(Event)

// OnModelChanged calls f(e).
func (f ObserverFunc) OnModelChanged(e Event) { f(e) }

// Subscribe registers o and returns a function that unregisters it.
func (m *Model) Subscribe(o Observer) (unsubscribe func()) {
	if m.observers == nil {
		m.observers = make(map[int]Observer)
	}
	id := m.nextObs
	m.nextObs++
	m.observers[id] = o
	return func() { delete(m.observers, id) }
}

// Notify delivers e to all observers in subscription order.
func (m *Model) Notify(e Event) {
	if len(m.observers) == 0 {
		return
	}
	ids := make([]int, 0, len(m.observers))
	for id := range m.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if o, ok := m.observers[id]; ok {
			o.OnModelChanged(e)
		}
	}
}
