package model

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lerrors "github.com/matzehuels/linkage/pkg/errors"
)

func TestJSONRoundTrip(t *testing.T) {
	m := fourBar(t)
	s := 0.75
	pl, _ := NewPointLine(0, 2, 0, 3, &s)
	pl.SExpr = "w/2"
	m.PointLines[0] = pl
	a, _ := NewAngle(0, 0, 1, 2, math.Pi/3)
	m.Angles[0] = a
	m.Splines[0] = &Spline{ID: 0, Points: []int{0, 1, 2}, Closed: true}
	ps, _ := NewPointSpline(0, 3, 0)
	m.PointSplines[0] = ps
	m.AddBody(&Body{ID: 0, Members: []int{1, 2}})
	m.Drivers = append(m.Drivers, NewTranslationDriver(0, 0.5, 0.25))
	m.Loads = append(m.Loads, Load{Type: LoadSpring, PID: 2, RefPID: 3, K: 10, Preload: 1, FXExpr: "w"})
	m.Measures = append(m.Measures, Measure{Type: MeasureJoint, Name: "knee", I: 0, J: 1, K: 2, PLID: NoID, Pivot: NoID, Tip: NoID})
	m.LoadMeasures = append(m.LoadMeasures, LoadMeasure{Name: "pin", PID: 0, Component: ComponentMag})
	m.Parameters.Set("w", 1.5)
	m.Links[1].Over = true

	var buf bytes.Buffer
	if err := WriteJSON(&buf, m); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	got, err := ReadJSON(&buf)
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}

	for id, p := range m.Points {
		if *got.Points[id] != *p {
			t.Errorf("point %d = %+v, want %+v", id, *got.Points[id], *p)
		}
	}
	for id, l := range m.Links {
		want := *l
		want.Over = false
		if *got.Links[id] != want {
			t.Errorf("link %d = %+v, want %+v", id, *got.Links[id], want)
		}
	}
	if math.Abs(got.Angles[0].Rad-math.Pi/3) > 1e-12 {
		t.Errorf("angle rad = %v, want %v", got.Angles[0].Rad, math.Pi/3)
	}
	if gp := got.PointLines[0]; !gp.HasOffset() || gp.Offset() != 0.75 || gp.SExpr != "w/2" {
		t.Errorf("point line = %+v, want offset 0.75 with expr", gp)
	}
	if gs := got.Splines[0]; !gs.Closed || len(gs.Points) != 3 {
		t.Errorf("spline = %+v", gs)
	}
	if got.PointSplines[0].Spline != 0 || got.PointSplines[0].P != 3 {
		t.Errorf("point spline = %+v", got.PointSplines[0])
	}
	if len(got.Bodies[0].RigidEdges) != 1 || got.Bodies[0].RigidEdges[0] != m.Bodies[0].RigidEdges[0] {
		t.Errorf("rigid edges = %v, want %v", got.Bodies[0].RigidEdges, m.Bodies[0].RigidEdges)
	}
	if len(got.Drivers) != 2 {
		t.Fatalf("len(Drivers) = %d, want 2", len(got.Drivers))
	}
	for i := range m.Drivers {
		if got.Drivers[i] != m.Drivers[i] {
			t.Errorf("driver %d = %+v, want %+v", i, got.Drivers[i], m.Drivers[i])
		}
	}
	if got.Outputs[0] != m.Outputs[0] {
		t.Errorf("output = %+v, want %+v", got.Outputs[0], m.Outputs[0])
	}
	if got.Loads[0] != m.Loads[0] {
		t.Errorf("load = %+v, want %+v", got.Loads[0], m.Loads[0])
	}
	if got.Measures[0] != m.Measures[0] {
		t.Errorf("measure = %+v, want %+v", got.Measures[0], m.Measures[0])
	}
	if got.LoadMeasures[0] != m.LoadMeasures[0] {
		t.Errorf("load measure = %+v, want %+v", got.LoadMeasures[0], m.LoadMeasures[0])
	}
	if v, ok := got.Parameters.Get("w"); !ok || v != 1.5 {
		t.Errorf("parameter w = %v, %v, want 1.5, true", v, ok)
	}
}

func TestReadJSONLegacyConstraints(t *testing.T) {
	const doc = `{
	  "points": [
	    {"id": 0, "x": 0, "y": 0, "fixed": true},
	    {"id": 1, "x": 1, "y": 0},
	    {"id": 2, "x": 1, "y": 1},
	    {"id": 3, "x": 2, "y": 0}
	  ],
	  "links": [{"id": 9, "i": 0, "j": 3, "L": 2}],
	  "splines": [{"id": 4, "points": [0, 2, 3], "closed": false}],
	  "constraints": [
	    {"type": "length", "id": 0, "i": 0, "j": 1, "value": 1},
	    {"type": "length", "id": 1, "i": 1, "j": 2, "enabled": false},
	    {"type": "angle", "id": 2, "i": 0, "j": 1, "k": 2, "value": 90},
	    {"type": "coincide", "id": 3, "a": 1, "b": 2},
	    {"type": "pointonline", "id": 4, "p": 2, "i": 0, "j": 3},
	    {"type": "point_spline_constraint", "id": 5, "p": 1, "s": 4},
	    {"type": "gear", "id": 6}
	  ],
	  "driver": {"enabled": true, "type": "angle", "pivot": 0, "tip": 1}
	}`
	m, err := ReadJSON(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if len(m.Links) != 2 {
		t.Fatalf("len(Links) = %d, want 2 (typed links replaced)", len(m.Links))
	}
	if l := m.Links[0]; l.L != 1 || l.Ref {
		t.Errorf("link 0 = %+v, want L=1 active", l)
	}
	if l := m.Links[1]; l.L != 1 || !l.Ref {
		t.Errorf("link 1 = %+v, want default L=1 and ref", l)
	}
	if a := m.Angles[2]; math.Abs(a.Rad-math.Pi/2) > 1e-12 || !a.Enabled {
		t.Errorf("angle = %+v, want rad π/2 enabled", a)
	}
	if _, ok := m.Coincides[3]; !ok {
		t.Error("coincide 3 missing")
	}
	if pl := m.PointLines[4]; pl == nil || pl.HasOffset() {
		t.Errorf("point line 4 = %+v, want no offset", pl)
	}
	if ps := m.PointSplines[5]; ps == nil || ps.Spline != 4 {
		t.Errorf("point spline 5 = %+v, want spline 4", ps)
	}
	if _, ok := m.Splines[4]; !ok {
		t.Error("splines should be read from the splines array")
	}
	if len(m.Drivers) != 1 || m.Drivers[0].Rad != 0 || m.Drivers[0].SweepEnd != 360 {
		t.Errorf("drivers = %+v, want one legacy driver with rad from geometry", m.Drivers)
	}
}

func TestReadJSONComputesMissingRad(t *testing.T) {
	const doc = `{
	  "points": [{"id": 0, "x": 0, "y": 0}, {"id": 1, "x": 0, "y": 2}],
	  "drivers": [{"type": "angle", "pivot": 0, "tip": 1}],
	  "outputs": [{"pivot": 0, "tip": 1}]
	}`
	m, err := ReadJSON(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	if !m.Drivers[0].Enabled || math.Abs(m.Drivers[0].Rad-math.Pi/2) > 1e-12 {
		t.Errorf("driver = %+v, want enabled with rad π/2", m.Drivers[0])
	}
	if math.Abs(m.Outputs[0].Rad-math.Pi/2) > 1e-12 {
		t.Errorf("output rad = %v, want π/2", m.Outputs[0].Rad)
	}
}

func TestReadJSONErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"malformed", `{"points": [`},
		{"duplicate point", `{"points": [{"id": 1}, {"id": 1}]}`},
		{"duplicate link", `{"links": [{"id": 0, "i": 0, "j": 1}, {"id": 0, "i": 1, "j": 2}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadJSON(strings.NewReader(tt.doc))
			if !lerrors.Is(err, lerrors.ErrCodeInvalidModel) {
				t.Errorf("err = %v, want code %s", err, lerrors.ErrCodeInvalidModel)
			}
		})
	}
}

func TestImportExport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fourbar.json")
	m := fourBar(t)
	if err := ExportJSON(path, m); err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("exported file missing: %v", err)
	}
	got, err := ImportJSON(path)
	if err != nil {
		t.Fatalf("ImportJSON: %v", err)
	}
	if len(got.Points) != 4 || len(got.Links) != 3 {
		t.Errorf("imported %d points, %d links, want 4, 3", len(got.Points), len(got.Links))
	}

	_, err = ImportJSON(filepath.Join(dir, "missing.json"))
	if !lerrors.Is(err, lerrors.ErrCodeFileNotFound) {
		t.Errorf("missing file err = %v, want code %s", err, lerrors.ErrCodeFileNotFound)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	a, err := Marshal(fourBar(t))
	if err != nil {
		t.Fatal(err)
	}
	b, _ := Marshal(fourBar(t))
	if !bytes.Equal(a, b) {
		t.Error("Marshal output differs between identical models")
	}
}
