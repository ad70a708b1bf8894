package expr

import (
	"math"
	"testing"
)

func TestEvalSignal(t *testing.T) {
	signals := map[string]any{
		"a":           2.0,
		"hist":        []float64{1, 2, 3},
		"load.P3.mag": 5.0,
		"load.P3.fx":  -3.0,
	}
	tests := []struct {
		src  string
		want float64
	}{
		{"a * 2 + mean(hist)", 6},
		{"max(hist) - min(hist)", 2},
		{"first(hist) + last(hist)", 4},
		{"rms(hist)", math.Sqrt(14.0 / 3)},
		{"load.P3.mag - 1", 4},
		{"abs(load.P3.fx)", 3},
		{"max(a)", 2},
		{"-a", -2},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got, err := EvalSignal(tt.src, signals)
			if err != nil {
				t.Fatalf("EvalSignal(%q): %v", tt.src, err)
			}
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("EvalSignal(%q) = %v, want %v", tt.src, got, tt.want)
			}
		})
	}
}

func TestEvalSignalErrors(t *testing.T) {
	signals := map[string]any{"a": 2.0, "hist": []float64{1, 2}, "empty": []float64{}}
	for _, src := range []string{
		"",
		"missing + 1",
		"hist + 1",
		"max(a, 1)",
		"mean(empty)",
		"abs(hist)",
		"sqrt(a)",
	} {
		if _, err := EvalSignal(src, signals); err == nil {
			t.Errorf("EvalSignal(%q) succeeded, want error", src)
		}
	}
}

func TestNest(t *testing.T) {
	got := Nest(map[string]any{
		"a":     1.0,
		"a.b":   2.0,
		"x.y.z": 3.0,
	})
	if got["a"] != 1.0 {
		t.Errorf("a = %v, want 1", got["a"])
	}
	x, ok := got["x"].(map[string]any)
	if !ok {
		t.Fatalf("x = %T, want map", got["x"])
	}
	y, ok := x["y"].(map[string]any)
	if !ok || y["z"] != 3.0 {
		t.Errorf("x.y = %v, want map[z:3]", x["y"])
	}
}
