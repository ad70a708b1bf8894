package errors

import (
	"math"
	"strings"
	"testing"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "L1", false},
		{"underscore prefix", "_crank", false},
		{"unicode letter", "länge", false},
		{"surrounding space", "  r  ", false},
		{"empty", "", true},
		{"blank", "   ", true},
		{"leading digit", "1abc", true},
		{"dash", "a-b", true},
		{"dot", "a.b", true},
		{"too long", strings.Repeat("a", 200), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIdentifier(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeInvalidName) {
				t.Errorf("error code = %v, want %v", GetCode(err), ErrCodeInvalidName)
			}
		})
	}
}

func TestValidateSignalName(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"crank angle", false},
		{"load.P3.mag", false},
		{"", true},
		{"bad\x01name", true},
	}
	for _, tt := range tests {
		if err := ValidateSignalName(tt.input); (err != nil) != tt.wantErr {
			t.Errorf("ValidateSignalName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
	}
}

func TestValidateFinite(t *testing.T) {
	if err := ValidateFinite("x", 1.5); err != nil {
		t.Errorf("ValidateFinite(1.5) = %v, want nil", err)
	}
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if err := ValidateFinite("x", v); err == nil {
			t.Errorf("ValidateFinite(%v) = nil, want error", v)
		}
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"relative", "examples/fourbar.json", false},
		{"absolute", "/tmp/out.png", false},
		{"empty", "", true},
		{"null byte", "a\x00b", true},
		{"too long", strings.Repeat("a", 2000), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidatePath(tt.input); (err != nil) != tt.wantErr {
				t.Errorf("ValidatePath(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
