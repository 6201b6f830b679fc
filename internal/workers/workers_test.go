package workers

import (
	"runtime"
	"testing"
)

func TestCount(t *testing.T) {
	t.Setenv(EnvOverride, "")

	availableCPU := runtime.GOMAXPROCS(0)

	tests := []struct {
		name       string
		multiplier float64
		limit      int
		minExpect  int
		maxExpect  int
	}{
		{
			name:       "CPU-bound",
			multiplier: 1.0,
			minExpect:  1,
			maxExpect:  availableCPU,
		},
		{
			name:       "I/O-bound",
			multiplier: 2.0,
			minExpect:  1,
			maxExpect:  availableCPU * 2,
		},
		{
			name:       "Mixed",
			multiplier: 1.5,
			minExpect:  1,
			maxExpect:  int(float64(availableCPU) * 1.5),
		},
		{
			name:       "Limit lower than calculated",
			multiplier: 2.0,
			limit:      2,
			minExpect:  1,
			maxExpect:  2,
		},
		{
			name:       "Tiny multiplier still yields one worker",
			multiplier: 0.0001,
			minExpect:  1,
			maxExpect:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Count(tt.multiplier, tt.limit)
			if got < tt.minExpect || got > tt.maxExpect {
				t.Errorf("Count(%v, %d) = %d, want between %d and %d",
					tt.multiplier, tt.limit, got, tt.minExpect, tt.maxExpect)
			}
		})
	}
}

func TestCountOverride(t *testing.T) {
	tests := []struct {
		name     string
		override string
		limit    int
		expected int
	}{
		{name: "Override respected", override: "5", expected: 5},
		{name: "Override capped by limit", override: "50", limit: 4, expected: 4},
		{name: "Zero override ignored", override: "0", limit: 1, expected: 1},
		{name: "Garbage override ignored", override: "many", limit: 1, expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvOverride, tt.override)
			if got := Count(1.0, tt.limit); got != tt.expected {
				t.Errorf("Count() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	t.Setenv(EnvOverride, "")

	if got := Resolve(3, 0); got != 3 {
		t.Errorf("Resolve(3, 0) = %d, want 3", got)
	}
	if got := Resolve(12, 8); got != 8 {
		t.Errorf("Resolve(12, 8) = %d, want 8", got)
	}
	if got := Resolve(0, 1); got != 1 {
		t.Errorf("Resolve(0, 1) = %d, want 1", got)
	}
}

func TestHelpers(t *testing.T) {
	t.Setenv(EnvOverride, "")

	if ForCPU(0) > ForIO(0) {
		t.Errorf("ForCPU() = %d should not exceed ForIO() = %d", ForCPU(0), ForIO(0))
	}
	if ForMixed(1) != 1 {
		t.Errorf("ForMixed(1) = %d, want 1", ForMixed(1))
	}
}
