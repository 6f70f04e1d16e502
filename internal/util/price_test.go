package util

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestRoundToTick_Nickel(t *testing.T) {
	tests := []struct {
		x, tick, want string
	}{
		{"1.2345", "0.05", "1.25"},
		{"1.02", "0.05", "1.00"},
		{"-1.03", "0.05", "-1.05"},
	}
	for _, tt := range tests {
		got := RoundToTick(dec(tt.x), dec(tt.tick))
		if !got.Equal(dec(tt.want)) {
			t.Errorf("RoundToTick(%s, %s) = %s, want %s", tt.x, tt.tick, got, tt.want)
		}
	}
}

func TestFloorAndCeilToTick(t *testing.T) {
	if got := FloorToTick(dec("1.09"), dec("0.05")); !got.Equal(dec("1.05")) {
		t.Errorf("FloorToTick = %s, want 1.05", got)
	}
	if got := CeilToTick(dec("1.01"), dec("0.05")); !got.Equal(dec("1.05")) {
		t.Errorf("CeilToTick = %s, want 1.05", got)
	}
}

func TestRoundToTick_ZeroTickIsNoop(t *testing.T) {
	x := dec("1.2345")
	if got := RoundToTick(x, decimal.Zero); !got.Equal(x) {
		t.Errorf("expected no-op on zero tick, got %s", got)
	}
}
