package occ

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradeoracle/engine/internal/models"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	c := Contract{
		Underlying: "SPY",
		Expiration: time.Date(2026, time.January, 17, 0, 0, 0, 0, time.UTC),
		Right:      models.Call,
		Strike:     decimal.NewFromFloat(450.00),
	}
	sym, err := Encode(c)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if sym != "SPY   260117C00450000" {
		t.Fatalf("unexpected symbol: %q", sym)
	}
	got, err := Decode(sym)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Underlying != c.Underlying || got.Right != c.Right || !got.Strike.Equal(c.Strike) || !got.Expiration.Equal(c.Expiration) {
		t.Fatalf("round-trip mismatch: %+v vs %+v", got, c)
	}
	reEncoded, err := Encode(got)
	if err != nil {
		t.Fatalf("re-encode failed: %v", err)
	}
	if reEncoded != sym {
		t.Fatalf("encode(decode(s)) != s: %q vs %q", reEncoded, sym)
	}
}

func TestDecode_RejectsBadLength(t *testing.T) {
	_, err := Decode("TOO SHORT")
	if err == nil {
		t.Fatalf("expected error for bad length")
	}
}

func TestDecode_RejectsBadRight(t *testing.T) {
	_, err := Decode("SPY   260117X00450000")
	if err == nil {
		t.Fatalf("expected error for bad right character")
	}
}

func TestEncode_SubTenthCentStrikeRejected(t *testing.T) {
	_, err := Encode(Contract{
		Underlying: "SPY",
		Expiration: time.Now(),
		Right:      models.Call,
		Strike:     decimal.NewFromFloat(450.0001),
	})
	if err == nil {
		t.Fatalf("expected error for sub-tenth-of-cent strike")
	}
}
