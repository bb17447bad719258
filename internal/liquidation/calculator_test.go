package liquidation

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"cdpwatch/internal/model"
)

var owner = common.HexToAddress("0x1111111111111111111111111111111111111111")

func rat(s string) *big.Rat {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		panic("bad rat " + s)
	}
	return r
}

func openPosition(ink, art string) model.Position {
	return model.Position{
		ID:         42,
		Owner:      owner,
		Collateral: rat(ink),
		Debt:       rat(art),
		Tag:        rat("250.5"),
		Mat:        rat("1.5"),
		Per:        rat("1.02"),
	}
}

func TestCalculateOpenPosition(t *testing.T) {
	pos := openPosition("10", "1000")
	par := rat("1")

	snap := Calculate(pos, par)

	if snap.Closed {
		t.Fatalf("position should not be closed")
	}
	wantRatio := rat("2505/1000")
	if snap.Ratio.Cmp(wantRatio) != 0 {
		t.Fatalf("ratio mismatch: %s != %s", snap.Ratio.RatString(), wantRatio.RatString())
	}
	// (1000 * 1.5) / (1.02 * 10)
	wantPrice := new(big.Rat).Quo(rat("1500"), rat("10.2"))
	if snap.LiquidationPrice.Cmp(wantPrice) != 0 {
		t.Fatalf("liquidation price mismatch: %s != %s", snap.LiquidationPrice.RatString(), wantPrice.RatString())
	}
}

func TestCalculateIsExact(t *testing.T) {
	// values that drift in float64: 0.1 + 0.2 style inputs
	pos := model.Position{
		Owner:      owner,
		Collateral: rat("0.3"),
		Debt:       rat("0.1"),
		Tag:        rat("0.7"),
		Mat:        rat("3"),
		Per:        rat("0.1"),
	}
	par := rat("1.05")

	snap := Calculate(pos, par)

	wantRatio := new(big.Rat).Quo(new(big.Rat).Mul(rat("0.3"), rat("0.7")), new(big.Rat).Mul(rat("0.1"), par))
	if snap.Ratio.Cmp(wantRatio) != 0 {
		t.Fatalf("ratio mismatch: %s != %s", snap.Ratio.RatString(), wantRatio.RatString())
	}
	if snap.Ratio.RatString() != "2" {
		t.Fatalf("expected exact ratio 2, got %s", snap.Ratio.RatString())
	}
	if snap.LiquidationPrice.RatString() != "10" {
		t.Fatalf("expected exact liquidation price 10, got %s", snap.LiquidationPrice.RatString())
	}
}

func TestCalculateEmptyPosition(t *testing.T) {
	cases := []struct {
		name string
		pos  model.Position
		par  *big.Rat
	}{
		{name: "no collateral", pos: openPosition("0", "1000"), par: rat("1")},
		{name: "no debt", pos: openPosition("10", "0"), par: rat("1")},
		{name: "zero par", pos: openPosition("10", "1000"), par: rat("0")},
		{name: "nil par", pos: openPosition("10", "1000"), par: nil},
		{name: "zero per", pos: func() model.Position {
			p := openPosition("10", "1000")
			p.Per = new(big.Rat)
			return p
		}(), par: rat("1")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := Calculate(tc.pos, tc.par)
			if snap.Closed {
				t.Fatalf("position should not be closed")
			}
			if snap.Ratio == nil || snap.Ratio.Sign() != 0 {
				t.Fatalf("expected zero ratio, got %v", snap.Ratio)
			}
			if snap.LiquidationPrice == nil || snap.LiquidationPrice.Sign() != 0 {
				t.Fatalf("expected zero liquidation price, got %v", snap.LiquidationPrice)
			}
			if Below(snap, rat("2")) {
				t.Fatalf("empty position must never be below threshold")
			}
		})
	}
}

func TestCalculateClosedPosition(t *testing.T) {
	pos := openPosition("10", "1000")
	pos.Owner = common.Address{}

	snap := Calculate(pos, rat("1"))

	if !snap.Closed {
		t.Fatalf("expected closed position")
	}
	if snap.Ratio != nil || snap.LiquidationPrice != nil {
		t.Fatalf("closed position must not carry metrics")
	}
	if Below(snap, rat("1000")) {
		t.Fatalf("closed position must never be below threshold")
	}
}

func TestBelowIsStrict(t *testing.T) {
	snap := model.Snapshot{Ratio: rat("1.5")}
	if Below(snap, rat("1.5")) {
		t.Fatalf("ratio equal to threshold must not alert")
	}
	if !Below(snap, rat("1.5000000000000000000001")) {
		t.Fatalf("ratio just under threshold must alert")
	}
}

func TestFormat(t *testing.T) {
	if got := FormatPercent(rat("1.23456")); got != "123.46" {
		t.Fatalf("percent mismatch: %s", got)
	}
	if got := FormatPrice(rat("147.058823")); got != "147.06" {
		t.Fatalf("price mismatch: %s", got)
	}
	if got := FormatPercent(nil); got != "n/a" {
		t.Fatalf("nil percent mismatch: %s", got)
	}
}
