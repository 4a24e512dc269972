// README: Money math tests (rounding, splits, total invariant).
package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestLineTotalRounding(t *testing.T) {
	cases := []struct {
		price string
		qty   int
		want  string
	}{
		{"100.00", 2, "200"},
		{"50.00", 1, "50"},
		{"0.335", 3, "1.01"}, // 1.005 rounds half away from zero
		{"19.99", 1000, "19990"},
	}
	for _, tc := range cases {
		got := LineTotal(d(tc.price), tc.qty)
		if !got.Equal(d(tc.want)) {
			t.Errorf("LineTotal(%s, %d) = %s, want %s", tc.price, tc.qty, got, tc.want)
		}
	}
}

func TestTotalInvariant(t *testing.T) {
	// Scenario from the order flow: 2x100.00 + 1x50.00, VAT 5%, delivery
	// fee 120, tip 10 → 392.50.
	lines := []decimal.Decimal{
		LineTotal(d("100.00"), 2),
		LineTotal(d("50.00"), 1),
	}
	sub := Subtotal(lines)
	if !sub.Equal(d("250")) {
		t.Fatalf("subtotal = %s, want 250", sub)
	}
	vat := VAT(sub, d("0.05"))
	if !vat.Equal(d("12.5")) {
		t.Fatalf("vat = %s, want 12.5", vat)
	}
	total := Total(sub, vat, d("10"), d("120"))
	if !total.Equal(d("392.5")) {
		t.Fatalf("total = %s, want 392.5", total)
	}
	if !total.Equal(sub.Add(vat).Add(d("10")).Add(d("120"))) {
		t.Fatal("total invariant broken")
	}
}

func TestDepositSplitRestaurant(t *testing.T) {
	// gross 250, fee rate 10%, VAT 5%: fee 25, net (225)*1.05 = 236.25
	fee, net := DepositSplit(d("250"), d("0.10"), d("0.05"), OwnerRestaurant)
	if !fee.Equal(d("25")) {
		t.Errorf("fee = %s, want 25", fee)
	}
	if !net.Equal(d("236.25")) {
		t.Errorf("net = %s, want 236.25", net)
	}
}

func TestDepositSplitCourier(t *testing.T) {
	// gross 120, fee rate 15%: fee 18, net 102, no VAT adjustment.
	fee, net := DepositSplit(d("120"), d("0.15"), d("0.05"), OwnerCourier)
	if !fee.Equal(d("18")) {
		t.Errorf("fee = %s, want 18", fee)
	}
	if !net.Equal(d("102")) {
		t.Errorf("net = %s, want 102", net)
	}
}

func TestDepositSplitRoundsOnce(t *testing.T) {
	// Odd rate exercising the round-after-multiply order.
	fee, net := DepositSplit(d("99.99"), d("0.0333"), d("0.05"), OwnerRestaurant)
	wantFee := d("3.33")   // 3.329667 rounds to 3.33
	wantNet := d("101.49") // (99.99-3.33)*1.05 = 101.493 rounds to 101.49
	if !fee.Equal(wantFee) {
		t.Errorf("fee = %s, want %s", fee, wantFee)
	}
	if !net.Equal(wantNet) {
		t.Errorf("net = %s, want %s", net, wantNet)
	}
}
