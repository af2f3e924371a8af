package pricing

import (
	"math"
	"reflect"
	"testing"
)

func ptr(v float64) *float64 { return &v }

func testProducts() ProductLookup {
	return ProductLookup{
		1: {ID: 1, Name: "Mesa redonda", DailyPrice: ptr(10.00), ReplacementValue: ptr(120.00), OwnedQty: 40},
		2: {ID: 2, Name: "Cadeira tiffany", DailyPrice: ptr(5.00), ReplacementValue: ptr(45.00), OwnedQty: 200},
		3: {ID: 3, Name: "Toalha branca", DailyPrice: nil, ReplacementValue: nil, OwnedQty: 80},
	}
}

func TestPriceSameDayRental(t *testing.T) {
	products := ProductLookup{
		7: {ID: 7, Name: "Copo de vidro", DailyPrice: ptr(8.50), OwnedQty: 100},
	}
	quote := Price(
		[]LineInput{{ProductID: 7, Quantity: 10}},
		products,
		Period{Start: "2025-08-15", End: "2025-08-15"},
		Adjustments{},
	)
	if quote.Days != 1 {
		t.Fatalf("expected 1 day, got %d", quote.Days)
	}
	if quote.Lines[0].Subtotal != 85.00 {
		t.Fatalf("expected line subtotal 85.00, got %v", quote.Lines[0].Subtotal)
	}
	if quote.RentalSubtotal != 85.00 {
		t.Fatalf("expected rental subtotal 85.00, got %v", quote.RentalSubtotal)
	}
}

func TestPriceFullBreakdown(t *testing.T) {
	// Two lines over a three day period with freight, discount and deposit.
	quote := Price(
		[]LineInput{
			{ProductID: 1, Quantity: 2},
			{ProductID: 2, Quantity: 3},
		},
		testProducts(),
		Period{Start: "2025-08-15", End: "2025-08-18"},
		Adjustments{Freight: 20, Discount: 10, DepositPct: 30},
	)
	if quote.Days != 3 {
		t.Fatalf("expected 3 days, got %d", quote.Days)
	}
	if quote.RentalSubtotal != 105.00 {
		t.Fatalf("expected rental subtotal 105.00, got %v", quote.RentalSubtotal)
	}
	if quote.DepositAmount != 31.50 {
		t.Fatalf("expected deposit 31.50, got %v", quote.DepositAmount)
	}
	if quote.GrandTotal != 115.00 {
		t.Fatalf("expected grand total 115.00, got %v", quote.GrandTotal)
	}
	if quote.ReplacementSubtotal != 2*120.00+3*45.00 {
		t.Fatalf("unexpected replacement subtotal %v", quote.ReplacementSubtotal)
	}
}

func TestPriceGrandTotalNeverNegative(t *testing.T) {
	quote := Price(
		[]LineInput{{ProductID: 1, Quantity: 1}},
		testProducts(),
		Period{Start: "2025-08-15", End: "2025-08-16"},
		Adjustments{Discount: 500},
	)
	if quote.RentalSubtotal != 10.00 {
		t.Fatalf("expected rental subtotal 10.00, got %v", quote.RentalSubtotal)
	}
	if quote.GrandTotal != 0 {
		t.Fatalf("expected grand total floored at 0, got %v", quote.GrandTotal)
	}
}

func TestPriceEmptyPeriodNeutral(t *testing.T) {
	quote := Price(
		[]LineInput{{ProductID: 1, Quantity: 5}},
		testProducts(),
		Period{},
		Adjustments{DepositPct: 30},
	)
	if quote.Days != 0 {
		t.Fatalf("expected 0 days, got %d", quote.Days)
	}
	if quote.RentalSubtotal != 0 || quote.DepositAmount != 0 {
		t.Fatalf("expected zero totals, got subtotal %v deposit %v", quote.RentalSubtotal, quote.DepositAmount)
	}
	// Replacement value does not depend on duration.
	if quote.ReplacementSubtotal != 600.00 {
		t.Fatalf("expected replacement subtotal 600.00, got %v", quote.ReplacementSubtotal)
	}
}

func TestPriceMissingProductKeptAndZeroed(t *testing.T) {
	quote := Price(
		[]LineInput{
			{ProductID: 999, Quantity: 4},
			{ProductID: 1, Quantity: 1},
		},
		testProducts(),
		Period{Start: "2025-08-15", End: "2025-08-16"},
		Adjustments{},
	)
	if len(quote.Lines) != 2 {
		t.Fatalf("expected both lines kept, got %d", len(quote.Lines))
	}
	missing := quote.Lines[0]
	if missing.Resolved {
		t.Fatal("expected first line flagged unresolved")
	}
	if missing.Subtotal != 0 || missing.ReplacementValue != 0 {
		t.Fatalf("expected zero contribution, got subtotal %v replacement %v", missing.Subtotal, missing.ReplacementValue)
	}
	if quote.RentalSubtotal != 10.00 {
		t.Fatalf("expected rental subtotal 10.00, got %v", quote.RentalSubtotal)
	}
}

func TestPriceNilPriceCoercesToZero(t *testing.T) {
	quote := Price(
		[]LineInput{{ProductID: 3, Quantity: 10}},
		testProducts(),
		Period{Start: "2025-08-15", End: "2025-08-17"},
		Adjustments{},
	)
	if !quote.Lines[0].Resolved {
		t.Fatal("expected line resolved")
	}
	if quote.RentalSubtotal != 0 {
		t.Fatalf("expected zero subtotal for priceless product, got %v", quote.RentalSubtotal)
	}
}

func TestPriceNegativeQuantityContributesZero(t *testing.T) {
	quote := Price(
		[]LineInput{{ProductID: 1, Quantity: -3}},
		testProducts(),
		Period{Start: "2025-08-15", End: "2025-08-16"},
		Adjustments{},
	)
	if quote.RentalSubtotal != 0 {
		t.Fatalf("expected zero subtotal, got %v", quote.RentalSubtotal)
	}
	if quote.Lines[0].Quantity != -3 {
		t.Fatal("expected original quantity preserved on the line for the validation pass")
	}
}

func TestPriceGuardsNonFiniteAdjustments(t *testing.T) {
	quote := Price(
		[]LineInput{{ProductID: 1, Quantity: 1}},
		testProducts(),
		Period{Start: "2025-08-15", End: "2025-08-16"},
		Adjustments{Freight: math.NaN(), Discount: math.Inf(1), DepositPct: math.NaN()},
	)
	if quote.Freight != 0 || quote.Discount != 0 || quote.DepositAmount != 0 {
		t.Fatalf("expected non-finite adjustments coerced to zero: %+v", quote)
	}
	if quote.GrandTotal != 10.00 {
		t.Fatalf("expected grand total 10.00, got %v", quote.GrandTotal)
	}
}

func TestPriceIsIdempotentAndDoesNotMutateInputs(t *testing.T) {
	lines := []LineInput{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 3}}
	products := testProducts()
	period := Period{Start: "2025-08-15", End: "2025-08-18"}
	adj := Adjustments{Freight: 20, Discount: 10, DepositPct: 30}

	first := Price(lines, products, period, adj)
	second := Price(lines, products, period, adj)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical outputs, got %+v vs %+v", first, second)
	}

	wantLines := []LineInput{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 3}}
	if !reflect.DeepEqual(lines, wantLines) {
		t.Fatalf("inputs were mutated: %+v", lines)
	}
}
