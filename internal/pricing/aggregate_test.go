package pricing

import (
	"reflect"
	"testing"
)

func testClients() ClientLookup {
	return ClientLookup{
		10: {ID: 10, Name: "Ana Souza"},
		11: {ID: 11, Name: "Bruno Lima"},
	}
}

func flatFixture() []FlatLine {
	// Five lines over two logical reservations, interleaved on purpose.
	return []FlatLine{
		{LineID: 1, GroupID: 1, ClientID: 10, ProductID: 1, Quantity: 2, Start: "2025-08-15", End: "2025-08-18", Status: "SENT", Freight: 20, Discount: 10},
		{LineID: 2, GroupID: 1, ClientID: 10, ProductID: 2, Quantity: 3, Start: "2025-08-15", End: "2025-08-18", Status: "SENT", Freight: 20, Discount: 10},
		{LineID: 3, GroupID: 2, ClientID: 11, ProductID: 2, Quantity: 10, Start: "2025-09-01", End: "2025-09-02", Status: "CONFIRMED"},
		{LineID: 4, GroupID: 1, ClientID: 10, ProductID: 3, Quantity: 8, Start: "2025-08-15", End: "2025-08-18", Status: "SENT", Freight: 20, Discount: 10},
		{LineID: 5, GroupID: 2, ClientID: 11, ProductID: 1, Quantity: 1, Start: "2025-09-01", End: "2025-09-02", Status: "CONFIRMED"},
	}
}

func TestAggregateGroupsInFirstSeenOrder(t *testing.T) {
	groups := Aggregate(flatFixture(), testClients(), testProducts())

	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].GroupID != 1 || groups[1].GroupID != 2 {
		t.Fatalf("expected first-seen order [1 2], got [%d %d]", groups[0].GroupID, groups[1].GroupID)
	}
	if len(groups[0].Items) != 3 {
		t.Fatalf("expected 3 items in group 1, got %d", len(groups[0].Items))
	}
	if len(groups[1].Items) != 2 {
		t.Fatalf("expected 2 items in group 2, got %d", len(groups[1].Items))
	}
}

func TestAggregateLineCountIsComplete(t *testing.T) {
	lines := flatFixture()
	groups := Aggregate(lines, testClients(), testProducts())
	var total int
	for _, g := range groups {
		total += len(g.Items)
	}
	if total != len(lines) {
		t.Fatalf("expected %d items across groups, got %d", len(lines), total)
	}
}

func TestAggregateTotals(t *testing.T) {
	groups := Aggregate(flatFixture(), testClients(), testProducts())

	// Group 1: 3 days. 10*2*3 + 5*3*3 + priceless product = 105.
	if groups[0].Total != 105.00 {
		t.Fatalf("expected group 1 total 105.00, got %v", groups[0].Total)
	}
	// Group 2: 1 day. 5*10*1 + 10*1*1 = 60.
	if groups[1].Total != 60.00 {
		t.Fatalf("expected group 2 total 60.00, got %v", groups[1].Total)
	}
}

func TestAggregateFirstSeenWinsOnGroupFields(t *testing.T) {
	lines := []FlatLine{
		{LineID: 1, GroupID: 7, ClientID: 10, ProductID: 1, Quantity: 1, Start: "2025-08-15", End: "2025-08-16", Status: "DRAFT", Observations: "original"},
		// Malformed input: same group, divergent group-level fields.
		{LineID: 2, GroupID: 7, ClientID: 11, ProductID: 2, Quantity: 1, Start: "2025-12-01", End: "2025-12-05", Status: "CANCELLED", Observations: "divergent"},
	}
	groups := Aggregate(lines, testClients(), testProducts())
	if len(groups) != 1 {
		t.Fatalf("expected a single group, got %d", len(groups))
	}
	g := groups[0]
	if g.ClientID != 10 || g.Status != "DRAFT" || g.Start != "2025-08-15" || g.Observations != "original" {
		t.Fatalf("expected first-seen group fields, got %+v", g)
	}
	// The divergent line still prices against the group's period (1 day).
	if g.Items[1].Subtotal != 5.00 {
		t.Fatalf("expected second item priced against group period, got %v", g.Items[1].Subtotal)
	}
}

func TestAggregateUnknownClientGetsPlaceholder(t *testing.T) {
	lines := []FlatLine{
		{LineID: 1, GroupID: 3, ClientID: 999, ProductID: 1, Quantity: 1, Start: "2025-08-15", End: "2025-08-16"},
	}
	groups := Aggregate(lines, testClients(), testProducts())
	if len(groups) != 1 {
		t.Fatal("expected the group to still be produced")
	}
	if groups[0].ClientName != ClientNotFoundName {
		t.Fatalf("expected placeholder client name, got %q", groups[0].ClientName)
	}
}

func TestAggregateDoesNotMutateInput(t *testing.T) {
	lines := flatFixture()
	snapshot := make([]FlatLine, len(lines))
	copy(snapshot, lines)

	_ = Aggregate(lines, testClients(), testProducts())

	if !reflect.DeepEqual(lines, snapshot) {
		t.Fatal("aggregate mutated its input")
	}
}

func TestAggregateEmptyInput(t *testing.T) {
	groups := Aggregate(nil, testClients(), testProducts())
	if groups == nil || len(groups) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", groups)
	}
}
