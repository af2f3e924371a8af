package pricing

import "testing"

func TestOrderForDisplayCancelledLastStartDesc(t *testing.T) {
	quotes := []AggregatedQuote{
		{GroupID: 1, Status: "CANCELLED", Start: "2025-09-10"},
		{GroupID: 2, Status: "SENT", Start: "2025-08-01"},
		{GroupID: 3, Status: "CONFIRMED", Start: "2025-09-01"},
		{GroupID: 4, Status: "cancelled", Start: "2025-12-01"},
	}
	out := OrderForDisplay(quotes, DisplayOrder{CancelledLast: true, StartDateDesc: true})

	want := []int64{3, 2, 4, 1}
	for i, id := range want {
		if out[i].GroupID != id {
			t.Fatalf("position %d: expected group %d, got %d", i, id, out[i].GroupID)
		}
	}
}

func TestOrderForDisplayLeavesInputUntouched(t *testing.T) {
	quotes := []AggregatedQuote{
		{GroupID: 1, Start: "2025-01-01"},
		{GroupID: 2, Start: "2025-06-01"},
	}
	out := OrderForDisplay(quotes, DisplayOrder{StartDateDesc: true})
	if quotes[0].GroupID != 1 || quotes[1].GroupID != 2 {
		t.Fatal("input slice was reordered")
	}
	if out[0].GroupID != 2 {
		t.Fatalf("expected newest first, got group %d", out[0].GroupID)
	}
}

func TestOrderForDisplayNoOptionsKeepsOrder(t *testing.T) {
	quotes := []AggregatedQuote{{GroupID: 5}, {GroupID: 2}, {GroupID: 9}}
	out := OrderForDisplay(quotes, DisplayOrder{})
	for i, q := range quotes {
		if out[i].GroupID != q.GroupID {
			t.Fatalf("expected insertion order preserved, got %+v", out)
		}
	}
}

func TestOrderForDisplayUnparseableDatesSortLast(t *testing.T) {
	quotes := []AggregatedQuote{
		{GroupID: 1, Start: ""},
		{GroupID: 2, Start: "2025-03-01"},
	}
	out := OrderForDisplay(quotes, DisplayOrder{StartDateDesc: true})
	if out[0].GroupID != 2 || out[1].GroupID != 1 {
		t.Fatalf("expected dated quote first, got %+v", out)
	}
}
