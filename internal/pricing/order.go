package pricing

import (
	"sort"
	"strings"
)

// DisplayOrder describes an optional presentation ordering applied on top of
// the aggregator's neutral first-seen output. Consumers that want insertion
// order simply skip this step.
type DisplayOrder struct {
	// CancelledLast pushes groups whose status matches CancelledStatus to
	// the end of the sequence.
	CancelledLast bool
	// CancelledStatus is compared case-insensitively; empty means
	// "CANCELLED".
	CancelledStatus string
	// StartDateDesc orders by start date, most recent first. Unparseable
	// dates sort last.
	StartDateDesc bool
}

// OrderForDisplay returns a newly allocated, reordered copy of the quotes.
// The sort is stable, so groups the policy considers equal keep their
// aggregation order.
func OrderForDisplay(quotes []AggregatedQuote, opts DisplayOrder) []AggregatedQuote {
	out := make([]AggregatedQuote, len(quotes))
	copy(out, quotes)

	cancelled := opts.CancelledStatus
	if cancelled == "" {
		cancelled = "CANCELLED"
	}

	sort.SliceStable(out, func(i, j int) bool {
		if opts.CancelledLast {
			ci := strings.EqualFold(out[i].Status, cancelled)
			cj := strings.EqualFold(out[j].Status, cancelled)
			if ci != cj {
				return !ci
			}
		}
		if opts.StartDateDesc {
			ti, okI := ParseDate(out[i].Start)
			tj, okJ := ParseDate(out[j].Start)
			if okI != okJ {
				return okI
			}
			if okI && okJ && !ti.Equal(tj) {
				return ti.After(tj)
			}
		}
		return false
	})

	return out
}
