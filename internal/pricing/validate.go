package pricing

import "fmt"

// DefaultMaxRentalDays caps the resolvable rental length when the caller does
// not supply its own limit.
const DefaultMaxRentalDays = 30

// ValidateOptions tunes the submission checks.
type ValidateOptions struct {
	// MaxDays caps the resolved rental length. Zero or negative means
	// DefaultMaxRentalDays.
	MaxDays int
}

// Validate runs the submission-eligibility checks over a quote draft and
// returns every violation, not just the first, so a form can surface all
// problems at once. An empty result means the quote may be submitted.
//
// Validation is deliberately separate from Price: totals are recomputed
// tolerantly on every edit, while these checks only gate the final submit.
func Validate(lines []LineInput, products ProductLookup, period Period, opts ValidateOptions) []string {
	var reasons []string

	if len(lines) == 0 {
		reasons = append(reasons, "at least one item is required")
	}
	for i, line := range lines {
		if _, ok := products[line.ProductID]; !ok {
			reasons = append(reasons, fmt.Sprintf("item %d: product %d not found", i+1, line.ProductID))
		}
		if line.Quantity <= 0 {
			reasons = append(reasons, fmt.Sprintf("item %d: quantity must be positive", i+1))
		}
	}

	start, okStart := ParseDate(period.Start)
	end, okEnd := ParseDate(period.End)
	switch {
	case !okStart || !okEnd:
		reasons = append(reasons, "start and end dates are required")
	case !end.After(start):
		reasons = append(reasons, "end date must be after start date")
	default:
		maxDays := opts.MaxDays
		if maxDays <= 0 {
			maxDays = DefaultMaxRentalDays
		}
		if days := daysBetween(start, end); days > maxDays {
			reasons = append(reasons, fmt.Sprintf("rental period exceeds the %d day limit", maxDays))
		}
	}

	return reasons
}
