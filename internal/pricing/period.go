package pricing

import (
	"math"
	"strings"
	"time"
)

const dayDuration = 24 * time.Hour

// Period is a rental date range as it arrives from the wire. Either bound may
// be empty while a quote is still being edited.
type Period struct {
	Start string `json:"data_inicio"`
	End   string `json:"data_fim"`
}

var periodLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"02/01/2006",
}

// ParseDate parses a calendar date in any of the accepted wire layouts.
// It reports false for empty or unparseable input.
func ParseDate(value string) (time.Time, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, false
	}
	for _, layout := range periodLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Bounds resolves both period dates. The boolean reports whether both bounds
// are present and parseable.
func (p Period) Bounds() (start, end time.Time, ok bool) {
	start, okStart := ParseDate(p.Start)
	end, okEnd := ParseDate(p.End)
	return start, end, okStart && okEnd
}

// Days resolves the billable day count for the period. See ResolveDays.
func (p Period) Days() int {
	return ResolveDays(p.Start, p.End)
}

// ResolveDays computes the number of billable rental days between two dates.
//
// An empty or unparseable bound resolves to 0 days, never an error: the UI
// recomputes totals on every keystroke and a half-filled form is a normal
// state. Once both bounds are present the count is ceil(end-start) with a
// minimum of 1, so a same-day rental bills one day. Inverted ranges also
// resolve to 1; the validation pass is the place that rejects them.
//
// The return day itself is not billed (picking up on the 10th and returning
// on the 12th is two days).
func ResolveDays(start, end string) int {
	from, okFrom := ParseDate(start)
	to, okTo := ParseDate(end)
	if !okFrom || !okTo {
		return 0
	}
	return daysBetween(from, to)
}

func daysBetween(from, to time.Time) int {
	diff := to.Sub(from)
	if diff <= 0 {
		return 1
	}
	days := int(math.Ceil(float64(diff) / float64(dayDuration)))
	if days < 1 {
		return 1
	}
	return days
}
