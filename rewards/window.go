package rewards

import "time"

// =============================================================================
// DATES - Calendar days in UTC
// =============================================================================

// NewDate returns midnight UTC for the given calendar day.
func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Day truncates t to its calendar day, keeping t's own year/month/day.
func Day(t time.Time) time.Time {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// AddMonths shifts t by n calendar months, clamping to the last day of the
// target month: May 31 minus 3 months is Feb 28 (or 29), not Mar 3.
func AddMonths(t time.Time, n int) time.Time {
	first := NewDate(t.Year(), t.Month(), 1).AddDate(0, n, 0)
	last := first.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > last {
		day = last
	}
	return NewDate(first.Year(), first.Month(), day)
}

// =============================================================================
// WINDOW - Inclusive date range a reward query looks at
// =============================================================================

// Window is the lookback range [Start, End], inclusive at both ends.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains returns true if d falls within [Start, End].
func (w Window) Contains(d time.Time) bool {
	d = Day(d)
	return !d.Before(w.Start) && !d.After(w.End)
}

func (w Window) String() string {
	return "[" + w.Start.Format(DateLayout) + ", " + w.End.Format(DateLayout) + "]"
}

// DateLayout is the wire and log format for calendar days.
const DateLayout = "2006-01-02"

// RangeRequest is the optional caller-supplied range. Nil bounds fall back
// to the lookback policy.
type RangeRequest struct {
	Start *time.Time
	End   *time.Time
}

// LookbackConvention selects where a default window starts.
type LookbackConvention int

const (
	// LookbackInclusiveStart uses [end - N months, end].
	LookbackInclusiveStart LookbackConvention = iota
	// LookbackExclusiveStart uses [end - N months + 1 day, end], so a
	// 3-month window never touches the same day-of-month twice.
	LookbackExclusiveStart
)

// WindowPolicy turns a RangeRequest into a concrete Window.
type WindowPolicy struct {
	LookbackMonths int
	Convention     LookbackConvention
}

// DefaultWindowPolicy is the last 3 months ending today, inclusive start.
var DefaultWindowPolicy = WindowPolicy{LookbackMonths: 3, Convention: LookbackInclusiveStart}

// Resolve returns the window for req as seen on the given day.
//
//	start and end given -> used verbatim
//	only end given      -> lookback ending on end
//	only start given    -> [start, today]
//	neither given       -> lookback ending today
//
// Resolve does not validate; call Validator.ValidateRange on the result.
func (p WindowPolicy) Resolve(req RangeRequest, today time.Time) Window {
	end := Day(today)
	if req.End != nil {
		end = Day(*req.End)
	}
	if req.Start != nil {
		return Window{Start: Day(*req.Start), End: end}
	}
	return Window{Start: p.lookbackStart(end), End: end}
}

func (p WindowPolicy) lookbackStart(end time.Time) time.Time {
	months := p.LookbackMonths
	if months <= 0 {
		months = DefaultWindowPolicy.LookbackMonths
	}
	start := AddMonths(end, -months)
	if p.Convention == LookbackExclusiveStart {
		start = start.AddDate(0, 0, 1)
	}
	return start
}

// =============================================================================
// FILTER
// =============================================================================

// FilterTransactions returns the transactions dated within w, in input order.
// Points are left as they are; scoring is a separate step.
func FilterTransactions(txs []Transaction, w Window) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if w.Contains(tx.Date) {
			out = append(out, tx)
		}
	}
	return out
}
