package progress

import "time"

// dateLayout is the calendar-day format used for visit tracking. Dates are
// compared as strings, which works because the layout sorts lexically.
const dateLayout = "2006-01-02"

// Date is a calendar day in "YYYY-MM-DD" form. Streak arithmetic works on
// whole days in the learner's wall clock, not on instants.
type Date string

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date {
	return Date(t.Format(dateLayout))
}

// AddDays returns the date n whole days after d (n may be negative). A
// malformed date returns itself unchanged.
func (d Date) AddDays(n int) Date {
	t, err := time.Parse(dateLayout, string(d))
	if err != nil {
		return d
	}
	return Date(t.AddDate(0, 0, n).Format(dateLayout))
}

// Valid reports whether d parses as a calendar day.
func (d Date) Valid() bool {
	_, err := time.Parse(dateLayout, string(d))
	return err == nil
}
