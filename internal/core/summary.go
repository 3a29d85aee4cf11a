package core

import "time"

// MonthGroup is one row of the monthly summary: all of a user's expenses
// in a calendar month, summed, with the distinct category names used.
type MonthGroup struct {
	Year       int
	Month      time.Month
	TotalSpent Money
	Categories []string
}

// Label renders the group's human-readable month name, e.g. "March 2025".
func (g MonthGroup) Label() string {
	return time.Date(g.Year, g.Month, 1, 0, 0, 0, 0, time.UTC).Format("January 2006")
}
