package main

import "time"

// exportRange turns optional day bounds into a half-open interval. Dates are
// parsed as UTC midnight and reinterpreted in local time, which is how
// reported_at is stored.
func exportRange(from, to *time.Time) (time.Time, time.Time) {
	lower := time.Time{}
	upper := time.Date(9999, 1, 1, 0, 0, 0, 0, time.Local)
	if from != nil {
		lower = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.Local)
	}
	if to != nil {
		upper = time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.Local)
	}
	return lower, upper
}
