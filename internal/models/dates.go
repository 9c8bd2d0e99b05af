package models

import "time"

// Day truncates t to its calendar date at UTC midnight. All date columns are
// written through Day so equality and range predicates compare like values.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today is the current UTC calendar date.
func Today() time.Time {
	return Day(time.Now().UTC())
}
