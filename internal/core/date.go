package core

import (
	"strings"
	"time"
)

// Date is a calendar date with no time component, fixed to UTC midnight.
type Date struct {
	time.Time
}

// dateLayouts are the textual forms accepted by ParseDate, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2006/01/02",
	"02-01-2006",
}

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a calendar date from any of the accepted textual forms.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrInvalidDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Date{Time: t}, nil
		}
	}
	return Date{}, ErrInvalidDate
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// String renders the date in the unambiguous wire form (ISO-8601).
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02")
}

// Day returns the day of the month.
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month as 1-12.
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year.
func (d Date) Year() int {
	return d.Time.Year()
}

// Equal reports whether two dates fall on the same calendar day.
func (d Date) Equal(other Date) bool {
	return d.String() == other.String()
}
