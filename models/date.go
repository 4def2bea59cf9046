package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the only accepted calendar date format.
const DateLayout = "2006-01-02"

// Date is a zero-padded YYYY-MM-DD calendar date. Because every Date is built
// through ParseDate or DateOf, plain string comparison orders dates correctly.
type Date string

// ParseDate validates s and returns it as a Date. Strings that do not
// round-trip through DateLayout (e.g. "2024-1-5") are rejected.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", s, err)
	}
	if t.Format(DateLayout) != s {
		return "", fmt.Errorf("invalid date %q: not zero-padded", s)
	}
	return Date(s), nil
}

// MustParseDate is ParseDate for static seed data.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DateOf returns the calendar date of t in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	return Date(t.In(loc).Format(DateLayout))
}

// Time returns midnight UTC of the date.
func (d Date) Time() time.Time {
	t, _ := time.Parse(DateLayout, string(d))
	return t
}

func (d Date) String() string { return string(d) }

func (d Date) Before(o Date) bool { return d < o }
func (d Date) After(o Date) bool  { return d > o }
func (d Date) Equal(o Date) bool  { return d == o }

// AddDays shifts the date by n calendar days.
func (d Date) AddDays(n int) Date {
	return Date(d.Time().AddDate(0, 0, n).Format(DateLayout))
}

func (d Date) Weekday() time.Weekday {
	return d.Time().Weekday()
}

// NextBusinessDay returns d, or the following Monday when d is a weekend.
func (d Date) NextBusinessDay() Date {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDays(2)
	case time.Sunday:
		return d.AddDays(1)
	}
	return d
}

// UnmarshalJSON rejects dates that are not zero-padded.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
