package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the canonical text form of a Date.
const DateLayout = "2006-01-02"

// Date is a calendar date. The embedded time is always midnight UTC.
type Date struct {
	time.Time
}

// NewDate builds a Date from its components.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// DatePtr returns a pointer to d.
func DatePtr(d Date) *Date {
	return &d
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// Equal compares calendar dates.
func (d Date) Equal(o Date) bool {
	return d.Time.Equal(o.Time)
}

// AddDays returns the date n days later (or earlier for negative n).
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time.AddDate(0, 0, n))
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", s, err)
	}
	*d = parsed
	return nil
}

// MarshalYAML renders the date in its canonical form.
func (d Date) MarshalYAML() (any, error) {
	return d.String(), nil
}

// EqualDatePtr compares two optional dates.
func EqualDatePtr(a, b *Date) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// Before reports whether d is strictly earlier than o.
func (d Date) Before(o Date) bool {
	return d.Time.Before(o.Time)
}

// After reports whether d is strictly later than o.
func (d Date) After(o Date) bool {
	return d.Time.After(o.Time)
}
