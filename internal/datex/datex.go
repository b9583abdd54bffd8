// Package datex holds the calendar-date helpers shared by the conversation
// flows, the storage adapters and the retention sweep.
//
// Users type dates as d.m.yyyy (leading zeros optional); storage keeps the
// ISO form yyyy-mm-dd so string comparison matches date order.
package datex

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// Date is a calendar date without a time component.
type Date = civil.Date

const (
	// InputLayout accepts "1.2.2099" as well as "01.02.2099".
	InputLayout   = "2.1.2006"
	DisplayLayout = "02.01.2006"
)

// ParseUser parses operator/user input. ok=false means the text is not a valid
// calendar date (bad format or an impossible day such as 31.02).
func ParseUser(text string) (Date, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Date{}, false
	}
	t, err := time.Parse(InputLayout, s)
	if err != nil {
		return Date{}, false
	}
	return civil.DateOf(t), true
}

// Display renders d the way users type it.
func Display(d Date) string {
	return d.In(time.UTC).Format(DisplayLayout)
}

// ToStorage returns the ISO storage form.
func ToStorage(d Date) string { return d.String() }

// FromStorage parses the ISO storage form.
func FromStorage(s string) (Date, error) {
	return civil.ParseDate(strings.TrimSpace(s))
}

// Today returns the calendar date of now in loc (UTC when loc is nil).
func Today(now time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	return civil.DateOf(now.In(loc))
}

// Tomorrow is Today plus one day.
func Tomorrow(now time.Time, loc *time.Location) Date {
	return Today(now, loc).AddDays(1)
}

// RetentionCutoff returns the first date that survives a sweep. A non-positive
// window keeps today and later, so only past-due notices are removed.
func RetentionCutoff(today Date, days int) Date {
	if days <= 0 {
		return today
	}
	return today.AddDays(-days)
}

// LoadLocation resolves an IANA zone name; empty means UTC.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}
