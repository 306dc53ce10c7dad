// Package reminders decides which deadline reminders are due and sends them.
package reminders

import (
	"time"

	"adr-workers/internal/models"
	"adr-workers/internal/notify"
)

// Tolerance widens every threshold to [Days-Tolerance, Days+Tolerance] so a
// late or skipped daily run still catches the reminder.
const Tolerance = 3

type Threshold struct {
	Name  string
	Days  int
	Event string
}

// Thresholds are ordered from furthest to nearest. Their windows never overlap.
var Thresholds = []Threshold{
	{Name: "6m", Days: 180, Event: notify.EventExpiry6m},
	{Name: "3m", Days: 90, Event: notify.EventExpiry3m},
	{Name: "1m", Days: 30, Event: notify.EventExpiry1m},
}

func maxWindowDays() int {
	return Thresholds[0].Days + Tolerance
}

func (t Threshold) Contains(days int) bool {
	return days >= t.Days-Tolerance && days <= t.Days+Tolerance
}

func (t Threshold) sent(c *models.Certificate) bool {
	switch t.Name {
	case "6m":
		return c.Reminder6mSent
	case "3m":
		return c.Reminder3mSent
	case "1m":
		return c.Reminder1mSent
	}
	return true
}

// Window returns the threshold whose window contains days, if any.
func Window(days int) (Threshold, bool) {
	for _, t := range Thresholds {
		if t.Contains(days) {
			return t, true
		}
	}
	return Threshold{}, false
}

// DueThreshold returns the threshold due for c at days before expiry: the
// window must contain days and its marker must still be unset.
func DueThreshold(days int, c *models.Certificate) (Threshold, bool) {
	t, ok := Window(days)
	if !ok || t.sent(c) {
		return Threshold{}, false
	}
	return t, true
}

// Day truncates t to midnight of its calendar date in loc.
func Day(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// DaysUntil counts calendar days from today to date. Both are read as
// calendar dates, date in UTC (how DATE columns are scanned) and today in loc.
func DaysUntil(today, date time.Time, loc *time.Location) int {
	ty, tm, td := today.In(loc).Date()
	dy, dm, dd := date.UTC().Date()
	from := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	to := time.Date(dy, dm, dd, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}
