// Package markethours answers whether the US equity market is in session,
// so pollers can skip work while the exchange is closed.
package markethours

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// NewYork is the exchange's time zone.
var NewYork = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// Regular session in New York time.
const (
	OpenHour         = 9
	OpenMinute       = 30
	CloseHour        = 16
	CloseMinute      = 0
	EarlyCloseHour   = 13
	EarlyCloseMinute = 0
)

// Status is a point-in-time market state.
type Status struct {
	Open     bool      `json:"open"`
	Session  string    `json:"session"` // pre, regular, post or closed
	NextOpen time.Time `json:"next_open"`
	Closes   time.Time `json:"closes"`
}

// IsMarketOpen reports whether t falls inside the regular session
// (09:30-16:00 ET, 13:00 on early-close days) of a trading day.
func IsMarketOpen(t time.Time) bool {
	if !IsTradingDay(t) {
		return false
	}
	ny := t.In(NewYork)
	return !ny.Before(sessionOpen(ny)) && ny.Before(sessionClose(ny))
}

// IsWeekday reports whether t is Mon-Fri in New York.
func IsWeekday(t time.Time) bool {
	wd := t.In(NewYork).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay reports whether t is a weekday and not a holiday.
func IsTradingDay(t time.Time) bool {
	return IsWeekday(t) && !IsHoliday(t)
}

func sessionOpen(ny time.Time) time.Time {
	return time.Date(ny.Year(), ny.Month(), ny.Day(), OpenHour, OpenMinute, 0, 0, NewYork)
}

func sessionClose(ny time.Time) time.Time {
	if IsEarlyClose(ny) {
		return time.Date(ny.Year(), ny.Month(), ny.Day(), EarlyCloseHour, EarlyCloseMinute, 0, 0, NewYork)
	}
	return time.Date(ny.Year(), ny.Month(), ny.Day(), CloseHour, CloseMinute, 0, 0, NewYork)
}

// NextOpen returns the next regular-session open at or after t. If t is
// before today's open on a trading day, today's open is returned.
func NextOpen(t time.Time) time.Time {
	ny := t.In(NewYork)
	if IsTradingDay(ny) && ny.Before(sessionOpen(ny)) {
		return sessionOpen(ny)
	}
	d := ny
	for i := 0; i < 14; i++ {
		d = time.Date(d.Year(), d.Month(), d.Day()+1, 12, 0, 0, 0, NewYork)
		if IsTradingDay(d) {
			return sessionOpen(d)
		}
	}
	return sessionOpen(time.Date(ny.Year(), ny.Month(), ny.Day()+1, 12, 0, 0, 0, NewYork))
}

// TodayClose returns the close of t's session date.
func TodayClose(t time.Time) time.Time {
	return sessionClose(t.In(NewYork))
}

// Now reports the market state at t.
func Now(t time.Time) Status {
	ny := t.In(NewYork)
	st := Status{NextOpen: NextOpen(ny)}
	switch {
	case !IsTradingDay(ny):
		st.Session = "closed"
	case ny.Before(sessionOpen(ny).Add(-5*time.Hour - 30*time.Minute)):
		st.Session = "closed"
	case ny.Before(sessionOpen(ny)):
		st.Session = "pre"
	case ny.Before(sessionClose(ny)):
		st.Session = "regular"
		st.Open = true
		st.Closes = sessionClose(ny)
	case ny.Before(sessionClose(ny).Add(4 * time.Hour)):
		st.Session = "post"
	default:
		st.Session = "closed"
	}
	return st
}

// StatusString returns a one-line human readable status.
func StatusString(t time.Time) string {
	if IsMarketOpen(t) {
		return fmt.Sprintf("Market open, closes in %s", fmtDur(TodayClose(t).Sub(t)))
	}
	next := NextOpen(t)
	ny := next.In(NewYork)
	return fmt.Sprintf("Market closed, opens %s %s ET (%s)",
		ny.Weekday().String()[:3], ny.Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
