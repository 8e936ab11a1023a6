// Package markethours answers whether an exchange session is open.
//
// The advisor's loop uses it to sleep through closed hours instead of
// re-fetching the same daily bars all night.
package markethours

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Clock is a wall-clock time of day.
type Clock struct {
	Hour, Minute int
}

func (c Clock) minutes() int { return c.Hour*60 + c.Minute }

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return Clock{}, fmt.Errorf("markethours: bad clock %q: %w", s, err)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// Session describes one exchange's regular trading hours, Mon–Fri.
type Session struct {
	Name     string
	Location *time.Location
	Open     Clock
	Close    Clock
	Holidays map[string]bool // keyed by "2006-01-02" in Location
}

// NSE is the National Stock Exchange cash session (9:15 AM – 3:30 PM IST).
func NSE() Session {
	return Session{
		Name:     "NSE",
		Location: IST,
		Open:     Clock{9, 15},
		Close:    Clock{15, 30},
		Holidays: nseHolidays(),
	}
}

// NewSession builds a session from an IANA zone name, "HH:MM" open and
// close times, and holiday dates in "2006-01-02" form.
func NewSession(name, tz, open, close string, holidays []string) (Session, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Session{}, fmt.Errorf("markethours: load location %q: %w", tz, err)
	}
	o, err := ParseClock(open)
	if err != nil {
		return Session{}, err
	}
	c, err := ParseClock(close)
	if err != nil {
		return Session{}, err
	}
	if c.minutes() <= o.minutes() {
		return Session{}, fmt.Errorf("markethours: close %s not after open %s", c, o)
	}
	set := make(map[string]bool, len(holidays))
	for _, h := range holidays {
		d, err := time.Parse("2006-01-02", strings.TrimSpace(h))
		if err != nil {
			return Session{}, fmt.Errorf("markethours: bad holiday %q: %w", h, err)
		}
		set[dateKey(d)] = true
	}
	return Session{Name: name, Location: loc, Open: o, Close: c, Holidays: set}, nil
}

func (s Session) loc() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// IsOpen returns true if t falls within trading hours on a trading day.
func (s Session) IsOpen(t time.Time) bool {
	lt := t.In(s.loc())
	if !s.IsTradingDay(lt) {
		return false
	}
	hm := lt.Hour()*60 + lt.Minute()
	return hm >= s.Open.minutes() && hm < s.Close.minutes()
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func (s Session) IsTradingDay(t time.Time) bool {
	lt := t.In(s.loc())
	wd := lt.Weekday()
	return wd >= time.Monday && wd <= time.Friday && !s.IsHoliday(lt)
}

func (s Session) at(d time.Time, c Clock) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour, c.Minute, 0, 0, s.loc())
}

// NextOpen returns the next session open. If t is before today's open on a
// trading day, returns today's open.
func (s Session) NextOpen(t time.Time) time.Time {
	lt := t.In(s.loc())

	// Try today first
	todayOpen := s.at(lt, s.Open)
	if lt.Before(todayOpen) && s.IsTradingDay(lt) {
		return todayOpen
	}

	d := lt.AddDate(0, 0, 1)
	for i := 0; i < 15; i++ { // weekends plus clustered holidays
		if s.IsTradingDay(d) {
			return s.at(d, s.Open)
		}
		d = d.AddDate(0, 0, 1)
	}
	return s.at(lt.AddDate(0, 0, 1), s.Open)
}

// TodayClose returns today's close time.
func (s Session) TodayClose(t time.Time) time.Time {
	return s.at(t.In(s.loc()), s.Close)
}

// TimeUntilOpen returns the duration until the next open, or 0 while open.
func (s Session) TimeUntilOpen(t time.Time) time.Duration {
	if s.IsOpen(t) {
		return 0
	}
	return s.NextOpen(t).Sub(t)
}

// StatusString returns a human-readable session status.
func (s Session) StatusString(t time.Time) string {
	if s.IsOpen(t) {
		return fmt.Sprintf("%s open, closes in %s", s.Name, fmtDur(s.TodayClose(t).Sub(t)))
	}
	next := s.NextOpen(t).In(s.loc())
	return fmt.Sprintf("%s closed, opens %s %s (%s)",
		s.Name, next.Weekday().String()[:3], next.Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
