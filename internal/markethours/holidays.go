package markethours

import "time"

type day struct {
	year  int
	month time.Month
	day   int
}

// NYSE full-day closures.
var nyseHolidays = []day{
	{2026, time.January, 1},   // New Year's Day
	{2026, time.January, 19},  // Martin Luther King Jr. Day
	{2026, time.February, 16}, // Washington's Birthday
	{2026, time.April, 3},     // Good Friday
	{2026, time.May, 25},      // Memorial Day
	{2026, time.June, 19},     // Juneteenth
	{2026, time.July, 3},      // Independence Day (observed)
	{2026, time.September, 7}, // Labor Day
	{2026, time.November, 26}, // Thanksgiving
	{2026, time.December, 25}, // Christmas
	{2027, time.January, 1},
	{2027, time.January, 18},
	{2027, time.February, 15},
	{2027, time.March, 26},
	{2027, time.May, 31},
	{2027, time.June, 18},
	{2027, time.July, 5},
	{2027, time.September, 6},
	{2027, time.November, 25},
	{2027, time.December, 24},
}

// Sessions that close at 13:00 ET.
var nyseEarlyCloses = []day{
	{2026, time.November, 27},
	{2026, time.December, 24},
	{2027, time.November, 26},
}

var (
	holidaySet    = dateSet(nyseHolidays)
	earlyCloseSet = dateSet(nyseEarlyCloses)
)

func dateSet(days []day) map[string]bool {
	m := make(map[string]bool, len(days))
	for _, d := range days {
		m[dateKey(d.year, d.month, d.day)] = true
	}
	return m
}

// IsHoliday reports whether the exchange is closed all day on t's date
// (New York time).
func IsHoliday(t time.Time) bool {
	ny := t.In(NewYork)
	return holidaySet[dateKey(ny.Year(), ny.Month(), ny.Day())]
}

// IsEarlyClose reports whether t's session ends at 13:00 New York time.
func IsEarlyClose(t time.Time) bool {
	ny := t.In(NewYork)
	return earlyCloseSet[dateKey(ny.Year(), ny.Month(), ny.Day())]
}

func dateKey(year int, month time.Month, day int) string {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
}
