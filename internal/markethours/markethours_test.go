package markethours

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ny(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, NewYork)
}

func TestIsMarketOpen(t *testing.T) {
	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"before open", ny(2026, time.October, 14, 9, 29), false},
		{"at open", ny(2026, time.October, 14, 9, 30), true},
		{"midday", ny(2026, time.October, 14, 12, 0), true},
		{"at close", ny(2026, time.October, 14, 16, 0), false},
		{"saturday", ny(2026, time.October, 17, 12, 0), false},
		{"thanksgiving", ny(2026, time.November, 26, 12, 0), false},
		{"early close, morning", ny(2026, time.November, 27, 12, 59), true},
		{"early close, afternoon", ny(2026, time.November, 27, 13, 0), false},
		{"utc input", time.Date(2026, time.October, 14, 14, 0, 0, 0, time.UTC), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsMarketOpen(tc.at))
		})
	}
}

func TestNextOpen(t *testing.T) {
	// same day, before the bell
	assert.Equal(t, ny(2026, time.October, 14, 9, 30), NextOpen(ny(2026, time.October, 14, 7, 0)))
	// friday evening rolls over the weekend
	assert.Equal(t, ny(2026, time.October, 19, 9, 30), NextOpen(ny(2026, time.October, 16, 17, 0)))
	// the holiday is skipped
	assert.Equal(t, ny(2026, time.November, 27, 9, 30), NextOpen(ny(2026, time.November, 25, 16, 30)))
	// July 3 observed, then the weekend
	assert.Equal(t, ny(2026, time.July, 6, 9, 30), NextOpen(ny(2026, time.July, 2, 18, 0)))
}

func TestNow(t *testing.T) {
	st := Now(ny(2026, time.October, 14, 8, 0))
	assert.Equal(t, "pre", st.Session)
	assert.False(t, st.Open)

	st = Now(ny(2026, time.October, 14, 10, 0))
	assert.Equal(t, "regular", st.Session)
	assert.True(t, st.Open)
	assert.Equal(t, ny(2026, time.October, 14, 16, 0), st.Closes)

	assert.Equal(t, "post", Now(ny(2026, time.October, 14, 19, 59)).Session)
	assert.Equal(t, "closed", Now(ny(2026, time.October, 14, 20, 0)).Session)
	assert.Equal(t, "closed", Now(ny(2026, time.October, 14, 3, 59)).Session)
	assert.Equal(t, "closed", Now(ny(2026, time.December, 25, 11, 0)).Session)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "Market open, closes in 1h30m", StatusString(ny(2026, time.October, 14, 14, 30)))
	assert.Equal(t, "Market closed, opens Mon 09:30 ET (64h30m)", StatusString(ny(2026, time.October, 16, 17, 0)))
}
