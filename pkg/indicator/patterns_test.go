package indicator

import (
	"encoding/json"
	"testing"
)

type bar struct{ o, h, l, c float64 }

func bars(bs ...bar) OHLCV {
	d := OHLCV{}
	for _, b := range bs {
		d.Open = append(d.Open, b.o)
		d.High = append(d.High, b.h)
		d.Low = append(d.Low, b.l)
		d.Close = append(d.Close, b.c)
		d.Volume = append(d.Volume, 1)
	}
	return d
}

// falling returns n gapping-down bearish bars that form no pattern together.
func falling(n int) []bar {
	out := make([]bar, n)
	for k := range out {
		o := 100 - 5*float64(k)
		out[k] = bar{o: o, h: o + 0.5, l: o - 2.5, c: o - 2}
	}
	return out
}

func rising(n int) []bar {
	out := make([]bar, n)
	for k := range out {
		o := 100 + 5*float64(k)
		out[k] = bar{o: o, h: o + 2.5, l: o - 0.5, c: o + 2}
	}
	return out
}

func TestPatterns_ThreeBarBeatsEmbeddedTwoBar(t *testing.T) {
	a := bar{o: 110, h: 111, l: 99, c: 100}
	b := bar{o: 98, h: 99, l: 97, c: 97.5}
	c := bar{o: 97, h: 108.5, l: 96.5, c: 108}

	if got := twoBar(candle{b.o, b.h, b.l, b.c}, candle{c.o, c.h, c.l, c.c}); got != BullishEngulfing {
		t.Fatalf("fixture should embed a bullish engulfing, got %v", got)
	}
	got := Patterns(bars(a, b, c))
	if got[2] != MorningStar {
		t.Errorf("bar 2 = %v, want %v", got[2], MorningStar)
	}
}

func TestPatterns_TrendDisambiguatesHammerShape(t *testing.T) {
	hammer := bar{o: 80, h: 80.55, l: 78, c: 80.5}
	got := Patterns(bars(append(falling(4), hammer)...))
	if got[4] != Hammer {
		t.Errorf("after downtrend: %v, want %v", got[4], Hammer)
	}

	hanging := bar{o: 121, h: 121.05, l: 119, c: 120.5}
	got = Patterns(bars(append(rising(4), hanging)...))
	if got[4] != HangingMan {
		t.Errorf("after uptrend: %v, want %v", got[4], HangingMan)
	}

	got = Patterns(bars(hammer))
	if got[0] != None {
		t.Errorf("without history: %v, want none", got[0])
	}
}

func TestPatterns_InvertedShape(t *testing.T) {
	inv := bar{o: 80, h: 82, l: 79.95, c: 80.5}
	got := Patterns(bars(append(falling(4), inv)...))
	if got[4] != InvertedHammer {
		t.Errorf("after downtrend: %v, want %v", got[4], InvertedHammer)
	}
	star := bar{o: 120.5, h: 122.5, l: 120.45, c: 121}
	got = Patterns(bars(append(rising(4), star)...))
	if got[4] != ShootingStar {
		t.Errorf("after uptrend: %v, want %v", got[4], ShootingStar)
	}
}

func TestPatterns_SingleBarShapes(t *testing.T) {
	cases := []struct {
		name string
		b    bar
		want Pattern
	}{
		{"doji", bar{o: 10, h: 11, l: 9, c: 10.05}, Doji},
		{"dragonfly", bar{o: 10, h: 10.05, l: 8, c: 10}, DragonflyDoji},
		{"gravestone", bar{o: 10, h: 12, l: 9.95, c: 10}, GravestoneDoji},
		{"bullish marubozu", bar{o: 10, h: 12.05, l: 9.98, c: 12}, BullishMarubozu},
		{"bearish marubozu", bar{o: 12, h: 12.02, l: 9.95, c: 10}, BearishMarubozu},
		{"spinning top", bar{o: 10, h: 11, l: 9, c: 10.4}, SpinningTop},
		{"flat", bar{o: 10, h: 10, l: 10, c: 10}, Doji},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Patterns(bars(tc.b))[0]; got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPatterns_TwoBar(t *testing.T) {
	cases := []struct {
		name string
		a, b bar
		want Pattern
	}{
		{"bearish engulfing", bar{o: 10, h: 11.2, l: 9.9, c: 11}, bar{o: 11.2, h: 11.3, l: 9.4, c: 9.5}, BearishEngulfing},
		{"bullish harami", bar{o: 12, h: 12.1, l: 9.9, c: 10}, bar{o: 10.5, h: 11.8, l: 10.4, c: 11.5}, BullishHarami},
		{"bearish harami", bar{o: 10, h: 12.1, l: 9.9, c: 12}, bar{o: 11.5, h: 11.8, l: 10.3, c: 10.5}, BearishHarami},
		{"piercing line", bar{o: 12, h: 12.1, l: 9.9, c: 10}, bar{o: 9.5, h: 11.6, l: 9.4, c: 11.5}, PiercingLine},
		{"dark cloud", bar{o: 10, h: 12.1, l: 9.9, c: 12}, bar{o: 12.5, h: 12.6, l: 10.4, c: 10.5}, DarkCloudCover},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Patterns(bars(tc.a, tc.b))[1]; got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPatterns_ThreeWhiteSoldiers(t *testing.T) {
	got := Patterns(bars(
		bar{o: 10, h: 12.2, l: 9.9, c: 12},
		bar{o: 11, h: 13.6, l: 10.9, c: 13.5},
		bar{o: 12.5, h: 15.1, l: 12.4, c: 15},
	))
	if got[2] != ThreeWhiteSoldiers {
		t.Errorf("got %v, want %v", got[2], ThreeWhiteSoldiers)
	}
}

func TestPattern_Metadata(t *testing.T) {
	if Hammer.Bars() != 1 || TweezerTop.Bars() != 2 || MorningStar.Bars() != 3 || None.Bars() != 0 {
		t.Error("unexpected bar counts")
	}
	out, err := json.Marshal([]Pattern{None, MorningStar})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `[null,"morning_star"]` {
		t.Errorf("json = %s", out)
	}
}
